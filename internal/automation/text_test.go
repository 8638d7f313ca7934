package automation_test

import (
	"context"
	"errors"
	"testing"
	"time"
	"wa-blaster/internal/automation"
	"wa-blaster/internal/automation/automationtest"
	"wa-blaster/internal/selectors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func locateCompose(t *testing.T, kit *automation.Kit) automation.Element {
	t.Helper()

	el, found, err := kit.Locator.Locate(context.Background(), kit.Catalog().Set(selectors.RoleComposeBox), time.Second)
	require.NoError(t, err)
	require.True(t, found)

	return el
}

func TestLocateFindsFirstPresentQuery(t *testing.T) {
	page := automationtest.NewPage(selectors.Default())
	kit, _ := newKit(t, page)

	el := locateCompose(t, kit)

	assert.Equal(t, selectors.RoleComposeBox, el.Role)
	assert.Equal(t, selectors.Default().Set(selectors.RoleComposeBox).Queries[0], el.Selector)
}

func TestLocateReportsNotFoundWithoutError(t *testing.T) {
	page := automationtest.NewPage(selectors.Default())
	page.Hide(selectors.RoleComposeBox)
	kit, _ := newKit(t, page)

	_, found, err := kit.Locator.Locate(context.Background(), kit.Catalog().Set(selectors.RoleComposeBox), 10*time.Millisecond)

	require.NoError(t, err)
	assert.False(t, found)
}

func TestInsertTextStopsAtFirstWorkingTechnique(t *testing.T) {
	page := automationtest.NewPage(selectors.Default())
	kit, _ := newKit(t, page)
	compose := locateCompose(t, kit)

	technique, err := kit.Text.Insert(context.Background(), compose, "hello there")

	require.NoError(t, err)
	assert.Equal(t, automation.TechniqueExecCommand, technique)
	assert.Equal(t, "hello there", page.Content(selectors.RoleComposeBox))
	assert.Zero(t, page.Count(automation.FnAssignContent))
	assert.Zero(t, page.Count("press:h"))
}

func TestInsertTextFallsBackToAssignment(t *testing.T) {
	page := automationtest.NewPage(selectors.Default())
	page.ExecCommandWorks = false
	kit, _ := newKit(t, page)
	compose := locateCompose(t, kit)

	technique, err := kit.Text.Insert(context.Background(), compose, "hello")

	require.NoError(t, err)
	assert.Equal(t, automation.TechniqueContentAssign, technique)
	assert.Equal(t, 1, page.Count(automation.FnAssignContent))
}

func TestInsertTextFallsBackToKeystrokes(t *testing.T) {
	page := automationtest.NewPage(selectors.Default())
	page.ExecCommandWorks = false
	page.AssignWorks = false
	kit, sleeps := newKit(t, page)
	compose := locateCompose(t, kit)

	technique, err := kit.Text.Insert(context.Background(), compose, "hi\nyo")

	require.NoError(t, err)
	assert.Equal(t, automation.TechniqueKeystrokes, technique)
	assert.Equal(t, "hi\nyo", page.Content(selectors.RoleComposeBox))
	assert.Equal(t, 1, page.Count("press:Shift+Enter"))
	assert.Len(t, sleeps.All(), 5)
	assert.Equal(t, 25*time.Millisecond, sleeps.All()[0])
}

func TestInsertTextReportsFailure(t *testing.T) {
	page := automationtest.NewPage(selectors.Default())
	page.ExecCommandWorks = false
	page.AssignWorks = false
	page.KeystrokesWork = false
	kit, _ := newKit(t, page)
	compose := locateCompose(t, kit)

	technique, err := kit.Text.Insert(context.Background(), compose, "hello")

	require.Error(t, err)
	assert.Empty(t, technique)
	assert.True(t, errors.Is(err, automation.ErrTextNotInserted))
}

func TestInsertEmptyTextIsNoop(t *testing.T) {
	page := automationtest.NewPage(selectors.Default())
	kit, _ := newKit(t, page)

	technique, err := kit.Text.Insert(context.Background(), automation.Element{}, "")

	require.NoError(t, err)
	assert.Empty(t, technique)
	assert.Empty(t, page.Calls())
}
