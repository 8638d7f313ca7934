package automation_test

import (
	"context"
	"testing"
	"time"
	"wa-blaster/internal/automation"
	"wa-blaster/internal/automation/automationtest"
	"wa-blaster/internal/selectors"
	"wa-blaster/pkg/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestLocateWaitsForLateElement(t *testing.T) {
	page := automationtest.NewPage(selectors.Default())
	page.Hide(selectors.RoleComposeBox)
	kit, _ := newKit(t, page)

	page.ShowAfter(50*time.Millisecond, selectors.RoleComposeBox)

	started := time.Now()
	el, found, err := kit.Locator.Locate(context.Background(), kit.Catalog().Set(selectors.RoleComposeBox), 5*time.Second)

	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, selectors.Default().Set(selectors.RoleComposeBox).Queries[0], el.Selector)
	assert.Less(t, time.Since(started), 5*time.Second)
	assert.Equal(t, 1, page.Count(automation.FnLocate))
}

func TestLocateGivesUpAtTimeout(t *testing.T) {
	page := automationtest.NewPage(selectors.Default())
	page.Hide(selectors.RoleComposeBox)
	kit, _ := newKit(t, page)

	started := time.Now()
	_, found, err := kit.Locator.Locate(context.Background(), kit.Catalog().Set(selectors.RoleComposeBox), 100*time.Millisecond)
	elapsed := time.Since(started)

	require.NoError(t, err)
	assert.False(t, found)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Less(t, elapsed, 2*time.Second)
}

func TestLocateBoundedWhenPageStalls(t *testing.T) {
	page := automationtest.NewPage(selectors.Default())
	page.Stall = true

	opts := testOptions()
	opts.LocateGrace = 100 * time.Millisecond
	kit := automation.NewKit(page, selectors.Default(), opts, zaptest.NewLogger(t), (&automationtest.Sleeps{}).Sleep)

	started := time.Now()
	_, found, err := kit.Locator.Locate(context.Background(), kit.Catalog().Set(selectors.RoleComposeBox), 100*time.Millisecond)
	elapsed := time.Since(started)

	require.Error(t, err)
	assert.False(t, found)
	assert.GreaterOrEqual(t, elapsed, 200*time.Millisecond)
	assert.Less(t, elapsed, 2*time.Second)
}

func TestLocateStopsOnCancel(t *testing.T) {
	page := automationtest.NewPage(selectors.Default())
	page.Hide(selectors.RoleComposeBox)
	kit, _ := newKit(t, page)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	started := time.Now()
	_, found, err := kit.Locator.Locate(ctx, kit.Catalog().Set(selectors.RoleComposeBox), 5*time.Second)

	require.Error(t, err)
	assert.Equal(t, apperr.CodeCancelled, apperr.CodeOf(err))
	assert.False(t, found)
	assert.Less(t, time.Since(started), 5*time.Second)
}
