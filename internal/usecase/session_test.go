package usecase_test

import (
	"context"
	"testing"
	"wa-blaster/internal/automation"
	"wa-blaster/internal/selectors"
	"wa-blaster/pkg/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureSessionReusesOpenTab(t *testing.T) {
	h := newHarness(t)

	session, kit, err := h.sessions.EnsureSession(context.Background())
	require.NoError(t, err)
	assert.True(t, session.IsOpen)
	assert.True(t, session.IsAuthenticated)
	assert.Equal(t, "tab-1", session.TabHandle)
	assert.Zero(t, h.browser.Opened())
	assert.Empty(t, h.sleeps.All())

	_, again, err := h.sessions.EnsureSession(context.Background())
	require.NoError(t, err)
	assert.Same(t, kit, again)
}

func TestEnsureSessionOpensTabAndWarmsUp(t *testing.T) {
	h := newHarness(t)
	h.page.SetURL("https://example.com/")

	session, _, err := h.sessions.EnsureSession(context.Background())

	require.NoError(t, err)
	assert.True(t, session.IsAuthenticated)
	assert.Equal(t, 1, h.browser.Opened())
	assert.Contains(t, h.sleeps.All(), testWarmup)
}

func TestEnsureSessionReportsLoginRequired(t *testing.T) {
	h := newHarness(t)
	h.page.Hide(selectors.RoleChatList)
	h.page.Show(selectors.RoleLoginIntro)

	session, _, err := h.sessions.EnsureSession(context.Background())

	require.NoError(t, err)
	assert.True(t, session.IsOpen)
	assert.False(t, session.IsAuthenticated)
}

func TestEnsureSessionBrowserNotRunning(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.browser.Close(context.Background()))

	_, _, err := h.sessions.EnsureSession(context.Background())

	require.Error(t, err)
	assert.Equal(t, apperr.CodeBrowserNotReady, apperr.CodeOf(err))
}

func TestCheckStatusNeverOpensTab(t *testing.T) {
	h := newHarness(t)
	h.page.SetURL("https://example.com/")

	status := h.sessions.CheckStatus(context.Background())

	assert.False(t, status.IsOpen)
	assert.False(t, status.IsAuthenticated)
	assert.Empty(t, status.Error)
	assert.Zero(t, h.browser.Opened())
}

func TestCheckStatusProbesExistingTab(t *testing.T) {
	h := newHarness(t)

	status := h.sessions.CheckStatus(context.Background())
	assert.True(t, status.IsOpen)
	assert.True(t, status.IsAuthenticated)

	h.page.Show(selectors.RoleLoginQR)

	status = h.sessions.CheckStatus(context.Background())
	assert.True(t, status.IsOpen)
	assert.False(t, status.IsAuthenticated)
	assert.Equal(t, 2, h.page.Count(automation.FnProbeAuth))
}

func TestCheckStatusBrowserDown(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.browser.Close(context.Background()))

	status := h.sessions.CheckStatus(context.Background())

	assert.False(t, status.IsOpen)
	assert.NotEmpty(t, status.Error)
}

func TestGateAdmitsOneHolder(t *testing.T) {
	h := newHarness(t)

	release, ok := h.gate.TryAcquire("batch")
	require.True(t, ok)
	assert.Equal(t, "batch", h.gate.Holder())

	_, ok = h.gate.TryAcquire("auto-reply")
	assert.False(t, ok)

	release()
	release()
	assert.Empty(t, h.gate.Holder())

	_, ok = h.gate.TryAcquire("auto-reply")
	assert.True(t, ok)
}
