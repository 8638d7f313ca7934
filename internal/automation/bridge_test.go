package automation_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
	"wa-blaster/internal/automation"
	"wa-blaster/internal/automation/automationtest"
	"wa-blaster/internal/selectors"
	"wa-blaster/pkg/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubPage struct {
	closed   bool
	evaluate func(ctx context.Context, req automation.Request) (json.RawMessage, error)
}

func (s *stubPage) ID() string                             { return "stub" }
func (s *stubPage) URL() string                            { return "about:blank" }
func (s *stubPage) Navigate(context.Context, string) error { return nil }
func (s *stubPage) Press(context.Context, string) error    { return nil }
func (s *stubPage) IsClosed() bool                         { return s.closed }

func (s *stubPage) Evaluate(ctx context.Context, _ string, arg any) (json.RawMessage, error) {
	return s.evaluate(ctx, arg.(automation.Request))
}

func reply(id string, ok bool, data any, errText string) json.RawMessage {
	raw, _ := json.Marshal(map[string]any{"id": id, "ok": ok, "data": data, "error": errText})
	return raw
}

func testOptions() automation.Options {
	return automation.Options{
		AppURL:           "https://web.whatsapp.com",
		CommandTimeout:   2 * time.Second,
		LocatorTimeout:   200 * time.Millisecond,
		Settle:           1500 * time.Millisecond,
		AttachSettle:     2 * time.Second,
		NavigationSettle: 3 * time.Second,
		KeystrokePacing:  25 * time.Millisecond,
		VerifyRecent:     10,
		VerifyFailOpen:   true,
	}
}

func newKit(t *testing.T, page *automationtest.Page) (*automation.Kit, *automationtest.Sleeps) {
	t.Helper()

	sleeps := &automationtest.Sleeps{}
	kit := automation.NewKit(page, selectors.Default(), testOptions(), zaptest.NewLogger(t), sleeps.Sleep)

	return kit, sleeps
}

func TestBridgeDecodesData(t *testing.T) {
	page := &stubPage{evaluate: func(_ context.Context, req automation.Request) (json.RawMessage, error) {
		assert.Equal(t, automation.FnPageText, req.Fn)
		assert.NotEmpty(t, req.ID)

		return reply(req.ID, true, map[string]string{"text": "hello"}, ""), nil
	}}

	bridge := automation.NewBridge(page, time.Second, zaptest.NewLogger(t))

	var out struct {
		Text string `json:"text"`
	}
	require.NoError(t, bridge.Call(context.Background(), automation.FnPageText, nil, &out))
	assert.Equal(t, "hello", out.Text)
}

func TestBridgeRejectsMismatchedID(t *testing.T) {
	page := &stubPage{evaluate: func(_ context.Context, _ automation.Request) (json.RawMessage, error) {
		return reply("someone-else", true, nil, ""), nil
	}}

	bridge := automation.NewBridge(page, time.Second, zaptest.NewLogger(t))

	err := bridge.Call(context.Background(), automation.FnPageText, nil, nil)
	require.Error(t, err)
	assert.Equal(t, "correlation_mismatch", apperr.ReasonOf(err))
}

func TestBridgeSurfacesPageError(t *testing.T) {
	page := &stubPage{evaluate: func(_ context.Context, req automation.Request) (json.RawMessage, error) {
		return reply(req.ID, false, nil, "element not found: #x"), nil
	}}

	bridge := automation.NewBridge(page, time.Second, zaptest.NewLogger(t))

	err := bridge.Call(context.Background(), automation.FnClick, map[string]any{"selector": "#x"}, nil)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeActionFailed, apperr.CodeOf(err))
	assert.Equal(t, "element not found: #x", apperr.MessageOf(err))
}

func TestBridgeTimesOut(t *testing.T) {
	page := &stubPage{evaluate: func(ctx context.Context, _ automation.Request) (json.RawMessage, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}

	bridge := automation.NewBridge(page, 50*time.Millisecond, zaptest.NewLogger(t))

	start := time.Now()
	err := bridge.Call(context.Background(), automation.FnPageText, nil, nil)

	require.Error(t, err)
	assert.Equal(t, apperr.CodeTimeout, apperr.CodeOf(err))
	assert.Less(t, time.Since(start), time.Second)
}

func TestBridgeReportsCancellation(t *testing.T) {
	page := &stubPage{evaluate: func(ctx context.Context, _ automation.Request) (json.RawMessage, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}

	bridge := automation.NewBridge(page, time.Minute, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	err := bridge.Call(ctx, automation.FnPageText, nil, nil)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeCancelled, apperr.CodeOf(err))
}

func TestBridgeRejectsUnknownFunction(t *testing.T) {
	page := &stubPage{evaluate: func(context.Context, automation.Request) (json.RawMessage, error) {
		return nil, errors.New("must not be called")
	}}

	bridge := automation.NewBridge(page, time.Second, zaptest.NewLogger(t))

	err := bridge.Call(context.Background(), "eval", nil, nil)
	assert.Equal(t, apperr.CodeInvalidArgument, apperr.CodeOf(err))
}

func TestBridgeRefusesClosedTab(t *testing.T) {
	page := &stubPage{closed: true}

	bridge := automation.NewBridge(page, time.Second, zaptest.NewLogger(t))

	err := bridge.Call(context.Background(), automation.FnPageText, nil, nil)
	assert.Equal(t, apperr.CodeSessionUnavailable, apperr.CodeOf(err))
}

func TestBridgeDefaultTimeout(t *testing.T) {
	bridge := automation.NewBridge(&stubPage{}, 0, zaptest.NewLogger(t))
	assert.Equal(t, automation.DefaultCommandTimeout, bridge.Timeout())
}
