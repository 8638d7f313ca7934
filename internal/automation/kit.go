package automation

import (
	"context"
	"time"
	"wa-blaster/internal/config"
	"wa-blaster/internal/ports"
	"wa-blaster/internal/selectors"

	"go.uber.org/zap"
)

// Sleeper pauses for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type Options struct {
	AppURL           string
	CommandTimeout   time.Duration
	LocatorTimeout   time.Duration
	Settle           time.Duration
	AttachSettle     time.Duration
	NavigationSettle time.Duration
	KeystrokePacing  time.Duration
	VerifyRecent     int
	VerifyFailOpen   bool
	// LocateGrace bounds a locate call beyond its own timeout.
	LocateGrace      time.Duration
}

func OptionsFromConfig(c *config.AutomationConfig) Options {
	return Options{
		AppURL:           c.AppURL,
		CommandTimeout:   c.CommandTimeout(),
		LocatorTimeout:   c.LocatorTimeout(),
		Settle:           c.Settle(),
		AttachSettle:     c.AttachSettle(),
		NavigationSettle: c.NavigationSettle(),
		KeystrokePacing:  c.KeystrokePacing(),
		VerifyRecent:     c.VerifyRecent,
		VerifyFailOpen:   c.VerifyFailOpen,
	}
}

// Kit is the delivery pipeline bound to one tab.
type Kit struct {
	Bridge    *Bridge
	Locator   *Locator
	Text      *TextInjector
	Attach    *AttachmentInjector
	Verifier  *Verifier
	Trigger   *Trigger
	Chat      *Navigator
	Discovery *Discovery

	catalog *selectors.Catalog
	opts    Options
}

func NewKit(page ports.Page, catalog *selectors.Catalog, opts Options, logger *zap.Logger, sleep Sleeper) *Kit {
	if sleep == nil {
		sleep = Sleep
	}

	bridge := NewBridge(page, opts.CommandTimeout, logger)
	locator := NewLocator(bridge, opts.LocateGrace, logger)
	text := NewTextInjector(bridge, opts.KeystrokePacing, logger, sleep)
	verifier := NewVerifier(bridge, catalog, opts.VerifyRecent, opts.VerifyFailOpen, logger)

	return &Kit{
		Bridge:    bridge,
		Locator:   locator,
		Text:      text,
		Attach:    NewAttachmentInjector(bridge, locator, catalog, opts, logger, sleep),
		Verifier:  verifier,
		Trigger:   NewTrigger(bridge, locator, text, verifier, catalog, opts, logger, sleep),
		Chat:      NewNavigator(bridge, locator, catalog, opts, logger, sleep),
		Discovery: NewDiscovery(bridge, catalog, opts, logger),
		catalog:   catalog,
		opts:      opts,
	}
}

func (k *Kit) Catalog() *selectors.Catalog {
	return k.catalog
}

func (k *Kit) Options() Options {
	return k.opts
}

// AuthProbe is the raw presence of the login and signed-in markers.
type AuthProbe struct {
	QR       bool `json:"qr"`
	Intro    bool `json:"intro"`
	ChatList bool `json:"chatList"`
}

// Authenticated is true when no login prompt is shown and the chat list is.
func (p AuthProbe) Authenticated() bool {
	return !p.QR && !p.Intro && p.ChatList
}

func (k *Kit) ProbeAuth(ctx context.Context) (AuthProbe, error) {
	var probe AuthProbe

	err := k.Bridge.Call(ctx, FnProbeAuth, map[string]any{
		"qr":       k.catalog.Set(selectors.RoleLoginQR).Queries,
		"intro":    k.catalog.Set(selectors.RoleLoginIntro).Queries,
		"chatList": k.catalog.Set(selectors.RoleChatList).Queries,
	}, &probe)

	return probe, err
}
