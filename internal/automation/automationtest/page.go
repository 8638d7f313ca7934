// Package automationtest provides an in-memory model of the chat page for
// tests that exercise the automation pipeline without a browser.
package automationtest

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
	"wa-blaster/internal/automation"
	"wa-blaster/internal/entity"
	"wa-blaster/internal/ports"
	"wa-blaster/internal/selectors"
)

// Entry is one bubble in the modelled transcript.
type Entry struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Delivered bool   `json:"delivered"`
}

// Row is one sidebar chat.
type Row struct {
	ID        string
	Title     string
	Secondary string
	Group     bool
}

// File is an attachment installed into the file input.
type File struct {
	Name     string
	MimeType string
	Size     int
}

// Page models the parts of the chat application the pipeline touches.
// Behaviour flags are read on every call and must be set before the page
// is shared with the code under test.
type Page struct {
	// ExecCommandWorks makes the native insert command succeed.
	ExecCommandWorks bool
	// AssignWorks makes direct content assignment stick.
	AssignWorks bool
	// KeystrokesWork makes native key presses type into the focused element.
	KeystrokesWork bool
	// ButtonSends, EnterSends and ScriptSends decide which submit path the
	// page honours.
	ButtonSends bool
	EnterSends  bool
	ScriptSends bool
	// Echo appends sent text to the transcript. Without it sends vanish.
	Echo bool
	// Deliver marks echoed bubbles with a delivery indicator.
	Deliver bool
	// TranscriptErr makes transcript scans fail.
	TranscriptErr error
	// HideIDs strips bubble ids from transcript scans, like chats that
	// render without data-id.
	HideIDs bool
	// OnNavigate runs after every navigation, outside the page lock.
	OnNavigate func(p *Page, url string)
	// Stall makes every page call hang until its context ends.
	Stall bool

	catalog *selectors.Catalog

	mu         sync.Mutex
	id         string
	url        string
	closed     bool
	present    map[string]bool
	changed    chan struct{}
	content    map[string]string
	active     string
	transcript []Entry
	incoming   []Entry
	bodyText   string
	rows       []Row
	labels     entity.LabelsResult
	files      []File
	calls      []string
	selected   []string
	pending    bool
	nextID     int
}

var _ ports.Page = (*Page)(nil)

// NewPage returns a signed-in page with an open chat whose every submit
// path works and echoes the sent text.
func NewPage(catalog *selectors.Catalog) *Page {
	p := &Page{
		ExecCommandWorks: true,
		AssignWorks:      true,
		KeystrokesWork:   true,
		ButtonSends:      true,
		EnterSends:       true,
		ScriptSends:      true,
		Echo:             true,
		catalog:          catalog,
		id:               "tab-1",
		url:              "https://web.whatsapp.com/",
		present:          make(map[string]bool),
		changed:          make(chan struct{}),
		content:          make(map[string]string),
	}

	p.Show(selectors.RoleChatList, selectors.RoleComposeBox, selectors.RoleSendButton,
		selectors.RoleAttachButton, selectors.RoleChatListItem)

	return p
}

// Show makes the first query of each role present.
func (p *Page) Show(roles ...selectors.Role) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, role := range roles {
		if q := p.catalog.Set(role).Queries; len(q) > 0 {
			p.present[q[0]] = true
		}
	}

	close(p.changed)
	p.changed = make(chan struct{})
}

// ShowAfter makes the roles appear once d has passed, the way the chat
// application renders late.
func (p *Page) ShowAfter(d time.Duration, roles ...selectors.Role) {
	time.AfterFunc(d, func() { p.Show(roles...) })
}

// Hide removes every query of each role.
func (p *Page) Hide(roles ...selectors.Role) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, role := range roles {
		for _, q := range p.catalog.Set(role).Queries {
			delete(p.present, q)
		}
	}
}

func (p *Page) SetID(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.id = id
}

func (p *Page) SetURL(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
}

func (p *Page) SetBodyText(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bodyText = text
}

func (p *Page) SetRows(rows ...Row) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rows = rows
}

func (p *Page) SetLabels(labels entity.LabelsResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.labels = labels
}

func (p *Page) AddOutgoing(text string, delivered bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transcript = append(p.transcript, Entry{ID: p.newID(), Text: text, Delivered: delivered})
}

func (p *Page) AddIncoming(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.incoming = append(p.incoming, Entry{ID: p.newID(), Text: text})
}

func (p *Page) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

func (p *Page) Transcript() []Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.transcript)
}

func (p *Page) Files() []File {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.files)
}

func (p *Page) Selected() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.selected)
}

// Content returns what the first query of role currently holds.
func (p *Page) Content(role selectors.Role) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if q := p.catalog.Set(role).Queries; len(q) > 0 {
		return p.content[q[0]]
	}

	return ""
}

// Calls lists page functions, key presses ("press:<key>") and navigations
// ("navigate:<url>") in the order they happened.
func (p *Page) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.calls)
}

// Count returns how many calls equal name.
func (p *Page) Count(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, c := range p.calls {
		if c == name {
			n++
		}
	}

	return n
}

func (p *Page) ID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.id
}

func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *Page) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Navigate opens a fresh chat: the transcript and compose state reset.
func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	p.calls = append(p.calls, "navigate:"+url)
	p.url = url
	p.resetChat()
	hook := p.OnNavigate
	p.mu.Unlock()

	if hook != nil {
		hook(p, url)
	}

	return nil
}

func (p *Page) Press(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls = append(p.calls, "press:"+key)

	switch key {
	case "Enter":
		if p.EnterSends {
			p.send()
		}
	case "Shift+Enter":
		if p.KeystrokesWork && p.active != "" {
			p.content[p.active] += "\n"
		}
	default:
		if p.KeystrokesWork && p.active != "" {
			p.content[p.active] += key
		}
	}

	return nil
}

type request struct {
	ID   string          `json:"id"`
	Fn   string          `json:"fn"`
	Args json.RawMessage `json:"args"`
}

type reply struct {
	ID    string `json:"id"`
	OK    bool   `json:"ok"`
	Data  any    `json:"data"`
	Error string `json:"error,omitempty"`
}

// Evaluate answers the bridge envelope the way the in-page wrapper does.
func (p *Page) Evaluate(ctx context.Context, _ string, arg any) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := json.Marshal(arg)
	if err != nil {
		return nil, err
	}

	var req request
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, err
	}

	if p.Stall {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	if req.Fn == automation.FnLocate {
		if err := p.awaitMatch(ctx, req.Args); err != nil {
			return nil, err
		}
	}

	p.mu.Lock()
	p.calls = append(p.calls, req.Fn)
	data, err := p.handle(req.Fn, req.Args)
	p.mu.Unlock()

	out := reply{ID: req.ID, OK: err == nil, Data: data}
	if err != nil {
		out.Error = err.Error()
	}

	return json.Marshal(out)
}

// awaitMatch blocks a locate until one of its queries is present or its
// timeoutMs passes, like the in-page mutation observer.
func (p *Page) awaitMatch(ctx context.Context, raw json.RawMessage) error {
	var args struct {
		Queries   []string `json:"queries"`
		TimeoutMs int64    `json:"timeoutMs"`
	}

	if err := json.Unmarshal(raw, &args); err != nil {
		return err
	}

	timer := time.NewTimer(time.Duration(args.TimeoutMs) * time.Millisecond)
	defer timer.Stop()

	for {
		p.mu.Lock()
		found := slices.ContainsFunc(args.Queries, func(q string) bool { return p.present[q] })
		changed := p.changed
		p.mu.Unlock()

		if found {
			return nil
		}

		select {
		case <-changed:
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (p *Page) handle(fn string, raw json.RawMessage) (any, error) {
	var args struct {
		Selector        string   `json:"selector"`
		Text            string   `json:"text"`
		Queries         []string `json:"queries"`
		Limit           int      `json:"limit"`
		ComposeSelector string   `json:"composeSelector"`
		Name            string   `json:"name"`
		MimeType        string   `json:"mimeType"`
		Data            string   `json:"data"`
		ID              string   `json:"id"`
	}

	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, err
		}
	}

	switch fn {
	case automation.FnLocate:
		for _, q := range args.Queries {
			if p.present[q] {
				return map[string]any{"found": true, "selector": q}, nil
			}
		}

		return map[string]any{"found": false}, nil

	case automation.FnReadContent:
		return map[string]any{"found": p.present[args.Selector], "text": strings.TrimSpace(p.content[args.Selector])}, nil

	case automation.FnFocus:
		if !p.present[args.Selector] {
			return nil, fmt.Errorf("element not found: %s", args.Selector)
		}
		p.active = args.Selector

		return true, nil

	case automation.FnClearContent:
		p.content[args.Selector] = ""
		return true, nil

	case automation.FnExecInsert:
		p.active = args.Selector
		if p.ExecCommandWorks {
			p.content[args.Selector] = args.Text
		}

		return map[string]any{"ok": p.ExecCommandWorks}, nil

	case automation.FnAssignContent:
		p.active = args.Selector
		if p.AssignWorks {
			p.content[args.Selector] = args.Text
		}

		return map[string]any{"ok": true}, nil

	case automation.FnClick:
		return p.click(args.Selector)

	case automation.FnInjectSend:
		if !p.ScriptSends {
			return map[string]any{"dispatched": false, "via": ""}, nil
		}
		if args.ComposeSelector != "" {
			p.active = args.ComposeSelector
		}
		p.send()

		return map[string]any{"dispatched": true, "via": "keystroke"}, nil

	case automation.FnTranscript:
		if p.TranscriptErr != nil {
			return nil, p.TranscriptErr
		}
		entries := p.transcript
		if args.Limit > 0 && len(entries) > args.Limit {
			entries = entries[len(entries)-args.Limit:]
		}

		entries = slices.Clone(entries)
		if p.HideIDs {
			for i := range entries {
				entries[i].ID = ""
			}
		}

		return entries, nil

	case automation.FnPageText:
		return map[string]any{"text": p.bodyText}, nil

	case automation.FnProbeAuth:
		return map[string]any{
			"qr":       p.shown(selectors.RoleLoginQR),
			"intro":    p.shown(selectors.RoleLoginIntro),
			"chatList": p.shown(selectors.RoleChatList),
		}, nil

	case automation.FnAttachFile:
		if !p.present[args.Selector] {
			return nil, fmt.Errorf("element not found: %s", args.Selector)
		}
		data, err := base64.StdEncoding.DecodeString(args.Data)
		if err != nil {
			return nil, err
		}
		p.files = append(p.files, File{Name: args.Name, MimeType: args.MimeType, Size: len(data)})
		p.pending = true
		p.showLocked(selectors.RoleCaptionBox)

		return map[string]any{"attached": true}, nil

	case automation.FnSelectChat:
		for _, by := range []string{"id", "name"} {
			for _, row := range p.rows {
				if (by == "id" && args.ID != "" && row.ID == args.ID) ||
					(by == "name" && args.Name != "" && strings.EqualFold(row.Title, args.Name)) {
					p.selected = append(p.selected, row.Title)
					p.resetChat()

					return map[string]any{"selected": true, "by": by}, nil
				}
			}
		}

		return map[string]any{"selected": false, "by": ""}, nil

	case automation.FnSearchChat:
		return map[string]any{"typed": p.shown(selectors.RoleSearchBox)}, nil

	case automation.FnListGroups:
		groups := []entity.Group{}
		for _, row := range p.rows {
			if row.Group {
				id := row.ID
				if id == "" {
					id = "group-" + row.Title
				}
				groups = append(groups, entity.Group{ID: id, Name: row.Title})
			}
		}

		return groups, nil

	case automation.FnListLabels:
		return p.labels, nil

	case automation.FnListContacts:
		contacts := []entity.Contact{}
		for _, row := range p.rows {
			phone := row.Secondary
			if phone == "" {
				phone = "Unknown"
			}
			contacts = append(contacts, entity.Contact{Name: row.Title, Phone: phone})
		}

		return contacts, nil

	case automation.FnLatestIncoming:
		if len(p.incoming) == 0 {
			return nil, nil
		}
		last := p.incoming[len(p.incoming)-1]

		return entity.IncomingMessage{ID: last.ID, Text: last.Text}, nil

	case automation.FnDisableUnload:
		return true, nil
	}

	return nil, errors.New("unknown page function " + fn)
}

func (p *Page) click(selector string) (any, error) {
	if !p.present[selector] {
		return nil, fmt.Errorf("element not found: %s", selector)
	}

	switch {
	case p.inRole(selectors.RoleSendButton, selector):
		if p.ButtonSends {
			p.send()
		}
	case p.inRole(selectors.RoleAttachButton, selector):
		p.showLocked(selectors.RoleFileInput)
	case p.inRole(selectors.RoleContinueToChat, selector):
		for _, q := range p.catalog.Set(selectors.RoleContinueToChat).Queries {
			delete(p.present, q)
		}
	}

	return map[string]any{"clicked": true}, nil
}

// send moves the active compose content into the transcript.
func (p *Page) send() {
	text := strings.TrimSpace(p.content[p.active])
	if text == "" && !p.pending {
		return
	}

	p.content[p.active] = ""
	p.pending = false

	if p.Echo {
		p.transcript = append(p.transcript, Entry{ID: p.newID(), Text: text, Delivered: p.Deliver})
	}
}

func (p *Page) resetChat() {
	p.transcript = nil
	p.incoming = nil
	p.pending = false
	p.active = ""
	clear(p.content)
}

func (p *Page) inRole(role selectors.Role, selector string) bool {
	return slices.Contains(p.catalog.Set(role).Queries, selector)
}

func (p *Page) shown(role selectors.Role) bool {
	for _, q := range p.catalog.Set(role).Queries {
		if p.present[q] {
			return true
		}
	}

	return false
}

func (p *Page) showLocked(role selectors.Role) {
	if q := p.catalog.Set(role).Queries; len(q) > 0 {
		p.present[q[0]] = true
	}
}

func (p *Page) newID() string {
	p.nextID++
	return fmt.Sprintf("msg-%d", p.nextID)
}
