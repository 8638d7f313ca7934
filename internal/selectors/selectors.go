// Package selectors holds the catalog of CSS queries used to find chat
// application elements. The catalog is data: the embedded default can be
// replaced by a YAML file without touching code.
package selectors

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Role string

const (
	RoleComposeBox        Role = "compose_box"
	RoleCaptionBox        Role = "caption_box"
	RoleSendButton        Role = "send_button"
	RoleAttachButton      Role = "attach_button"
	RoleFileInput         Role = "file_input"
	RoleOutgoingMessage   Role = "outgoing_message"
	RoleIncomingMessage   Role = "incoming_message"
	RoleMessageText       Role = "message_text"
	RoleDeliveryIndicator Role = "delivery_indicator"
	RoleChatList          Role = "chat_list"
	RoleChatListItem      Role = "chat_list_item"
	RoleChatTitle         Role = "chat_title"
	RoleChatSecondary     Role = "chat_secondary"
	RoleGroupIcon         Role = "group_icon"
	RoleSearchBox         Role = "search_box"
	RoleLoginQR           Role = "login_qr"
	RoleLoginIntro        Role = "login_intro"
	RoleContinueToChat    Role = "continue_to_chat"
	RoleLabelItem         Role = "label_item"
	RoleLabelChat         Role = "label_chat"
	RoleBusinessMarker    Role = "business_marker"
)

// Required lists the roles every catalog must define.
var Required = []Role{
	RoleComposeBox,
	RoleSendButton,
	RoleAttachButton,
	RoleFileInput,
	RoleOutgoingMessage,
	RoleMessageText,
	RoleChatList,
	RoleLoginQR,
}

//go:embed default.yaml
var defaultCatalog []byte

// Set is the ordered query list for one role. The first query that
// matches a visible element wins.
type Set struct {
	Role    Role     `json:"role"`
	Queries []string `json:"queries"`
}

func (s Set) Empty() bool {
	return len(s.Queries) == 0
}

type file struct {
	Roles   map[Role][]string `yaml:"roles"`
	Markers struct {
		Unreachable []string `yaml:"unreachable"`
	} `yaml:"markers"`
}

type Catalog struct {
	roles              map[Role][]string
	unreachableMarkers []string
}

// Default returns the embedded catalog.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded selector catalog: %v", err))
	}

	return c
}

// Load reads a catalog from path. Roles missing from the file fall back to
// the embedded defaults.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read selector catalog: %w", err)
	}

	override, err := parse(data)
	if err != nil {
		return nil, err
	}

	base := Default()
	for role, queries := range override.roles {
		if len(queries) > 0 {
			base.roles[role] = queries
		}
	}

	if len(override.unreachableMarkers) > 0 {
		base.unreachableMarkers = override.unreachableMarkers
	}

	return base, nil
}

// Parse decodes a complete catalog and checks that every required role is present.
func Parse(data []byte) (*Catalog, error) {
	c, err := parse(data)
	if err != nil {
		return nil, err
	}

	for _, role := range Required {
		if len(c.roles[role]) == 0 {
			return nil, fmt.Errorf("selector catalog: role %q has no queries", role)
		}
	}

	return c, nil
}

func parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode selector catalog: %w", err)
	}

	roles := make(map[Role][]string, len(f.Roles))
	for role, queries := range f.Roles {
		cleaned := make([]string, 0, len(queries))
		for _, q := range queries {
			if q = strings.TrimSpace(q); q != "" {
				cleaned = append(cleaned, q)
			}
		}
		roles[role] = cleaned
	}

	return &Catalog{
		roles:              roles,
		unreachableMarkers: f.Markers.Unreachable,
	}, nil
}

func (c *Catalog) Set(role Role) Set {
	return Set{Role: role, Queries: c.roles[role]}
}

// UnreachableMarkers are page texts meaning the number cannot receive messages.
func (c *Catalog) UnreachableMarkers() []string {
	return c.unreachableMarkers
}

// MatchUnreachable returns the first unreachable marker found in body,
// ignoring case.
func (c *Catalog) MatchUnreachable(body string) (string, bool) {
	lower := strings.ToLower(body)
	for _, marker := range c.unreachableMarkers {
		if strings.Contains(lower, strings.ToLower(marker)) {
			return marker, true
		}
	}

	return "", false
}
