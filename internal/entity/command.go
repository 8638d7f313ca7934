package entity

import (
	"encoding/json"

	"github.com/google/uuid"
)

type CommandType string

const (
	CmdSendBulk        CommandType = "sendBulkMessages"
	CmdSendGroup       CommandType = "sendGroupMessages"
	CmdSendLabel       CommandType = "sendLabelMessages"
	CmdGetGroups       CommandType = "getGroups"
	CmdGetLabels       CommandType = "getBusinessLabels"
	CmdCheckStatus     CommandType = "checkStatus"
	CmdExportContacts  CommandType = "exportContacts"
	CmdToggleAutoReply CommandType = "toggleAutoReply"
	CmdUpdateWelcome   CommandType = "updateWelcomeMessage"
	CmdUpdateAutoReply CommandType = "updateAutoReplyMessage"
	CmdHistory         CommandType = "history"
	CmdGetReport       CommandType = "getReport"
)

// Command is one inbound request, whatever transport carried it.
type Command struct {
	ID   string          `json:"id"`
	Type CommandType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Result is the single resolution of a Command.
type Result struct {
	ID    string `json:"id"`
	OK    bool   `json:"ok"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`
}

// SendPayload is the body of the three send commands. Numbers is free-form
// operator input for bulk sends; Labels selects labeled chats by label name.
type SendPayload struct {
	Recipients   []Recipient `json:"recipients"`
	Numbers      string      `json:"numbers,omitempty"`
	Labels       []string    `json:"labels,omitempty"`
	Message      string      `json:"message"`
	DelaySeconds float64     `json:"delaySeconds"`
	Attachment   *Attachment `json:"attachment,omitempty"`
}

// BatchResult is the data of a finished send command.
type BatchResult struct {
	ID      uuid.UUID     `json:"id"`
	Results []SendOutcome `json:"results"`
	Counts  Counts        `json:"counts"`
	Summary string        `json:"summary"`
}
