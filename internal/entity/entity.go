package entity

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

type RecipientKind string

const (
	RecipientKindNumber      RecipientKind = "number"
	RecipientKindGroup       RecipientKind = "group"
	RecipientKindLabeledChat RecipientKind = "labeledChat"
)

// Recipient is a single messaging target. Numbers carry Value, groups and
// labeled chats carry ID and Name.
type Recipient struct {
	Kind  RecipientKind `json:"kind"`
	Value string        `json:"value,omitempty"`
	ID    string        `json:"id,omitempty"`
	Name  string        `json:"name,omitempty"`
}

func NumberRecipient(phone string) Recipient {
	return Recipient{Kind: RecipientKindNumber, Value: phone}
}

func GroupRecipient(id, name string) Recipient {
	return Recipient{Kind: RecipientKindGroup, ID: id, Name: name}
}

func LabeledChatRecipient(id, name string) Recipient {
	return Recipient{Kind: RecipientKindLabeledChat, ID: id, Name: name}
}

// Key is the (kind, id-or-value) identity of the recipient.
func (r Recipient) Key() string {
	if r.Kind == RecipientKindNumber {
		return string(r.Kind) + ":" + r.Value
	}

	return string(r.Kind) + ":" + r.ID
}

func (r Recipient) String() string {
	switch r.Kind {
	case RecipientKindNumber:
		return r.Value
	default:
		if r.Name != "" {
			return r.Name
		}

		return r.ID
	}
}

var nonDigits = regexp.MustCompile(`\D`)

// Digits strips everything but digits from a phone number.
func Digits(phone string) string {
	return nonDigits.ReplaceAllString(phone, "")
}

// MinPhoneDigits is the shortest number that can carry a country code.
const MinPhoneDigits = 8

// PlausibleNumber reports whether phone has enough digits to be a WhatsApp number.
func PlausibleNumber(phone string) bool {
	return len(Digits(phone)) >= MinPhoneDigits
}

var numberSeparators = regexp.MustCompile(`[\n,\s]+`)

// ParseNumbers splits free-form operator input into number recipients,
// dropping empty entries.
func ParseNumbers(input string) []Recipient {
	parts := numberSeparators.Split(input, -1)
	recipients := make([]Recipient, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		recipients = append(recipients, NumberRecipient(part))
	}

	return recipients
}

type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeInvalid OutcomeStatus = "invalid"
	OutcomeFailed  OutcomeStatus = "failed"
)

// SendOutcome is the terminal record for one recipient of a batch.
type SendOutcome struct {
	Recipient        Recipient     `json:"recipient"`
	Status           OutcomeStatus `json:"status"`
	Error            string        `json:"error,omitempty"`
	StrategyUsed     string        `json:"strategyUsed,omitempty"`
	AttemptedMethods []string      `json:"attemptedMethods,omitempty"`
	Duration         time.Duration `json:"durationNs"`
}

func Succeeded(r Recipient, strategy string) SendOutcome {
	return SendOutcome{Recipient: r, Status: OutcomeSuccess, StrategyUsed: strategy}
}

func Invalid(r Recipient, reason string) SendOutcome {
	return SendOutcome{Recipient: r, Status: OutcomeInvalid, Error: reason}
}

func Failed(r Recipient, reason string) SendOutcome {
	return SendOutcome{Recipient: r, Status: OutcomeFailed, Error: reason}
}

// SendRequest is what the orchestrator hands to the delivery pipeline for one recipient.
type SendRequest struct {
	Recipient   Recipient
	MessageText string
	Attachment  *Attachment
}

func (r SendRequest) Validate() error {
	if strings.TrimSpace(r.MessageText) == "" && r.Attachment == nil {
		return fmt.Errorf("send request for %s has neither text nor attachment", r.Recipient)
	}

	return nil
}

// Session binds the automation to one browser tab hosting the chat application.
type Session struct {
	TabHandle       string `json:"tabHandle"`
	IsOpen          bool   `json:"isOpen"`
	IsAuthenticated bool   `json:"isAuthenticated"`
}

// Status is the answer to a session probe.
type Status struct {
	IsOpen          bool   `json:"isOpen"`
	IsAuthenticated bool   `json:"isAuthenticated"`
	Error           string `json:"error,omitempty"`
}

type BatchKind string

const (
	BatchKindBulk  BatchKind = "bulk"
	BatchKindGroup BatchKind = "group"
	BatchKindLabel BatchKind = "label"
)

type BatchRequest struct {
	Kind         BatchKind   `json:"kind"`
	Recipients   []Recipient `json:"recipients"`
	Message      string      `json:"message"`
	DelaySeconds float64     `json:"delaySeconds"`
	Attachment   *Attachment `json:"attachment,omitempty"`
}

func (r BatchRequest) Delay() time.Duration {
	if r.DelaySeconds <= 0 {
		return 0
	}

	return time.Duration(r.DelaySeconds * float64(time.Second))
}

type Counts struct {
	Success int `json:"success"`
	Failed  int `json:"failed"`
	Invalid int `json:"invalid"`
}

// Report is the ordered outcome list of one batch plus aggregate counts.
type Report struct {
	ID         uuid.UUID     `json:"id"`
	Kind       BatchKind     `json:"kind"`
	Results    []SendOutcome `json:"results"`
	Counts     Counts        `json:"counts"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt"`
}

func NewReport(kind BatchKind, size int) *Report {
	return &Report{
		ID:        uuid.New(),
		Kind:      kind,
		Results:   make([]SendOutcome, 0, size),
		StartedAt: time.Now(),
	}
}

func (r *Report) Add(outcome SendOutcome) {
	r.Results = append(r.Results, outcome)

	switch outcome.Status {
	case OutcomeSuccess:
		r.Counts.Success++
	case OutcomeInvalid:
		r.Counts.Invalid++
	default:
		r.Counts.Failed++
	}
}

func (r *Report) Finish() {
	r.FinishedAt = time.Now()
}

// Summary renders the one-line verdict shown to the operator.
func (r *Report) Summary() string {
	total := len(r.Results)

	switch {
	case total == 0:
		return "No results received"
	case r.Counts.Success == total:
		return fmt.Sprintf("All messages sent successfully: %d message(s) delivered", total)
	case r.Counts.Success > 0:
		return fmt.Sprintf("Some messages were sent: %d sent, %d failed, %d invalid",
			r.Counts.Success, r.Counts.Failed, r.Counts.Invalid)
	default:
		return fmt.Sprintf("Failed to send messages: %d failed, %d invalid numbers",
			r.Counts.Failed, r.Counts.Invalid)
	}
}

// ReportSummary is the stored header of a past batch.
type ReportSummary struct {
	ID         uuid.UUID `json:"id"`
	Kind       BatchKind `json:"kind"`
	Counts     Counts    `json:"counts"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

type Group struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type ChatRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Label struct {
	Name  string    `json:"name"`
	Chats []ChatRef `json:"chats"`
}

type LabelsResult struct {
	IsBusinessSupported bool    `json:"isBusinessSupported"`
	Labels              []Label `json:"labels"`
}

type Contact struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// IncomingMessage is the newest inbound chat bubble seen on the open chat.
type IncomingMessage struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Sender string `json:"sender"`
}

const (
	DefaultWelcomeMessage   = "Welcome to the group, {name}! We're glad to have you here."
	DefaultAutoReplyMessage = `Auto-reply: I received your message "{message}". I'll get back to you soon.`
)

// Settings is the operator-controlled configuration persisted between runs.
type Settings struct {
	AutoReplyEnabled  bool   `json:"autoReplyEnabled"`
	AutoReplyTemplate string `json:"autoReplyTemplate"`
	WelcomeMessage    string `json:"welcomeMessage"`
}

func DefaultSettings() Settings {
	return Settings{
		AutoReplyTemplate: DefaultAutoReplyMessage,
		WelcomeMessage:    DefaultWelcomeMessage,
	}
}

func (s Settings) RenderWelcome(name string) string {
	return strings.ReplaceAll(s.WelcomeMessage, "{name}", name)
}

func (s Settings) RenderAutoReply(incoming string) string {
	tmpl := s.AutoReplyTemplate
	if tmpl == "" {
		tmpl = DefaultAutoReplyMessage
	}

	return strings.ReplaceAll(tmpl, "{message}", incoming)
}
