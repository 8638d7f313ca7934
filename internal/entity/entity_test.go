package entity_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
	"wa-blaster/internal/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNumbers(t *testing.T) {
	got := entity.ParseNumbers(" 15551230001,15551230002\n\n15551230003  ,, ")

	assert.Equal(t, []entity.Recipient{
		entity.NumberRecipient("15551230001"),
		entity.NumberRecipient("15551230002"),
		entity.NumberRecipient("15551230003"),
	}, got)

	assert.Empty(t, entity.ParseNumbers(" , \n"))
}

func TestPlausibleNumber(t *testing.T) {
	assert.True(t, entity.PlausibleNumber("+1 (555) 123-0001"))
	assert.False(t, entity.PlausibleNumber("12345"))
	assert.Equal(t, "15551230001", entity.Digits("+1 (555) 123-0001"))
}

func TestRecipientIdentity(t *testing.T) {
	number := entity.NumberRecipient("15551230001")
	group := entity.GroupRecipient("g-1", "Family")
	unnamed := entity.LabeledChatRecipient("c-9", "")

	assert.Equal(t, "number:15551230001", number.Key())
	assert.Equal(t, "group:g-1", group.Key())
	assert.Equal(t, "Family", group.String())
	assert.Equal(t, "c-9", unnamed.String())
}

func TestReportCountsAndSummary(t *testing.T) {
	tests := []struct {
		name     string
		outcomes []entity.SendOutcome
		counts   entity.Counts
		summary  string
	}{
		{
			name:    "empty",
			summary: "No results received",
		},
		{
			name: "all sent",
			outcomes: []entity.SendOutcome{
				entity.Succeeded(entity.NumberRecipient("1"), "enter-key"),
				entity.Succeeded(entity.NumberRecipient("2"), "enter-key"),
			},
			counts:  entity.Counts{Success: 2},
			summary: "All messages sent successfully: 2 message(s) delivered",
		},
		{
			name: "mixed",
			outcomes: []entity.SendOutcome{
				entity.Succeeded(entity.NumberRecipient("1"), "enter-key"),
				entity.Failed(entity.NumberRecipient("2"), "Message input not found"),
				entity.Invalid(entity.NumberRecipient("3"), "Number is not registered on WhatsApp"),
			},
			counts:  entity.Counts{Success: 1, Failed: 1, Invalid: 1},
			summary: "Some messages were sent: 1 sent, 1 failed, 1 invalid",
		},
		{
			name: "none sent",
			outcomes: []entity.SendOutcome{
				entity.Failed(entity.NumberRecipient("1"), "cancelled"),
				entity.Invalid(entity.NumberRecipient("2"), "Number is not registered on WhatsApp"),
			},
			counts:  entity.Counts{Failed: 1, Invalid: 1},
			summary: "Failed to send messages: 1 failed, 1 invalid numbers",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := entity.NewReport(entity.BatchKindBulk, len(tt.outcomes))
			for _, o := range tt.outcomes {
				report.Add(o)
			}
			report.Finish()

			assert.Equal(t, tt.counts, report.Counts)
			assert.Equal(t, tt.summary, report.Summary())
			assert.False(t, report.FinishedAt.Before(report.StartedAt))
		})
	}
}

func TestBatchDelay(t *testing.T) {
	assert.Equal(t, 1500*time.Millisecond, entity.BatchRequest{DelaySeconds: 1.5}.Delay())
	assert.Zero(t, entity.BatchRequest{DelaySeconds: -3}.Delay())
}

func TestSendRequestNeedsContent(t *testing.T) {
	r := entity.NumberRecipient("15551230001")

	assert.Error(t, entity.SendRequest{Recipient: r, MessageText: "  "}.Validate())
	assert.NoError(t, entity.SendRequest{Recipient: r, MessageText: "hi"}.Validate())
	assert.NoError(t, entity.SendRequest{Recipient: r, Attachment: entity.NewAttachment("a.png", "image/png", []byte{1})}.Validate())
}

func TestAttachmentValidate(t *testing.T) {
	assert.NoError(t, (*entity.Attachment)(nil).Validate())
	assert.NoError(t, entity.NewAttachment("doc.pdf", "application/pdf", []byte("%PDF")).Validate())

	err := entity.NewAttachment("run.exe", "application/x-msdownload", []byte("MZ")).Validate()
	assert.True(t, errors.Is(err, entity.ErrAttachmentType))

	big := entity.NewAttachment("big.png", "image/png", nil)
	big.SizeBytes = entity.MaxAttachmentBytes + 1
	assert.True(t, errors.Is(big.Validate(), entity.ErrAttachmentSize))
}

func TestAttachmentDecode(t *testing.T) {
	raw, err := entity.NewAttachment("a.gif", "image/gif", []byte("GIF89a")).Decode()
	require.NoError(t, err)
	assert.Equal(t, []byte("GIF89a"), raw)

	plain := &entity.Attachment{DataURI: "data:text/plain,hello%20world"}
	raw, err = plain.Decode()
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(raw))

	for _, uri := range []string{"hello", "data:image/png;base64", "data:image/png;base64,***"} {
		_, err := (&entity.Attachment{DataURI: uri}).Decode()
		assert.True(t, errors.Is(err, entity.ErrDataURI), uri)
	}
}

func TestLoadAttachment(t *testing.T) {
	dir := t.TempDir()

	docx := filepath.Join(dir, "brief.docx")
	require.NoError(t, os.WriteFile(docx, []byte("PK\x03\x04"), 0o600))

	a, err := entity.LoadAttachment(docx)
	require.NoError(t, err)
	assert.Equal(t, "brief.docx", a.Name)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.wordprocessingml.document", a.MimeType)
	assert.EqualValues(t, 4, a.SizeBytes)

	script := filepath.Join(dir, "notes.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho hi\n"), 0o600))

	_, err = entity.LoadAttachment(script)
	assert.True(t, errors.Is(err, entity.ErrAttachmentType))

	_, err = entity.LoadAttachment(filepath.Join(dir, "missing.png"))
	assert.Error(t, err)
}

func TestSettingsRendering(t *testing.T) {
	s := entity.DefaultSettings()

	assert.Equal(t, "Welcome to the group, Family! We're glad to have you here.", s.RenderWelcome("Family"))
	assert.Equal(t, `Auto-reply: I received your message "hi". I'll get back to you soon.`, s.RenderAutoReply("hi"))

	s.AutoReplyTemplate = ""
	assert.Contains(t, s.RenderAutoReply("hi"), `"hi"`)
}
