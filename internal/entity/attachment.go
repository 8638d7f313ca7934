package entity

import (
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// MaxAttachmentBytes is the largest file the sender accepts.
const MaxAttachmentBytes = 10 * 1024 * 1024

var AllowedAttachmentTypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// documentTypes covers extensions that system MIME tables often miss.
var documentTypes = map[string]string{
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

var (
	ErrAttachmentType = errors.New("unsupported attachment type")
	ErrAttachmentSize = errors.New("attachment exceeds 10MB")
	ErrDataURI        = errors.New("invalid data URI")
)

// Attachment is an immutable file payload carried by one batch run.
type Attachment struct {
	Name      string `json:"name"`
	MimeType  string `json:"type"`
	SizeBytes int64  `json:"size"`
	DataURI   string `json:"data"`
}

func (a *Attachment) Validate() error {
	if a == nil {
		return nil
	}

	if !slices.Contains(AllowedAttachmentTypes, a.MimeType) {
		return fmt.Errorf("%w: %s", ErrAttachmentType, a.MimeType)
	}

	if a.SizeBytes > MaxAttachmentBytes {
		return fmt.Errorf("%w: %d bytes", ErrAttachmentSize, a.SizeBytes)
	}

	return nil
}

// Decode returns the raw bytes behind the data URI. Both base64 and
// percent-encoded payloads are accepted.
func (a *Attachment) Decode() ([]byte, error) {
	payload, ok := strings.CutPrefix(a.DataURI, "data:")
	if !ok {
		return nil, fmt.Errorf("%w: missing data: scheme", ErrDataURI)
	}

	header, body, ok := strings.Cut(payload, ",")
	if !ok {
		return nil, fmt.Errorf("%w: missing payload separator", ErrDataURI)
	}

	if strings.HasSuffix(header, ";base64") {
		raw, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDataURI, err)
		}

		return raw, nil
	}

	unescaped, err := url.PathUnescape(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDataURI, err)
	}

	return []byte(unescaped), nil
}

func (a *Attachment) HumanSize() string {
	switch {
	case a.SizeBytes < 1024:
		return fmt.Sprintf("%d bytes", a.SizeBytes)
	case a.SizeBytes < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(a.SizeBytes)/1024)
	default:
		return fmt.Sprintf("%.1f MB", float64(a.SizeBytes)/(1024*1024))
	}
}

// NewAttachment builds a base64 data URI attachment from raw bytes.
func NewAttachment(name, mimeType string, data []byte) *Attachment {
	return &Attachment{
		Name:      name,
		MimeType:  mimeType,
		SizeBytes: int64(len(data)),
		DataURI:   "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data),
	}
}

// LoadAttachment reads a file from disk and validates it.
func LoadAttachment(path string) (*Attachment, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat attachment: %w", err)
	}

	if info.Size() > MaxAttachmentBytes {
		return nil, fmt.Errorf("%w: %s", ErrAttachmentSize, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read attachment: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))

	mimeType, ok := documentTypes[ext]
	if !ok {
		mimeType = mime.TypeByExtension(ext)
	}

	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}

	if base, _, err := mime.ParseMediaType(mimeType); err == nil {
		mimeType = base
	}

	att := NewAttachment(filepath.Base(path), mimeType, data)
	if err := att.Validate(); err != nil {
		return nil, err
	}

	return att, nil
}
