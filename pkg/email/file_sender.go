package email

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// FileSender writes each message to dir as an .html body and a .json
// envelope instead of delivering it.
type FileSender struct {
	dir string
	now func() time.Time
}

// NewFileSender creates a FileSender. dir is created on first send.
func NewFileSender(dir string) *FileSender {
	return &FileSender{dir: dir, now: time.Now}
}

type envelope struct {
	SentAt   time.Time         `json:"sent_at"`
	To       string            `json:"to"`
	Subject  string            `json:"subject"`
	Tag      string            `json:"tag,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

var unsafeFileChars = regexp.MustCompile(`[^a-z0-9_.-]+`)

func (s *FileSender) Send(_ context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return errors.Join(ErrSendFailed, err)
	}

	now := s.now().UTC()
	name := msg.Tag
	if name == "" {
		name = msg.Subject
	}
	name = strings.Trim(unsafeFileChars.ReplaceAllString(strings.ToLower(name), "_"), "_")
	if name == "" {
		name = "email"
	}
	base := filepath.Join(s.dir, now.Format("20060102T150405.000000000")+"_"+name)

	if err := os.WriteFile(base+".html", []byte(msg.HTML), 0o644); err != nil {
		return errors.Join(ErrSendFailed, err)
	}
	data, err := json.MarshalIndent(envelope{
		SentAt:   now,
		To:       msg.To,
		Subject:  msg.Subject,
		Tag:      msg.Tag,
		Metadata: msg.Metadata,
	}, "", "  ")
	if err != nil {
		return errors.Join(ErrSendFailed, err)
	}
	if err := os.WriteFile(base+".json", data, 0o644); err != nil {
		return errors.Join(ErrSendFailed, err)
	}
	return nil
}
