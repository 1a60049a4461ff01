package email

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mrz1836/postmark"
)

// PostmarkSender sends through the Postmark transactional API.
// Replies go to the support address.
type PostmarkSender struct {
	client  *postmark.Client
	from    string
	replyTo string
	stream  string
}

// NewPostmarkSender validates cfg and creates the sender.
func NewPostmarkSender(cfg Config) (*PostmarkSender, error) {
	if cfg.PostmarkServerToken == "" {
		return nil, fmt.Errorf("%w: Postmark server token is required", ErrInvalidConfig)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	client := postmark.NewClient(cfg.PostmarkServerToken, "")
	if cfg.PostmarkAPIURL != "" {
		client.BaseURL = strings.TrimRight(cfg.PostmarkAPIURL, "/")
	}
	return &PostmarkSender{
		client:  client,
		from:    cfg.SenderEmail,
		replyTo: cfg.SupportEmail,
		stream:  cfg.MessageStream,
	}, nil
}

func (s *PostmarkSender) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	_, err := s.client.SendEmail(ctx, postmark.Email{
		From:          s.from,
		ReplyTo:       s.replyTo,
		To:            strings.TrimSpace(msg.To),
		Subject:       msg.Subject,
		Tag:           msg.Tag,
		HTMLBody:      msg.HTML,
		Metadata:      msg.Metadata,
		MessageStream: s.stream,
		TrackOpens:    true,
		TrackLinks:    "HtmlOnly",
	})
	if err != nil {
		return errors.Join(ErrSendFailed, err)
	}
	return nil
}
