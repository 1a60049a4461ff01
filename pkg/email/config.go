package email

import "fmt"

// Config selects and configures the sender.
type Config struct {
	PostmarkServerToken string `env:"POSTMARK_SERVER_TOKEN"`
	// PostmarkAPIURL overrides the Postmark endpoint.
	PostmarkAPIURL string `env:"POSTMARK_API_URL"`
	MessageStream  string `env:"POSTMARK_MESSAGE_STREAM" envDefault:"outbound"`
	SenderEmail    string `env:"SENDER_EMAIL,required"`
	SupportEmail   string `env:"SUPPORT_EMAIL,required"`
	DevOutputDir   string `env:"EMAIL_DEV_OUTPUT_DIR" envDefault:"./tmp/emails"`
}

func (c Config) validate() error {
	if !isEmail(c.SenderEmail) {
		return fmt.Errorf("%w: sender %q is not an email address", ErrInvalidConfig, c.SenderEmail)
	}
	if !isEmail(c.SupportEmail) {
		return fmt.Errorf("%w: support address %q is not an email address", ErrInvalidConfig, c.SupportEmail)
	}
	return nil
}

// NewSender returns a PostmarkSender when a server token is configured
// and a FileSender otherwise.
func NewSender(cfg Config) (Sender, error) {
	if cfg.PostmarkServerToken == "" {
		if cfg.DevOutputDir == "" {
			return nil, fmt.Errorf("%w: output directory is required without a Postmark token", ErrInvalidConfig)
		}
		return NewFileSender(cfg.DevOutputDir), nil
	}
	return NewPostmarkSender(cfg)
}
