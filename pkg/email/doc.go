// Package email delivers the transactional mail sent on billing events.
//
// NewSender picks the Postmark sender when POSTMARK_SERVER_TOKEN is set and
// otherwise a FileSender that writes each message to EMAIL_DEV_OUTPUT_DIR,
// so local runs never reach a real inbox. Message bodies are rendered with
// the templ components in the templates subpackage.
package email
