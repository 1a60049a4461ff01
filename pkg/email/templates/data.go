package templates

import "strconv"

// PaymentFailedData is the content of the failed payment notice.
type PaymentFailedData struct {
	AppName     string
	PortalURL   string
	Attempt     int64
	SupportMail string
}

func attemptsSuffix(attempt int64) string {
	if attempt <= 1 {
		return ""
	}
	return " after " + strconv.FormatInt(attempt, 10) + " attempts"
}
