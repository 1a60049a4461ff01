package identity

import "errors"

var (
	ErrMissingSecret = errors.New("identity: missing signing secret")
	ErrMissingToken  = errors.New("identity: missing token")
	ErrInvalidToken  = errors.New("identity: invalid token")
	ErrMissingUserID = errors.New("identity: token has no subject")
)
