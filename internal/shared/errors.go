package shared

import "errors"

// ErrInvalidCredentials indicates an unknown or revoked API token.
var ErrInvalidCredentials = errors.New("invalid credentials")
