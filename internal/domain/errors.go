package domain

import "errors"

// Sentinel errors. Wrap with fmt.Errorf("...: %w", Err...) and match with errors.Is.
var (
	// ErrConfiguration is fatal at startup: bad page size, bad pattern,
	// unreadable credentials, malformed config.
	ErrConfiguration = errors.New("configuration error")

	// ErrNetwork covers transport failures and non-2xx responses.
	ErrNetwork = errors.New("network error")

	// ErrParse covers undecodable responses.
	ErrParse = errors.New("parse error")
)
