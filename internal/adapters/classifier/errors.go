package classifier

import "errors"

// Sentinel kinds for classifier errors.
var (
	ErrInvalidEndpoint = errors.New("invalid classifier endpoint")
	ErrUpstream        = errors.New("classifier returned an error status")
	ErrDecode          = errors.New("undecodable classifier response")
)
