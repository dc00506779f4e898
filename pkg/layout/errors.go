package layout

import "errors"

// ErrInvalidArgument is returned for mismatched box/text sequences, malformed
// boxes and unsupported box formats.
var ErrInvalidArgument = errors.New("invalid argument")
