package certificate

import "errors"

// ErrIndexOutOfRange is returned when a label matches the last token, so no
// value token follows it.
var ErrIndexOutOfRange = errors.New("index out of range")
