package conversation

import "errors"

// ErrEmptyID is returned by Append when no conversation id is given.
var ErrEmptyID = errors.New("conversation: empty conversation id")
