package signin

import (
	"errors"
	"fmt"
)

// ErrCancelled is returned when the caller cancels sign-in. It is never
// wrapped in an *SdkError and is not meant to be shown to the user.
var ErrCancelled = errors.New("sign-in cancelled")

// ErrUnexpectedRedirect is the cause of an *SdkError when the redirected
// server redirects again.
var ErrUnexpectedRedirect = errors.New("redirected twice")

// SdkError reports a failed service call during sign-in. Every SdkError is
// returned after the transport has been torn down.
type SdkError struct {
	Op  string
	Err error
}

func (e *SdkError) Error() string {
	return fmt.Sprintf("sign-in failed during %s: %v", e.Op, e.Err)
}

func (e *SdkError) Unwrap() error { return e.Err }
