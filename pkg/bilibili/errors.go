package bilibili

import (
	"errors"
	"fmt"
)

var (
	// ErrNetwork marks failures worth retrying: transport errors, 5xx
	// responses and the platform's "try again later" codes.
	ErrNetwork = errors.New("bilibili: network error")

	// ErrRequestFailed marks responses that cannot be used: bad status,
	// unreadable body or a missing field.
	ErrRequestFailed = errors.New("bilibili: request failed")

	ErrCacheMiss = errors.New("bilibili: cache miss")

	ErrNoLiveRoom = errors.New("bilibili: user has no live room")
)

const (
	codeLoadError      = 4101131
	codeAccountAbusive = 22015
)

// ResponseError is a non-zero code returned by the platform.
type ResponseError struct {
	Code    int
	Message string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("bilibili: response code %d: %s", e.Code, e.Message)
}

// Transient reports whether the code asks the caller to retry later.
func (e *ResponseError) Transient() bool {
	return e.Code == codeLoadError || e.Code == codeAccountAbusive
}

func (e *ResponseError) Unwrap() error {
	if e.Transient() {
		return ErrNetwork
	}
	return nil
}
