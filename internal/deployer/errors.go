package deployer

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrQueueCorrupt aborts a run whose deploy queue reports a negative size.
var ErrQueueCorrupt = errors.New("deployer: deploy queue is corrupt")

// validStatus lists the codes accepted from a target. Some hosts answer a
// successful write with a redirect.
var validStatus = map[int]struct{}{
	http.StatusOK:               {},
	http.StatusCreated:          {},
	http.StatusMovedPermanently: {},
	http.StatusFound:            {},
	http.StatusNotModified:      {},
}

// StatusError is a target response outside the accepted codes.
type StatusError struct {
	Provider string
	Op       string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s: %s returned status %d", e.Provider, e.Op, e.Code)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// ValidStatus reports whether code counts as success.
func ValidStatus(code int) bool {
	_, ok := validStatus[code]
	return ok
}

// CheckStatus returns a *StatusError when resp carries an unaccepted code.
// The body is read, truncated, and attached to the error.
func CheckStatus(provider, op string, resp *http.Response) error {
	if ValidStatus(resp.StatusCode) {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &StatusError{
		Provider: provider,
		Op:       op,
		Code:     resp.StatusCode,
		Body:     strings.TrimSpace(string(body)),
	}
}

// FromResponse maps the outcome of an API client call onto the accepted
// status codes. code is the HTTP status the client saw, or 0 when no
// response arrived; body is whatever error text the client decoded.
func FromResponse(provider, op string, code int, body string, err error) error {
	if code != 0 && !ValidStatus(code) {
		body = strings.TrimSpace(body)
		if len(body) > 2048 {
			body = body[:2048]
		}
		return &StatusError{Provider: provider, Op: op, Code: code, Body: body}
	}
	if err != nil && code != http.StatusNotModified {
		return fmt.Errorf("%s %s: %w", provider, op, err)
	}
	return nil
}
