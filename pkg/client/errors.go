package client

import (
	"encoding/json"
	"fmt"
	"net/http"
)

var ErrAlreadyExists = fmt.Errorf("already exists")
var ErrBadRequest = fmt.Errorf("bad request")
var ErrBadResponse = fmt.Errorf("bad response")
var ErrForbidden = fmt.Errorf("forbidden")
var ErrInternal = fmt.Errorf("internal error")
var ErrNotFound = fmt.Errorf("not found")
var ErrRequest = fmt.Errorf("request error")
var ErrUnauthorized = fmt.Errorf("unauthorized")

type clientError struct {
	msg    string
	target error
}

func (c clientError) Error() string        { return c.msg }
func (c clientError) Is(target error) bool { return target == c.target }

// NewErrorFromProblemReport maps a problem+json response from the component
// store to one of the error values above, so that callers can test the
// failure with errors.Is instead of inspecting status codes.
func NewErrorFromProblemReport(code int, contentType string, body []byte) error {
	report := &struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
	}{}

	err := json.Unmarshal(body, report)
	if err != nil {
		return fmt.Errorf("failed to process problem report from component store: %s", err.Error())
	}

	msg := report.Detail
	if msg == "" {
		msg = report.Title
	}

	switch code {
	case http.StatusBadRequest:
		return &clientError{msg: msg, target: ErrBadRequest}
	case http.StatusUnauthorized:
		return &clientError{msg: msg, target: ErrUnauthorized}
	case http.StatusForbidden:
		return &clientError{msg: msg, target: ErrForbidden}
	case http.StatusNotFound:
		return &clientError{msg: msg, target: ErrNotFound}
	case http.StatusConflict:
		return &clientError{msg: msg, target: ErrAlreadyExists}
	}

	return &clientError{
		msg:    fmt.Sprintf("[code: %d] %s", code, msg),
		target: ErrInternal,
	}
}
