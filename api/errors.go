package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/vortexdex/dexproxy/log"
)

// Error satisfies the error interface and renders as the API's common error
// shape: {"error":{"code":…,"message":…}}.
//
// Codes in the 40001-49999 range are the client's fault and map onto 400,
// 404 or 408. Codes 50001-59999 are the server's fault. Never reuse a
// retired code; append new errors after the current last one.
type Error struct {
	Err        error
	Code       int
	HTTPstatus int
}

type errorBody struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

// Error returns the Message field of the wrapped error.
func (e Error) Error() string {
	return e.Err.Error()
}

// Write serializes the error as JSON with the appropriate HTTP status.
func (e Error) Write(w http.ResponseWriter) {
	body, err := json.Marshal(errorResponse{Error: errorBody{Code: e.Code, Message: e.Err.Error()}})
	if err != nil {
		log.Warnw("cannot marshal error response", "error", err.Error())
		http.Error(w, e.Err.Error(), e.HTTPstatus)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.HTTPstatus)
	if _, err := w.Write(body); err != nil {
		log.Warnw("cannot write error response", "error", err.Error())
	}
}

// Withf returns a copy of Error with the Sprintf-formatted string appended
// to the message.
func (e Error) Withf(format string, args ...any) Error {
	return Error{
		Err:        fmt.Errorf("%w: %v", e.Err, fmt.Sprintf(format, args...)),
		Code:       e.Code,
		HTTPstatus: e.HTTPstatus,
	}
}

// WithErr returns a copy of Error with err appended to the message.
func (e Error) WithErr(err error) Error {
	return Error{
		Err:        fmt.Errorf("%w: %v", e.Err, err),
		Code:       e.Code,
		HTTPstatus: e.HTTPstatus,
	}
}
