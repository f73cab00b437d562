package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/vortexdex/dexproxy/chain"
	"github.com/vortexdex/dexproxy/lifecycle"
	"github.com/vortexdex/dexproxy/log"
)

// httpWriteJSON helper function allows to write a JSON response.
func httpWriteJSON(w http.ResponseWriter, data any) {
	jdata, err := json.Marshal(data)
	if err != nil {
		ErrMarshalingServerJSONFailed.WithErr(err).Write(w)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	n, err := w.Write(jdata)
	if err != nil {
		log.Warnw("failed to write http response", "error", err)
		return
	}
	if log.Level() == log.LogLevelDebug {
		log.Debugw("api response", "bytes", n, "data", strings.ReplaceAll(string(jdata), "\"", ""))
	}
}

// decodeBody unmarshals the request body into out, mapping failures onto
// the common error shape.
func decodeBody(r *http.Request, out any) *Error {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		e := ErrMalformedBody.WithErr(err)
		return &e
	}
	return nil
}

// lifecycleError maps the lifecycle manager's failure conditions onto API
// errors. Anything unrecognized lands on the generic 400.
func lifecycleError(err error) Error {
	switch {
	case errors.Is(err, lifecycle.ErrNotFound):
		return ErrRequestNotFound.WithErr(err)
	case errors.Is(err, lifecycle.ErrAlreadyKnown):
		return Error{Code: ErrAlreadyKnown.Code, HTTPstatus: ErrAlreadyKnown.HTTPstatus, Err: err}
	case errors.Is(err, lifecycle.ErrGasPriceTooHigh):
		return Error{Code: ErrGasPriceTooHigh.Code, HTTPstatus: ErrGasPriceTooHigh.HTTPstatus, Err: err}
	case errors.Is(err, lifecycle.ErrCancelInProgress):
		return Error{Code: ErrCancelInProgress.Code, HTTPstatus: ErrCancelInProgress.HTTPstatus, Err: err}
	case errors.Is(err, lifecycle.ErrCancelWindowClosed):
		return Error{Code: ErrCancelWindowClosed.Code, HTTPstatus: ErrCancelWindowClosed.HTTPstatus, Err: err}
	case errors.Is(err, lifecycle.ErrInsertPending):
		return ErrInsertPending
	case errors.Is(err, lifecycle.ErrNotPending), errors.Is(err, lifecycle.ErrAlreadyFinalized):
		return ErrRequestNotAmendable.WithErr(err)
	default:
		var se *chain.SubmitError
		if errors.As(err, &se) {
			return Error{
				Code:       ErrRequestFailed.Code,
				HTTPstatus: ErrRequestFailed.HTTPstatus,
				Err:        errors.New(string(se.Type) + ": " + se.Message),
			}
		}
		return Error{Code: ErrRequestFailed.Code, HTTPstatus: ErrRequestFailed.HTTPstatus, Err: err}
	}
}
