package api

import (
	"fmt"
	"net/http"
)

var (
	ErrMalformedBody       = Error{Code: 40001, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed JSON body")}
	ErrMalformedParam      = Error{Code: 40002, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed parameter")}
	ErrRequestNotFound     = Error{Code: 40003, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("request not found")}
	ErrAlreadyKnown        = Error{Code: 40004, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("client_request_id is already known")}
	ErrGasPriceTooHigh     = Error{Code: 40005, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("gas price exceeds the configured maximum")}
	ErrUnknownWithdrawal   = Error{Code: 40006, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("withdrawal destination is not whitelisted")}
	ErrCancelInProgress    = Error{Code: 40007, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("cancel already in progress")}
	ErrCancelWindowClosed  = Error{Code: 40008, HTTPstatus: http.StatusRequestTimeout, Err: fmt.Errorf("cancel window closed")}
	ErrRequestFailed       = Error{Code: 40009, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("request failed")}
	ErrUnknownRequestType  = Error{Code: 40010, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("unknown request_type")}
	ErrInsertPending       = Error{Code: 40011, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("RETRY. Insert pending")}
	ErrRequestNotAmendable = Error{Code: 40012, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("request cannot be amended")}

	ErrMarshalingServerJSONFailed = Error{Code: 50001, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("marshaling (server-side) JSON failed")}
	ErrVenueUnavailable           = Error{Code: 50002, HTTPstatus: http.StatusServiceUnavailable, Err: fmt.Errorf("venue unavailable")}
)
