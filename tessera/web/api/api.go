// Copyright (C) 2026 Tessera Labs, Inc.
// See LICENSE for copying information.

// Package api implements the HTTP controllers and the error envelope
// shared by all of them.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"tessera.io/tessera/tessera/proposals"
	"tessera.io/tessera/tessera/publisher"
	"tessera.io/tessera/tessera/registry"
)

var mon = monkit.Package()

// Error is the default error class for the api package.
var Error = errs.Class("api")

// ErrAuth marks authentication failures; the middleware maps it to 401.
var ErrAuth = errs.Class("unauthorized")

// ErrRateLimited marks throttled requests; mapped to 429.
var ErrRateLimited = errs.Class("rate limited")

// errorBody is the envelope every non-2xx response carries.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	RequestID string      `json:"request_id"`
	Timestamp time.Time   `json:"timestamp"`
	Details   interface{} `json:"details,omitempty"`
}

// statusOf maps an error to its response code and machine-readable
// label.
func statusOf(err error) (int, string) {
	switch {
	case ErrAuth.Has(err):
		return http.StatusUnauthorized, "unauthorized"
	case registry.ErrForbidden.Has(err):
		return http.StatusForbidden, "forbidden"
	case registry.ErrValidation.Has(err):
		return http.StatusBadRequest, "validation_error"
	case proposals.ErrNotPending.Has(err), proposals.ErrNotApproved.Has(err):
		return http.StatusBadRequest, "proposal_not_pending"
	case registry.ErrNotFound.Has(err):
		return http.StatusNotFound, "not_found"
	case publisher.ErrPendingProposal.Has(err):
		return http.StatusConflict, "pending_proposal_exists"
	case registry.ErrConflict.Has(err):
		return http.StatusConflict, "conflict"
	case ErrRateLimited.Has(err):
		return http.StatusTooManyRequests, "rate_limited"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// ServeError writes the error envelope. Internal errors are logged
// with their cause and surfaced as a generic message.
func ServeError(log *zap.Logger, w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusOf(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		log.Error("request failed", zap.String("request_id", RequestID(r.Context())), zap.Error(err))
		message = "internal server error"
	}
	serveJSON(w, status, errorBody{Error: errorDetail{
		Code:      code,
		Message:   message,
		RequestID: RequestID(r.Context()),
		Timestamp: time.Now().UTC(),
	}})
}

func serveJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// decode reads a size-capped JSON body.
func decode(w http.ResponseWriter, r *http.Request, out interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, 4<<20)
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		return registry.ErrValidation.New("malformed request body: %v", err)
	}
	return nil
}
