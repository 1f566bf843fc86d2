package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/cleared-dev/ledger/internal/accounts"
	"github.com/cleared-dev/ledger/internal/journal"
	"github.com/cleared-dev/ledger/internal/storage"
)

// errBadRequest marks malformed request input.
var errBadRequest = errors.New("bad request")

type errorResponse struct {
	Error      string      `json:"error"`
	Violations []violation `json:"violations,omitempty"`
}

type violation struct {
	Reason string `json:"reason"`
	Line   int    `json:"line,omitempty"` // 1-based; 0 = whole entry
	Detail string `json:"detail"`
}

func statusFor(err error) int {
	var verr *journal.ValidationError
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, accounts.ErrInvalidDraft):
		return http.StatusBadRequest
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrDuplicateCode),
		errors.Is(err, storage.ErrEntryPosted),
		errors.Is(err, storage.ErrAlreadyReversed),
		errors.Is(err, storage.ErrDuplicateEntryNumber):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) respondWithError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	resp := errorResponse{Error: err.Error()}
	if code == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
		resp.Error = "internal error"
	}
	for _, v := range validationErrors(err) {
		resp.Violations = append(resp.Violations, violation{
			Reason: v.Err.Error(),
			Line:   v.Line + 1,
			Detail: v.Detail,
		})
	}
	respondWithJSON(w, code, resp)
}

// validationErrors flattens every *journal.ValidationError in err's tree.
func validationErrors(err error) []*journal.ValidationError {
	switch x := err.(type) {
	case *journal.ValidationError:
		return []*journal.ValidationError{x}
	case interface{ Unwrap() []error }:
		var out []*journal.ValidationError
		for _, e := range x.Unwrap() {
			out = append(out, validationErrors(e)...)
		}
		return out
	case interface{ Unwrap() error }:
		return validationErrors(x.Unwrap())
	}
	return nil
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
