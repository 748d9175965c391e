package dfuserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bft-labs/bankswap/internal/domain"
	"github.com/bft-labs/bankswap/pkg/nor"
	"github.com/bft-labs/bankswap/pkg/state"
	"github.com/bft-labs/bankswap/pkg/updater"
)

// ResponseType tells success from failure in the envelope.
type ResponseType string

const (
	ResponseTypeSync  ResponseType = "sync"
	ResponseTypeError ResponseType = "error"
)

// Response is the envelope every route answers with.
type Response struct {
	Type   ResponseType `json:"type"`
	Status int          `json:"status-code"`
	Result interface{}  `json:"result,omitempty"`
}

// ErrorResult is the result of an error response.
type ErrorResult struct {
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
}

// StateResult is the result of GET /v1/state.
type StateResult struct {
	State state.State `json:"state"`
}

// CommitRequest is the body of POST /v1/firmware/commit.
type CommitRequest struct {
	Length int `json:"length"`
}

func writeJSON(w http.ResponseWriter, status int, v Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func syncResponse(w http.ResponseWriter, result interface{}) {
	writeJSON(w, http.StatusOK, Response{Type: ResponseTypeSync, Status: http.StatusOK, Result: result})
}

func errorResponse(w http.ResponseWriter, status int, kind string, err error) {
	writeJSON(w, status, Response{
		Type:   ResponseTypeError,
		Status: status,
		Result: &ErrorResult{Message: err.Error(), Kind: kind},
	})
}

// statusOf maps device errors onto HTTP status codes and error kinds.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, updater.ErrBadState):
		return http.StatusConflict, "bad-state"
	case errors.Is(err, domain.ErrNoSession):
		return http.StatusConflict, "no-session"
	case errors.Is(err, updater.ErrImageTooLarge):
		return http.StatusRequestEntityTooLarge, "too-large"
	case errors.Is(err, updater.ErrNotAligned), nor.KindOf(err) == nor.KindNotAligned:
		return http.StatusBadRequest, "not-aligned"
	case errors.Is(err, updater.ErrSignature):
		return http.StatusBadRequest, "signature"
	case errors.Is(err, nor.ErrPowerLoss):
		return http.StatusServiceUnavailable, "power-loss"
	case errors.Is(err, domain.ErrClosed):
		return http.StatusServiceUnavailable, "closed"
	default:
		return http.StatusInternalServerError, ""
	}
}
