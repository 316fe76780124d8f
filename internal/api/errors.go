package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rvannoy/scrip/internal/account"
	"github.com/rvannoy/scrip/internal/agent"
	"github.com/rvannoy/scrip/internal/execution"
	"github.com/rvannoy/scrip/internal/saga"
)

// maxBodySize is the maximum allowed request body size (1 MB).
const maxBodySize = 1 << 20

// errorResponse is the standard error shape. ExecutionID is present whenever
// an execution ID was generated before the failure, so the client can poll
// the record to confirm the final status.
type errorResponse struct {
	Error       string `json:"error"`
	Code        string `json:"code,omitempty"`
	ExecutionID string `json:"executionId,omitempty"`
}

// writeError writes a JSON error response with the given status code.
func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeErrorWithExecution(w, statusCode, code, message, "")
}

func writeErrorWithExecution(w http.ResponseWriter, statusCode int, code, message, executionID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Error:       message,
		Code:        code,
		ExecutionID: executionID,
	})
}

// writeJSON writes a JSON response with the given status code and data.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// readBody reads the request body, enforcing a size limit.
func readBody(r *http.Request) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r.Body, maxBodySize))
}

// readJSON decodes the request body into v, enforcing a size limit.
func readJSON(r *http.Request, v interface{}) error {
	lr := io.LimitReader(r.Body, maxBodySize)
	return json.NewDecoder(lr).Decode(v)
}

// classify maps a domain error to an HTTP status, machine code and safe
// message, extracting the execution ID when the saga attached one.
func classify(err error) (status int, code, message, executionID string) {
	var se *saga.Error
	if errors.As(err, &se) {
		executionID = se.ExecutionID
		err = se.Err
	}

	var ve *agent.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, "validation_error", ve.Msg, executionID
	case errors.Is(err, account.ErrInsufficientCredits):
		return http.StatusPaymentRequired, "insufficient_credits", "insufficient credits", executionID
	case errors.Is(err, account.ErrNotFound):
		return http.StatusNotFound, "user_not_found", "user not found", executionID
	case errors.Is(err, execution.ErrNotFound):
		return http.StatusNotFound, "execution_not_found", "execution not found", executionID
	case errors.Is(err, execution.ErrUnauthorized):
		return http.StatusForbidden, "unauthorized", "unauthorized", executionID
	default:
		// Internal details stay in the logs, never in the response.
		return http.StatusInternalServerError, "agent_failure", "agent execution failed", executionID
	}
}

// writeDomainError classifies err and writes the matching error response.
func writeDomainError(w http.ResponseWriter, err error) {
	status, code, message, executionID := classify(err)
	writeErrorWithExecution(w, status, code, message, executionID)
}
