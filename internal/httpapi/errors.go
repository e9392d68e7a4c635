package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"internwatch/internal/poll"
)

// ErrorBody is the "error" member of every non-2xx response.
type ErrorBody struct {
	Code      string     `json:"code"`
	Message   string     `json:"message"`
	Stage     poll.Stage `json:"stage,omitempty"`
	RequestID string     `json:"request_id,omitempty"`
}

type APIError struct {
	Error ErrorBody `json:"error"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeBody(w, r, status, ErrorBody{Code: code, Message: message})
}

// WriteRunError reports a failed cycle: 409 when another run holds the
// lock, 502 naming the failed stage otherwise.
func WriteRunError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, poll.ErrBusy) {
		writeBody(w, r, http.StatusConflict, ErrorBody{Code: "busy", Message: err.Error()})
		return
	}
	body := ErrorBody{Code: "run_failed", Message: err.Error()}
	var se *poll.StageError
	if errors.As(err, &se) {
		body.Code = string(se.Stage) + "_failed"
		body.Stage = se.Stage
	}
	writeBody(w, r, http.StatusBadGateway, body)
}

func writeBody(w http.ResponseWriter, r *http.Request, status int, body ErrorBody) {
	body.RequestID = RequestIDFrom(r.Context())
	WriteJSON(w, status, APIError{Error: body})
}
