package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cory-johannsen/shardgate/internal/gateerr"
	"github.com/cory-johannsen/shardgate/internal/protocol"
)

// Envelope is the body of every response.
type Envelope struct {
	Error  bool   `json:"error"`
	Reason string `json:"reason,omitempty"`
	Data   any    `json:"data,omitempty"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// writeData writes a successful envelope carrying data.
func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Envelope{Data: data})
}

// writeError writes the failure envelope for err. Internal causes never
// reach the body.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), Envelope{Error: true, Reason: protocol.Reason(err)})
}

// statusFor maps the error taxonomy to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, gateerr.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, gateerr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, gateerr.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, gateerr.ErrProtocol):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// decodeBody decodes a JSON request body into v.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return gateerr.Protocolf("decoding request body: %v", err)
	}
	return nil
}
