package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	svcErr "github.com/oggyb/soulmate-hub/internal/errors"
	"github.com/oggyb/soulmate-hub/internal/logger"
)

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error   string              `json:"error"`
	Details []svcErr.FieldError `json:"details,omitempty"`
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// respondError translates a service error into its status and body.
// Server-side failures are logged with the request's logger; their detail
// never reaches the client.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := svcErr.HTTPStatus(err)
	body := ErrorResponse{Error: msg}

	var verr *svcErr.ValidationError
	if errors.As(err, &verr) {
		body.Details = verr.Fields
	}
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed",
			"method", r.Method, "path", r.URL.Path, "err", err)
	}
	respondJSON(w, status, body)
}

// respondMessage sends a bare error message with the given status.
func respondMessage(w http.ResponseWriter, statusCode int, msg string) {
	respondJSON(w, statusCode, ErrorResponse{Error: msg})
}

// parseJSONBody parses JSON request body.
func parseJSONBody(r *http.Request, v any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return svcErr.Invalid("body", fmt.Sprintf("malformed JSON: %v", err))
	}
	return nil
}

// pathID parses the named route variable as a uuid.
func pathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		return uuid.Nil, svcErr.Invalid(name, "must be a UUID")
	}
	return id, nil
}

// queryInt reads an integer query parameter, falling back to def when it
// is absent.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, svcErr.Invalid(name, "must be a non-negative integer")
	}
	return n, nil
}
