package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/observability"
)

// Envelope is the body of every API response
type Envelope struct {
	Success bool              `json:"success"`
	Message string            `json:"message,omitempty"`
	Data    interface{}       `json:"data,omitempty"`
	Error   string            `json:"error,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// Error codes that do not come from an auth.Kind
const (
	CodeTooManyRequests  = "TOO_MANY_REQUESTS"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
)

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a success envelope
func WriteSuccess(w http.ResponseWriter, status int, message string, data interface{}) {
	_ = WriteJSON(w, status, Envelope{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// WriteErrorCode writes a failure envelope with an explicit code
func WriteErrorCode(w http.ResponseWriter, status int, code, message string) {
	_ = WriteJSON(w, status, Envelope{
		Success: false,
		Message: message,
		Error:   code,
	})
}

// StatusForKind maps an error kind onto its HTTP status
func StatusForKind(kind auth.Kind) int {
	switch kind {
	case auth.KindValidation:
		return http.StatusBadRequest
	case auth.KindConflict:
		return http.StatusConflict
	case auth.KindUnauthorized:
		return http.StatusUnauthorized
	case auth.KindForbidden:
		return http.StatusForbidden
	case auth.KindNotFound:
		return http.StatusNotFound
	case auth.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes the envelope for err. Internal and transient failures are
// logged with the request context; their details never reach the client.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	kind := auth.KindOf(err)
	status := StatusForKind(kind)
	code := kind.String()
	if kind == auth.KindFatal {
		code = auth.KindInternal.String()
	}

	if status >= http.StatusInternalServerError {
		observability.FromContext(r.Context()).
			WithError(err).
			WithField("path", r.URL.Path).
			Error("Request failed")
	}

	env := Envelope{
		Success: false,
		Message: auth.MessageOf(err),
		Error:   code,
	}
	var verr *ValidationErrors
	if errors.As(err, &verr) {
		env.Details = verr.Fields
	}
	_ = WriteJSON(w, status, env)
}

// WriteNoContent writes a successful response with no content (204 No Content)
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// SetCookies adds every cookie to the response
func SetCookies(w http.ResponseWriter, cookies []*http.Cookie) {
	for _, c := range cookies {
		http.SetCookie(w, c)
	}
}
