package respond

import (
	"encoding/json"
	"net/http"
)

// Envelope is the wire format every JSON endpoint returns. Callers rely on
// status and data.
type Envelope struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	AccessToken string `json:"access_token,omitempty"`
	Data        any    `json:"data,omitempty"`
	Errors      any    `json:"errors,omitempty"`
}

func write(w http.ResponseWriter, code int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(env)
}

// OK writes a success envelope.
func OK(w http.ResponseWriter, code int, message string, data any) {
	write(w, code, Envelope{Status: "ok", Message: message, Data: data})
}

// OKWithToken writes a success envelope carrying an access token.
func OKWithToken(w http.ResponseWriter, code int, message, accessToken string, data any) {
	write(w, code, Envelope{Status: "ok", Message: message, AccessToken: accessToken, Data: data})
}

// Error writes an error envelope. The system deliberately reports business
// lookup misses as 422, never 404.
func Error(w http.ResponseWriter, code int, message string, errs ...any) {
	write(w, code, Envelope{Status: "error", Message: message, Errors: flatten(errs)})
}

// Unprocessable writes the standard 422 error envelope.
func Unprocessable(w http.ResponseWriter, message string, errs ...any) {
	Error(w, http.StatusUnprocessableEntity, message, errs...)
}

func flatten(errs []any) any {
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return errs
	}
}

// Unauthorized writes the plain 401 body the auth middleware contract
// specifies.
func Unauthorized(w http.ResponseWriter) {
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte("Unauthorized"))
}

// WebhookError writes an error envelope with HTTP 200. The Telegram bot
// platform retries non-2xx responses, so webhook failures must not surface
// as HTTP errors.
func WebhookError(w http.ResponseWriter, message string, errs ...any) {
	write(w, http.StatusOK, Envelope{Status: "error", Message: message, Errors: flatten(errs)})
}
