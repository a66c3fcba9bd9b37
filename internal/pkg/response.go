package pkg

import (
	"encoding/json"
	"net/http"

	"github.com/mailfang/mailfang/internal/errs"
)

// JSON writes a JSON response with the given status code and data.
func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Error writes a JSON error response matching the Resend-style error format.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]interface{}{
		"statusCode": status,
		"message":    message,
		"name":       http.StatusText(status),
	})
}

// HandleError writes a JSON error response, mapping an errs.Kind to its
// HTTP status code.
func HandleError(w http.ResponseWriter, err error) {
	switch errs.KindOf(err) {
	case errs.KindNotFound:
		Error(w, http.StatusNotFound, err.Error())
	case errs.KindInvalidData, errs.KindProtocol:
		Error(w, http.StatusUnprocessableEntity, err.Error())
	case errs.KindAuthRequired:
		Error(w, http.StatusUnauthorized, err.Error())
	case errs.KindAuthFailed:
		Error(w, http.StatusForbidden, err.Error())
	default:
		Error(w, http.StatusInternalServerError, err.Error())
	}
}

// DecodeJSON decodes a JSON request body into the given value.
// Unknown fields in the request body will cause an error.
func DecodeJSON(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}
