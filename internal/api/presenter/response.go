package presenter

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/trackwise/edgeauth"
	"github.com/trackwise/edgeauth/internal/logging"
)

// ErrorBody is the wire shape of every error response.
type ErrorBody struct {
	Success bool        `json:"success"`
	Error   ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func JSON(w http.ResponseWriter, r *http.Request, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("failed to write json response")
	}
}

// Error writes err as the structured error body. Authentication failures get
// 401 and a Bearer challenge; unclassified errors are logged and answered
// with a generic 500.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	status := edgeauth.HTTPStatus(err)
	if edgeauth.IsAuthentication(err) {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	if status >= http.StatusInternalServerError {
		logging.Ctx(r.Context()).Error().Err(err).Int("status", status).Msg("request failed")
	}
	Code(w, r, status, edgeauth.ErrorCode(err), edgeauth.ErrorMessage(err))
}

// Code writes an error body with an explicit code and message.
func Code(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	JSON(w, r, ErrorBody{
		Success: false,
		Error:   ErrorDetail{Code: code, Message: message},
	}, status)
}

// Decode reads a JSON request body into dst, rejecting unknown fields.
func Decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return edgeauth.ErrInvalidInput
		}
		return errors.Join(edgeauth.ErrInvalidInput, err)
	}
	return nil
}
