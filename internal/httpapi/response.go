package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/aimbuild/siteauth"
	"go.uber.org/zap"
)

type successBody struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type errorBody struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeSuccess(w http.ResponseWriter, statusCode int, message string, data any) {
	writeJSON(w, statusCode, successBody{Status: "success", Message: message, Data: data})
}

// writeError renders err with the status of its kind. Errors without a kind
// are logged and answered with a generic message.
func (h *handler) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := siteauth.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("op", op),
			zap.String("request_id", requestIDFromContext(r.Context())),
			zap.Error(err))
	}
	writeJSON(w, status, errorBody{
		Status:  "error",
		Code:    siteauth.KindOf(err).String(),
		Message: siteauth.PublicMessage(err),
	})
}

func badRequest(msg string) error {
	return &siteauth.Error{Kind: siteauth.KindBadRequest, Message: msg}
}

var errBodyTooLarge = badRequest("request body too large")

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	return decode(w, r, dst, false)
}

// decodeOptional accepts an empty body and leaves dst untouched.
func decodeOptional(w http.ResponseWriter, r *http.Request, dst any) error {
	return decode(w, r, dst, true)
}

func decode(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errBodyTooLarge
		}
		return badRequest("request body must be valid JSON")
	}
	return nil
}
