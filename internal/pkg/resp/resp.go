/*
Package resp renders the JSON envelope every HTTP endpoint answers with.

Success bodies carry code 0 and the payload under "data". Error bodies carry the
business code and the user message of an *errs.CustomError, never its cause.
*/
package resp

import (
	"encoding/json"
	"net/http"

	"chatgate/internal/pkg/errs"
	"chatgate/internal/pkg/logx"
)

// JSONResponse is the envelope returned to clients.
type JSONResponse struct {
	// Code is 0 for success, otherwise an errs code.
	Code int `json:"code"`

	// Message is the client-facing status description.
	Message string `json:"message"`

	// Data is the optional payload of a successful request.
	Data any `json:"data,omitempty"`
}

// RespondJSON writes payload as JSON with the given HTTP status.
func RespondJSON(w http.ResponseWriter, r *http.Request, httpStatus int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		logx.Ctx(r.Context()).Error().
			Err(err).
			Int("http_status", httpStatus).
			Msg("Error encoding JSON response")

		http.Error(w, "Error encoding JSON response", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(httpStatus)
	_, _ = w.Write(body)
}

// RespondSuccess sends HTTP 200 with data.
func RespondSuccess(w http.ResponseWriter, r *http.Request, data any) {
	RespondJSON(w, r, http.StatusOK, JSONResponse{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// RespondCreated sends HTTP 201 with data.
func RespondCreated(w http.ResponseWriter, r *http.Request, data any) {
	RespondJSON(w, r, http.StatusCreated, JSONResponse{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// RespondError sends the status, code and message of customErr.
func RespondError(w http.ResponseWriter, r *http.Request, customErr *errs.CustomError) {
	if customErr == nil {
		customErr = errs.NewError(errs.ErrUnknown)
	}

	RespondJSON(w, r, customErr.Status, JSONResponse{
		Code:    customErr.Code,
		Message: customErr.Message,
	})
}

// RespondErr renders any error. Errors outside the taxonomy, and persistence or signing
// failures, are logged with their cause before the generic body is sent.
func RespondErr(w http.ResponseWriter, r *http.Request, err error) {
	customErr := errs.From(err)

	switch customErr.Kind {
	case errs.KindInternal, errs.KindPersistence, errs.KindSigning:
		logx.Ctx(r.Context()).Error().
			Err(err).
			Int("code", customErr.Code).
			Msg("Request failed")
	}

	RespondError(w, r, customErr)
}
