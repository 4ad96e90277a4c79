package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	domainerrors "github.com/jmorland/securepay-backend/internal/domain/errors"
)

var errInternal = domainerrors.NewInternalError("internal server error")

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// writeError maps domain errors onto HTTP status codes. Anything that is not
// an AppError is reported as a generic 500 without leaking internals.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *domainerrors.AppError
	if !errors.As(err, &appErr) {
		appErr = errInternal.WithCause(err)
	}
	writeJSON(w, domainerrors.GetStatusCode(appErr), errorBody{
		Error: errorDetail{
			Code:    appErr.Code,
			Message: appErr.Message,
		},
	})
}
