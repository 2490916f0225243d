package service

import (
	"encoding/json"
	"net/http"

	"github.com/canopy-project/canopy/internal/canopyerr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to its canopyerr code (http_<status> for plain Go
// errors) and writes the {code, message, hint} envelope.
func writeError(w http.ResponseWriter, err error) {
	code := canopyerr.GetCode(err)
	status := canopyerr.HTTPStatus(code)
	if code == "" {
		status = http.StatusInternalServerError
		env := canopyerr.ToEnvelope(err)
		env.Code = canopyerr.HTTPCode(status)
		writeJSON(w, status, env)
		return
	}
	writeJSON(w, status, canopyerr.ToEnvelope(err))
}

func badRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, canopyerr.Envelope{
		Code:    canopyerr.HTTPCode(http.StatusBadRequest),
		Message: message,
	})
}
