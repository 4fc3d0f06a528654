package api

import (
	"encoding/json"
	"net/http"

	"github.com/ytfqj/ermrest/internal/ermerr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err as JSON with the status code its ermerr.Kind maps
// to (section 7 of spec.md), or 500 for anything that didn't originate as
// an ermerr.Error.
func writeError(w http.ResponseWriter, err error) {
	var ee *ermerr.Error
	status := http.StatusInternalServerError
	msg := err.Error()
	if e, ok := asErmErr(err); ok {
		ee = e
		status = ee.HTTPStatus()
		msg = ee.Message
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func asErmErr(err error) (*ermerr.Error, bool) {
	e, ok := err.(*ermerr.Error)
	return e, ok
}
