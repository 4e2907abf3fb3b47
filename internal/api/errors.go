package api

import (
	"encoding/json"
	"net/http"
)

// Error codes carried in every error body.
const (
	CodeNotFound         = "not_found"
	CodeMethodNotAllowed = "method_not_allowed"
	CodeInternal         = "internal_error"
)

// Error is the JSON body of every non-2xx response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

var statusCodes = map[int]string{
	http.StatusNotFound:            CodeNotFound,
	http.StatusMethodNotAllowed:    CodeMethodNotAllowed,
	http.StatusInternalServerError: CodeInternal,
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // The client may already be gone
	json.NewEncoder(w).Encode(body)
}

// fail writes an Error body, deriving the code from status.
func fail(w http.ResponseWriter, status int, message string) {
	code, ok := statusCodes[status]
	if !ok {
		code = CodeInternal
	}
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}
