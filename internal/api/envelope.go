package api

import (
	"encoding/json"
	"net/http"
)

// errorBody is the fixed error envelope shape from the external interfaces
// contract: {code, message, details?}.
type errorBody struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeData writes {"data": v}.
func writeData(w http.ResponseWriter, status int, v interface{}) {
	writeJSON(w, status, map[string]interface{}{"data": v})
}

// writeList writes {"data": v, "total": total}.
func writeList(w http.ResponseWriter, status int, v interface{}, total int) {
	writeJSON(w, status, map[string]interface{}{"data": v, "total": total})
}

// writeError writes the fixed error envelope.
func writeError(w http.ResponseWriter, status int, code, message string, details interface{}) {
	writeJSON(w, status, errorBody{Code: code, Message: message, Details: details})
}
