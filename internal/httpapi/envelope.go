// Package httpapi mounts the HTTP surface of spec §6: session
// create/start/end, step listing/edit/delete, and archive export/import.
// Grounded on the teacher's internal/server route-table shape
// (main_handlers.go: one Server struct holding shared state, one handler
// method per route, a uniform JSON response helper) adapted from the
// teacher's single flat log-entry API to this spec's resource-oriented
// session/step/archive routes and its required {success,data,error}
// response envelope (spec §6).
package httpapi

import (
	"encoding/json"
	"net/http"
)

// envelope is the uniform response wrapper every HTTP response uses
// (spec §6: "All responses wrap {success, data?, error?{code,message}}").
type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *errorBody  `json:"error,omitempty"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: false, Error: &errorBody{Code: code, Message: message}})
}
