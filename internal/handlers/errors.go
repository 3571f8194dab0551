package handlers

import (
	"net/http"
)

// NotFound answers unknown routes with a JSON 404
func NotFound(w http.ResponseWriter, r *http.Request) {
	respondJSONError(w, r, http.StatusNotFound, "Not found", "Route "+r.Method+" "+r.URL.Path+" not found")
}

// MethodNotAllowed answers known paths requested with an unsupported method
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	respondJSONError(w, r, http.StatusMethodNotAllowed, "Method not allowed", "Method "+r.Method+" is not allowed for "+r.URL.Path)
}
