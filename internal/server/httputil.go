package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

// containsPathTraversal reports whether a /content path has a ".." segment
// or a backslash. Segments are inspected raw since Clean would fold them away.
func containsPathTraversal(p string) bool {
	if strings.ContainsRune(p, '\\') {
		return true
	}
	for seg := range strings.SplitSeq(p, "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Debug().Err(err).Int("status", status).Msg("Failed to write JSON response")
	}
}

// httpError replies with {"error": code}. Codes are short snake_case or
// plain sentences; clients only display them.
func httpError(w http.ResponseWriter, status int, code string) {
	respondJSON(w, status, map[string]string{"error": code})
}
