package httpapi

import (
	"net/http"
	"strconv"
	"strings"
)

func methodMux(m map[string]http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h, ok := m[r.Method]; ok {
			h(w, r)
			return
		}
		WriteError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	}
}

// pathID parses the trailing id of /prefix/{id}.
func pathID(r *http.Request, prefix string) (int64, bool) {
	s := strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// pathName returns the single segment after prefix, or "" if there is more than one.
func pathName(r *http.Request, prefix string) string {
	s := strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
	if strings.Contains(s, "/") {
		return ""
	}
	return s
}
