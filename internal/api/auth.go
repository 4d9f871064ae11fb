package api

import (
	"errors"
	"net/http"
	"strings"

	"hiberry/internal/auth"
)

// principal extracts the caller from the bearer token. In dev mode a
// request without a token falls back to the X-User and X-Role headers,
// defaulting to the admin role.
func (s *Server) principal(r *http.Request) (auth.Principal, error) {
	tok := ""
	if authz := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		tok = strings.TrimSpace(authz[len("Bearer "):])
	}
	if tok == "" && s.Auth.Mode == auth.ModeDev {
		user := r.Header.Get("X-User")
		role := strings.ToLower(r.Header.Get("X-Role"))
		if user == "" {
			user = auth.AnonymousUser
		}
		if role == "" {
			role = auth.RoleAdmin
		}
		return auth.Principal{Username: user, Role: role}, nil
	}
	return s.Auth.Verify(tok)
}

// authorize writes 401 or 403 and returns false when the caller is not
// allowed through allow.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request, allow func(auth.Principal) bool, need string) (auth.Principal, bool) {
	p, err := s.principal(r)
	if err != nil {
		detail := "invalid credentials"
		if errors.Is(err, auth.ErrMissingToken) {
			detail = "bearer token required"
		}
		w.Header().Set("WWW-Authenticate", `Bearer realm="hiberry"`)
		writeProblem(w, http.StatusUnauthorized, "Unauthorized", detail, r.URL.Path)
		return auth.Principal{}, false
	}
	if allow != nil && !allow(p) {
		writeProblem(w, http.StatusForbidden, "Forbidden", need+" required", r.URL.Path)
		return auth.Principal{}, false
	}
	return p, true
}

func anyRole(auth.Principal) bool { return true }
