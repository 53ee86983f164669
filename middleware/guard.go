package middleware

import (
	"errors"
	"net/http"

	goAccounts "github.com/MrEthical07/goAccounts"
)

// Session resolves the request's identity once and attaches it to the request
// context. Anonymous requests pass through; use Guard or RequireAdmin to
// reject them. A storage failure ends the request with 503.
func Session(engine *goAccounts.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unavailable", http.StatusServiceUnavailable)
				return
			}
			if _, ok := goAccounts.SessionFromContext(r.Context()); ok {
				next.ServeHTTP(w, r)
				return
			}

			ctx := goAccounts.RequestContext(r)
			s, err := engine.ResolveSession(ctx, r)
			if err != nil {
				status := http.StatusInternalServerError
				if errors.Is(err, goAccounts.ErrStorageUnavailable) {
					status = http.StatusServiceUnavailable
				}
				http.Error(w, http.StatusText(status), status)
				return
			}

			next.ServeHTTP(w, r.WithContext(goAccounts.WithSession(ctx, s)))
		})
	}
}

// Guard rejects requests without an authenticated session with 401. It
// resolves the session itself when Session has not run earlier in the chain.
func Guard(engine *goAccounts.Engine) func(http.Handler) http.Handler {
	return requireSession(engine, goAccounts.Requirement{})
}

// RequireAdmin is Guard that additionally rejects non-admin users with 403.
func RequireAdmin(engine *goAccounts.Engine) func(http.Handler) http.Handler {
	return requireSession(engine, goAccounts.Requirement{RequireAdmin: true})
}

func requireSession(engine *goAccounts.Engine, req goAccounts.Requirement) func(http.Handler) http.Handler {
	resolve := Session(engine)
	return func(next http.Handler) http.Handler {
		check := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, _ := goAccounts.SessionFromContext(r.Context())
			if !s.Authenticated() {
				w.Header().Set("WWW-Authenticate", "Bearer")
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if req.RequireAdmin && !s.IsAdmin() {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
		return resolve(check)
	}
}
