package i18n

import (
	"net/http"
	"strings"
)

const langCookie = "lang"

// Middleware injects a localizer into every request context. The language is
// taken from ?lang=, then the lang cookie, then Accept-Language, then fallback.
// The cookie is scoped to basePath.
func Middleware(fallback, basePath string) func(http.Handler) http.Handler {
	cookiePath := strings.TrimRight(basePath, "/") + "/"
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var prefs []string
			if q := r.URL.Query().Get("lang"); q != "" {
				prefs = append(prefs, q)
				http.SetCookie(w, &http.Cookie{Name: langCookie, Value: Match(q), Path: cookiePath, SameSite: http.SameSiteLaxMode})
			}
			if c, err := r.Cookie(langCookie); err == nil {
				prefs = append(prefs, c.Value)
			}
			prefs = append(prefs, r.Header.Get("Accept-Language"), fallback)
			ctx := WithLocalizer(r.Context(), NewLocalizer(Match(prefs...)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
