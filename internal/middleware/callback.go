package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/rs/zerolog/log"
)

// CallbackSecret guards the provider callback. A request without the shared
// secret is acknowledged with the provider's success envelope and dropped,
// so a misconfigured sender is not prompted to retry. An empty secret
// disables the check.
func CallbackSecret(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("X-Callback-Token")
			if got == "" {
				got = r.URL.Query().Get("token")
			}
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				log.Warn().
					Str("request_id", GetRequestID(r.Context())).
					Str("remote_addr", r.RemoteAddr).
					Msg("callback with bad secret dropped")
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(`{"code":200}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
