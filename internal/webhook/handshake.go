package webhook

import (
	"log/slog"
	"net/http"
)

// HandleHandshake answers the hub subscription challenge: the challenge is
// echoed only when hub.mode is "subscribe" and hub.verify_token matches.
// An empty configured token never matches.
func HandleHandshake(provider, verifyToken string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		mode := q.Get("hub.mode")
		token := q.Get("hub.verify_token")
		challenge := q.Get("hub.challenge")

		if mode != "subscribe" || verifyToken == "" || !constantTimeEqual(token, verifyToken) {
			slog.Warn("webhook handshake rejected", "provider", provider, "mode", mode)
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		slog.Info("webhook handshake accepted", "provider", provider)
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(challenge))
	}
}
