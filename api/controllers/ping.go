package controllers

import (
	"net/http"

	"github.com/angelmondragon/goodsin-backend/api/middleware"
	"github.com/angelmondragon/goodsin-backend/api/responses"
)

// Ping echoes the scanner identity so handheld devices can verify their setup.
func Ping() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]string{"status": "ok"}
		if scanner := middleware.ScannerIDFromContext(r.Context()); scanner != "" {
			payload["scanner_id"] = scanner
		}
		responses.WriteSuccess(w, payload)
	}
}
