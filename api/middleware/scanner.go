package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/goodsin-backend/api/validators"
	"github.com/angelmondragon/goodsin-backend/pkg/logger"
)

const scannerIDHeader = "X-Scanner-Id"

const maxScannerIDLength = 128

// ScannerContext carries the X-Scanner-Id header into the request context and
// log fields. Handlers fall back to it when a scan body omits scanned_by.
func ScannerContext(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scannerID := validators.SanitizeString(r.Header.Get(scannerIDHeader), maxScannerIDLength)
			if scannerID == "" || strings.ContainsAny(scannerID, "\r\n") {
				next.ServeHTTP(w, r)
				return
			}
			ctx := WithScannerID(r.Context(), scannerID)
			if logg != nil {
				ctx = logg.WithScannerID(ctx, scannerID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
