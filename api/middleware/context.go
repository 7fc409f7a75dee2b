package middleware

import "context"

type contextKey string

const ctxScannerID contextKey = "scanner_id"

func ScannerIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxScannerID).(string); ok {
		return v
	}
	return ""
}

// WithScannerID injects the scanning operator or device into the context.
func WithScannerID(ctx context.Context, scannerID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxScannerID, scannerID)
}
