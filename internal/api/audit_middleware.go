package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/example/bankledger/pkg/audit"
)

// Auditor appends one tamper-evident entry per request.
type Auditor interface {
	Append(payload string) *audit.Entry
}

// AuditMiddleware records every request in the hash-chained audit log,
// keyed by the request id so log lines and audit entries correlate.
func AuditMiddleware(a Auditor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			start := time.Now()
			next.ServeHTTP(sw, r)
			dur := time.Since(start)

			rid := RequestIDFromContext(r.Context())
			payload := fmt.Sprintf("rid=%s method=%s path=%s status=%d dur_ms=%d",
				rid, r.Method, r.URL.Path, sw.status, dur.Milliseconds())
			a.Append(payload)
		})
	}
}
