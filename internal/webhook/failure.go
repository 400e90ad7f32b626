package webhook

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/uberfix/fixhooks/internal/audit"
	"github.com/uberfix/fixhooks/internal/platform/middleware"
)

// FailureRecorder writes a verification failure audit record. Recording
// never fails the request: errors and panics are swallowed.
type FailureRecorder struct {
	audit audit.Logger
	now   func() time.Time
}

func NewFailureRecorder(logger audit.Logger) *FailureRecorder {
	if logger == nil {
		logger = audit.NopLogger{}
	}
	return &FailureRecorder{audit: logger, now: time.Now}
}

// Record logs and audits a rejected call from provider.
func (f *FailureRecorder) Record(ctx context.Context, provider string, r *http.Request, reason string) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("recording webhook verification failure", "provider", provider, "panic", p)
		}
	}()

	failure := audit.VerificationFailure{
		Provider:  provider,
		IP:        middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
		Path:      r.URL.Path,
		Reason:    reason,
		At:        f.now(),
	}
	slog.Warn("webhook verification failed",
		"provider", provider,
		"ip", failure.IP,
		"path", failure.Path,
		"reason", reason,
	)
	f.audit.Log(ctx, failure.Event())
}
