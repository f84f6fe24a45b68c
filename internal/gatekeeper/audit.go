package gatekeeper

import (
	"context"

	"github.com/sosiluv/farmpass/internal/models"
)

// AuditRecorder receives security events from the admission pipeline.
// Implementations must be fire-and-forget: a slow or failing sink must never
// delay or fail a request decision.
type AuditRecorder interface {
	Record(ctx context.Context, event models.SecurityEvent)
}

// NopAuditRecorder discards events. Used in tests and as a wiring default.
type NopAuditRecorder struct{}

func (NopAuditRecorder) Record(context.Context, models.SecurityEvent) {}
