package goKaltura

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goKaltura/internal"
	"github.com/MrEthical07/goKaltura/ks"
	"github.com/MrEthical07/goKaltura/session"
)

const (
	auditEventKSIssued      = "ks_issued"
	auditEventKSIssueFailed = "ks_issue_failed"
	auditEventKSCacheHit    = "ks_cache_hit"
	auditEventCacheCleared  = "ks_cache_invalidated"
	auditEventAPIRequest    = "api_request"
)

// AuditEventTypes returns every event type a Client emits, plus the "other" bucket used
// for drop counts of unknown types.
func AuditEventTypes() []string {
	out := make([]string, len(auditEventTypes))
	copy(out, auditEventTypes[:])
	return out
}

// AuditErrorCode is the stable, secret-free error label carried by AuditEvent.Error.
type AuditErrorCode string

const (
	auditErrInvalidSpec AuditErrorCode = "invalid_spec"
	auditErrEncoding    AuditErrorCode = "encoding"
	auditErrCrypto      AuditErrorCode = "crypto"
	auditErrNoCred      AuditErrorCode = "no_credential"
	auditErrAPIStatus   AuditErrorCode = "api_status"
	auditErrUnavailable AuditErrorCode = "backend_unavailable"
	auditErrCanceled    AuditErrorCode = "canceled"
	auditErrInternal    AuditErrorCode = "internal_error"
)

func (c *Client) emitAudit(
	ctx context.Context,
	eventType string,
	spec session.Spec,
	err error,
	metadataBuilder func() map[string]string,
) {
	if c == nil || c.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		ID:          internal.NewRequestID(),
		Timestamp:   time.Now().UTC(),
		EventType:   eventType,
		PartnerID:   spec.PartnerID,
		UserID:      spec.UserID,
		Format:      spec.Format.String(),
		SessionType: spec.Type.String(),
		Success:     err == nil,
		Metadata:    metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	c.audit.Emit(ctx, event)
}

// recordIssue counts and audits one local generation attempt.
func (c *Client) recordIssue(ctx context.Context, spec session.Spec, err error) {
	if err != nil {
		c.metrics.Inc(MetricKSGenerationFailure)
		c.emitAudit(ctx, auditEventKSIssueFailed, spec, err, nil)
		return
	}
	c.metrics.recordGenerated(uint8(spec.Format))
	c.emitAudit(ctx, auditEventKSIssued, spec, nil, nil)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ks.ErrInvalidSpec):
		return auditErrInvalidSpec
	case errors.Is(err, ks.ErrEncoding):
		return auditErrEncoding
	case errors.Is(err, ks.ErrCrypto):
		return auditErrCrypto
	case errors.Is(err, ErrNoCredential):
		return auditErrNoCred
	case errors.Is(err, ErrAPIStatus):
		return auditErrAPIStatus
	case errors.Is(err, session.ErrRedisUnavailable),
		errors.Is(err, ErrCacheUnavailable):
		return auditErrUnavailable
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return auditErrCanceled
	default:
		return auditErrInternal
	}
}
