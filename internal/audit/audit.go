package audit

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"go.uber.org/zap"
)

// Security-relevant events recorded for operators. These are always
// logged even though the caller only ever sees a generic error.
const (
	ActionAuthFailed       = "auth_failed"
	ActionSubjectRevoked   = "subject_revoked"
	ActionRoleDenied       = "role_denied"
	ActionIdentityMismatch = "identity_mismatch"
)

// Entry is one security audit record.
type Entry struct {
	ID        string
	Action    string
	SubjectID string
	Role      string
	Detail    string
	RemoteIP  string
	CreatedAt time.Time
}

// Recorder writes audit entries. Persistence of the audit trail lives
// outside this service; the recorder emits structured log lines that
// the log pipeline retains.
type Recorder struct {
	logger *zap.Logger
}

// NewRecorder constructs a recorder.
func NewRecorder(logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{logger: logger.Named("audit")}
}

// Record logs the entry at warn level with full context.
func (r *Recorder) Record(entry Entry) {
	if r == nil || r.logger == nil {
		return
	}
	if entry.ID == "" {
		entry.ID = NewID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	r.logger.Warn("security event",
		zap.String("audit_id", entry.ID),
		zap.String("action", entry.Action),
		zap.String("subject_id", entry.SubjectID),
		zap.String("role", entry.Role),
		zap.String("detail", entry.Detail),
		zap.String("remote_ip", entry.RemoteIP),
		zap.Time("created_at", entry.CreatedAt),
	)
}

// NewID generates a random audit id.
func NewID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return "audit-" + hex.EncodeToString(buf)
}
