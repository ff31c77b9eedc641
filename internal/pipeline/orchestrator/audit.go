// internal/pipeline/orchestrator/audit.go
package orchestrator

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"ops-support-assistant/internal/models"
)

// AuditStore writes one row per delivered answer, off the critical path.
// A nil store disables auditing.
type AuditStore struct {
	db *sql.DB
}

func NewAuditStore(db *sql.DB) *AuditStore {
	return &AuditStore{db: db}
}

const auditInsert = `INSERT INTO answer_audit
	(trace_id, session_id, query_text, intent, confidence, escalation_required, reference_docs, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

func (a *AuditStore) Record(ctx context.Context, query models.Query, cls models.Classification, answer *models.StructuredAnswer) error {
	if a == nil || a.db == nil {
		return nil
	}
	_, err := a.db.ExecContext(ctx, auditInsert,
		query.TraceID,
		query.SessionID,
		query.Text,
		string(cls.Intent),
		answer.Confidence,
		answer.EscalationRequired,
		strings.Join(answer.References, ","),
		time.Now().UTC(),
	)
	return err
}
