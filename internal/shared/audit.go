package shared

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/blake2b"

	"github.com/odyssey-erp/odyssey-gl/internal/platform/db"
)

// AuditLog represents an append-only record stored in audit_logs.
type AuditLog struct {
	ID         uuid.UUID      `json:"id"`
	TenantID   int64          `json:"tenant_id"`
	ActorID    int64          `json:"actor_id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Meta       map[string]any `json:"meta,omitempty"`
	At         time.Time      `json:"at"`
	Digest     []byte         `json:"digest,omitempty"`
}

// ErrAuditChainBroken indicates a record digest does not match its predecessor.
var ErrAuditChainBroken = errors.New("audit: chain digest mismatch")

func (l AuditLog) validate() error {
	if l.TenantID == 0 {
		return errors.New("audit log requires tenant")
	}
	if l.Action == "" || l.EntityType == "" || l.EntityID == "" {
		return errors.New("audit log requires action/entity_type/entity_id")
	}
	return nil
}

// ChainDigest hashes log on top of the previous record digest for the tenant.
func ChainDigest(prev []byte, log AuditLog) ([]byte, error) {
	payload, err := json.Marshal(struct {
		TenantID   int64          `json:"tenant_id"`
		ActorID    int64          `json:"actor_id"`
		Action     string         `json:"action"`
		EntityType string         `json:"entity_type"`
		EntityID   string         `json:"entity_id"`
		Meta       map[string]any `json:"meta"`
		At         string         `json:"at"`
	}{log.TenantID, log.ActorID, log.Action, log.EntityType, log.EntityID, log.Meta, log.At.UTC().Format(time.RFC3339Nano)})
	if err != nil {
		return nil, fmt.Errorf("audit: encode payload: %w", err)
	}
	h, err := blake2b.New256(nil)
	if err != nil {
		return nil, err
	}
	_, _ = h.Write(prev)
	_, _ = h.Write(payload)
	return h.Sum(nil), nil
}

// VerifyChain recomputes digests for logs, which must be in insertion order.
func VerifyChain(logs []AuditLog) error {
	var prev []byte
	for i, log := range logs {
		want, err := ChainDigest(prev, log)
		if err != nil {
			return err
		}
		if !bytes.Equal(want, log.Digest) {
			return fmt.Errorf("record %d (%s): %w", i, log.ID, ErrAuditChainBroken)
		}
		prev = log.Digest
	}
	return nil
}

// AuditLogger writes records into audit_logs.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record appends the log entry, chaining its digest to the tenant's last record.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil {
		return errors.New("audit logger not initialised")
	}
	if err := log.validate(); err != nil {
		return err
	}
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	if log.At.IsZero() {
		log.At = time.Now().UTC()
	}
	metaJSON, err := json.Marshal(log.Meta)
	if err != nil {
		return err
	}
	return db.WithTx(ctx, l.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended('audit_logs:' || $1::text, 0))`, log.TenantID); err != nil {
			return err
		}
		var prev []byte
		err := tx.QueryRow(ctx, `SELECT digest FROM audit_logs WHERE tenant_id=$1 ORDER BY seq DESC LIMIT 1`, log.TenantID).Scan(&prev)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return err
		}
		digest, err := ChainDigest(prev, log)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `INSERT INTO audit_logs (id, tenant_id, actor_id, action, entity_type, entity_id, meta, occurred_at, digest)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`, log.ID, log.TenantID, log.ActorID, log.Action, log.EntityType, log.EntityID, metaJSON, log.At, digest)
		return err
	})
}

// List returns a tenant's records in insertion order.
func (l *AuditLogger) List(ctx context.Context, tenantID int64, entityType, entityID string) ([]AuditLog, error) {
	rows, err := l.pool.Query(ctx, `SELECT id, tenant_id, actor_id, action, entity_type, entity_id, meta, occurred_at, digest
FROM audit_logs WHERE tenant_id=$1 AND ($2='' OR entity_type=$2) AND ($3='' OR entity_id=$3) ORDER BY seq`, tenantID, entityType, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AuditLog
	for rows.Next() {
		var rec AuditLog
		var meta []byte
		if err := rows.Scan(&rec.ID, &rec.TenantID, &rec.ActorID, &rec.Action, &rec.EntityType, &rec.EntityID, &meta, &rec.At, &rec.Digest); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &rec.Meta)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// MemoryAuditLog keeps audit records in process, chained the same way.
type MemoryAuditLog struct {
	mu   sync.Mutex
	logs map[int64][]AuditLog
}

// NewMemoryAuditLog constructs an empty in-memory audit log.
func NewMemoryAuditLog() *MemoryAuditLog {
	return &MemoryAuditLog{logs: make(map[int64][]AuditLog)}
}

// Record appends log to the tenant chain.
func (m *MemoryAuditLog) Record(_ context.Context, log AuditLog) error {
	if err := log.validate(); err != nil {
		return err
	}
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	if log.At.IsZero() {
		log.At = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	chain := m.logs[log.TenantID]
	var prev []byte
	if len(chain) > 0 {
		prev = chain[len(chain)-1].Digest
	}
	digest, err := ChainDigest(prev, log)
	if err != nil {
		return err
	}
	log.Digest = digest
	m.logs[log.TenantID] = append(chain, log)
	return nil
}

// List returns a copy of a tenant's records filtered by entity.
func (m *MemoryAuditLog) List(_ context.Context, tenantID int64, entityType, entityID string) ([]AuditLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []AuditLog
	for _, log := range m.logs[tenantID] {
		if entityType != "" && log.EntityType != entityType {
			continue
		}
		if entityID != "" && log.EntityID != entityID {
			continue
		}
		out = append(out, log)
	}
	return out, nil
}
