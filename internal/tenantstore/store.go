// Package tenantstore is the tenant-facing relational store: the
// company → connector mapping rows, the destination tables ingestion writes
// into, and the lookup that resolves a company's own database credential.
// It is a separate database from the registry store; the two share atomicity
// only through the provisioning saga's compensation logic.
package tenantstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrMappingNotFound is returned when no mapping row exists for a connector.
	ErrMappingNotFound = errors.New("connector mapping not found")
	// ErrCompanyNotFound is returned when a company id cannot be resolved.
	ErrCompanyNotFound = errors.New("company not found")
)

// Mapping links a company to a provisioned connector.
type Mapping struct {
	ID               uuid.UUID
	CompanyID        string
	ConnectorID      uuid.UUID
	ConnectorType    string
	ExtraInformation json.RawMessage
	CreatedAt        time.Time
}

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Tx is a short-lived tenant-store transaction scoped to one provisioning attempt.
type Tx struct {
	tx pgx.Tx
}

func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("tenant store begin: %w", err)
	}
	return &Tx{tx: tx}, nil
}

func (t *Tx) InsertMapping(ctx context.Context, m Mapping) error {
	extra := m.ExtraInformation
	if len(extra) == 0 {
		extra = json.RawMessage(`{}`)
	}
	_, err := t.tx.Exec(ctx,
		`INSERT INTO connector_mappings
			(id, company_id, connector_id, connector_type, extra_information)
		 VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.CompanyID, m.ConnectorID, m.ConnectorType, extra,
	)
	if err != nil {
		return fmt.Errorf("insert mapping %s: %w", m.ConnectorID, err)
	}
	return nil
}

func (t *Tx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *Tx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}

func (s *Store) GetMapping(ctx context.Context, connectorID uuid.UUID) (Mapping, error) {
	var m Mapping
	err := s.pool.QueryRow(ctx,
		`SELECT id, company_id, connector_id, connector_type, extra_information, created_at
		 FROM connector_mappings WHERE connector_id = $1`, connectorID,
	).Scan(&m.ID, &m.CompanyID, &m.ConnectorID, &m.ConnectorType, &m.ExtraInformation, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Mapping{}, fmt.Errorf("mapping for %s: %w", connectorID, ErrMappingNotFound)
	}
	if err != nil {
		return Mapping{}, fmt.Errorf("get mapping %s: %w", connectorID, err)
	}
	return m, nil
}

func (s *Store) ListMappings(ctx context.Context, companyID string) ([]Mapping, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, company_id, connector_id, connector_type, extra_information, created_at
		 FROM connector_mappings WHERE company_id = $1 ORDER BY created_at`, companyID)
	if err != nil {
		return nil, fmt.Errorf("list mappings %s: %w", companyID, err)
	}
	defer rows.Close()

	var out []Mapping
	for rows.Next() {
		var m Mapping
		if err := rows.Scan(&m.ID, &m.CompanyID, &m.ConnectorID, &m.ConnectorType, &m.ExtraInformation, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan mapping: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list mappings %s: %w", companyID, err)
	}
	return out, nil
}

// CreateDestinationTables runs the provider's landing table DDL. Statements
// are idempotent (IF NOT EXISTS) so a post-provision retry is safe.
func (s *Store) CreateDestinationTables(ctx context.Context, statements []string) error {
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create destination table: %w", err)
		}
	}
	return nil
}

// ResolveDestinationCredential returns the credential id of the company's own
// database. Provisioning fails before any write when this lookup fails.
func (s *Store) ResolveDestinationCredential(ctx context.Context, companyID string) (string, error) {
	var credentialID string
	err := s.pool.QueryRow(ctx,
		`SELECT destination_credential_id FROM companies WHERE id = $1`, companyID,
	).Scan(&credentialID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("company %s: %w", companyID, ErrCompanyNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("resolve destination credential %s: %w", companyID, err)
	}
	if credentialID == "" {
		return "", fmt.Errorf("company %s has no destination credential: %w", companyID, ErrCompanyNotFound)
	}
	return credentialID, nil
}
