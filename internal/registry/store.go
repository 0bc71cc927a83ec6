// Package registry is the connector registry store: CRUD over connector and
// sub-connector rows in the system-of-record database. A connector row exists
// here iff the matching mapping row exists in the tenant store and the source
// credential exists in the vault; the provisioning saga maintains that
// invariant, this package only provides the primitives.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a connector id has no row.
var ErrNotFound = errors.New("connector not found")

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Tx is a short-lived registry transaction scoped to one provisioning attempt.
type Tx struct {
	tx pgx.Tx
}

func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("registry begin: %w", err)
	}
	return &Tx{tx: tx}, nil
}

func (t *Tx) InsertConnector(ctx context.Context, c Connector) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO connectors
			(id, connector_type, company_id, external_account_id, source_credential_id, destination_credential_id)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.ConnectorType, c.CompanyID, c.ExternalAccountID, c.SourceCredentialID, c.DestinationCredentialID,
	)
	if err != nil {
		return fmt.Errorf("insert connector %s: %w", c.ID, err)
	}
	return nil
}

func (t *Tx) InsertSubConnectors(ctx context.Context, subs []SubConnector) error {
	for _, sub := range subs {
		_, err := t.tx.Exec(ctx,
			`INSERT INTO sub_connectors
				(id, connector_id, table_kind, display_name, historical_cursor_threshold)
			 VALUES ($1, $2, $3, $4, $5)`,
			sub.ID, sub.ConnectorID, sub.TableKind, sub.DisplayName, sub.HistoricalCursorThreshold,
		)
		if err != nil {
			return fmt.Errorf("insert sub-connector %s/%s: %w", sub.ConnectorID, sub.TableKind, err)
		}
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

const connectorColumns = `id, connector_type, company_id, external_account_id,
	source_credential_id, destination_credential_id, created_at, updated_at`

func (s *Store) Get(ctx context.Context, id uuid.UUID) (Connector, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+connectorColumns+` FROM connectors WHERE id = $1`, id)
	c, err := scanConnector(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Connector{}, fmt.Errorf("connector %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Connector{}, fmt.Errorf("get connector %s: %w", id, err)
	}
	return c, nil
}

// ListAll returns every registered connector. The scheduler treats every row
// as a sync candidate on every run.
func (s *Store) ListAll(ctx context.Context) ([]Connector, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+connectorColumns+` FROM connectors ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list connectors: %w", err)
	}
	defer rows.Close()

	var out []Connector
	for rows.Next() {
		c, err := scanConnector(rows)
		if err != nil {
			return nil, fmt.Errorf("scan connector: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list connectors: %w", err)
	}
	return out, nil
}

func (s *Store) ListSubConnectors(ctx context.Context, connectorID uuid.UUID) ([]SubConnector, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, connector_id, table_kind, display_name,
			historical_cursor, future_cursor, historical_cursor_threshold,
			created_at, updated_at
		 FROM sub_connectors WHERE connector_id = $1 ORDER BY table_kind`, connectorID)
	if err != nil {
		return nil, fmt.Errorf("list sub-connectors %s: %w", connectorID, err)
	}
	defer rows.Close()

	var out []SubConnector
	for rows.Next() {
		var sub SubConnector
		if err := rows.Scan(
			&sub.ID, &sub.ConnectorID, &sub.TableKind, &sub.DisplayName,
			&sub.HistoricalCursor, &sub.FutureCursor, &sub.HistoricalCursorThreshold,
			&sub.CreatedAt, &sub.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan sub-connector: %w", err)
		}
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sub-connectors %s: %w", connectorID, err)
	}
	return out, nil
}

// ExistsForExternalAccount reports whether a connector already binds the given
// provider account. Provisioning callers use it as a duplicate-creation
// precondition check.
func (s *Store) ExistsForExternalAccount(ctx context.Context, connectorType, externalAccountID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM connectors
			WHERE connector_type = $1 AND external_account_id = $2
		)`, connectorType, externalAccountID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("exists check %s/%s: %w", connectorType, externalAccountID, err)
	}
	return exists, nil
}

// AdvanceCursors moves the named cursor of every sub-connector of a connector
// forward to cover through the given instant. GREATEST keeps cursors
// monotone: a stale or replayed advance can never move a cursor backward.
func (s *Store) AdvanceCursors(ctx context.Context, connectorID uuid.UUID, window Window, through time.Time) error {
	if !window.Valid() {
		return fmt.Errorf("advance cursors %s: unknown window %q", connectorID, window)
	}

	column := "historical_cursor"
	if window == WindowFuture {
		column = "future_cursor"
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE sub_connectors
		 SET `+column+` = GREATEST(COALESCE(`+column+`, 'epoch'::timestamptz), $2),
		     updated_at = now()
		 WHERE connector_id = $1`,
		connectorID, through,
	)
	if err != nil {
		return fmt.Errorf("advance %s cursor %s: %w", window, connectorID, err)
	}
	return nil
}

func scanConnector(row pgx.Row) (Connector, error) {
	var c Connector
	err := row.Scan(
		&c.ID, &c.ConnectorType, &c.CompanyID, &c.ExternalAccountID,
		&c.SourceCredentialID, &c.DestinationCredentialID, &c.CreatedAt, &c.UpdatedAt,
	)
	return c, err
}
