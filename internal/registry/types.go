package registry

import (
	"time"

	"github.com/google/uuid"
)

// Connector is one (company, provider, source-account) binding in the system
// of record. Rows are constructed only by this package's read path.
type Connector struct {
	ID                      uuid.UUID
	ConnectorType           string
	CompanyID               string
	ExternalAccountID       string
	SourceCredentialID      string
	DestinationCredentialID string
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// SubConnector is one destination table binding of a connector, carrying the
// synchronization cursors for that table.
type SubConnector struct {
	ID          uuid.UUID
	ConnectorID uuid.UUID
	TableKind   string
	DisplayName string
	// HistoricalCursor records through when historical backfill coverage has
	// been confirmed. Nil until the first successful backfill call.
	HistoricalCursor *time.Time
	// FutureCursor records through when forward resync coverage has been
	// confirmed. Nil until the first successful resync call.
	FutureCursor *time.Time
	// HistoricalCursorThreshold is the oldest point backfill must reach,
	// fixed at provisioning time.
	HistoricalCursorThreshold time.Time
	CreatedAt                 time.Time
	UpdatedAt                 time.Time
}

// Window identifies which synchronization direction a cursor belongs to.
type Window string

const (
	WindowHistorical Window = "historical"
	WindowFuture     Window = "future"
)

func (w Window) Valid() bool {
	return w == WindowHistorical || w == WindowFuture
}
