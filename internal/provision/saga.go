// Package provision implements the connector provisioning saga.
//
// Provisioning spans three independent resources: the secrets vault, the
// registry database, and the tenant database. No transaction coordinator
// spans them, so the saga runs forward steps in a fixed order and compensates
// on failure: roll back both database transactions, then delete the vault
// credential. Rolling back the databases before deleting the secret bounds
// the window in which a dangling secret can exist to the compensation step
// itself. A crash between database rollback and vault delete can still strand
// a secret; that residual risk is surfaced as CompensationError and left to a
// reconciliation sweep (vault entries without a registry row) rather than
// handled here.
package provision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/attributa/attributa/internal/metrics"
	"github.com/attributa/attributa/internal/provider"
	"github.com/attributa/attributa/internal/registry"
	"github.com/attributa/attributa/internal/tenantstore"
)

const defaultInitialLookback = 45 * 24 * time.Hour

// SecretStore is the vault surface the saga needs.
type SecretStore interface {
	CreateCredential(ctx context.Context, id string, payload map[string]any, label string) error
	DeleteCredential(ctx context.Context, id string) error
}

// RegistryTx is one open registry-store transaction.
type RegistryTx interface {
	InsertConnector(ctx context.Context, c registry.Connector) error
	InsertSubConnectors(ctx context.Context, subs []registry.SubConnector) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// RegistryStore opens registry transactions.
type RegistryStore interface {
	Begin(ctx context.Context) (RegistryTx, error)
}

// TenantTx is one open tenant-store transaction.
type TenantTx interface {
	InsertMapping(ctx context.Context, m tenantstore.Mapping) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TenantStore is the tenant-database surface the saga needs.
type TenantStore interface {
	Begin(ctx context.Context) (TenantTx, error)
	CreateDestinationTables(ctx context.Context, statements []string) error
	ResolveDestinationCredential(ctx context.Context, companyID string) (string, error)
}

// IngestionTrigger issues the initial historical backfill after commit.
type IngestionTrigger interface {
	TriggerHistorical(ctx context.Context, providerPath, connectorID string, window time.Duration) error
}

// Request carries the normalized output of a provider OAuth callback.
type Request struct {
	CompanyID         string
	ConnectorType     string
	ExternalAccountID string
	// Credentials is the opaque, already-exchanged provider credential payload.
	Credentials map[string]any
	// ExtraInformation is free-form metadata stored on the tenant mapping.
	ExtraInformation json.RawMessage
}

func (r Request) validate() error {
	if r.CompanyID == "" {
		return errors.New("company id is required")
	}
	if r.ConnectorType == "" {
		return errors.New("connector type is required")
	}
	if r.ExternalAccountID == "" {
		return errors.New("external account id is required")
	}
	if len(r.Credentials) == 0 {
		return errors.New("provider credentials are required")
	}
	return nil
}

// Saga coordinates connector provisioning across the vault and both stores.
type Saga struct {
	Secrets   SecretStore
	Registry  RegistryStore
	Tenant    TenantStore
	Ingestion IngestionTrigger
	Providers *provider.Registry

	// InitialLookback is the backfill window requested right after commit.
	InitialLookback time.Duration
	Logger          *slog.Logger

	// Overridable for tests.
	Now   func() time.Time
	NewID func() uuid.UUID
}

func (s *Saga) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Saga) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Saga) newID() uuid.UUID {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.New()
}

func (s *Saga) initialLookback() time.Duration {
	if s.InitialLookback > 0 {
		return s.InitialLookback
	}
	return defaultInitialLookback
}

// Provision runs the saga. On success it returns the new connector id; the
// returned error may additionally be a PostProvisionError, in which case the
// connector id is valid and the connector committed, but table creation or
// the initial ingestion call still needs an out-of-band retry.
func (s *Saga) Provision(ctx context.Context, req Request) (uuid.UUID, error) {
	if err := req.validate(); err != nil {
		return uuid.Nil, err
	}

	def, ok := s.Providers.Get(req.ConnectorType)
	if !ok {
		return uuid.Nil, fmt.Errorf("unknown connector type %q", req.ConnectorType)
	}

	log := s.logger().With("company_id", req.CompanyID, "connector_type", def.Kind())

	// Step 1: resolve the tenant's own database credential. Fails before any write.
	destinationCredentialID, err := s.Tenant.ResolveDestinationCredential(ctx, req.CompanyID)
	if err != nil {
		metrics.ProvisionsTotal.WithLabelValues(def.Kind(), "resolution_failed").Inc()
		return uuid.Nil, &ResolutionError{CompanyID: req.CompanyID, Err: err}
	}

	connectorID := s.newID()
	credentialID := s.newID().String()
	label := fmt.Sprintf("%s/%s/%s", req.CompanyID, def.Kind(), req.ExternalAccountID)

	// Step 2: vault write. On failure nothing else has been touched.
	if err := s.Secrets.CreateCredential(ctx, credentialID, req.Credentials, label); err != nil {
		metrics.ProvisionsTotal.WithLabelValues(def.Kind(), "vault_failed").Inc()
		return uuid.Nil, &VaultWriteError{CredentialID: credentialID, Err: err}
	}

	// Steps 3-6: two independent transactions, held atomic only by the
	// compensation below.
	connectorID, err = s.writeStores(ctx, log, def, req, connectorID, credentialID, destinationCredentialID)
	if err != nil {
		metrics.ProvisionsTotal.WithLabelValues(def.Kind(), "store_failed").Inc()
		return uuid.Nil, err
	}

	// Step 7: best effort, never rolls back the committed connector.
	if err := s.postProvision(ctx, def, req.ExternalAccountID, connectorID); err != nil {
		metrics.ProvisionsTotal.WithLabelValues(def.Kind(), "post_provision_failed").Inc()
		log.Warn("post-provision step failed, connector remains provisioned",
			"connector_id", connectorID, "err", err)
		return connectorID, &PostProvisionError{ConnectorID: connectorID, Err: err}
	}

	metrics.ProvisionsTotal.WithLabelValues(def.Kind(), "success").Inc()
	log.Info("connector provisioned", "connector_id", connectorID)
	return connectorID, nil
}

func (s *Saga) writeStores(
	ctx context.Context,
	log *slog.Logger,
	def provider.Definition,
	req Request,
	connectorID uuid.UUID,
	credentialID, destinationCredentialID string,
) (uuid.UUID, error) {
	regTx, err := s.Registry.Begin(ctx)
	if err != nil {
		cause := &RegistryWriteError{Err: err}
		return uuid.Nil, s.compensate(ctx, log, def.Kind(), credentialID, cause)
	}

	tenTx, err := s.Tenant.Begin(ctx)
	if err != nil {
		cause := &MappingWriteError{Err: err}
		return uuid.Nil, s.compensate(ctx, log, def.Kind(), credentialID, cause, regTx)
	}

	threshold := s.now().Add(-s.initialLookback())
	connector := registry.Connector{
		ID:                      connectorID,
		ConnectorType:           def.Kind(),
		CompanyID:               req.CompanyID,
		ExternalAccountID:       req.ExternalAccountID,
		SourceCredentialID:      credentialID,
		DestinationCredentialID: destinationCredentialID,
	}
	subs := make([]registry.SubConnector, 0, len(def.Tables()))
	for _, binding := range def.Tables() {
		subs = append(subs, registry.SubConnector{
			ID:                        s.newID(),
			ConnectorID:               connectorID,
			TableKind:                 binding.Kind,
			DisplayName:               binding.Label,
			HistoricalCursorThreshold: threshold,
		})
	}

	if err := regTx.InsertConnector(ctx, connector); err != nil {
		cause := &RegistryWriteError{Err: err}
		return uuid.Nil, s.compensate(ctx, log, def.Kind(), credentialID, cause, regTx, tenTx)
	}
	if err := regTx.InsertSubConnectors(ctx, subs); err != nil {
		cause := &RegistryWriteError{Err: err}
		return uuid.Nil, s.compensate(ctx, log, def.Kind(), credentialID, cause, regTx, tenTx)
	}

	mapping := tenantstore.Mapping{
		ID:               s.newID(),
		CompanyID:        req.CompanyID,
		ConnectorID:      connectorID,
		ConnectorType:    def.Kind(),
		ExtraInformation: req.ExtraInformation,
	}
	if err := tenTx.InsertMapping(ctx, mapping); err != nil {
		cause := &MappingWriteError{Err: err}
		return uuid.Nil, s.compensate(ctx, log, def.Kind(), credentialID, cause, regTx, tenTx)
	}

	if err := regTx.Commit(ctx); err != nil {
		cause := &RegistryWriteError{Err: fmt.Errorf("commit: %w", err)}
		return uuid.Nil, s.compensate(ctx, log, def.Kind(), credentialID, cause, tenTx)
	}
	if err := tenTx.Commit(ctx); err != nil {
		// The registry transaction is already durable and cannot be rolled
		// back; the connector row needs manual removal. Still try to delete
		// the credential so no live secret is left behind.
		cause := &MappingWriteError{Err: fmt.Errorf("commit: %w", err)}
		compErr := fmt.Errorf("registry row %s already committed and requires manual removal", connectorID)
		if delErr := s.deleteCredential(ctx, credentialID); delErr != nil {
			compErr = errors.Join(compErr, delErr)
		}
		return uuid.Nil, s.compensationFailed(log, def.Kind(), "tenant_commit", cause, compErr)
	}

	return connectorID, nil
}

type rollbacker interface {
	Rollback(ctx context.Context) error
}

// compensate undoes a failed saga: roll back the open transactions, then
// delete the vault credential. It returns cause when compensation fully
// succeeds, and a CompensationError wrapping cause when it does not.
// Compensation runs even when ctx is already canceled, since a context
// timeout on a forward step must not strand the secret.
func (s *Saga) compensate(ctx context.Context, log *slog.Logger, connectorType, credentialID string, cause error, txs ...rollbacker) error {
	var compErr error
	for _, tx := range txs {
		if err := tx.Rollback(context.WithoutCancel(ctx)); err != nil {
			compErr = errors.Join(compErr, fmt.Errorf("rollback: %w", err))
		}
	}
	if err := s.deleteCredential(ctx, credentialID); err != nil {
		compErr = errors.Join(compErr, err)
	}

	if compErr != nil {
		return s.compensationFailed(log, connectorType, "compensate", cause, compErr)
	}

	log.Warn("provisioning failed, compensation complete", "err", cause)
	return cause
}

func (s *Saga) deleteCredential(ctx context.Context, credentialID string) error {
	if err := s.Secrets.DeleteCredential(context.WithoutCancel(ctx), credentialID); err != nil {
		return fmt.Errorf("delete credential %s: %w", credentialID, err)
	}
	return nil
}

func (s *Saga) compensationFailed(log *slog.Logger, connectorType, step string, cause, compErr error) error {
	metrics.CompensationFailuresTotal.WithLabelValues(connectorType, step).Inc()
	log.Error("provisioning compensation failed, manual intervention required",
		"step", step, "cause", cause, "compensation_err", compErr)
	return &CompensationError{Cause: cause, CompensationErr: compErr}
}

func (s *Saga) postProvision(ctx context.Context, def provider.Definition, externalAccountID string, connectorID uuid.UUID) error {
	ddl := provider.DestinationTableDDL(def, externalAccountID)
	if err := s.Tenant.CreateDestinationTables(ctx, ddl); err != nil {
		return fmt.Errorf("create destination tables: %w", err)
	}
	if err := s.Ingestion.TriggerHistorical(ctx, def.IngestionPath(), connectorID.String(), s.initialLookback()); err != nil {
		return fmt.Errorf("initial historical ingestion: %w", err)
	}
	return nil
}
