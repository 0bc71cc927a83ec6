package provision

import (
	"fmt"

	"github.com/google/uuid"
)

// ResolutionError means the company's destination credential could not be
// resolved. It is returned before any write has happened.
type ResolutionError struct {
	CompanyID string
	Err       error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve destination credential for company %s: %v", e.CompanyID, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// VaultWriteError means the credential write to the secret store failed.
// Nothing else has been touched at that point.
type VaultWriteError struct {
	CredentialID string
	Err          error
}

func (e *VaultWriteError) Error() string {
	return fmt.Sprintf("write credential %s to vault: %v", e.CredentialID, e.Err)
}

func (e *VaultWriteError) Unwrap() error { return e.Err }

// RegistryWriteError means the registry-store side of the saga failed and
// compensation ran (or was attempted).
type RegistryWriteError struct {
	Err error
}

func (e *RegistryWriteError) Error() string {
	return fmt.Sprintf("registry write: %v", e.Err)
}

func (e *RegistryWriteError) Unwrap() error { return e.Err }

// MappingWriteError means the tenant-mapping side of the saga failed and
// compensation ran (or was attempted).
type MappingWriteError struct {
	Err error
}

func (e *MappingWriteError) Error() string {
	return fmt.Sprintf("tenant mapping write: %v", e.Err)
}

func (e *MappingWriteError) Unwrap() error { return e.Err }

// CompensationError wraps a saga failure whose compensation itself failed.
// It can leave an orphaned vault secret or a half-rolled-back row behind and
// is always logged for manual intervention; Cause is the error that started
// the compensation.
type CompensationError struct {
	Cause           error
	CompensationErr error
}

func (e *CompensationError) Error() string {
	return fmt.Sprintf("%v (compensation also failed: %v)", e.Cause, e.CompensationErr)
}

func (e *CompensationError) Unwrap() []error {
	return []error{e.Cause, e.CompensationErr}
}

// PostProvisionError reports a failure after the connector was durably
// committed: destination table creation or the initial ingestion trigger.
// The connector exists; the failed step is expected to be retried out of band.
type PostProvisionError struct {
	ConnectorID uuid.UUID
	Err         error
}

func (e *PostProvisionError) Error() string {
	return fmt.Sprintf("connector %s provisioned, post-provision step failed: %v", e.ConnectorID, e.Err)
}

func (e *PostProvisionError) Unwrap() error { return e.Err }
