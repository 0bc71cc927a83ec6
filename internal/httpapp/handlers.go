package httpapp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"github.com/attributa/attributa/internal/provision"
	"github.com/attributa/attributa/internal/registry"
	"github.com/attributa/attributa/internal/scheduler"
	"github.com/attributa/attributa/internal/tenantstore"
)

// Provisioner runs the connector provisioning flow.
type Provisioner interface {
	Provision(ctx context.Context, req provision.Request) (uuid.UUID, error)
}

// ConnectorReader is the read-only registry surface the API serves from.
type ConnectorReader interface {
	Get(ctx context.Context, id uuid.UUID) (registry.Connector, error)
	ListAll(ctx context.Context) ([]registry.Connector, error)
	ListSubConnectors(ctx context.Context, connectorID uuid.UUID) ([]registry.SubConnector, error)
	ExistsForExternalAccount(ctx context.Context, connectorType, externalAccountID string) (bool, error)
}

// MappingReader is the tenant-store surface the API serves from.
type MappingReader interface {
	GetMapping(ctx context.Context, connectorID uuid.UUID) (tenantstore.Mapping, error)
	ListMappings(ctx context.Context, companyID string) ([]tenantstore.Mapping, error)
}

// SyncRunner triggers a manual synchronization run.
type SyncRunner interface {
	SynchronizeAll(ctx context.Context) (scheduler.Report, error)
}

// Handlers groups all HTTP handlers and shared dependencies.
type Handlers struct {
	Provisioner Provisioner
	Registry    ConnectorReader
	Mappings    MappingReader
	Syncer      SyncRunner
	Logger      *slog.Logger
}

func (h *Handlers) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

type errorResponse struct {
	Error string `json:"error"`
}

type createConnectorRequest struct {
	CompanyID         string          `json:"company_id"`
	ConnectorType     string          `json:"connector_type"`
	ExternalAccountID string          `json:"external_account_id"`
	Credentials       map[string]any  `json:"credentials"`
	ExtraInformation  json.RawMessage `json:"extra_information,omitempty"`
}

type createConnectorResponse struct {
	ConnectorID string `json:"connector_id"`
	Warning     string `json:"warning,omitempty"`
}

type connectorResponse struct {
	ID                string    `json:"id"`
	ConnectorType     string    `json:"connector_type"`
	CompanyID         string    `json:"company_id"`
	ExternalAccountID string    `json:"external_account_id"`
	CreatedAt         time.Time `json:"created_at"`
}

type subConnectorResponse struct {
	ID               string     `json:"id"`
	TableKind        string     `json:"table_kind"`
	DisplayName      string     `json:"display_name"`
	HistoricalCursor *time.Time `json:"historical_cursor,omitempty"`
	FutureCursor     *time.Time `json:"future_cursor,omitempty"`
}

type connectorDetailResponse struct {
	connectorResponse
	ExtraInformation json.RawMessage        `json:"extra_information,omitempty"`
	SubConnectors    []subConnectorResponse `json:"sub_connectors"`
}

type companyConnectorResponse struct {
	ConnectorID   string          `json:"connector_id"`
	ConnectorType string          `json:"connector_type"`
	Extra         json.RawMessage `json:"extra_information,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

func (h *Handlers) HandleHealthz(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// HandleCreateConnector provisions a connector after an OAuth flow completes.
// Duplicate (connector_type, external_account_id) pairs are rejected before
// the provisioning flow starts.
func (h *Handlers) HandleCreateConnector(c *echo.Context) error {
	var req createConnectorRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}

	ctx := c.Request().Context()
	exists, err := h.Registry.ExistsForExternalAccount(ctx, req.ConnectorType, req.ExternalAccountID)
	if err != nil {
		h.logger().Error("duplicate check failed", "err", err)
		return c.JSON(http.StatusBadGateway, errorResponse{Error: "registry unavailable"})
	}
	if exists {
		return c.JSON(http.StatusConflict, errorResponse{
			Error: "a connector for this account already exists",
		})
	}

	id, err := h.Provisioner.Provision(ctx, provision.Request{
		CompanyID:         req.CompanyID,
		ConnectorType:     req.ConnectorType,
		ExternalAccountID: req.ExternalAccountID,
		Credentials:       req.Credentials,
		ExtraInformation:  req.ExtraInformation,
	})
	if err != nil {
		return h.respondProvisionError(c, id, err)
	}

	return c.JSON(http.StatusCreated, createConnectorResponse{ConnectorID: id.String()})
}

// respondProvisionError maps the provisioning error taxonomy onto HTTP
// statuses. A post-provision failure still created the connector, so it
// answers 201 with a warning rather than an error status.
func (h *Handlers) respondProvisionError(c *echo.Context, id uuid.UUID, err error) error {
	var postErr *provision.PostProvisionError
	if errors.As(err, &postErr) {
		h.logger().Warn("connector created with post-provision failure",
			"connector_id", postErr.ConnectorID, "err", err)
		return c.JSON(http.StatusCreated, createConnectorResponse{
			ConnectorID: postErr.ConnectorID.String(),
			Warning:     "connector created, initial setup incomplete: " + postErr.Err.Error(),
		})
	}

	var (
		resErr  *provision.ResolutionError
		compErr *provision.CompensationError
	)
	switch {
	case errors.As(err, &resErr):
		return c.JSON(http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
	case errors.As(err, &compErr):
		h.logger().Error("provisioning compensation failed", "err", err)
		return c.JSON(http.StatusBadGateway, errorResponse{Error: err.Error()})
	}

	var (
		vaultErr *provision.VaultWriteError
		regErr   *provision.RegistryWriteError
		mapErr   *provision.MappingWriteError
	)
	if errors.As(err, &vaultErr) || errors.As(err, &regErr) || errors.As(err, &mapErr) {
		h.logger().Error("provisioning failed", "err", err)
		return c.JSON(http.StatusBadGateway, errorResponse{Error: err.Error()})
	}

	return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
}

func (h *Handlers) HandleListConnectors(c *echo.Context) error {
	connectors, err := h.Registry.ListAll(c.Request().Context())
	if err != nil {
		h.logger().Error("connector listing failed", "err", err)
		return c.JSON(http.StatusBadGateway, errorResponse{Error: "registry unavailable"})
	}

	out := make([]connectorResponse, 0, len(connectors))
	for _, conn := range connectors {
		out = append(out, toConnectorResponse(conn))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handlers) HandleGetConnector(c *echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid connector id"})
	}

	ctx := c.Request().Context()
	conn, err := h.Registry.Get(ctx, id)
	if errors.Is(err, registry.ErrNotFound) {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "connector not found"})
	}
	if err != nil {
		h.logger().Error("connector lookup failed", "connector_id", id, "err", err)
		return c.JSON(http.StatusBadGateway, errorResponse{Error: "registry unavailable"})
	}

	subs, err := h.Registry.ListSubConnectors(ctx, id)
	if err != nil {
		h.logger().Error("sub-connector listing failed", "connector_id", id, "err", err)
		return c.JSON(http.StatusBadGateway, errorResponse{Error: "registry unavailable"})
	}

	resp := connectorDetailResponse{connectorResponse: toConnectorResponse(conn)}
	if h.Mappings != nil {
		mapping, err := h.Mappings.GetMapping(ctx, id)
		switch {
		case err == nil:
			resp.ExtraInformation = mapping.ExtraInformation
		case errors.Is(err, tenantstore.ErrMappingNotFound):
			// Detail stays usable without the tenant-side row.
		default:
			h.logger().Error("mapping lookup failed", "connector_id", id, "err", err)
		}
	}
	resp.SubConnectors = make([]subConnectorResponse, 0, len(subs))
	for _, sub := range subs {
		resp.SubConnectors = append(resp.SubConnectors, subConnectorResponse{
			ID:               sub.ID.String(),
			TableKind:        sub.TableKind,
			DisplayName:      sub.DisplayName,
			HistoricalCursor: sub.HistoricalCursor,
			FutureCursor:     sub.FutureCursor,
		})
	}
	return c.JSON(http.StatusOK, resp)
}

// HandleListCompanyConnectors lists the tenant-side connector mappings of one
// company.
func (h *Handlers) HandleListCompanyConnectors(c *echo.Context) error {
	companyID := c.Param("id")
	if companyID == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "company id is required"})
	}

	mappings, err := h.Mappings.ListMappings(c.Request().Context(), companyID)
	if err != nil {
		h.logger().Error("mapping listing failed", "company_id", companyID, "err", err)
		return c.JSON(http.StatusBadGateway, errorResponse{Error: "tenant store unavailable"})
	}

	out := make([]companyConnectorResponse, 0, len(mappings))
	for _, m := range mappings {
		out = append(out, companyConnectorResponse{
			ConnectorID:   m.ConnectorID.String(),
			ConnectorType: m.ConnectorType,
			Extra:         m.ExtraInformation,
			CreatedAt:     m.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, out)
}

// HandleSync runs a full synchronization pass and returns its report.
func (h *Handlers) HandleSync(c *echo.Context) error {
	report, err := h.Syncer.SynchronizeAll(c.Request().Context())
	if err != nil {
		h.logger().Error("manual synchronization failed", "err", err)
		return c.JSON(http.StatusBadGateway, errorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, report)
}

func toConnectorResponse(conn registry.Connector) connectorResponse {
	return connectorResponse{
		ID:                conn.ID.String(),
		ConnectorType:     conn.ConnectorType,
		CompanyID:         conn.CompanyID,
		ExternalAccountID: conn.ExternalAccountID,
		CreatedAt:         conn.CreatedAt,
	}
}
