package httpapp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/attributa/attributa/internal/provision"
	"github.com/attributa/attributa/internal/registry"
	"github.com/attributa/attributa/internal/scheduler"
	"github.com/attributa/attributa/internal/tenantstore"
)

type fakeProvisioner struct {
	id  uuid.UUID
	err error

	requests []provision.Request
}

func (f *fakeProvisioner) Provision(_ context.Context, req provision.Request) (uuid.UUID, error) {
	f.requests = append(f.requests, req)
	return f.id, f.err
}

type fakeReader struct {
	connectors []registry.Connector
	subs       []registry.SubConnector
	exists     bool
	existsErr  error
	listErr    error
	getErr     error
}

func (f *fakeReader) Get(_ context.Context, id uuid.UUID) (registry.Connector, error) {
	if f.getErr != nil {
		return registry.Connector{}, f.getErr
	}
	for _, c := range f.connectors {
		if c.ID == id {
			return c, nil
		}
	}
	return registry.Connector{}, registry.ErrNotFound
}

func (f *fakeReader) ListAll(context.Context) ([]registry.Connector, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.connectors, nil
}

func (f *fakeReader) ListSubConnectors(context.Context, uuid.UUID) ([]registry.SubConnector, error) {
	return f.subs, nil
}

func (f *fakeReader) ExistsForExternalAccount(context.Context, string, string) (bool, error) {
	if f.existsErr != nil {
		return false, f.existsErr
	}
	return f.exists, nil
}

type fakeMappings struct {
	mappings []tenantstore.Mapping
	listErr  error
}

func (f *fakeMappings) GetMapping(_ context.Context, connectorID uuid.UUID) (tenantstore.Mapping, error) {
	for _, m := range f.mappings {
		if m.ConnectorID == connectorID {
			return m, nil
		}
	}
	return tenantstore.Mapping{}, tenantstore.ErrMappingNotFound
}

func (f *fakeMappings) ListMappings(_ context.Context, companyID string) ([]tenantstore.Mapping, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []tenantstore.Mapping
	for _, m := range f.mappings {
		if m.CompanyID == companyID {
			out = append(out, m)
		}
	}
	return out, nil
}

type fakeSyncer struct {
	report scheduler.Report
	err    error
	runs   int
}

func (f *fakeSyncer) SynchronizeAll(context.Context) (scheduler.Report, error) {
	f.runs++
	return f.report, f.err
}

type fixture struct {
	server      *EchoServer
	provisioner *fakeProvisioner
	reader      *fakeReader
	mappings    *fakeMappings
	syncer      *fakeSyncer
}

func newFixture() *fixture {
	p := &fakeProvisioner{id: uuid.New()}
	r := &fakeReader{}
	m := &fakeMappings{}
	s := &fakeSyncer{}
	h := &Handlers{
		Provisioner: p,
		Registry:    r,
		Mappings:    m,
		Syncer:      s,
		Logger:      slog.New(slog.DiscardHandler),
	}
	return &fixture{server: NewEchoServer(h), provisioner: p, reader: r, mappings: m, syncer: s}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

const createBody = `{
	"company_id": "company-1",
	"connector_type": "googleads",
	"external_account_id": "123-456-7890",
	"credentials": {"refresh_token": "rt"},
	"extra_information": {"customer_id": "123-456-7890"}
}`

func TestHandleHealthz(t *testing.T) {
	t.Parallel()

	fx := newFixture()
	rec := fx.do(t, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestHandleCreateConnector_Success(t *testing.T) {
	t.Parallel()

	fx := newFixture()
	rec := fx.do(t, http.MethodPost, "/api/connectors", createBody)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body)
	}

	var resp createConnectorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.ConnectorID != fx.provisioner.id.String() {
		t.Fatalf("connector_id = %q, want %q", resp.ConnectorID, fx.provisioner.id)
	}
	if resp.Warning != "" {
		t.Fatalf("warning = %q, want empty", resp.Warning)
	}

	if len(fx.provisioner.requests) != 1 {
		t.Fatalf("provision calls = %d, want 1", len(fx.provisioner.requests))
	}
	req := fx.provisioner.requests[0]
	if req.ConnectorType != "googleads" || req.ExternalAccountID != "123-456-7890" {
		t.Fatalf("provision request = %+v", req)
	}
}

func TestHandleCreateConnector_Duplicate(t *testing.T) {
	t.Parallel()

	fx := newFixture()
	fx.reader.exists = true

	rec := fx.do(t, http.MethodPost, "/api/connectors", createBody)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	if len(fx.provisioner.requests) != 0 {
		t.Fatal("duplicate request reached the provisioner")
	}
}

func TestHandleCreateConnector_ErrorMapping(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		err  error
		want int
	}{
		"resolution": {
			err:  &provision.ResolutionError{CompanyID: "company-1", Err: errors.New("no such company")},
			want: http.StatusUnprocessableEntity,
		},
		"vault": {
			err:  &provision.VaultWriteError{Err: errors.New("sealed")},
			want: http.StatusBadGateway,
		},
		"registry": {
			err:  &provision.RegistryWriteError{Err: errors.New("down")},
			want: http.StatusBadGateway,
		},
		"mapping": {
			err:  &provision.MappingWriteError{Err: errors.New("down")},
			want: http.StatusBadGateway,
		},
		"compensation": {
			err: &provision.CompensationError{
				Cause:           &provision.MappingWriteError{Err: errors.New("down")},
				CompensationErr: errors.New("vault unreachable"),
			},
			want: http.StatusBadGateway,
		},
		"validation": {
			err:  errors.New("company id is required"),
			want: http.StatusBadRequest,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			fx := newFixture()
			fx.provisioner.err = tc.err

			rec := fx.do(t, http.MethodPost, "/api/connectors", createBody)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tc.want, rec.Body)
			}
		})
	}
}

func TestHandleCreateConnector_PostProvisionWarning(t *testing.T) {
	t.Parallel()

	fx := newFixture()
	id := uuid.New()
	fx.provisioner.id = id
	fx.provisioner.err = &provision.PostProvisionError{
		ConnectorID: id,
		Err:         errors.New("initial ingestion refused"),
	}

	rec := fx.do(t, http.MethodPost, "/api/connectors", createBody)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body)
	}

	var resp createConnectorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.ConnectorID != id.String() {
		t.Fatalf("connector_id = %q, want %q", resp.ConnectorID, id)
	}
	if !strings.Contains(resp.Warning, "initial ingestion refused") {
		t.Fatalf("warning = %q, want the post-provision detail", resp.Warning)
	}
}

func TestHandleListConnectors(t *testing.T) {
	t.Parallel()

	fx := newFixture()
	fx.reader.connectors = []registry.Connector{
		{ID: uuid.New(), ConnectorType: "bingads", CompanyID: "c1", ExternalAccountID: "a1", CreatedAt: time.Now()},
		{ID: uuid.New(), ConnectorType: "mixpanel", CompanyID: "c2", ExternalAccountID: "a2", CreatedAt: time.Now()},
	}

	rec := fx.do(t, http.MethodGet, "/api/connectors", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var out []connectorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("connectors = %d, want 2", len(out))
	}
	if out[0].ConnectorType != "bingads" || out[1].ConnectorType != "mixpanel" {
		t.Fatalf("unexpected order: %+v", out)
	}
}

func TestHandleGetConnector(t *testing.T) {
	t.Parallel()

	fx := newFixture()
	id := uuid.New()
	cursor := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	fx.reader.connectors = []registry.Connector{
		{ID: id, ConnectorType: "marketo", CompanyID: "c1", ExternalAccountID: "m-1"},
	}
	fx.reader.subs = []registry.SubConnector{
		{ID: uuid.New(), ConnectorID: id, TableKind: "lead", DisplayName: "Leads", HistoricalCursor: &cursor},
	}
	fx.mappings.mappings = []tenantstore.Mapping{
		{ID: uuid.New(), CompanyID: "c1", ConnectorID: id, ConnectorType: "marketo",
			ExtraInformation: json.RawMessage(`{"munchkin_id":"123-ABC-456"}`)},
	}

	rec := fx.do(t, http.MethodGet, "/api/connectors/"+id.String(), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}

	var resp connectorDetailResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.ID != id.String() {
		t.Fatalf("id = %q, want %q", resp.ID, id)
	}
	if len(resp.SubConnectors) != 1 || resp.SubConnectors[0].TableKind != "lead" {
		t.Fatalf("sub-connectors = %+v", resp.SubConnectors)
	}
	if resp.SubConnectors[0].HistoricalCursor == nil || !resp.SubConnectors[0].HistoricalCursor.Equal(cursor) {
		t.Fatalf("historical cursor = %v, want %s", resp.SubConnectors[0].HistoricalCursor, cursor)
	}
	if !strings.Contains(string(resp.ExtraInformation), "munchkin_id") {
		t.Fatalf("extra_information = %s, want the mapping payload", resp.ExtraInformation)
	}
}

func TestHandleListCompanyConnectors(t *testing.T) {
	t.Parallel()

	fx := newFixture()
	fx.mappings.mappings = []tenantstore.Mapping{
		{ID: uuid.New(), CompanyID: "c1", ConnectorID: uuid.New(), ConnectorType: "bingads"},
		{ID: uuid.New(), CompanyID: "c1", ConnectorID: uuid.New(), ConnectorType: "mixpanel"},
		{ID: uuid.New(), CompanyID: "c2", ConnectorID: uuid.New(), ConnectorType: "marketo"},
	}

	rec := fx.do(t, http.MethodGet, "/api/companies/c1/connectors", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}

	var out []companyConnectorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("connectors = %d, want the 2 belonging to c1", len(out))
	}
	for _, c := range out {
		if c.ConnectorType == "marketo" {
			t.Fatal("another company's connector leaked into the listing")
		}
	}
}

func TestHandleGetConnector_NotFound(t *testing.T) {
	t.Parallel()

	fx := newFixture()
	rec := fx.do(t, http.MethodGet, "/api/connectors/"+uuid.NewString(), "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHandleGetConnector_BadID(t *testing.T) {
	t.Parallel()

	fx := newFixture()
	rec := fx.do(t, http.MethodGet, "/api/connectors/not-a-uuid", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleSync(t *testing.T) {
	t.Parallel()

	fx := newFixture()
	fx.syncer.report = scheduler.Report{
		StartedAt: time.Now(),
		Connectors: []scheduler.ConnectorOutcome{
			{ConnectorID: uuid.New(), ConnectorType: "bingads", Windows: []scheduler.WindowOutcome{
				{Window: registry.WindowHistorical, OK: true},
				{Window: registry.WindowFuture, OK: true},
			}},
		},
	}

	rec := fx.do(t, http.MethodPost, "/api/sync", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	if fx.syncer.runs != 1 {
		t.Fatalf("sync runs = %d, want 1", fx.syncer.runs)
	}

	var report scheduler.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}
	if len(report.Connectors) != 1 || report.Connectors[0].ConnectorType != "bingads" {
		t.Fatalf("report = %+v", report)
	}
}

func TestHandleSync_Failure(t *testing.T) {
	t.Parallel()

	fx := newFixture()
	fx.syncer.err = errors.New("registry down")

	rec := fx.do(t, http.MethodPost, "/api/sync", "")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
}
