// Package provider declares the external data sources Attributa can connect
// to. Each provider is described once by a Definition; the provisioning saga
// and the synchronization scheduler consume definitions generically instead
// of carrying per-provider glue.
package provider

import (
	"fmt"
	"strings"
)

// TableBinding describes one destination table a provider delivers into.
type TableBinding struct {
	// Kind discriminates the provider table schema (e.g. "campaign_performance_daily_report").
	Kind string
	// Label is the human-readable name shown in the dashboard.
	Label string
	// DocumentKey is the provider field the ingestion service upserts on.
	// It backs the unique index on the landing table, which is what makes
	// repeated ingestion of the same window safe.
	DocumentKey string
}

// Definition describes one supported provider.
type Definition interface {
	// Kind is the stable connector type identifier (lowercase).
	Kind() string
	DisplayName() string
	// Tables lists the sub-connector table bindings created at provisioning.
	Tables() []TableBinding
	// IngestionPath is the path segment the external ingestion service
	// routes this provider under.
	IngestionPath() string
}

// Registry holds all registered provider definitions in display order.
type Registry struct {
	definitions map[string]Definition
	order       []string
}

func NewRegistry() *Registry {
	return &Registry{definitions: make(map[string]Definition)}
}

func (r *Registry) Register(def Definition) error {
	kind := strings.ToLower(strings.TrimSpace(def.Kind()))
	if kind == "" {
		return fmt.Errorf("provider kind cannot be empty")
	}
	if _, exists := r.definitions[kind]; exists {
		return fmt.Errorf("provider kind %q already registered", kind)
	}
	r.definitions[kind] = def
	r.order = append(r.order, kind)
	return nil
}

func (r *Registry) Get(kind string) (Definition, bool) {
	def, ok := r.definitions[strings.ToLower(strings.TrimSpace(kind))]
	return def, ok
}

func (r *Registry) All() []Definition {
	defs := make([]Definition, 0, len(r.order))
	for _, kind := range r.order {
		defs = append(defs, r.definitions[kind])
	}
	return defs
}

// Default returns a registry with every provider Attributa ships.
func Default() *Registry {
	r := NewRegistry()
	for _, def := range []Definition{
		&BingAds{},
		&GoogleAds{},
		&Marketo{},
		&Mixpanel{},
	} {
		if err := r.Register(def); err != nil {
			// All shipped kinds are distinct constants; a clash is a programming error.
			panic(err)
		}
	}
	return r
}

// LandingTableName builds the destination table name for one provider table
// inside a tenant database. External account ids may contain characters that
// are not valid in identifiers, so they are folded to [a-z0-9_].
func LandingTableName(kind, externalAccountID, tableKind string) string {
	return fmt.Sprintf("%s_%s_%s", kind, foldIdentifier(externalAccountID), tableKind)
}

// LandingTableDDL returns the statements that create the destination table
// for one table binding. The ingestion service upserts whole provider
// documents; the unique index on DocumentKey is what keeps that idempotent.
func LandingTableDDL(kind, externalAccountID string, b TableBinding) []string {
	name := LandingTableName(kind, externalAccountID, b.Kind)
	return []string{
		fmt.Sprintf(
			"CREATE TABLE IF NOT EXISTS %s (id BIGSERIAL PRIMARY KEY, document JSONB NOT NULL, synced_at TIMESTAMPTZ NOT NULL DEFAULT now())",
			name,
		),
		fmt.Sprintf(
			"CREATE UNIQUE INDEX IF NOT EXISTS %s_document_key ON %s ((document->>'%s'))",
			name, name, b.DocumentKey,
		),
	}
}

// DestinationTableDDL returns the statements for every table binding of def.
func DestinationTableDDL(def Definition, externalAccountID string) []string {
	var out []string
	for _, b := range def.Tables() {
		out = append(out, LandingTableDDL(def.Kind(), externalAccountID, b)...)
	}
	return out
}

func foldIdentifier(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	folded := sb.String()
	if folded == "" {
		return "unknown"
	}
	return folded
}
