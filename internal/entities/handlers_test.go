package entities

import (
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"

	"github.com/rpattn/metacat/internal/domain"
	"github.com/rpattn/metacat/internal/secrets"
)

// fakeFinder resolves references from a fixed set of entities, keyed by id
// and fully-qualified name.
type fakeFinder struct {
	entities []domain.Entity
}

func (f *fakeFinder) ByReference(ctx context.Context, ref domain.EntityReference, include domain.Include) (domain.Entity, error) {
	for _, e := range f.entities {
		if e.ID == ref.ID || (ref.FullyQualifiedName != "" && e.FullyQualifiedName == ref.FullyQualifiedName) {
			if !include.Matches(e.Deleted) {
				return domain.Entity{}, domain.NewNotFound("entity %s not found", ref.FullyQualifiedName)
			}
			return e, nil
		}
	}
	return domain.Entity{}, domain.NewNotFound("entity %s not found", ref.FullyQualifiedName)
}

func dashboardService(name string) domain.Entity {
	return domain.Entity{
		ID:                 uuid.New(),
		Type:               TypeDashboardService,
		Name:               name,
		FullyQualifiedName: name,
		Version:            domain.InitialVersion,
		Fields: map[string]any{
			fieldServiceType: "metabase",
		},
	}
}

func chartUnder(service domain.Entity, name string, metrics []any) domain.Entity {
	return domain.Entity{
		ID:                 uuid.New(),
		Type:               TypeChart,
		Name:               name,
		FullyQualifiedName: domain.BuildFQN(service.Name, name),
		Version:            domain.InitialVersion,
		Fields: map[string]any{
			"metrics": metrics,
		},
	}
}

func TestChartFullyQualifiedName(t *testing.T) {
	service := dashboardService("superset_prod")
	h := NewChartHandler(&fakeFinder{entities: []domain.Entity{service}})

	chart := domain.Entity{
		Type: TypeChart,
		Name: "sales_by_region",
		Fields: map[string]any{
			fieldService: service.Reference(),
		},
	}
	if err := h.Prepare(context.Background(), &chart, false); err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	fqn, err := h.FullyQualifiedName(context.Background(), &chart)
	if err != nil {
		t.Fatalf("fqn failed: %v", err)
	}
	if fqn != "superset_prod.sales_by_region" {
		t.Errorf("fqn = %q, want superset_prod.sales_by_region", fqn)
	}
	if got := chart.Field(fieldServiceType); got != "metabase" {
		t.Errorf("serviceType = %v, want denormalized metabase", got)
	}
}

func TestChartRejectsWrongParentType(t *testing.T) {
	wrong := domain.Entity{
		ID:                 uuid.New(),
		Type:               TypeStorageService,
		Name:               "s3_prod",
		FullyQualifiedName: "s3_prod",
	}
	h := NewChartHandler(&fakeFinder{entities: []domain.Entity{wrong}})

	chart := domain.Entity{
		Type:   TypeChart,
		Name:   "c1",
		Fields: map[string]any{fieldService: wrong.Reference()},
	}
	err := h.Prepare(context.Background(), &chart, false)
	if !domain.IsValidation(err) {
		t.Errorf("expected validation error for wrong parent type, got %v", err)
	}
}

func TestChartRequiresServiceReference(t *testing.T) {
	h := NewChartHandler(&fakeFinder{})
	chart := domain.Entity{Type: TypeChart, Name: "c1"}
	if err := h.Prepare(context.Background(), &chart, false); !domain.IsValidation(err) {
		t.Errorf("expected validation error without service reference, got %v", err)
	}
}

func TestKPITargetMustMatchChartMetrics(t *testing.T) {
	service := dashboardService("svc")
	chart := chartUnder(service, "c1", []any{
		map[string]any{"name": "m1"},
	})
	h := NewKPIHandler(&fakeFinder{entities: []domain.Entity{service, chart}})

	kpi := domain.Entity{
		Type: TypeKPI,
		Name: "weekly_completion",
		Fields: map[string]any{
			"chart": chart.Reference(),
			"targetDefinition": []any{
				map[string]any{"name": "m2", "value": 80.0},
			},
		},
	}
	err := h.Prepare(context.Background(), &kpi, false)
	if !domain.IsValidation(err) {
		t.Fatalf("expected validation error for unknown metric, got %v", err)
	}
}

func TestKPIAcceptsMatchingTargets(t *testing.T) {
	service := dashboardService("svc")
	chart := chartUnder(service, "c1", []any{
		map[string]any{"name": "m1"},
		map[string]any{"name": "m2"},
	})
	h := NewKPIHandler(&fakeFinder{entities: []domain.Entity{service, chart}})

	kpi := domain.Entity{
		Type: TypeKPI,
		Name: "weekly_completion",
		Fields: map[string]any{
			"chart": chart.Reference(),
			"targetDefinition": []any{
				map[string]any{"name": "m1", "value": 80.0},
			},
		},
	}
	if err := h.Prepare(context.Background(), &kpi, false); err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	ref, ok := domain.RefField(kpi.Field("chart"))
	if !ok || ref.ID != chart.ID {
		t.Errorf("chart reference not resolved, got %v", kpi.Field("chart"))
	}
}

func TestKPIRejectsEmptyTargetsWhenChartHasMetrics(t *testing.T) {
	service := dashboardService("svc")
	chart := chartUnder(service, "c1", []any{map[string]any{"name": "m1"}})
	h := NewKPIHandler(&fakeFinder{entities: []domain.Entity{service, chart}})

	kpi := domain.Entity{
		Type:   TypeKPI,
		Name:   "k1",
		Fields: map[string]any{"chart": chart.Reference()},
	}
	if err := h.Prepare(context.Background(), &kpi, false); !domain.IsValidation(err) {
		t.Errorf("expected validation error for empty targets, got %v", err)
	}
}

func TestServicePrepareEncryptsConnection(t *testing.T) {
	backend, err := secrets.NewAESBackend("0123456789abcdef0123456789abcdef", slog.Default())
	if err != nil {
		t.Fatalf("backend: %v", err)
	}
	h := NewServiceHandler(TypeStorageService, backend)

	svc := domain.Entity{
		Type: TypeStorageService,
		Name: "s3_prod",
		Fields: map[string]any{
			fieldServiceType: "s3",
			fieldConnection: map[string]any{
				"awsAccessKeyId": "AKIA-cleartext",
				"awsRegion":      "eu-west-1",
			},
		},
	}
	if err := h.Prepare(context.Background(), &svc, false); err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	stored, ok := svc.Field(fieldConnection).(map[string]any)
	if !ok || !secrets.IsEncrypted(stored) {
		t.Fatalf("connection not encrypted: %v", svc.Field(fieldConnection))
	}

	clear, err := h.DecryptSecret(context.Background(), svc, fieldConnection, stored)
	if err != nil {
		t.Fatalf("decrypt failed: %v", err)
	}
	doc, ok := clear.(map[string]any)
	if !ok || doc["awsAccessKeyId"] != "AKIA-cleartext" {
		t.Errorf("decrypted connection mismatch: %v", clear)
	}
}

func TestServiceRequiresServiceType(t *testing.T) {
	backend, err := secrets.NewAESBackend("0123456789abcdef0123456789abcdef", slog.Default())
	if err != nil {
		t.Fatalf("backend: %v", err)
	}
	h := NewServiceHandler(TypeDashboardService, backend)

	svc := domain.Entity{Type: TypeDashboardService, Name: "d1"}
	if err := h.Prepare(context.Background(), &svc, false); !domain.IsValidation(err) {
		t.Errorf("expected validation error without serviceType, got %v", err)
	}
}
