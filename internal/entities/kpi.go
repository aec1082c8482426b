package entities

import (
	"context"

	"github.com/rpattn/metacat/internal/catalog"
	"github.com/rpattn/metacat/internal/domain"
)

// KPIResultExtension keys the KPI-result time series attached to a KPI.
const KPIResultExtension = "kpi.kpiResult"

// KPIResultField names KPI results in change records.
const KPIResultField = "kpiResult"

// KPIHandler implements the catalog capabilities for KPIs. A KPI uses one
// chart; its target definition must name metrics that chart declares.
type KPIHandler struct {
	finder catalog.Finder
	spec   catalog.TypeSpec
}

// NewKPIHandler creates the KPI handler.
func NewKPIHandler(finder catalog.Finder) *KPIHandler {
	return &KPIHandler{
		finder: finder,
		spec: catalog.TypeSpec{
			Fields: []catalog.FieldSpec{
				{Name: fieldDisplayName, Minor: true},
				{Name: fieldDescription, Minor: true},
				{Name: "targetDefinition"},
				{Name: "startDate"},
				{Name: "endDate"},
				{Name: "metricType"},
				{Name: "chart", Reference: &catalog.ReferenceSpec{
					Relation: domain.RelationshipUses,
					PeerType: TypeChart,
				}},
			},
		},
	}
}

func (h *KPIHandler) EntityType() string {
	return TypeKPI
}

func (h *KPIHandler) Spec() catalog.TypeSpec {
	return h.spec
}

// FullyQualifiedName of a KPI is its local name; KPIs are top level.
func (h *KPIHandler) FullyQualifiedName(ctx context.Context, entity *domain.Entity) (string, error) {
	return entity.Name, nil
}

// Prepare resolves the referenced chart and validates the target
// definition against the chart's declared metrics.
func (h *KPIHandler) Prepare(ctx context.Context, entity *domain.Entity, update bool) error {
	ref, ok := domain.RefField(entity.Field("chart"))
	if !ok {
		return domain.NewValidation("kpi %q requires a chart reference", entity.Name)
	}
	chart, err := h.finder.ByReference(ctx, ref, domain.IncludeNonDeleted)
	if err != nil {
		return err
	}
	if chart.Type != TypeChart {
		return domain.NewValidation("kpi %q must reference a %s, got %s", entity.Name, TypeChart, chart.Type)
	}
	if err := validateTargetDefinition(entity, chart); err != nil {
		return err
	}
	entity.SetField("chart", chart.Reference())
	return nil
}

// validateTargetDefinition checks that every target names a metric defined
// on the referenced chart.
func validateTargetDefinition(kpi *domain.Entity, chart domain.Entity) error {
	targets, _ := kpi.Field("targetDefinition").([]any)
	metrics, _ := chart.Field("metrics").([]any)

	if len(targets) == 0 && len(metrics) > 0 {
		return domain.NewValidation("kpi %q target definition does not match chart metrics", kpi.Name)
	}

	known := make(map[string]struct{}, len(metrics))
	for _, metric := range metrics {
		if m, ok := metric.(map[string]any); ok {
			if name, ok := m["name"].(string); ok {
				known[name] = struct{}{}
			}
		}
	}
	for _, target := range targets {
		t, ok := target.(map[string]any)
		if !ok {
			return domain.NewValidation("kpi %q has a malformed target definition entry", kpi.Name)
		}
		name, _ := t["name"].(string)
		if _, defined := known[name]; !defined {
			return domain.NewValidation(
				"kpi target definition %q is not valid, metric not defined in corresponding chart", name)
		}
	}
	return nil
}
