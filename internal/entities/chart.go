package entities

import (
	"context"

	"github.com/rpattn/metacat/internal/catalog"
	"github.com/rpattn/metacat/internal/domain"
)

// ChartHandler implements the catalog capabilities for charts. A chart is
// contained by a dashboard service; the service reference is backed by a
// containment edge and excluded from the stored document.
type ChartHandler struct {
	finder catalog.Finder
	spec   catalog.TypeSpec
}

// NewChartHandler creates the chart handler.
func NewChartHandler(finder catalog.Finder) *ChartHandler {
	return &ChartHandler{
		finder: finder,
		spec: catalog.TypeSpec{
			Fields: []catalog.FieldSpec{
				{Name: fieldDisplayName, Minor: true},
				{Name: fieldDescription, Minor: true},
				{Name: "chartType"},
				{Name: "sourceUrl", Minor: true},
				{Name: "metrics"},
				{Name: fieldServiceType},
				{Name: fieldService, Reference: &catalog.ReferenceSpec{
					Relation:  domain.RelationshipContains,
					PeerType:  TypeDashboardService,
					Container: true,
				}},
			},
			Immutable: []string{fieldService},
		},
	}
}

func (h *ChartHandler) EntityType() string {
	return TypeChart
}

func (h *ChartHandler) Spec() catalog.TypeSpec {
	return h.spec
}

// FullyQualifiedName derives service.chart from the resolved service
// reference plus the local name.
func (h *ChartHandler) FullyQualifiedName(ctx context.Context, entity *domain.Entity) (string, error) {
	ref, ok := domain.RefField(entity.Field(fieldService))
	if !ok {
		return "", domain.NewValidation("chart %q has no service reference", entity.Name)
	}
	return domain.BuildFQN(ref.FullyQualifiedName, entity.Name), nil
}

// Prepare resolves the owning service and denormalizes its service type
// onto the chart.
func (h *ChartHandler) Prepare(ctx context.Context, entity *domain.Entity, update bool) error {
	ref, ok := domain.RefField(entity.Field(fieldService))
	if !ok {
		return domain.NewValidation("chart %q requires a service reference", entity.Name)
	}
	service, err := h.finder.ByReference(ctx, ref, domain.IncludeAll)
	if err != nil {
		return err
	}
	if service.Type != TypeDashboardService {
		return domain.NewValidation("chart %q must be contained by a %s, got %s",
			entity.Name, TypeDashboardService, service.Type)
	}
	entity.SetField(fieldService, service.Reference())
	if serviceType := service.Field(fieldServiceType); serviceType != nil {
		entity.SetField(fieldServiceType, serviceType)
	}
	return nil
}
