// Package entities holds the per-entity-type handlers plugged into the
// generic catalog engine.
package entities

// Entity type names registered with the catalog.
const (
	TypeChart            = "chart"
	TypeKPI              = "kpi"
	TypeDashboardService = "dashboardService"
	TypeStorageService   = "storageService"
)

// Common field names shared across entity types.
const (
	fieldDisplayName = "displayName"
	fieldDescription = "description"
	fieldService     = "service"
	fieldServiceType = "serviceType"
)
