package entities

import (
	"context"

	"github.com/rpattn/metacat/internal/catalog"
	"github.com/rpattn/metacat/internal/domain"
	"github.com/rpattn/metacat/internal/secrets"
)

const fieldConnection = "connection"

// ServiceHandler implements the catalog capabilities for service entities
// (dashboard services, storage services, ...). The connection
// configuration is a secrets-bearing sub-document: encrypted during
// prepare, decrypted only transiently for comparison, and cleaned up from
// the secrets backend on hard delete.
type ServiceHandler struct {
	entityType string
	backend    secrets.Backend
	spec       catalog.TypeSpec
}

// NewServiceHandler creates a handler for one concrete service entity
// type.
func NewServiceHandler(entityType string, backend secrets.Backend) *ServiceHandler {
	return &ServiceHandler{
		entityType: entityType,
		backend:    backend,
		spec: catalog.TypeSpec{
			Fields: []catalog.FieldSpec{
				{Name: fieldDisplayName, Minor: true},
				{Name: fieldDescription, Minor: true},
				{Name: fieldServiceType},
				{Name: fieldConnection, Secret: true},
			},
			Immutable: []string{fieldServiceType},
		},
	}
}

func (h *ServiceHandler) EntityType() string {
	return h.entityType
}

func (h *ServiceHandler) Spec() catalog.TypeSpec {
	return h.spec
}

// FullyQualifiedName of a service is its local name; services are roots of
// the containment hierarchy.
func (h *ServiceHandler) FullyQualifiedName(ctx context.Context, entity *domain.Entity) (string, error) {
	return entity.Name, nil
}

// Prepare encrypts the connection configuration before it can reach the
// document store. A secrets backend failure is fatal to the mutation.
func (h *ServiceHandler) Prepare(ctx context.Context, entity *domain.Entity, update bool) error {
	discriminator, err := h.discriminator(*entity)
	if err != nil {
		return err
	}
	connection := entity.Field(fieldConnection)
	if connection == nil {
		return nil
	}
	doc, ok := connection.(map[string]any)
	if !ok {
		return domain.NewValidation("service %q connection must be an object", entity.Name)
	}
	encrypted, err := h.backend.Encrypt(ctx, doc, discriminator, entity.Name)
	if err != nil {
		return err
	}
	entity.SetField(fieldConnection, encrypted)
	return nil
}

// DecryptSecret returns the transient cleartext connection used for
// structural comparison during diffing.
func (h *ServiceHandler) DecryptSecret(ctx context.Context, entity domain.Entity, field string, value any) (any, error) {
	doc, ok := value.(map[string]any)
	if !ok {
		return nil, domain.NewValidation("service %q connection must be an object", entity.Name)
	}
	discriminator, err := h.discriminator(entity)
	if err != nil {
		return nil, err
	}
	return h.backend.Decrypt(ctx, doc, discriminator, entity.Name)
}

// PostDelete removes secret material from the backend, best effort.
func (h *ServiceHandler) PostDelete(ctx context.Context, entity domain.Entity) error {
	discriminator, err := h.discriminator(entity)
	if err != nil {
		return err
	}
	return h.backend.Delete(ctx, discriminator, entity.Name)
}

func (h *ServiceHandler) discriminator(entity domain.Entity) (string, error) {
	serviceType, _ := entity.Field(fieldServiceType).(string)
	if serviceType == "" {
		return "", domain.NewValidation("service %q requires a serviceType", entity.Name)
	}
	return serviceType, nil
}
