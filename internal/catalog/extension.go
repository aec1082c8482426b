package catalog

import (
	"context"
	"encoding/json"

	"github.com/rpattn/metacat/internal/domain"
)

// AppendExtension appends a timestamped side-record to an entity and emits
// a change event with the record listed under fieldName. The entity
// version is not bumped; extension records ride alongside the document.
func (eng *Engine) AppendExtension(ctx context.Context, entityType, fqn, extension, fieldName string, payload json.RawMessage, timestamp int64) (domain.ChangeEvent, error) {
	entity, err := eng.GetByName(ctx, entityType, fqn, domain.IncludeNonDeleted)
	if err != nil {
		return domain.ChangeEvent{}, err
	}

	record := domain.TimeSeriesRecord{
		EntityFQN: entity.FullyQualifiedName,
		Extension: extension,
		Timestamp: timestamp,
		Payload:   payload,
	}
	if err := eng.stores.TimeSeries.Insert(ctx, record); err != nil {
		return domain.ChangeEvent{}, err
	}

	change := domain.ChangeRecord{
		PreviousVersion: entity.Version,
		FieldsAdded: []domain.FieldChange{
			{Name: fieldName, NewValue: json.RawMessage(payload)},
		},
	}
	event := eng.newEvent(domain.EventEntityUpdated, entity, &change, entity.Version, entity.Version)
	eng.publish(ctx, event)
	return event, nil
}

// LatestExtension returns the payload with the maximum timestamp for
// (entity, extension), or NotFound when no record exists.
func (eng *Engine) LatestExtension(ctx context.Context, fqn, extension string) (json.RawMessage, error) {
	return eng.stores.TimeSeries.Latest(ctx, fqn, extension)
}

// ExtensionRange returns payloads between startTs and endTs inclusive,
// ordered per the caller's request.
func (eng *Engine) ExtensionRange(ctx context.Context, fqn, extension string, startTs, endTs int64, order domain.TimeSeriesOrder) ([]domain.TimeSeriesRecord, error) {
	return eng.stores.TimeSeries.Between(ctx, fqn, extension, startTs, endTs, order)
}

// DeleteExtensionAt removes the record at an exact timestamp and emits a
// change event carrying the deleted payload. Deleting an absent record
// returns NotFound, which cleanup call sites log and swallow.
func (eng *Engine) DeleteExtensionAt(ctx context.Context, entityType, fqn, extension, fieldName string, timestamp int64) (domain.ChangeEvent, error) {
	entity, err := eng.GetByName(ctx, entityType, fqn, domain.IncludeNonDeleted)
	if err != nil {
		return domain.ChangeEvent{}, err
	}

	payload, err := eng.stores.TimeSeries.AtTimestamp(ctx, fqn, extension, timestamp)
	if err != nil {
		return domain.ChangeEvent{}, err
	}
	if err := eng.stores.TimeSeries.DeleteAtTimestamp(ctx, fqn, extension, timestamp); err != nil {
		return domain.ChangeEvent{}, err
	}

	change := domain.ChangeRecord{
		PreviousVersion: entity.Version,
		FieldsDeleted: []domain.FieldChange{
			{Name: fieldName, OldValue: json.RawMessage(payload)},
		},
	}
	event := eng.newEvent(domain.EventEntityUpdated, entity, &change, entity.Version, entity.Version)
	eng.publish(ctx, event)
	return event, nil
}
