package escalation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/heirloom/interfaces"
	"github.com/ruteri/heirloom/storage"
)

// Repository persists entities, their audit events and owner registrations.
//
// Save is conditional: it fails with ErrConcurrentUpdate unless the stored
// entity still has e.Version, and on success increments e.Version.
type Repository interface {
	Save(ctx context.Context, e *Entity) error
	Load(ctx context.Context, id string) (*Entity, error)
	ListByStatus(ctx context.Context, status Status) ([]*Entity, error)
	AppendEvents(ctx context.Context, events ...Event) error
	Events(ctx context.Context, entityID string) ([]Event, error)

	SaveOwner(ctx context.Context, o *Owner) error
	LoadOwner(ctx context.Context, id interfaces.ContentID) (*Owner, error)
	DeleteOwner(ctx context.Context, id interfaces.ContentID) error
}

// StoreRepository keeps entities as JSON documents in a StorageBackend:
//
//	entities/<id>             entity record
//	index/<status>/<id>       status index marker
//	events/<id>/<time>-<eid>  event record
//	owners/<content id>       owner registration
//
// The index is a hint. Entities listed through it are reloaded and filtered by
// their actual status, so a stale marker left by an interrupted Save is harmless.
//
// Saves are serialized within a process. Backends offer no compare-and-swap,
// so two processes sharing a store can still race between the version check
// and the write.
type StoreRepository struct {
	backend interfaces.StorageBackend
	log     *slog.Logger

	mu sync.Mutex
}

func NewStoreRepository(backend interfaces.StorageBackend, log *slog.Logger) *StoreRepository {
	return &StoreRepository{backend: backend, log: log}
}

func (r *StoreRepository) Save(ctx context.Context, e *Entity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	previous, err := r.Load(ctx, e.ID)
	if err != nil && !errors.Is(err, interfaces.ErrEntityNotFound) {
		return err
	}
	if err := checkOverwrite(previous, e); err != nil {
		return err
	}

	next := *e
	next.Version = e.Version + 1
	data, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("failed to encode entity %s: %w", e.ID, err)
	}

	if err := r.backend.Put(ctx, entityKey(e.ID), data); err != nil {
		return fmt.Errorf("failed to save entity %s: %w", e.ID, err)
	}
	e.Version = next.Version
	if err := r.backend.Put(ctx, indexKey(e.Status(), e.ID), []byte{}); err != nil {
		return fmt.Errorf("failed to index entity %s: %w", e.ID, err)
	}

	if previous != nil && previous.Status() != e.Status() {
		if err := r.backend.Delete(ctx, indexKey(previous.Status(), e.ID)); err != nil {
			r.log.Warn("Failed to remove stale index entry",
				slog.String("entity_id", e.ID),
				slog.String("status", string(previous.Status())),
				"err", err)
		}
	}
	return nil
}

// checkOverwrite refuses writes based on an outdated copy. A stored terminal
// state and a recorded owner response are never replaced, whatever the version.
func checkOverwrite(previous, e *Entity) error {
	if previous == nil {
		if e.Version != 0 {
			return fmt.Errorf("%w: entity %s no longer exists", interfaces.ErrConcurrentUpdate, e.ID)
		}
		return nil
	}
	if previous.Version != e.Version {
		return fmt.Errorf("%w: entity %s is at version %d, update based on %d",
			interfaces.ErrConcurrentUpdate, e.ID, previous.Version, e.Version)
	}
	if previous.Terminal() {
		return fmt.Errorf("%w: entity %s is %s", interfaces.ErrStateConflict, e.ID, previous.Status())
	}
	if !previous.RespondedAt.IsZero() && e.RespondedAt.IsZero() {
		return fmt.Errorf("%w: entity %s would lose its owner response", interfaces.ErrConcurrentUpdate, e.ID)
	}
	return nil
}

func (r *StoreRepository) Load(ctx context.Context, id string) (*Entity, error) {
	if err := storage.ValidateKey(id); err != nil || strings.Contains(id, "/") {
		return nil, fmt.Errorf("%w: %q", interfaces.ErrEntityNotFound, id)
	}

	data, err := r.backend.Get(ctx, entityKey(id))
	if errors.Is(err, interfaces.ErrContentNotFound) {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrEntityNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load entity %s: %w", id, err)
	}

	var e Entity
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to decode entity %s: %w", id, err)
	}
	return &e, nil
}

func (r *StoreRepository) ListByStatus(ctx context.Context, status Status) ([]*Entity, error) {
	prefix := "index/" + string(status) + "/"
	keys, err := r.backend.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s entities: %w", status, err)
	}

	entities := make([]*Entity, 0, len(keys))
	for _, key := range keys {
		id := strings.TrimPrefix(key, prefix)
		e, err := r.Load(ctx, id)
		if errors.Is(err, interfaces.ErrEntityNotFound) {
			continue
		}
		if err != nil {
			r.log.Warn("Skipping unreadable entity", slog.String("entity_id", id), "err", err)
			continue
		}
		if e.Status() != status {
			continue
		}
		entities = append(entities, e)
	}
	return entities, nil
}

func (r *StoreRepository) AppendEvents(ctx context.Context, events ...Event) error {
	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
		key := storage.JoinKey("events", ev.EntityID, fmt.Sprintf("%020d-%s", ev.At.UnixNano(), ev.ID))
		if err := r.backend.Put(ctx, key, data); err != nil {
			return fmt.Errorf("failed to append event for %s: %w", ev.EntityID, err)
		}
	}
	return nil
}

// Events returns the events of an entity in the order they were recorded.
func (r *StoreRepository) Events(ctx context.Context, entityID string) ([]Event, error) {
	keys, err := r.backend.List(ctx, storage.JoinKey("events", entityID)+"/")
	if err != nil {
		return nil, fmt.Errorf("failed to list events for %s: %w", entityID, err)
	}

	events := make([]Event, 0, len(keys))
	for _, key := range keys {
		data, err := r.backend.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("failed to load event %s: %w", key, err)
		}
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("failed to decode event %s: %w", key, err)
		}
		events = append(events, ev)
	}
	return events, nil
}

// SaveOwner stores the registration of o.ContentID, replacing any previous one.
func (r *StoreRepository) SaveOwner(ctx context.Context, o *Owner) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("failed to encode owner of %s: %w", o.ContentID, err)
	}
	if err := r.backend.Put(ctx, ownerKey(o.ContentID), data); err != nil {
		return fmt.Errorf("failed to save owner of %s: %w", o.ContentID, err)
	}
	return nil
}

// LoadOwner returns the registration for id, or ErrContentNotFound.
func (r *StoreRepository) LoadOwner(ctx context.Context, id interfaces.ContentID) (*Owner, error) {
	data, err := r.backend.Get(ctx, ownerKey(id))
	if errors.Is(err, interfaces.ErrContentNotFound) {
		return nil, fmt.Errorf("%w: no owner registered for %s", interfaces.ErrContentNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load owner of %s: %w", id, err)
	}

	var o Owner
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("failed to decode owner of %s: %w", id, err)
	}
	return &o, nil
}

func (r *StoreRepository) DeleteOwner(ctx context.Context, id interfaces.ContentID) error {
	if err := r.backend.Delete(ctx, ownerKey(id)); err != nil {
		return fmt.Errorf("failed to delete owner of %s: %w", id, err)
	}
	return nil
}

// newEvent stamps an event with a time-ordered id so that events recorded at
// the same instant keep their order.
func newEvent(entityID string, typ EventType, at time.Time, detail map[string]any) Event {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return Event{
		ID:       id.String(),
		EntityID: entityID,
		At:       at,
		Type:     typ,
		Detail:   detail,
	}
}

func entityKey(id string) string {
	return storage.JoinKey("entities", id)
}

func ownerKey(id interfaces.ContentID) string {
	return storage.JoinKey("owners", id.String())
}

func indexKey(status Status, id string) string {
	return storage.JoinKey("index", string(status), id)
}
