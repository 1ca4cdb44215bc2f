package events

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/totem-events/backend/internal/apperr"
	"github.com/totem-events/backend/internal/models"
	"github.com/totem-events/backend/pkg/queue"
)

// memStore keeps events in memory and applies listing predicates with Query.Matches.
type memStore struct {
	mu     sync.Mutex
	events map[uuid.UUID]*models.Event
	order  []uuid.UUID
	totems int
}

func newMemStore() *memStore {
	return &memStore{events: make(map[uuid.UUID]*models.Event)}
}

func cloneEvent(e *models.Event) *models.Event {
	c := *e
	c.DisplayDays = slices.Clone(e.DisplayDays)
	c.Tags = slices.Clone(e.Tags)
	c.Cover = slices.Clone(e.Cover)
	c.Carousel = slices.Clone(e.Carousel)
	c.Video = slices.Clone(e.Video)
	c.Permissions = slices.Clone(e.Permissions)
	return &c
}

func (s *memStore) put(e *models.Event) *models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if _, ok := s.events[e.ID]; !ok {
		s.order = append(s.order, e.ID)
	}
	s.events[e.ID] = cloneEvent(e)
	return cloneEvent(e)
}

func (s *memStore) get(id uuid.UUID) *models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.events[id]; ok {
		return cloneEvent(e)
	}
	return nil
}

func (s *memStore) mutate(id uuid.UUID, fn func(e *models.Event) error) (*models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return nil, apperr.NotFound("event")
	}
	if err := fn(e); err != nil {
		return nil, err
	}
	return cloneEvent(e), nil
}

func (s *memStore) Create(_ context.Context, e *models.Event) (*models.Event, error) {
	e.CreatedAt = time.Now()
	return s.put(e), nil
}

func (s *memStore) GetByID(_ context.Context, id uuid.UUID) (*models.Event, error) {
	if e := s.get(id); e != nil {
		return e, nil
	}
	return nil, apperr.NotFound("event")
}

func (s *memStore) Update(_ context.Context, in *models.Event) (*models.Event, error) {
	return s.mutate(in.ID, func(e *models.Event) error {
		kept := *e
		*e = *cloneEvent(in)
		e.Status, e.Organizer, e.CreatedAt = kept.Status, kept.Organizer, kept.CreatedAt
		e.Cover, e.Carousel, e.Video, e.Permissions = kept.Cover, kept.Carousel, kept.Video, kept.Permissions
		return nil
	})
}

func (s *memStore) SetStatus(_ context.Context, id uuid.UUID, status models.Status) (*models.Event, error) {
	return s.mutate(id, func(e *models.Event) error {
		e.Status = status
		return nil
	})
}

func (s *memStore) TransferOrganizer(_ context.Context, id uuid.UUID, o models.Organizer) (*models.Event, error) {
	return s.mutate(id, func(e *models.Event) error {
		e.Organizer = o
		return nil
	})
}

func (s *memStore) Delete(_ context.Context, id uuid.UUID) (*models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return nil, apperr.NotFound("event")
	}
	delete(s.events, id)
	s.order = slices.DeleteFunc(s.order, func(x uuid.UUID) bool { return x == id })
	return e, nil
}

func (s *memStore) AddPermission(_ context.Context, id uuid.UUID, p models.Permission, now time.Time) (*models.Event, error) {
	return s.mutate(id, func(e *models.Event) error {
		if _, ok := e.ActivePermission(p.UserID, now); ok {
			return apperr.Duplicate("user already has access to this event")
		}
		e.Permissions = slices.DeleteFunc(e.Permissions, func(x models.Permission) bool { return x.UserID == p.UserID })
		e.Permissions = append(e.Permissions, p)
		return nil
	})
}

func (s *memStore) RemovePermission(_ context.Context, id, userID uuid.UUID) (*models.Event, error) {
	return s.mutate(id, func(e *models.Event) error {
		n := len(e.Permissions)
		e.Permissions = slices.DeleteFunc(e.Permissions, func(x models.Permission) bool { return x.UserID == userID })
		if len(e.Permissions) == n {
			return apperr.NotFound("permission")
		}
		return nil
	})
}

func (s *memStore) List(_ context.Context, q Query) ([]models.Event, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []models.Event
	for _, id := range s.order {
		if e := s.events[id]; q.Matches(e) {
			matched = append(matched, *cloneEvent(e))
		}
	}
	total := int64(len(matched))
	start := min(q.Offset(), len(matched))
	end := min(start+q.Limit(), len(matched))
	return matched[start:end], total, nil
}

func (s *memStore) Totem(_ context.Context, q TotemQuery) ([]models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totems++
	var out []models.Event
	for _, id := range s.order {
		if e := s.events[id]; q.Matches(e) {
			out = append(out, *cloneEvent(e))
		}
	}
	return out, nil
}

type memUsers struct {
	byID map[uuid.UUID]*models.User
}

func newMemUsers(users ...*models.User) *memUsers {
	m := &memUsers{byID: make(map[uuid.UUID]*models.User)}
	for _, u := range users {
		m.byID[u.ID] = u
	}
	return m
}

func (m *memUsers) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	if u, ok := m.byID[id]; ok {
		c := *u
		return &c, nil
	}
	return nil, apperr.NotFound("user")
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	for _, u := range m.byID {
		if strings.EqualFold(u.Email, email) {
			c := *u
			return &c, nil
		}
	}
	return nil, apperr.NotFound("user")
}

type recordingNotifier struct {
	payloads []queue.PermissionSharedPayload
	err      error
}

func (n *recordingNotifier) EnqueuePermissionShared(_ context.Context, p queue.PermissionSharedPayload) error {
	n.payloads = append(n.payloads, p)
	return n.err
}

type recordingBroadcaster struct {
	changed []uuid.UUID
}

func (b *recordingBroadcaster) FeedChanged(_ context.Context, id uuid.UUID) {
	b.changed = append(b.changed, id)
}

type memFeedCache struct {
	slots       map[string][]models.Event
	invalidated int
}

func newMemFeedCache() *memFeedCache {
	return &memFeedCache{slots: make(map[string][]models.Event)}
}

func (c *memFeedCache) Get(_ context.Context, key string) ([]models.Event, bool) {
	list, ok := c.slots[key]
	return slices.Clone(list), ok
}

func (c *memFeedCache) Set(_ context.Context, key string, events []models.Event) {
	c.slots[key] = slices.Clone(events)
}

func (c *memFeedCache) Invalidate(context.Context) {
	c.slots = make(map[string][]models.Event)
	c.invalidated++
}

type recordingRemover struct {
	removed []*models.Event
}

func (r *recordingRemover) RemoveAll(_ context.Context, e *models.Event) {
	r.removed = append(r.removed, e)
}

var errQueueDown = errors.New("queue down")
