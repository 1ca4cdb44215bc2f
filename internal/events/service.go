// Package events manages totem events: CRUD, sharing, listing and the totem feed.
package events

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/totem-events/backend/internal/apperr"
	"github.com/totem-events/backend/internal/clock"
	"github.com/totem-events/backend/internal/models"
	"github.com/totem-events/backend/internal/permissions"
	"github.com/totem-events/backend/pkg/metrics"
	"github.com/totem-events/backend/pkg/queue"
)

// Store is the event persistence used by Service. *Repository implements it.
type Store interface {
	Create(ctx context.Context, e *models.Event) (*models.Event, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
	Update(ctx context.Context, e *models.Event) (*models.Event, error)
	SetStatus(ctx context.Context, id uuid.UUID, status models.Status) (*models.Event, error)
	TransferOrganizer(ctx context.Context, id uuid.UUID, organizer models.Organizer) (*models.Event, error)
	Delete(ctx context.Context, id uuid.UUID) (*models.Event, error)
	AddPermission(ctx context.Context, id uuid.UUID, p models.Permission, now time.Time) (*models.Event, error)
	RemovePermission(ctx context.Context, id, userID uuid.UUID) (*models.Event, error)
	List(ctx context.Context, q Query) ([]models.Event, int64, error)
	Totem(ctx context.Context, q TotemQuery) ([]models.Event, error)
}

// UserDirectory resolves share targets and new organizers.
type UserDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// ShareNotifier hands share notifications to the mail service.
type ShareNotifier interface {
	EnqueuePermissionShared(ctx context.Context, payload queue.PermissionSharedPayload) error
}

// FeedBroadcaster tells connected totems to refresh.
type FeedBroadcaster interface {
	FeedChanged(ctx context.Context, eventID uuid.UUID)
}

// MediaRemover deletes the stored files of a removed event.
type MediaRemover interface {
	RemoveAll(ctx context.Context, event *models.Event)
}

// Page is one page of a listing.
type Page struct {
	Items []models.Event `json:"items"`
	Total int64          `json:"total"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
	Pages int            `json:"pages"`
}

// Service implements the event operations. Every mutation is gated by the permission evaluator.
type Service struct {
	store       Store
	users       UserDirectory
	clock       clock.Clock
	loc         *time.Location
	validate    *validator.Validate
	logger      *zap.Logger
	notifier    ShareNotifier
	cache       FeedCache
	broadcaster FeedBroadcaster
	media       MediaRemover
}

// NewService creates the event service. loc is the totem time zone (nil means UTC).
func NewService(store Store, users UserDirectory, clk clock.Clock, loc *time.Location, logger *zap.Logger) *Service {
	if clk == nil {
		clk = clock.NewSystem()
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, users: users, clock: clk, loc: loc, validate: NewValidator(), logger: logger}
}

// SetNotifier sets the optional share notification queue.
func (s *Service) SetNotifier(n ShareNotifier) { s.notifier = n }

// SetFeedCache sets the optional totem feed cache.
func (s *Service) SetFeedCache(c FeedCache) { s.cache = c }

// SetBroadcaster sets the optional totem change feed.
func (s *Service) SetBroadcaster(b FeedBroadcaster) { s.broadcaster = b }

// SetMediaRemover sets the component deleting media files of removed events.
func (s *Service) SetMediaRemover(m MediaRemover) { s.media = m }

// Create stores a new event owned by actor. Events start inactive: media can only be attached to
// an existing event, so an event cannot be created active.
func (s *Service) Create(ctx context.Context, actor *models.Actor, in EventInput) (*models.Event, error) {
	if actor == nil {
		return nil, apperr.Unauthorized(permissions.ReasonAnonymous)
	}
	e, err := s.buildEvent(in)
	if err != nil {
		return nil, err
	}
	if in.Status != "" {
		if st, _ := ParseStatus(in.Status); st == models.StatusActive {
			return nil, apperr.Validation("status", "an active event needs cover, carousel and video media; create it inactive and upload media first")
		}
	}
	e.Status = models.StatusInactive
	e.Organizer = models.Organizer{ID: actor.ID, Name: actor.Name}

	created, err := s.store.Create(ctx, e)
	if err != nil {
		return nil, err
	}
	s.logger.Info("event created", zap.String("event_id", created.ID.String()), zap.String("organizer_id", actor.ID.String()))
	return created, nil
}

// Get returns one event. Inactive events are only visible to those who may edit them.
func (s *Service) Get(ctx context.Context, actor *models.Actor, id uuid.UUID) (*models.Event, error) {
	e, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	canEdit := permissions.Evaluate(e, actor, false, s.clock.Now()).Allowed
	if e.Status != models.StatusActive && !canEdit {
		return nil, apperr.NotFound("event")
	}
	if !canEdit {
		e.Permissions = nil
	}
	return e, nil
}

// Update changes the descriptive fields of an event.
func (s *Service) Update(ctx context.Context, actor *models.Actor, id uuid.UUID, patch EventPatch) (*models.Event, error) {
	current, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := permissions.Require(current, actor, false, s.clock.Now()); err != nil {
		return nil, err
	}
	in, err := patch.apply(inputFromEvent(current))
	if err != nil {
		return nil, err
	}
	e, err := s.buildEvent(in)
	if err != nil {
		return nil, err
	}
	e.ID = id

	updated, err := s.store.Update(ctx, e)
	if err != nil {
		return nil, err
	}
	s.logger.Info("event updated", zap.String("event_id", id.String()), zap.String("user_id", actor.ID.String()))
	s.EventChanged(ctx, id)
	return updated, nil
}

// SetStatus activates or deactivates an event. Owner only.
func (s *Service) SetStatus(ctx context.Context, actor *models.Actor, id uuid.UUID, raw string) (*models.Event, error) {
	status, ok := ParseStatus(raw)
	if !ok {
		return nil, apperr.Validationf("status", "%q is not a status (use active or inactive)", raw)
	}
	current, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := permissions.Require(current, actor, true, s.clock.Now()); err != nil {
		return nil, err
	}
	if status == models.StatusActive {
		if missing := current.MissingVariants(); len(missing) > 0 {
			names := make([]string, len(missing))
			for i, v := range missing {
				names[i] = string(v)
			}
			return nil, apperr.Validationf("status", "cannot activate without %s media", strings.Join(names, ", "))
		}
	}

	updated, err := s.store.SetStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	s.logger.Info("event status changed", zap.String("event_id", id.String()), zap.String("status", string(status)))
	s.EventChanged(ctx, id)
	return updated, nil
}

// Delete removes an event and its media files. Owner only.
func (s *Service) Delete(ctx context.Context, actor *models.Actor, id uuid.UUID) error {
	current, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := permissions.Require(current, actor, true, s.clock.Now()); err != nil {
		return err
	}
	deleted, err := s.store.Delete(ctx, id)
	if err != nil {
		return err
	}
	if s.media != nil {
		s.media.RemoveAll(ctx, deleted)
	}
	s.logger.Info("event deleted", zap.String("event_id", id.String()), zap.Int("media", len(deleted.AllMedia())))
	s.EventChanged(ctx, id)
	return nil
}

// Share grants edit access on an event to the user with in.Email. Owner only.
func (s *Service) Share(ctx context.Context, actor *models.Actor, id uuid.UUID, in ShareInput) (*models.Permission, error) {
	if actor == nil {
		return nil, apperr.Unauthorized(permissions.ReasonAnonymous)
	}
	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}
	email := strings.TrimSpace(in.Email)
	if strings.EqualFold(email, actor.Email) {
		return nil, apperr.Validation("email", "cannot share an event with yourself")
	}
	now := s.clock.Now()
	if in.ExpiresAt != nil && !in.ExpiresAt.After(now) {
		return nil, apperr.Validation("expires_at", "must be in the future")
	}

	event, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := permissions.Require(event, actor, true, now); err != nil {
		return nil, err
	}
	target, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if target.ID == actor.ID {
		return nil, apperr.Validation("email", "cannot share an event with yourself")
	}
	if target.ID == event.Organizer.ID {
		return nil, apperr.Validation("email", "user already owns this event")
	}

	p := models.Permission{
		UserID:    target.ID,
		UserName:  target.Name,
		UserEmail: target.Email,
		Kind:      models.PermissionEdit,
		GrantedBy: actor.ID,
		GrantedAt: now,
	}
	if in.ExpiresAt != nil {
		exp := in.ExpiresAt.UTC()
		p.ExpiresAt = &exp
	}
	if _, err := s.store.AddPermission(ctx, id, p, now); err != nil {
		return nil, err
	}
	s.logger.Info("event shared",
		zap.String("event_id", id.String()),
		zap.String("user_id", target.ID.String()),
		zap.String("granted_by", actor.ID.String()),
	)
	s.notifyShare(ctx, event, p, actor)
	s.EventChanged(ctx, id)
	return &p, nil
}

// Revoke removes the grants of userID. Owner only.
func (s *Service) Revoke(ctx context.Context, actor *models.Actor, id, userID uuid.UUID) error {
	event, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := permissions.Require(event, actor, true, s.clock.Now()); err != nil {
		return err
	}
	if _, err := s.store.RemovePermission(ctx, id, userID); err != nil {
		return err
	}
	s.logger.Info("event permission revoked", zap.String("event_id", id.String()), zap.String("user_id", userID.String()))
	s.EventChanged(ctx, id)
	return nil
}

// ListPermissions returns the grants of an event, expired ones included. Owner only.
func (s *Service) ListPermissions(ctx context.Context, actor *models.Actor, id uuid.UUID) ([]models.Permission, error) {
	event, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := permissions.Require(event, actor, true, s.clock.Now()); err != nil {
		return nil, err
	}
	if event.Permissions == nil {
		return []models.Permission{}, nil
	}
	return event.Permissions, nil
}

// TransferOrganizer hands an event to another user. Administrators only.
func (s *Service) TransferOrganizer(ctx context.Context, actor *models.Actor, id, userID uuid.UUID) (*models.Event, error) {
	if actor == nil {
		return nil, apperr.Unauthorized(permissions.ReasonAnonymous)
	}
	if !actor.Admin {
		return nil, apperr.Unauthorized("administrator only")
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	updated, err := s.store.TransferOrganizer(ctx, id, models.Organizer{ID: user.ID, Name: user.Name})
	if err != nil {
		return nil, err
	}
	s.logger.Info("event organizer transferred",
		zap.String("event_id", id.String()),
		zap.String("organizer_id", user.ID.String()),
		zap.String("admin_id", actor.ID.String()),
	)
	s.EventChanged(ctx, id)
	return updated, nil
}

// List returns one page of events visible to actor.
func (s *Service) List(ctx context.Context, actor *models.Actor, params ListParams) (*Page, error) {
	now := s.clock.Now()
	q, err := BuildQuery(params, actor, now)
	if err != nil {
		return nil, err
	}
	items, total, err := s.store.List(ctx, q)
	if err != nil {
		return nil, err
	}
	for i := range items {
		if !permissions.Evaluate(&items[i], actor, false, now).Allowed {
			items[i].Permissions = nil
		}
	}
	pages := int((total + int64(q.Limit()) - 1) / int64(q.Limit()))
	return &Page{Items: items, Total: total, Page: q.Page(), Limit: q.Limit(), Pages: pages}, nil
}

// Totem returns the events a totem shows now, sorted by start.
func (s *Service) Totem(ctx context.Context) ([]models.Event, error) {
	q := NewTotemQuery(s.clock.Now(), s.loc)
	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, q.CacheKey()); ok {
			metrics.TotemFeedRequests.WithLabelValues("cache").Inc()
			// Exhibition windows may have closed since the slot was cached.
			return slices.DeleteFunc(cached, func(e models.Event) bool { return !q.Matches(&e) }), nil
		}
	}

	list, err := s.store.Totem(ctx, q)
	if err != nil {
		return nil, err
	}
	metrics.TotemFeedRequests.WithLabelValues("db").Inc()
	for i := range list {
		list[i].Permissions = nil
	}
	if s.cache != nil {
		s.cache.Set(ctx, q.CacheKey(), list)
	}
	return list, nil
}

// EventChanged drops cached totem feeds and notifies connected totems.
func (s *Service) EventChanged(ctx context.Context, eventID uuid.UUID) {
	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}
	if s.broadcaster != nil {
		s.broadcaster.FeedChanged(ctx, eventID)
	}
}

func (s *Service) notifyShare(ctx context.Context, event *models.Event, p models.Permission, actor *models.Actor) {
	if s.notifier == nil {
		return
	}
	err := s.notifier.EnqueuePermissionShared(ctx, queue.PermissionSharedPayload{
		EventID:        event.ID,
		EventTitle:     event.Title,
		RecipientID:    p.UserID,
		RecipientEmail: p.UserEmail,
		RecipientName:  p.UserName,
		GrantedByName:  actor.Name,
		ExpiresAt:      p.ExpiresAt,
	})
	if err != nil {
		s.logger.Warn("share notification not queued", zap.String("event_id", event.ID.String()), zap.Error(err))
	}
}

// buildEvent validates in and normalizes days and tags.
func (s *Service) buildEvent(in EventInput) (*models.Event, error) {
	in.Tags = cleanTags(in.Tags)
	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}
	days := make([]string, 0, len(in.DisplayDays))
	for _, d := range in.DisplayDays {
		if name, _ := NormalizeDay(d); !slices.Contains(days, name) {
			days = append(days, name)
		}
	}
	return &models.Event{
		Title:            strings.TrimSpace(in.Title),
		Description:      in.Description,
		Location:         strings.TrimSpace(in.Location),
		StartsAt:         in.StartsAt,
		EndsAt:           in.EndsAt,
		ExhibitStartsAt:  in.ExhibitStartsAt,
		ExhibitEndsAt:    in.ExhibitEndsAt,
		DisplayDays:      days,
		DisplayMorning:   in.DisplayMorning,
		DisplayAfternoon: in.DisplayAfternoon,
		DisplayNight:     in.DisplayNight,
		Link:             in.Link,
		Category:         strings.TrimSpace(in.Category),
		Tags:             in.Tags,
		Color:            in.Color,
		Animation:        in.Animation,
	}, nil
}

func inputFromEvent(e *models.Event) EventInput {
	return EventInput{
		Title:            e.Title,
		Description:      e.Description,
		Location:         e.Location,
		StartsAt:         e.StartsAt,
		EndsAt:           e.EndsAt,
		ExhibitStartsAt:  e.ExhibitStartsAt,
		ExhibitEndsAt:    e.ExhibitEndsAt,
		DisplayDays:      slices.Clone(e.DisplayDays),
		DisplayMorning:   e.DisplayMorning,
		DisplayAfternoon: e.DisplayAfternoon,
		DisplayNight:     e.DisplayNight,
		Link:             e.Link,
		Category:         e.Category,
		Tags:             slices.Clone(e.Tags),
		Color:            e.Color,
		Animation:        e.Animation,
	}
}

// apply overlays the set fields of p on in.
func (p EventPatch) apply(in EventInput) (EventInput, error) {
	setString(&in.Title, p.Title)
	setString(&in.Description, p.Description)
	setString(&in.Location, p.Location)
	setString(&in.Link, p.Link)
	setString(&in.Category, p.Category)
	setString(&in.Color, p.Color)
	setString(&in.Animation, p.Animation)
	setTime(&in.StartsAt, p.StartsAt)
	setTime(&in.EndsAt, p.EndsAt)
	setTime(&in.ExhibitStartsAt, p.ExhibitStartsAt)
	setTime(&in.ExhibitEndsAt, p.ExhibitEndsAt)
	setBool(&in.DisplayMorning, p.DisplayMorning)
	setBool(&in.DisplayAfternoon, p.DisplayAfternoon)
	setBool(&in.DisplayNight, p.DisplayNight)
	if p.DisplayDays != nil {
		if len(p.DisplayDays) == 0 {
			return in, apperr.Validation("display_days", "must have at least 1 item(s)")
		}
		in.DisplayDays = p.DisplayDays
	}
	if p.Tags != nil {
		if len(cleanTags(p.Tags)) == 0 {
			return in, apperr.Validation("tags", "tag list is empty")
		}
		in.Tags = p.Tags
	}
	return in, nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setTime(dst *time.Time, v *time.Time) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

// cleanTags trims tags and drops blanks and duplicates.
func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" && !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}

