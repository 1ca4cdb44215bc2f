package events

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/totem-events/backend/internal/apperr"
	"github.com/totem-events/backend/internal/models"
)

const eventColumns = `id, title, description, location, starts_at, ends_at, exhibit_starts_at, exhibit_ends_at,
	display_days, display_morning, display_afternoon, display_night, link, category, tags, color, animation,
	status, organizer_id, organizer_name, media_cover, media_carousel, media_video, permissions, created_at, updated_at`

// Constraint names from the schema migration.
const (
	constraintActiveMedia = "events_active_media_check"
	constraintDates       = "events_dates_check"
)

// Repository handles event persistence. Media and permission lists are JSONB arrays changed only
// by single conditional statements.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an event repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new event with empty media and permission lists.
func (r *Repository) Create(ctx context.Context, e *models.Event) (*models.Event, error) {
	const q = `INSERT INTO events (title, description, location, starts_at, ends_at, exhibit_starts_at, exhibit_ends_at,
			display_days, display_morning, display_afternoon, display_night, link, category, tags, color, animation,
			status, organizer_id, organizer_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		RETURNING ` + eventColumns
	row := r.pool.QueryRow(ctx, q, e.Title, e.Description, e.Location, e.StartsAt, e.EndsAt, e.ExhibitStartsAt, e.ExhibitEndsAt,
		joinDays(e.DisplayDays), e.DisplayMorning, e.DisplayAfternoon, e.DisplayNight, e.Link, e.Category, e.Tags, e.Color, e.Animation,
		string(e.Status), e.Organizer.ID, e.Organizer.Name)
	return scanWrite(row, "create event", uuid.Nil)
}

// GetByID returns an event by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	const q = `SELECT ` + eventColumns + ` FROM events WHERE id = $1`
	e, err := scanEvent(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("event")
	}
	if err != nil {
		return nil, apperr.Internal("load event", err)
	}
	return e, nil
}

// Update writes the descriptive fields of e. Status, organizer, media and permissions are untouched.
func (r *Repository) Update(ctx context.Context, e *models.Event) (*models.Event, error) {
	const q = `UPDATE events SET title = $2, description = $3, location = $4, starts_at = $5, ends_at = $6,
			exhibit_starts_at = $7, exhibit_ends_at = $8, display_days = $9, display_morning = $10,
			display_afternoon = $11, display_night = $12, link = $13, category = $14, tags = $15, color = $16,
			animation = $17, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + eventColumns
	row := r.pool.QueryRow(ctx, q, e.ID, e.Title, e.Description, e.Location, e.StartsAt, e.EndsAt,
		e.ExhibitStartsAt, e.ExhibitEndsAt, joinDays(e.DisplayDays), e.DisplayMorning,
		e.DisplayAfternoon, e.DisplayNight, e.Link, e.Category, e.Tags, e.Color, e.Animation)
	return scanWrite(row, "update event", e.ID)
}

// SetStatus changes the status. Activation without media in every variant is rejected by the schema.
func (r *Repository) SetStatus(ctx context.Context, id uuid.UUID, status models.Status) (*models.Event, error) {
	const q = `UPDATE events SET status = $2, updated_at = NOW() WHERE id = $1 RETURNING ` + eventColumns
	return scanWrite(r.pool.QueryRow(ctx, q, id, string(status)), "set event status", id)
}

// TransferOrganizer replaces the organizer reference.
func (r *Repository) TransferOrganizer(ctx context.Context, id uuid.UUID, organizer models.Organizer) (*models.Event, error) {
	const q = `UPDATE events SET organizer_id = $2, organizer_name = $3, updated_at = NOW() WHERE id = $1 RETURNING ` + eventColumns
	return scanWrite(r.pool.QueryRow(ctx, q, id, organizer.ID, organizer.Name), "transfer organizer", id)
}

// Delete removes the event and returns it as it was.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	const q = `DELETE FROM events WHERE id = $1 RETURNING ` + eventColumns
	e, err := scanEvent(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("event")
	}
	if err != nil {
		return nil, apperr.Internal("delete event", err)
	}
	return e, nil
}

// AppendMedia appends items to the variant list in one statement.
func (r *Repository) AppendMedia(ctx context.Context, eventID uuid.UUID, variant models.Variant, items []models.Media) (*models.Event, error) {
	col, err := mediaColumn(variant)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(items)
	if err != nil {
		return nil, apperr.Internal("encode media", err)
	}
	q := `UPDATE events SET ` + col + ` = ` + col + ` || $2::jsonb, updated_at = NOW()
		WHERE id = $1 RETURNING ` + eventColumns
	return scanWrite(r.pool.QueryRow(ctx, q, eventID, string(body)), "append media", eventID)
}

// RemoveMedia removes item from the variant list. Legacy entries without an id are matched by link.
// match is never NULL, so entries that do not match are always kept.
func (r *Repository) RemoveMedia(ctx context.Context, eventID uuid.UUID, variant models.Variant, item models.Media) (*models.Event, error) {
	col, err := mediaColumn(variant)
	if err != nil {
		return nil, err
	}
	const match = `COALESCE(m->>'id' = $2 OR (m->>'id' IS NULL AND m->>'link' = $3), false)`
	q := `UPDATE events SET ` + col + ` = (
			SELECT COALESCE(jsonb_agg(m ORDER BY ord), '[]'::jsonb)
			FROM jsonb_array_elements(` + col + `) WITH ORDINALITY AS x(m, ord)
			WHERE NOT ` + match + `),
			updated_at = NOW()
		WHERE id = $1 AND EXISTS (SELECT 1 FROM jsonb_array_elements(` + col + `) AS m WHERE ` + match + `)
		RETURNING ` + eventColumns
	e, err := scanEvent(r.pool.QueryRow(ctx, q, eventID, item.ID.String(), item.URL))
	if errors.Is(err, pgx.ErrNoRows) {
		if _, err := r.GetByID(ctx, eventID); err != nil {
			return nil, err
		}
		return nil, apperr.NotFound("media")
	}
	if err != nil {
		return nil, mapWriteError("remove media", err)
	}
	return e, nil
}

// AddPermission appends p unless the user already holds an active edit grant. Expired grants of
// the same user are dropped in the same statement.
func (r *Repository) AddPermission(ctx context.Context, eventID uuid.UUID, p models.Permission, now time.Time) (*models.Event, error) {
	body, err := json.Marshal([]models.Permission{p})
	if err != nil {
		return nil, apperr.Internal("encode permission", err)
	}
	const q = `UPDATE events SET permissions = (
			SELECT COALESCE(jsonb_agg(x ORDER BY ord), '[]'::jsonb)
			FROM jsonb_array_elements(permissions) WITH ORDINALITY AS t(x, ord)
			WHERE x->>'user_id' <> $2) || $3::jsonb,
			updated_at = NOW()
		WHERE id = $1 AND NOT EXISTS (
			SELECT 1 FROM jsonb_array_elements(permissions) AS x
			WHERE x->>'user_id' = $2 AND x->>'kind' = 'edit'
			AND (x->>'expires_at' IS NULL OR (x->>'expires_at')::timestamptz > $4))
		RETURNING ` + eventColumns
	e, err := scanEvent(r.pool.QueryRow(ctx, q, eventID, p.UserID.String(), string(body), now))
	if errors.Is(err, pgx.ErrNoRows) {
		if _, err := r.GetByID(ctx, eventID); err != nil {
			return nil, err
		}
		return nil, apperr.Duplicate("user already holds an active permission for this event")
	}
	if err != nil {
		return nil, mapWriteError("add permission", err)
	}
	return e, nil
}

// RemovePermission drops every grant of userID.
func (r *Repository) RemovePermission(ctx context.Context, eventID, userID uuid.UUID) (*models.Event, error) {
	const q = `UPDATE events SET permissions = (
			SELECT COALESCE(jsonb_agg(x ORDER BY ord), '[]'::jsonb)
			FROM jsonb_array_elements(permissions) WITH ORDINALITY AS t(x, ord)
			WHERE x->>'user_id' <> $2),
			updated_at = NOW()
		WHERE id = $1 AND EXISTS (SELECT 1 FROM jsonb_array_elements(permissions) AS x WHERE x->>'user_id' = $2)
		RETURNING ` + eventColumns
	e, err := scanEvent(r.pool.QueryRow(ctx, q, eventID, userID.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		if _, err := r.GetByID(ctx, eventID); err != nil {
			return nil, err
		}
		return nil, apperr.NotFound("permission")
	}
	if err != nil {
		return nil, mapWriteError("remove permission", err)
	}
	return e, nil
}

// List returns one page of events matching q, sorted by start, and the total match count.
func (r *Repository) List(ctx context.Context, q Query) ([]models.Event, int64, error) {
	where, args := q.Where()

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM events `+where, args...).Scan(&total); err != nil {
		return nil, 0, apperr.Internal("count events", err)
	}

	n := len(args)
	sql := `SELECT ` + eventColumns + ` FROM events ` + where +
		` ORDER BY starts_at ASC, id ASC LIMIT $` + strconv.Itoa(n+1) + ` OFFSET $` + strconv.Itoa(n+2)
	rows, err := r.pool.Query(ctx, sql, append(args, q.Limit(), q.Offset())...)
	if err != nil {
		return nil, 0, apperr.Internal("list events", err)
	}
	list, err := collectEvents(rows)
	if err != nil {
		return nil, 0, apperr.Internal("list events", err)
	}
	return list, total, nil
}

// Totem returns every event a totem shows for q, sorted by start.
func (r *Repository) Totem(ctx context.Context, q TotemQuery) ([]models.Event, error) {
	where, args := q.Where()
	rows, err := r.pool.Query(ctx, `SELECT `+eventColumns+` FROM events `+where+` ORDER BY starts_at ASC, id ASC`, args...)
	if err != nil {
		return nil, apperr.Internal("totem events", err)
	}
	list, err := collectEvents(rows)
	if err != nil {
		return nil, apperr.Internal("totem events", err)
	}
	return list, nil
}

// scanWrite scans the row returned by an UPDATE/INSERT on id; no row means the event is gone.
func scanWrite(row pgx.Row, op string, id uuid.UUID) (*models.Event, error) {
	e, err := scanEvent(row)
	if errors.Is(err, pgx.ErrNoRows) && id != uuid.Nil {
		return nil, apperr.NotFound("event")
	}
	if err != nil {
		return nil, mapWriteError(op, err)
	}
	return e, nil
}

func collectEvents(rows pgx.Rows) ([]models.Event, error) {
	defer rows.Close()
	list := []models.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *e)
	}
	return list, rows.Err()
}

func scanEvent(row pgx.Row) (*models.Event, error) {
	var (
		e      models.Event
		days   string
		status string
	)
	err := row.Scan(&e.ID, &e.Title, &e.Description, &e.Location, &e.StartsAt, &e.EndsAt, &e.ExhibitStartsAt, &e.ExhibitEndsAt,
		&days, &e.DisplayMorning, &e.DisplayAfternoon, &e.DisplayNight, &e.Link, &e.Category, &e.Tags, &e.Color, &e.Animation,
		&status, &e.Organizer.ID, &e.Organizer.Name, &e.Cover, &e.Carousel, &e.Video, &e.Permissions, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.Status = models.Status(status)
	e.DisplayDays = splitDays(days)
	return &e, nil
}

// mapWriteError turns schema violations into validation errors.
func mapWriteError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23514" && pgErr.ConstraintName == constraintActiveMedia:
			return apperr.Validation("status", "an active event needs cover, carousel and video media")
		case pgErr.Code == "23514" && pgErr.ConstraintName == constraintDates:
			return apperr.Validation("ends_at", "end must not be before start")
		case pgErr.Code == "23503":
			return apperr.NotFound("user")
		}
	}
	return apperr.Internal(op, err)
}

func mediaColumn(v models.Variant) (string, error) {
	switch v {
	case models.VariantCover:
		return "media_cover", nil
	case models.VariantCarousel:
		return "media_carousel", nil
	case models.VariantVideo:
		return "media_video", nil
	}
	return "", apperr.Validationf("variant", "unknown media variant %q", v)
}

func joinDays(days []string) string {
	return strings.Join(days, ",")
}

func splitDays(s string) []string {
	days := []string{}
	for _, d := range strings.Split(s, ",") {
		if d = strings.TrimSpace(d); d != "" {
			days = append(days, d)
		}
	}
	return days
}
