package events

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/totem-events/backend/internal/apperr"
	"github.com/totem-events/backend/internal/models"
)

// Pagination limits.
const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// ListParams are the raw filters of GET /events.
type ListParams struct {
	Title           string   `form:"title"`
	Description     string   `form:"description"`
	Location        string   `form:"location"`
	Category        string   `form:"category"`
	Tags            []string `form:"tags"`
	Status          []string `form:"status"`
	From            string   `form:"from"`
	To              string   `form:"to"`
	IncludeInactive bool     `form:"include_inactive"`
	Page            int      `form:"page"`
	Limit           int      `form:"limit"`
}

// Query is a finished listing predicate. It is built once per request and never mutated;
// every clause returns a new value.
type Query struct {
	conds    []string
	args     []any
	matchers []func(*models.Event) bool
	page     int
	limit    int
}

// and appends a condition. cond refers to its own arguments as %[1]d, %[2]d... which are
// rewritten to the next free placeholders.
func (q Query) and(cond string, match func(*models.Event) bool, args ...any) Query {
	n := len(q.args)
	ph := make([]any, len(args))
	for i := range args {
		ph[i] = n + i + 1
	}
	if len(ph) > 0 {
		cond = fmt.Sprintf(cond, ph...)
	}
	q.conds = append(slices.Clip(q.conds), cond)
	q.args = append(slices.Clip(q.args), args...)
	q.matchers = append(slices.Clip(q.matchers), match)
	return q
}

// Where returns the SQL WHERE clause (empty when unfiltered) and its arguments.
func (q Query) Where() (string, []any) {
	if len(q.conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(q.conds, " AND "), slices.Clone(q.args)
}

// Matches evaluates the same predicate in memory.
func (q Query) Matches(e *models.Event) bool {
	for _, m := range q.matchers {
		if !m(e) {
			return false
		}
	}
	return true
}

// Page returns the 1-based page number.
func (q Query) Page() int { return q.page }

// Limit returns the page size.
func (q Query) Limit() int { return q.limit }

// Offset returns the number of rows to skip.
func (q Query) Offset() int { return (q.page - 1) * q.limit }

// listClause adds one optional filter.
type listClause func(q Query, p ListParams, actor *models.Actor, now time.Time) (Query, error)

// listClauses run in this order.
var listClauses = []listClause{
	titleClause,
	descriptionClause,
	locationClause,
	categoryClause,
	tagsClause,
	statusClause,
	dateRangeClause,
	visibilityClause,
}

// BuildQuery composes the listing predicate for actor (nil for anonymous callers).
func BuildQuery(p ListParams, actor *models.Actor, now time.Time) (Query, error) {
	q := Query{page: p.Page, limit: p.Limit}
	if q.page < 1 {
		q.page = DefaultPage
	}
	if q.limit < 1 {
		q.limit = DefaultLimit
	}
	if q.limit > MaxLimit {
		q.limit = MaxLimit
	}
	for _, clause := range listClauses {
		var err error
		if q, err = clause(q, p, actor, now); err != nil {
			return Query{}, err
		}
	}
	return q, nil
}

func titleClause(q Query, p ListParams, _ *models.Actor, _ time.Time) (Query, error) {
	return textClause(q, "title", p.Title, func(e *models.Event) string { return e.Title }), nil
}

func descriptionClause(q Query, p ListParams, _ *models.Actor, _ time.Time) (Query, error) {
	return textClause(q, "description", p.Description, func(e *models.Event) string { return e.Description }), nil
}

func locationClause(q Query, p ListParams, _ *models.Actor, _ time.Time) (Query, error) {
	return textClause(q, "location", p.Location, func(e *models.Event) string { return e.Location }), nil
}

func categoryClause(q Query, p ListParams, _ *models.Actor, _ time.Time) (Query, error) {
	return textClause(q, "category", p.Category, func(e *models.Event) string { return e.Category }), nil
}

// textClause is a case-insensitive substring match on column. Empty values add nothing.
func textClause(q Query, column, value string, field func(*models.Event) string) Query {
	value = strings.TrimSpace(value)
	if value == "" {
		return q
	}
	return q.and(column+" ILIKE $%[1]d", func(e *models.Event) bool {
		return containsFold(field(e), value)
	}, "%"+escapeILIKEPattern(value)+"%")
}

// tagsClause: several tags (repeated or comma separated) match events sharing any of them;
// a single tag matches events with a stored tag containing it.
func tagsClause(q Query, p ListParams, _ *models.Actor, _ time.Time) (Query, error) {
	if len(p.Tags) == 0 {
		return q, nil
	}
	tags, set := parseTags(p.Tags)
	if len(tags) == 0 {
		return Query{}, apperr.Validation("tags", "tag list is empty")
	}
	if set {
		return q.and("tags && $%[1]d::text[]", func(e *models.Event) bool {
			return slices.ContainsFunc(e.Tags, func(t string) bool { return slices.Contains(tags, t) })
		}, tags), nil
	}
	tag := tags[0]
	return q.and("EXISTS (SELECT 1 FROM unnest(tags) AS t WHERE t ILIKE $%[1]d)", func(e *models.Event) bool {
		return slices.ContainsFunc(e.Tags, func(t string) bool { return containsFold(t, tag) })
	}, "%"+escapeILIKEPattern(tag)+"%"), nil
}

func statusClause(q Query, p ListParams, _ *models.Actor, _ time.Time) (Query, error) {
	var statuses []string
	for _, raw := range p.Status {
		for _, s := range strings.Split(raw, ",") {
			if strings.TrimSpace(s) == "" {
				continue
			}
			st, ok := ParseStatus(s)
			if !ok {
				return Query{}, apperr.Validationf("status", "unknown status %q", strings.TrimSpace(s))
			}
			if !slices.Contains(statuses, string(st)) {
				statuses = append(statuses, string(st))
			}
		}
	}
	if len(statuses) == 0 {
		return q, nil
	}
	return q.and("status = ANY($%[1]d::text[])", func(e *models.Event) bool {
		return slices.Contains(statuses, string(e.Status))
	}, statuses), nil
}

// dateRangeClause keeps events overlapping [from, to]: starts_at <= to AND ends_at >= from.
func dateRangeClause(q Query, p ListParams, _ *models.Actor, _ time.Time) (Query, error) {
	from, err := parseBound("from", p.From, false)
	if err != nil {
		return Query{}, err
	}
	to, err := parseBound("to", p.To, true)
	if err != nil {
		return Query{}, err
	}
	if from != nil && to != nil && to.Before(*from) {
		return Query{}, apperr.Validation("to", "must not be before from")
	}
	if to != nil {
		end := *to
		q = q.and("starts_at <= $%[1]d", func(e *models.Event) bool { return !e.StartsAt.After(end) }, end)
	}
	if from != nil {
		start := *from
		q = q.and("ends_at >= $%[1]d", func(e *models.Event) bool { return !e.EndsAt.Before(start) }, start)
	}
	return q, nil
}

// visibilityClause: organizers see the events they own or may edit; admins see everything;
// anonymous callers see active events unless they opt out.
func visibilityClause(q Query, p ListParams, actor *models.Actor, now time.Time) (Query, error) {
	switch {
	case actor != nil && actor.Admin:
		return q, nil
	case actor != nil:
		id := actor.ID
		return q.and(`(organizer_id = $%[1]d OR EXISTS (
			SELECT 1 FROM jsonb_array_elements(permissions) AS p
			WHERE p->>'user_id' = $%[2]d AND p->>'kind' = 'edit'
			AND (p->>'expires_at' IS NULL OR (p->>'expires_at')::timestamptz > $%[3]d)))`,
			func(e *models.Event) bool {
				if e.Organizer.ID == id {
					return true
				}
				_, ok := e.ActivePermission(id, now)
				return ok
			}, id, id.String(), now), nil
	case !p.IncludeInactive:
		return q.and("status = $%[1]d", func(e *models.Event) bool {
			return e.Status == models.StatusActive
		}, string(models.StatusActive)), nil
	}
	return q, nil
}

// ParseStatus coerces the accepted spellings of a status.
func ParseStatus(s string) (models.Status, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "active", "ativo", "true", "1":
		return models.StatusActive, true
	case "inactive", "inativo", "false", "0":
		return models.StatusInactive, true
	}
	return "", false
}

// parseTags flattens repeated and comma-separated values. set is false only for one plain value.
func parseTags(values []string) (tags []string, set bool) {
	for _, v := range values {
		if strings.Contains(v, ",") {
			set = true
		}
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" && !slices.Contains(tags, t) {
				tags = append(tags, t)
			}
		}
	}
	return tags, set || len(values) > 1
}

// parseBound accepts RFC 3339 or a plain date. A plain upper bound covers the whole day.
func parseBound(field, s string, upper bool) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, apperr.Validationf(field, "expected RFC 3339 timestamp or YYYY-MM-DD, got %q", s)
	}
	if upper {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

var ilikeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeILIKEPattern escapes the ILIKE wildcards of user input.
func escapeILIKEPattern(s string) string {
	return ilikeEscaper.Replace(s)
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
