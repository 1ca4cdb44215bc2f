package events

import (
	"strings"
	"time"

	"github.com/totem-events/backend/internal/models"
)

// Period is a part of the day used by the display flags.
type Period string

const (
	PeriodMorning   Period = "morning"
	PeriodAfternoon Period = "afternoon"
	PeriodNight     Period = "night"
)

// PeriodAt returns the period of t: 06:00-11:59 morning, 12:00-17:59 afternoon, otherwise night.
func PeriodAt(t time.Time) Period {
	switch h := t.Hour(); {
	case h >= 6 && h < 12:
		return PeriodMorning
	case h >= 12 && h < 18:
		return PeriodAfternoon
	default:
		return PeriodNight
	}
}

// weekdayNames are the stored display-day names, indexed by time.Weekday.
var weekdayNames = [7]string{"domingo", "segunda", "terca", "quarta", "quinta", "sexta", "sabado"}

// WeekdayName returns the display-day name of d.
func WeekdayName(d time.Weekday) string {
	return weekdayNames[d]
}

var dayAccents = strings.NewReplacer("ç", "c", "á", "a", "Ç", "c", "Á", "a")

// NormalizeDay maps a display-day name (any case, accented or not, with or without "-feira")
// to its stored form.
func NormalizeDay(s string) (string, bool) {
	d := strings.ToLower(dayAccents.Replace(strings.TrimSpace(s)))
	d = strings.TrimSuffix(d, "-feira")
	for _, name := range weekdayNames {
		if d == name {
			return name, true
		}
	}
	return "", false
}

// TotemQuery selects the events a totem shows at one instant.
type TotemQuery struct {
	Now     time.Time
	Weekday string
	Period  Period
}

// NewTotemQuery evaluates weekday and period of now in loc.
func NewTotemQuery(now time.Time, loc *time.Location) TotemQuery {
	if loc != nil {
		now = now.In(loc)
	}
	return TotemQuery{Now: now, Weekday: WeekdayName(now.Weekday()), Period: PeriodAt(now)}
}

// CacheKey identifies the feed slot; results may be shared within one weekday and period.
func (q TotemQuery) CacheKey() string {
	return q.Weekday + ":" + string(q.Period)
}

// Where returns the SQL predicate and its arguments.
func (q TotemQuery) Where() (string, []any) {
	cond := `WHERE status = $1
		AND exhibit_starts_at <= $2 AND exhibit_ends_at >= $2
		AND display_days ILIKE $3
		AND ` + periodColumn(q.Period) + `
		AND jsonb_array_length(media_cover) + jsonb_array_length(media_carousel) + jsonb_array_length(media_video) > 0`
	return cond, []any{string(models.StatusActive), q.Now, "%" + q.Weekday + "%"}
}

// Matches evaluates the same predicate in memory.
func (q TotemQuery) Matches(e *models.Event) bool {
	if e.Status != models.StatusActive {
		return false
	}
	if q.Now.Before(e.ExhibitStartsAt) || q.Now.After(e.ExhibitEndsAt) {
		return false
	}
	if !containsFold(strings.Join(e.DisplayDays, ","), q.Weekday) {
		return false
	}
	if !periodFlag(e, q.Period) {
		return false
	}
	return len(e.AllMedia()) > 0
}

func periodColumn(p Period) string {
	switch p {
	case PeriodMorning:
		return "display_morning"
	case PeriodAfternoon:
		return "display_afternoon"
	default:
		return "display_night"
	}
}

func periodFlag(e *models.Event, p Period) bool {
	switch p {
	case PeriodMorning:
		return e.DisplayMorning
	case PeriodAfternoon:
		return e.DisplayAfternoon
	default:
		return e.DisplayNight
	}
}
