package events

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/totem-events/backend/internal/models"
)

func TestPeriodAt(t *testing.T) {
	at := func(h, m int) time.Time { return time.Date(2025, 3, 10, h, m, 0, 0, time.UTC) }
	tests := []struct {
		t    time.Time
		want Period
	}{
		{at(0, 0), PeriodNight},
		{at(5, 59), PeriodNight},
		{at(6, 0), PeriodMorning},
		{at(11, 59), PeriodMorning},
		{at(12, 0), PeriodAfternoon},
		{at(17, 59), PeriodAfternoon},
		{at(18, 0), PeriodNight},
		{at(23, 30), PeriodNight},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PeriodAt(tt.t), tt.t.Format("15:04"))
	}
}

func TestNormalizeDay(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"segunda", "segunda", true},
		{"Segunda-feira", "segunda", true},
		{"TERÇA", "terca", true},
		{"terça-feira", "terca", true},
		{" sábado ", "sabado", true},
		{"domingo", "domingo", true},
		{"monday", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := NormalizeDay(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestNewTotemQueryUsesLocation(t *testing.T) {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)

	// Tuesday 01:30 UTC is still Monday 22:30 in São Paulo.
	q := NewTotemQuery(time.Date(2025, 3, 11, 1, 30, 0, 0, time.UTC), loc)
	assert.Equal(t, "segunda", q.Weekday)
	assert.Equal(t, PeriodNight, q.Period)
	assert.Equal(t, "segunda:night", q.CacheKey())

	q = NewTotemQuery(time.Date(2025, 3, 11, 1, 30, 0, 0, time.UTC), nil)
	assert.Equal(t, "terca", q.Weekday)
}

func totemEvent() *models.Event {
	return &models.Event{
		ID:              uuid.New(),
		Status:          models.StatusActive,
		ExhibitStartsAt: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		ExhibitEndsAt:   time.Date(2025, 3, 31, 23, 59, 0, 0, time.UTC),
		DisplayDays:     []string{"segunda", "quarta"},
		DisplayMorning:  true,
		Cover:           []models.Media{{ID: uuid.New(), Variant: models.VariantCover, URL: "https://cdn/c.png"}},
	}
}

func TestTotemQueryMatches(t *testing.T) {
	monday9 := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		now    time.Time
		mutate func(*models.Event)
		want   bool
	}{
		{"monday morning", monday9, nil, true},
		{"tuesday morning", time.Date(2025, 3, 11, 9, 0, 0, 0, time.UTC), nil, false},
		{"monday afternoon", time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC), nil, false},
		{"inactive", monday9, func(e *models.Event) { e.Status = models.StatusInactive }, false},
		{"before exhibition", monday9, func(e *models.Event) { e.ExhibitStartsAt = monday9.Add(time.Minute) }, false},
		{"after exhibition", monday9, func(e *models.Event) { e.ExhibitEndsAt = monday9.Add(-time.Minute) }, false},
		{"exhibition ends now", monday9, func(e *models.Event) { e.ExhibitEndsAt = monday9 }, true},
		{"no media", monday9, func(e *models.Event) { e.Cover = nil }, false},
		{"video only", monday9, func(e *models.Event) {
			e.Cover = nil
			e.Video = []models.Media{{ID: uuid.New(), Variant: models.VariantVideo}}
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := totemEvent()
			if tt.mutate != nil {
				tt.mutate(e)
			}
			assert.Equal(t, tt.want, NewTotemQuery(tt.now, time.UTC).Matches(e))
		})
	}
}

func TestTotemQueryWhere(t *testing.T) {
	now := time.Date(2025, 3, 12, 19, 0, 0, 0, time.UTC)
	where, args := NewTotemQuery(now, time.UTC).Where()
	assert.Contains(t, where, "display_night")
	assert.Contains(t, where, "display_days ILIKE $3")
	assert.Equal(t, []any{"active", now, "%quarta%"}, args)
}
