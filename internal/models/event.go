package models

import (
	"time"

	"github.com/google/uuid"
)

// Status is the publication status of an event.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Organizer is the owner reference stored on an event.
type Organizer struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// Event is a public event shown on totems.
type Event struct {
	ID               uuid.UUID    `json:"id"`
	Title            string       `json:"title"`
	Description      string       `json:"description"`
	Location         string       `json:"location"`
	StartsAt         time.Time    `json:"starts_at"`
	EndsAt           time.Time    `json:"ends_at"`
	ExhibitStartsAt  time.Time    `json:"exhibit_starts_at"`
	ExhibitEndsAt    time.Time    `json:"exhibit_ends_at"`
	DisplayDays      []string     `json:"display_days"`
	DisplayMorning   bool         `json:"display_morning"`
	DisplayAfternoon bool         `json:"display_afternoon"`
	DisplayNight     bool         `json:"display_night"`
	Link             string       `json:"link"`
	Category         string       `json:"category"`
	Tags             []string     `json:"tags"`
	Color            string       `json:"color"`
	Animation        string       `json:"animation"`
	Status           Status       `json:"status"`
	Organizer        Organizer    `json:"organizer"`
	Cover            []Media      `json:"cover"`
	Carousel         []Media      `json:"carousel"`
	Video            []Media      `json:"video"`
	Permissions      []Permission `json:"permissions,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// MediaOf returns the media list of the given variant.
func (e *Event) MediaOf(v Variant) []Media {
	switch v {
	case VariantCover:
		return e.Cover
	case VariantCarousel:
		return e.Carousel
	case VariantVideo:
		return e.Video
	}
	return nil
}

// FindMedia returns the media item with id inside the variant list.
func (e *Event) FindMedia(v Variant, id uuid.UUID) (Media, bool) {
	for _, m := range e.MediaOf(v) {
		if m.ID == id {
			return m, true
		}
	}
	return Media{}, false
}

// AllMedia returns every media item regardless of variant.
func (e *Event) AllMedia() []Media {
	all := make([]Media, 0, len(e.Cover)+len(e.Carousel)+len(e.Video))
	all = append(all, e.Cover...)
	all = append(all, e.Carousel...)
	return append(all, e.Video...)
}

// MissingVariants lists the variants with no media, in Variants order.
func (e *Event) MissingVariants() []Variant {
	var missing []Variant
	for _, v := range Variants {
		if len(e.MediaOf(v)) == 0 {
			missing = append(missing, v)
		}
	}
	return missing
}

// ActivePermission returns the non-expired edit grant held by userID at now.
func (e *Event) ActivePermission(userID uuid.UUID, now time.Time) (Permission, bool) {
	for _, p := range e.Permissions {
		if p.UserID == userID && p.Kind == PermissionEdit && p.ActiveAt(now) {
			return p, true
		}
	}
	return Permission{}, false
}
