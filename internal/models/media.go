package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Variant is the kind of media attached to an event.
type Variant string

const (
	VariantCover    Variant = "cover"
	VariantCarousel Variant = "carousel"
	VariantVideo    Variant = "video"
)

// Variants lists every variant an active event must carry.
var Variants = []Variant{VariantCover, VariantCarousel, VariantVideo}

// ParseVariant returns the variant named s.
func ParseVariant(s string) (Variant, bool) {
	switch v := Variant(s); v {
	case VariantCover, VariantCarousel, VariantVideo:
		return v, true
	}
	return "", false
}

// Media is an uploaded file attached to an event. Never mutated after creation.
type Media struct {
	ID        uuid.UUID `json:"id"`
	Variant   Variant   `json:"variant"`
	URL       string    `json:"url"`
	SizeMB    float64   `json:"size_mb"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	CreatedAt time.Time `json:"created_at"`
}

// LegacyMedia is the {type, link} descriptor written by older clients.
type LegacyMedia struct {
	Type string `json:"type"`
	Link string `json:"link"`
}

// Canonical converts a legacy descriptor. Size and dimensions were never recorded, so they stay zero.
func (l LegacyMedia) Canonical() (Media, bool) {
	v, ok := ParseVariant(l.Type)
	if !ok || l.Link == "" {
		return Media{}, false
	}
	return Media{ID: uuid.NewSHA1(uuid.NameSpaceURL, []byte(l.Link)), Variant: v, URL: l.Link}, true
}

// UnmarshalJSON accepts both the canonical shape and the legacy {type, link} shape.
func (m *Media) UnmarshalJSON(data []byte) error {
	type canonical Media
	var aux struct {
		canonical
		LegacyMedia
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.URL == "" && aux.Link != "" {
		legacy, ok := aux.LegacyMedia.Canonical()
		if !ok {
			return fmt.Errorf("unknown legacy media type %q", aux.Type)
		}
		*m = legacy
		return nil
	}
	*m = Media(aux.canonical)
	return nil
}
