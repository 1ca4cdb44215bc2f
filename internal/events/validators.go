package events

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/totem-events/backend/internal/apperr"
)

// EventInput is the body of POST /events.
type EventInput struct {
	Title            string    `json:"title" validate:"required,max=255"`
	Description      string    `json:"description" validate:"max=5000"`
	Location         string    `json:"location" validate:"max=255"`
	StartsAt         time.Time `json:"starts_at" validate:"required"`
	EndsAt           time.Time `json:"ends_at" validate:"required,gtefield=StartsAt"`
	ExhibitStartsAt  time.Time `json:"exhibit_starts_at" validate:"required"`
	ExhibitEndsAt    time.Time `json:"exhibit_ends_at" validate:"required,gtefield=ExhibitStartsAt"`
	DisplayDays      []string  `json:"display_days" validate:"required,min=1,dive,weekday"`
	DisplayMorning   bool      `json:"display_morning"`
	DisplayAfternoon bool      `json:"display_afternoon"`
	DisplayNight     bool      `json:"display_night"`
	Link             string    `json:"link" validate:"omitempty,url"`
	Category         string    `json:"category" validate:"max=100"`
	Tags             []string  `json:"tags" validate:"required,min=1,dive,required,max=50"`
	Color            string    `json:"color" validate:"omitempty,hexcolor"`
	Animation        string    `json:"animation" validate:"max=64"`
	Status           string    `json:"status" validate:"omitempty,event_status"`
}

// EventPatch is the body of PATCH /events/:id. Nil fields are left unchanged.
type EventPatch struct {
	Title            *string    `json:"title"`
	Description      *string    `json:"description"`
	Location         *string    `json:"location"`
	StartsAt         *time.Time `json:"starts_at"`
	EndsAt           *time.Time `json:"ends_at"`
	ExhibitStartsAt  *time.Time `json:"exhibit_starts_at"`
	ExhibitEndsAt    *time.Time `json:"exhibit_ends_at"`
	DisplayDays      []string   `json:"display_days"`
	DisplayMorning   *bool      `json:"display_morning"`
	DisplayAfternoon *bool      `json:"display_afternoon"`
	DisplayNight     *bool      `json:"display_night"`
	Link             *string    `json:"link"`
	Category         *string    `json:"category"`
	Tags             []string   `json:"tags"`
	Color            *string    `json:"color"`
	Animation        *string    `json:"animation"`
}

// ShareInput is the body of POST /events/:id/permissions.
type ShareInput struct {
	Email     string     `json:"email" validate:"required,email"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// StatusInput is the body of PATCH /events/:id/status.
type StatusInput struct {
	Status string `json:"status" validate:"required,event_status"`
}

// TransferInput is the body of PATCH /events/:id/organizer.
type TransferInput struct {
	UserID string `json:"user_id" validate:"required,uuid"`
}

// NewValidator returns a validator with the event tags registered and JSON field names in errors.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := RegisterValidators(v); err != nil {
		panic(err)
	}
	return v
}

// RegisterValidators adds the weekday and event_status tags to v.
func RegisterValidators(v *validator.Validate) error {
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("weekday", func(fl validator.FieldLevel) bool {
		_, ok := NormalizeDay(fl.Field().String())
		return ok
	}); err != nil {
		return fmt.Errorf("register weekday: %w", err)
	}
	if err := v.RegisterValidation("event_status", func(fl validator.FieldLevel) bool {
		_, ok := ParseStatus(fl.Field().String())
		return ok
	}); err != nil {
		return fmt.Errorf("register event_status: %w", err)
	}
	return nil
}

// validationError converts the first validator failure into a field-level apperr.
func validationError(err error) error {
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) || len(ves) == 0 {
		return apperr.Validation("body", err.Error())
	}
	fe := ves[0]
	return apperr.Validation(fe.Field(), fieldMessage(fe))
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return "must be at most " + fe.Param() + " long"
	case "min":
		return "must have at least " + fe.Param() + " item(s)"
	case "gtefield":
		return "must not be before the start"
	case "weekday":
		return fmt.Sprintf("%q is not a weekday (use %s)", fe.Value(), strings.Join(weekdayNames[:], ", "))
	case "event_status":
		return fmt.Sprintf("%q is not a status (use active or inactive)", fe.Value())
	case "url":
		return "must be a valid URL"
	case "hexcolor":
		return "must be a hex color such as #1a2b3c"
	case "email":
		return "must be a valid email address"
	case "uuid":
		return "must be a UUID"
	}
	return "failed " + fe.Tag() + " validation"
}
