// Package permissions decides whether an actor may mutate an event.
package permissions

import (
	"time"

	"github.com/totem-events/backend/internal/apperr"
	"github.com/totem-events/backend/internal/models"
)

// Denial reasons.
const (
	ReasonAnonymous    = "authentication required"
	ReasonOwnerOnly    = "owner-only operation"
	ReasonNoPermission = "no permission"
)

// Decision is the outcome of Evaluate. Reason is empty when Allowed.
type Decision struct {
	Allowed bool
	Reason  string
}

// Evaluate checks actor against event. ownerOnly is used for delete, status change and permission
// management; it ignores shared grants.
func Evaluate(event *models.Event, actor *models.Actor, ownerOnly bool, now time.Time) Decision {
	if actor == nil {
		return Decision{Reason: ReasonAnonymous}
	}
	if actor.Admin {
		return Decision{Allowed: true}
	}
	if actor.ID == event.Organizer.ID {
		return Decision{Allowed: true}
	}
	if ownerOnly {
		return Decision{Reason: ReasonOwnerOnly}
	}
	if _, ok := event.ActivePermission(actor.ID, now); ok {
		return Decision{Allowed: true}
	}
	return Decision{Reason: ReasonNoPermission}
}

// Require is Evaluate returning an Unauthorized error on denial.
func Require(event *models.Event, actor *models.Actor, ownerOnly bool, now time.Time) error {
	d := Evaluate(event, actor, ownerOnly, now)
	if !d.Allowed {
		return apperr.Unauthorized(d.Reason)
	}
	return nil
}
