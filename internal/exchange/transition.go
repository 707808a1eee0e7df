package exchange

import (
	"fmt"
	"math"
	"time"

	"github.com/lalith-99/brokerguard/internal/apperr"
	"github.com/lalith-99/brokerguard/internal/models"
)

// actor is who performs a change. A member's role is resolved against the
// exchange once it is loaded.
type actor struct {
	id   *int64
	role models.ActorRole
}

// transition accumulates the changes one action makes to a loaded exchange
// and the history rows that describe them.
type transition struct {
	ex    *models.ExchangeRequest
	now   time.Time
	actor actor
	steps []models.ExchangeHistoryEntry
}

func (t *transition) invalid(to models.ExchangeStatus) error {
	return apperr.ErrInvalidTransition.With(fmt.Sprintf("cannot move exchange from %s to %s", t.ex.Status, to))
}

func (t *transition) move(to models.ExchangeStatus, action string, notes *string) error {
	from := t.ex.Status
	if !CanTransition(from, to) {
		return t.invalid(to)
	}
	t.ex.Status = to
	t.record(action, &from, &to, notes)
	return nil
}

// note records an action that does not change status.
func (t *transition) note(action string, notes *string) {
	t.record(action, nil, nil, notes)
}

func (t *transition) record(action string, from, to *models.ExchangeStatus, notes *string) {
	t.steps = append(t.steps, models.ExchangeHistoryEntry{
		TenantID:   t.ex.TenantID,
		ExchangeID: t.ex.ID,
		Action:     action,
		ActorID:    t.actor.id,
		ActorRole:  t.actor.role,
		OldStatus:  from,
		NewStatus:  to,
		Notes:      notes,
		CreatedAt:  t.now,
	})
}

// participant resolves the member actor's role and refuses outsiders.
func (t *transition) participant() error {
	if t.actor.id == nil {
		return apperr.ErrNotParticipant
	}
	switch *t.actor.id {
	case t.ex.RequesterID:
		t.actor.role = models.RoleRequester
	case t.ex.ProviderID:
		t.actor.role = models.RoleProvider
	default:
		return apperr.ErrNotParticipant
	}
	return nil
}

// decidable checks a broker may still decide: the exchange is pending and
// its expiry has not passed. Expiry itself is left to the sweep.
func (t *transition) decidable() error {
	if t.ex.Status != models.StatusPendingBroker {
		return t.invalid(models.StatusApproved)
	}
	if t.ex.ExpiresAt != nil && !t.now.Before(*t.ex.ExpiresAt) {
		return apperr.ErrDeadlinePassed
	}
	return nil
}

// openConfirmation moves an approved exchange into awaiting_confirmation
// and checks the confirmation deadline.
func (t *transition) openConfirmation() error {
	switch t.ex.Status {
	case models.StatusApproved, models.StatusAutoApproved:
		if err := t.move(models.StatusAwaitingConfirmation, "ready", nil); err != nil {
			return err
		}
	case models.StatusAwaitingConfirmation:
	default:
		return t.invalid(models.StatusAwaitingConfirmation)
	}
	if t.ex.ConfirmationDeadline != nil && !t.now.Before(*t.ex.ConfirmationDeadline) {
		return apperr.ErrDeadlinePassed
	}
	return nil
}

// settle closes an exchange both parties confirmed.
func (t *transition) settle() error {
	r, p := *t.ex.RequesterConfirmedHours, *t.ex.ProviderConfirmedHours
	diff := math.Abs(r - p)
	switch {
	case diff < exactHoursTolerance:
		final := r
		t.ex.FinalHours = &final
		return t.move(models.StatusCompleted, "completed", nil)
	case diff <= averageHoursTolerance+1e-9:
		final := (r + p) / 2
		t.ex.FinalHours = &final
		return t.move(models.StatusCompleted, "completed", nil)
	default:
		notes := fmt.Sprintf("hours mismatch: requester=%.2f provider=%.2f", r, p)
		return t.move(models.StatusDisputed, "disputed", &notes)
	}
}
