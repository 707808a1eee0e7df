// Package exchange runs the broker-mediated exchange request lifecycle.
package exchange

import (
	"slices"
	"strings"

	"github.com/lalith-99/brokerguard/internal/apperr"
	"github.com/lalith-99/brokerguard/internal/models"
)

// transitions is the complete state graph. A move that is not listed here
// fails with ErrInvalidTransition. requested is never stored; it is the
// "from" side of the creation step.
var transitions = map[models.ExchangeStatus][]models.ExchangeStatus{
	models.StatusRequested: {
		models.StatusPendingBroker,
		models.StatusAutoApproved,
	},
	models.StatusPendingBroker: {
		models.StatusApproved,
		models.StatusRejected,
		models.StatusExpired,
		models.StatusCancelled,
	},
	models.StatusApproved: {
		models.StatusAwaitingConfirmation,
		models.StatusCancelled,
	},
	models.StatusAutoApproved: {
		models.StatusAwaitingConfirmation,
		models.StatusCancelled,
	},
	models.StatusAwaitingConfirmation: {
		models.StatusCompleted,
		models.StatusDisputed,
		models.StatusExpired,
		models.StatusCancelled,
	},
	// Automatic processing stops at disputed; only a broker resolves it.
	models.StatusDisputed: {
		models.StatusCompleted,
		models.StatusCancelled,
	},
}

var allStatuses = []models.ExchangeStatus{
	models.StatusRequested,
	models.StatusPendingBroker,
	models.StatusApproved,
	models.StatusAutoApproved,
	models.StatusRejected,
	models.StatusAwaitingConfirmation,
	models.StatusCompleted,
	models.StatusDisputed,
	models.StatusExpired,
	models.StatusCancelled,
}

func CanTransition(from, to models.ExchangeStatus) bool {
	return slices.Contains(transitions[from], to)
}

// IsFinal reports whether no move leaves s.
func IsFinal(s models.ExchangeStatus) bool {
	return len(transitions[s]) == 0
}

// ParseStatuses turns a comma separated status filter into statuses. An
// empty string means no filter.
func ParseStatuses(raw string) ([]models.ExchangeStatus, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var out []models.ExchangeStatus
	for _, part := range strings.Split(raw, ",") {
		st := models.ExchangeStatus(strings.TrimSpace(part))
		if !slices.Contains(allStatuses, st) {
			return nil, apperr.Validation("unknown exchange status: " + string(st))
		}
		out = append(out, st)
	}
	return out, nil
}
