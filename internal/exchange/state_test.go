package exchange

import (
	"testing"

	"github.com/lalith-99/brokerguard/internal/apperr"
	"github.com/lalith-99/brokerguard/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to models.ExchangeStatus
		want     bool
	}{
		{models.StatusRequested, models.StatusPendingBroker, true},
		{models.StatusRequested, models.StatusAutoApproved, true},
		{models.StatusRequested, models.StatusApproved, false},
		{models.StatusPendingBroker, models.StatusApproved, true},
		{models.StatusPendingBroker, models.StatusRejected, true},
		{models.StatusPendingBroker, models.StatusExpired, true},
		{models.StatusPendingBroker, models.StatusAwaitingConfirmation, false},
		{models.StatusApproved, models.StatusAwaitingConfirmation, true},
		{models.StatusAutoApproved, models.StatusAwaitingConfirmation, true},
		{models.StatusAutoApproved, models.StatusCompleted, false},
		{models.StatusAwaitingConfirmation, models.StatusCompleted, true},
		{models.StatusAwaitingConfirmation, models.StatusDisputed, true},
		{models.StatusAwaitingConfirmation, models.StatusExpired, true},
		{models.StatusDisputed, models.StatusCompleted, true},
		{models.StatusDisputed, models.StatusCancelled, true},
		{models.StatusDisputed, models.StatusExpired, false},
		{models.StatusCompleted, models.StatusDisputed, false},
		{models.StatusRejected, models.StatusApproved, false},
		{models.StatusExpired, models.StatusPendingBroker, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestIsFinal(t *testing.T) {
	for _, s := range []models.ExchangeStatus{models.StatusCompleted, models.StatusRejected, models.StatusExpired, models.StatusCancelled} {
		assert.True(t, IsFinal(s), s)
	}
	for _, s := range []models.ExchangeStatus{models.StatusPendingBroker, models.StatusAwaitingConfirmation, models.StatusDisputed} {
		assert.False(t, IsFinal(s), s)
	}
}

func TestEveryStateReachable(t *testing.T) {
	seen := map[models.ExchangeStatus]bool{models.StatusRequested: true}
	queue := []models.ExchangeStatus{models.StatusRequested}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range transitions[cur] {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	for _, s := range allStatuses {
		assert.True(t, seen[s], "%s unreachable", s)
	}
}

func TestParseStatuses(t *testing.T) {
	got, err := ParseStatuses("")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = ParseStatuses("pending_broker, disputed")
	require.NoError(t, err)
	assert.Equal(t, []models.ExchangeStatus{models.StatusPendingBroker, models.StatusDisputed}, got)

	_, err = ParseStatuses("pending_broker,open")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}
