package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
		ok   bool
	}{
		{"pending to confirmed", StatusPending, StatusConfirmed, true},
		{"confirmed to processing", StatusConfirmed, StatusProcessing, true},
		{"processing to shipped", StatusProcessing, StatusShipped, true},
		{"shipped to delivered", StatusShipped, StatusDelivered, true},
		{"no skipping ahead", StatusPending, StatusDelivered, false},
		{"no skipping to shipped", StatusConfirmed, StatusShipped, false},
		{"no going back", StatusShipped, StatusProcessing, false},
		{"pending cancellable", StatusPending, StatusCancelled, true},
		{"confirmed cancellable", StatusConfirmed, StatusCancelled, true},
		{"processing cancellable", StatusProcessing, StatusCancelled, true},
		{"shipped cancellable", StatusShipped, StatusCancelled, true},
		{"delivered is terminal", StatusDelivered, StatusCancelled, false},
		{"cancelled is terminal", StatusCancelled, StatusConfirmed, false},
		{"cancelled stays cancelled", StatusCancelled, StatusPending, false},
		{"self transition rejected", StatusConfirmed, StatusConfirmed, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.ok, CanTransition(tt.from, tt.to))
		})
	}
}

func TestCheckTransition_Actors(t *testing.T) {
	// Admins can drive the whole lifecycle.
	require.NoError(t, CheckTransition(StatusConfirmed, StatusProcessing, ActorAdmin))
	require.NoError(t, CheckTransition(StatusProcessing, StatusCancelled, ActorAdmin))

	// Delivery staff advance orders through fulfilment but cannot confirm
	// or cancel.
	require.NoError(t, CheckTransition(StatusProcessing, StatusShipped, ActorDelivery))
	require.NoError(t, CheckTransition(StatusShipped, StatusDelivered, ActorDelivery))
	require.Error(t, CheckTransition(StatusPending, StatusConfirmed, ActorDelivery))
	require.Error(t, CheckTransition(StatusProcessing, StatusCancelled, ActorDelivery))

	// The system only ever confirms a pending order after verification.
	require.NoError(t, CheckTransition(StatusPending, StatusConfirmed, ActorSystem))
	err := CheckTransition(StatusConfirmed, StatusProcessing, ActorSystem)
	require.Error(t, err)
	var lerr *LifecycleError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, StatusConfirmed, lerr.From)
	assert.Equal(t, StatusProcessing, lerr.To)
}

func TestCheckTransition_IllegalEdge(t *testing.T) {
	err := CheckTransition(StatusPending, StatusDelivered, ActorAdmin)
	var lerr *LifecycleError
	require.ErrorAs(t, err, &lerr)
}

func TestCountsTowardRevenue(t *testing.T) {
	counted := []Status{StatusConfirmed, StatusProcessing, StatusShipped, StatusDelivered}
	for _, s := range counted {
		assert.True(t, CountsTowardRevenue(s), "%s should count", s)
	}
	assert.False(t, CountsTowardRevenue(StatusPending))
	assert.False(t, CountsTowardRevenue(StatusCancelled))
}

func TestStatus_Terminal(t *testing.T) {
	assert.True(t, StatusDelivered.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusShipped.Terminal())
}
