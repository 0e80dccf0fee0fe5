package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to RideStatus
		want     bool
	}{
		// прямая цепочка
		{RideStatusPending, RideStatusAssigned, true},
		{RideStatusAssigned, RideStatusEnRouteToPickup, true},
		{RideStatusEnRouteToPickup, RideStatusArrivedAtPickup, true},
		{RideStatusArrivedAtPickup, RideStatusInProgress, true},
		{RideStatusInProgress, RideStatusCompleted, true},
		// отмена возможна только до выезда водителя
		{RideStatusPending, RideStatusCancelled, true},
		{RideStatusAssigned, RideStatusCancelled, true},
		{RideStatusEnRouteToPickup, RideStatusCancelled, false},
		{RideStatusArrivedAtPickup, RideStatusCancelled, false},
		{RideStatusInProgress, RideStatusCancelled, false},
		// пропуск шагов запрещен
		{RideStatusPending, RideStatusEnRouteToPickup, false},
		{RideStatusPending, RideStatusCompleted, false},
		{RideStatusAssigned, RideStatusArrivedAtPickup, false},
		{RideStatusAssigned, RideStatusInProgress, false},
		{RideStatusEnRouteToPickup, RideStatusInProgress, false},
		{RideStatusArrivedAtPickup, RideStatusCompleted, false},
		// движение назад запрещено
		{RideStatusAssigned, RideStatusPending, false},
		{RideStatusInProgress, RideStatusArrivedAtPickup, false},
		// из терминальных статусов выхода нет
		{RideStatusCompleted, RideStatusPending, false},
		{RideStatusCompleted, RideStatusCancelled, false},
		{RideStatusCancelled, RideStatusPending, false},
		{RideStatusCancelled, RideStatusAssigned, false},
		// переход в себя запрещен
		{RideStatusPending, RideStatusPending, false},
		{RideStatusInProgress, RideStatusInProgress, false},
	}
	for _, tc := range cases {
		got := CanTransition(tc.from, tc.to)
		if got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, ожидалось %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, RideStatusCompleted.IsTerminal())
	assert.True(t, RideStatusCancelled.IsTerminal())

	for _, s := range NonTerminalStatuses {
		assert.False(t, s.IsTerminal(), "статус %s не должен быть терминальным", s)
	}
}

func TestIsValid(t *testing.T) {
	for _, s := range []RideStatus{
		RideStatusPending, RideStatusAssigned, RideStatusEnRouteToPickup,
		RideStatusArrivedAtPickup, RideStatusInProgress,
		RideStatusCompleted, RideStatusCancelled,
	} {
		assert.True(t, s.IsValid(), "статус %s должен быть известен", s)
	}

	assert.False(t, RideStatus("UNKNOWN").IsValid())
	assert.False(t, RideStatus("").IsValid())
	assert.False(t, RideStatus("pending").IsValid(), "статусы чувствительны к регистру")
}

func TestDriverAdvanceStatusesExcludeAssignAndCancel(t *testing.T) {
	for _, s := range DriverAdvanceStatuses {
		assert.NotEqual(t, RideStatusAssigned, s, "назначение делает только офис")
		assert.NotEqual(t, RideStatusCancelled, s, "отмена водителю недоступна")
		assert.NotEqual(t, RideStatusPending, s)
	}
}

func TestToResponseNormalizesNilSlices(t *testing.T) {
	ride := Ride{ID: "r1", Status: RideStatusPending}
	resp := ride.ToResponse()

	assert.NotNil(t, resp.SpecialNeeds)
	assert.Empty(t, resp.SpecialNeeds)
	assert.Nil(t, resp.DriverInfo)
}
