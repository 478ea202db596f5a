package lifecycle

import (
	"testing"

	"ms-qrinventory/internal/apperr"
	"ms-qrinventory/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextFollowsTransitionTable(t *testing.T) {
	cases := []struct {
		from models.QRState
		ev   Event
		to   models.QRState
	}{
		{models.QRStateUnsold, EventReserve, models.QRStateReserved},
		{models.QRStateUnsold, EventDirectSale, models.QRStateSoldActive},
		{models.QRStateReserved, EventApprove, models.QRStateSoldPendingActivation},
		{models.QRStateReserved, EventReject, models.QRStateRejected},
		{models.QRStateRejected, EventApprove, models.QRStateSoldPendingActivation},
		{models.QRStateRejected, EventReserve, models.QRStateReserved},
		{models.QRStateSoldPendingActivation, EventActivate, models.QRStateSoldActive},
	}
	for _, tc := range cases {
		to, err := Next(tc.from, tc.ev)
		require.NoError(t, err, "%s/%s", tc.from, tc.ev)
		assert.Equal(t, tc.to, to, "%s/%s", tc.from, tc.ev)
	}
}

func TestActivationGuard(t *testing.T) {
	for _, from := range []models.QRState{models.QRStateReserved, models.QRStateRejected, models.QRStateUnsold} {
		_, err := Next(from, EventActivate)
		require.Error(t, err)
		assert.True(t, apperr.HasReason(err, apperr.ReasonForbiddenTransition), "from %s", from)
		assert.Equal(t, apperr.CodeInvalidState, apperr.CodeOf(err))
	}

	_, err := Next(models.QRStateSoldActive, EventActivate)
	assert.True(t, apperr.HasReason(err, apperr.ReasonAlreadyTerminal))
}

func TestIllegalTransitions(t *testing.T) {
	_, err := Next(models.QRStateSoldActive, EventReserve)
	assert.True(t, apperr.HasReason(err, apperr.ReasonInvalidStateTransition))

	_, err = Next(models.QRStateRejected, EventReject)
	assert.True(t, apperr.HasReason(err, apperr.ReasonInvalidStateTransition))

	_, err = Next(models.QRStateReserved, EventDirectSale)
	assert.Error(t, err)
}

func TestSources(t *testing.T) {
	assert.ElementsMatch(t, []models.QRState{models.QRStateUnsold, models.QRStateRejected}, Sources(EventReserve))
	assert.ElementsMatch(t, []models.QRState{models.QRStateReserved, models.QRStateRejected}, Sources(EventApprove))
	assert.Equal(t, []models.QRState{models.QRStateSoldPendingActivation}, Sources(EventActivate))
	assert.True(t, Available(models.QRStateUnsold))
	assert.False(t, Available(models.QRStateReserved))
}

func TestNextTicketStatus(t *testing.T) {
	to, err := NextTicketStatus(models.TicketPending, models.DecisionApprove)
	require.NoError(t, err)
	assert.Equal(t, models.TicketApproved, to)

	to, err = NextTicketStatus(models.TicketPending, models.DecisionReject)
	require.NoError(t, err)
	assert.Equal(t, models.TicketRejected, to)

	to, err = NextTicketStatus(models.TicketRejected, models.DecisionApprove)
	require.NoError(t, err)
	assert.Equal(t, models.TicketApproved, to)

	_, err = NextTicketStatus(models.TicketRejected, models.DecisionReject)
	assert.True(t, apperr.HasReason(err, apperr.ReasonInvalidStateTransition))

	for _, d := range []models.Decision{models.DecisionApprove, models.DecisionReject} {
		_, err = NextTicketStatus(models.TicketApproved, d)
		assert.True(t, apperr.HasReason(err, apperr.ReasonAlreadyTerminal))
	}

	_, err = NextTicketStatus(models.TicketPending, models.Decision("MAYBE"))
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
}

func TestSerial(t *testing.T) {
	serial, err := NewSerial()
	require.NoError(t, err)
	assert.NoError(t, ValidateSerial(serial))
	assert.Len(t, serial, 12)

	for _, bad := range []string{"", "QR123", "qr0000000001", "QR00000000012", "AB12345678X9"} {
		err := ValidateSerial(bad)
		assert.True(t, apperr.HasReason(err, apperr.ReasonInvalidSerial), bad)
	}
}
