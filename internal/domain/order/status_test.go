package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus_CanTransition(t *testing.T) {
	all := []Status{StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCanceled}
	allowed := map[[2]Status]bool{
		{StatusPending, StatusProcessing}:  true,
		{StatusPending, StatusCanceled}:    true,
		{StatusProcessing, StatusShipped}:  true,
		{StatusProcessing, StatusCanceled}: true,
		{StatusShipped, StatusDelivered}:   true,
	}

	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]Status{from, to}]
			assert.Equal(t, want, from.CanTransition(to), "%s -> %s", from, to)
		}
	}
	assert.True(t, StatusDelivered.Terminal())
	assert.True(t, StatusCanceled.Terminal())
	assert.False(t, StatusShipped.Terminal())
	assert.False(t, Status("lost").Valid())
	assert.False(t, Status("lost").CanTransition(StatusPending))
}

func TestPaymentStatus_CanTransition(t *testing.T) {
	all := []PaymentStatus{PaymentPending, PaymentPaid, PaymentFailed, PaymentRefunded, PaymentPartiallyRefunded}
	allowed := map[[2]PaymentStatus]bool{
		{PaymentPending, PaymentPaid}:                        true,
		{PaymentPending, PaymentFailed}:                      true,
		{PaymentPaid, PaymentRefunded}:                       true,
		{PaymentPaid, PaymentPartiallyRefunded}:              true,
		{PaymentPartiallyRefunded, PaymentPartiallyRefunded}: true,
		{PaymentPartiallyRefunded, PaymentRefunded}:          true,
	}

	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]PaymentStatus{from, to}]
			assert.Equal(t, want, from.CanTransition(to), "%s -> %s", from, to)
		}
	}
	assert.True(t, PaymentFailed.Terminal())
	assert.True(t, PaymentRefunded.Terminal())
	assert.False(t, PaymentPaid.Terminal())
}
