package fulfillment_test

import (
	"regexp"
	"testing"
	"time"

	"github.com/cassiomorais/studiopay/internal/domain/errors"
	"github.com/cassiomorais/studiopay/internal/domain/fulfillment"
	"github.com/cassiomorais/studiopay/internal/domain/payment"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func details(qty int) payment.OrderDetails {
	return payment.OrderDetails{
		Customer: payment.Customer{Name: "Ada Lovelace", Email: "ada@example.com"},
		Quantity: qty,
	}
}

func TestNewBooking_RecordsReservedParticipants(t *testing.T) {
	b, err := fulfillment.NewBooking(uuid.New(), uuid.New(), details(2))
	require.NoError(t, err)

	assert.Equal(t, 2, b.Participants)
	assert.Equal(t, 2, b.ReservedParticipants)
	assert.Equal(t, fulfillment.StatusConfirmed, b.Status)
	assert.Equal(t, payment.ProductCourse, b.ProductType())
	assert.Equal(t, b.ID, b.FulfillmentID())
}

func TestBooking_CancelReleasesOriginalQuantityAfterEdit(t *testing.T) {
	b, err := fulfillment.NewBooking(uuid.New(), uuid.New(), details(2))
	require.NoError(t, err)

	require.NoError(t, b.EditParticipants(5))
	assert.Equal(t, 5, b.Participants)

	released, err := b.Cancel()
	require.NoError(t, err)
	assert.Equal(t, 2, released)
	assert.Equal(t, fulfillment.StatusCancelled, b.Status)
	assert.NotNil(t, b.CancelledAt)

	_, err = b.Cancel()
	assert.ErrorIs(t, err, errors.ErrAlreadyCancelled)
	assert.ErrorIs(t, b.EditParticipants(1), errors.ErrAlreadyCancelled)
}

func TestBooking_EditParticipantsRejectsZero(t *testing.T) {
	b, err := fulfillment.NewBooking(uuid.New(), uuid.New(), details(1))
	require.NoError(t, err)
	assert.ErrorIs(t, b.EditParticipants(0), errors.ErrValidationFailed)
}

func TestNewGiftCard_BalanceEqualsAmount(t *testing.T) {
	amount := payment.Amount{Minor: 30000, Currency: "SEK"}
	g, err := fulfillment.NewGiftCard(uuid.New(), "ABCD-EFGH-JKMN", amount, details(1), 365*24*time.Hour)
	require.NoError(t, err)

	assert.Equal(t, amount, g.Balance)
	assert.Equal(t, amount, g.InitialBalance)
	assert.WithinDuration(t, time.Now().Add(365*24*time.Hour), g.ExpiresAt, time.Minute)
	assert.False(t, g.IsExpired(time.Now()))
	assert.True(t, g.IsExpired(g.ExpiresAt))
}

func TestNewGiftCard_RequiresCode(t *testing.T) {
	_, err := fulfillment.NewGiftCard(uuid.New(), "", payment.Amount{Minor: 1, Currency: "SEK"}, details(1), time.Hour)
	assert.ErrorIs(t, err, errors.ErrValidationFailed)
}

func TestOrder_CancelReturnsReservedQuantity(t *testing.T) {
	o, err := fulfillment.NewOrder(uuid.New(), uuid.New(), details(3))
	require.NoError(t, err)

	o.Quantity = 1
	n, err := o.Cancel()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestCourse_Capacity(t *testing.T) {
	c := &fulfillment.Course{MaxParticipants: 10, Participants: 9}
	assert.Equal(t, 1, c.Remaining())
	assert.False(t, c.WouldOverbook(1))
	assert.True(t, c.WouldOverbook(2))
}

func TestProduct_WouldOversell(t *testing.T) {
	p := &fulfillment.Product{Stock: 1}
	assert.False(t, p.WouldOversell(1))
	assert.True(t, p.WouldOversell(2))
}

func TestRandomCodeGenerator(t *testing.T) {
	gen := fulfillment.NewRandomCodeGenerator()
	pattern := regexp.MustCompile(`^[A-HJKMNP-Z2-9]{4}-[A-HJKMNP-Z2-9]{4}-[A-HJKMNP-Z2-9]{4}$`)

	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		code, err := gen.Generate()
		require.NoError(t, err)
		assert.Regexp(t, pattern, code)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 190)
}

func TestNormalizeCode(t *testing.T) {
	assert.Equal(t, "ABCD-EFGH-JKMN", fulfillment.NormalizeCode(" abcd-efgh-jkmn "))
}
