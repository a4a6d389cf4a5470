package giftcard

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dborovsky/grandnode/internal/dispatch"
	"github.com/dborovsky/grandnode/internal/domain"
	"github.com/dborovsky/grandnode/internal/storage/memory"
)

type testEnv struct {
	ledger    *Ledger
	customers domain.CustomerRepository
	cards     *memory.GiftCardStore
	outbox    domain.OutboxRepository
	now       time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	customers := memory.NewCustomerRepository()
	require.NoError(t, customers.Create(domain.Customer{
		ID:         "customer-1",
		Email:      "ivan@example.com",
		Registered: true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}))
	require.NoError(t, customers.Create(domain.Customer{
		ID:         "customer-guest",
		Email:      "guest@example.com",
		Registered: false,
		CreatedAt:  now,
		UpdatedAt:  now,
	}))

	cards := memory.NewGiftCardRepository()
	cards.Put(domain.GiftCard{
		ID:           "gc-1",
		Code:         "SAVE10",
		AmountMinor:  1000,
		BalanceMinor: 1000,
		CreatedAt:    now,
	})

	outbox := memory.NewOutboxRepository()

	ledger := NewLedger(customers, cards, outbox, nil, nil)
	ledger.now = func() time.Time { return now }

	return &testEnv{
		ledger:    ledger,
		customers: customers,
		cards:     cards,
		outbox:    outbox,
		now:       now,
	}
}

func TestLedgerApply_Success(t *testing.T) {
	env := newTestEnv(t)

	applied, err := env.ledger.Apply(context.Background(), ApplyGiftCardCommand{
		CustomerID: "customer-1",
		CouponCode: " save10 ",
	})
	require.NoError(t, err)
	require.True(t, applied)

	customer, err := env.customers.Get("customer-1")
	require.NoError(t, err)
	require.EqualValues(t, 1000, customer.GiftBalanceMinor)
	require.Len(t, customer.GiftCards, 1)
	require.Equal(t, "gc-1", customer.GiftCards[0].GiftCardID)
	require.Equal(t, "SAVE10", customer.GiftCards[0].Code)

	pending, err := env.outbox.PullPending(10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, eventTypeGiftCardApplied, pending[0].EventType)
}

func TestLedgerApply_SecondTimeRejected(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.ledger.Apply(context.Background(), ApplyGiftCardCommand{
		CustomerID: "customer-1",
		CouponCode: "SAVE10",
	})
	require.NoError(t, err)

	applied, err := env.ledger.Apply(context.Background(), ApplyGiftCardCommand{
		CustomerID: "customer-1",
		CouponCode: "save10",
	})
	require.ErrorIs(t, err, domain.ErrGiftCardAlreadyApplied)
	require.False(t, applied)

	// Баланс зачислен ровно один раз.
	customer, err := env.customers.Get("customer-1")
	require.NoError(t, err)
	require.EqualValues(t, 1000, customer.GiftBalanceMinor)
}

func TestLedgerApply_UnknownCode(t *testing.T) {
	env := newTestEnv(t)

	applied, err := env.ledger.Apply(context.Background(), ApplyGiftCardCommand{
		CustomerID: "customer-1",
		CouponCode: "NOPE",
	})
	require.ErrorIs(t, err, domain.ErrGiftCardNotFound)
	require.False(t, applied)
}

func TestLedgerApply_EmptyCode(t *testing.T) {
	env := newTestEnv(t)

	applied, err := env.ledger.Apply(context.Background(), ApplyGiftCardCommand{
		CustomerID: "customer-1",
		CouponCode: "   ",
	})
	require.ErrorIs(t, err, domain.ErrGiftCardNotFound)
	require.False(t, applied)
}

func TestLedgerApply_OutsideValidityWindow(t *testing.T) {
	env := newTestEnv(t)

	env.cards.Put(domain.GiftCard{
		ID:           "gc-expired",
		Code:         "OLD",
		AmountMinor:  500,
		BalanceMinor: 500,
		ValidTo:      env.now.AddDate(0, 0, -1),
		CreatedAt:    env.now.AddDate(-1, 0, 0),
	})

	applied, err := env.ledger.Apply(context.Background(), ApplyGiftCardCommand{
		CustomerID: "customer-1",
		CouponCode: "OLD",
	})
	require.ErrorIs(t, err, domain.ErrGiftCardNotUsable)
	require.False(t, applied)
}

func TestLedgerApply_EmptyBalance(t *testing.T) {
	env := newTestEnv(t)

	env.cards.Put(domain.GiftCard{
		ID:           "gc-empty",
		Code:         "ZERO",
		AmountMinor:  1000,
		BalanceMinor: 0,
		CreatedAt:    env.now,
	})

	applied, err := env.ledger.Apply(context.Background(), ApplyGiftCardCommand{
		CustomerID: "customer-1",
		CouponCode: "ZERO",
	})
	require.ErrorIs(t, err, domain.ErrGiftCardEmpty)
	require.False(t, applied)
}

func TestLedgerApply_UnregisteredCustomer(t *testing.T) {
	env := newTestEnv(t)

	applied, err := env.ledger.Apply(context.Background(), ApplyGiftCardCommand{
		CustomerID: "customer-guest",
		CouponCode: "SAVE10",
	})
	require.ErrorIs(t, err, domain.ErrCustomerNotRegistered)
	require.False(t, applied)
}

func TestLedgerRemove_UnregisteredCustomer(t *testing.T) {
	env := newTestEnv(t)

	removed, err := env.ledger.Remove(context.Background(), RemoveGiftCardCommand{
		CustomerID: "customer-guest",
		GiftCardID: "gc-1",
	})
	require.ErrorIs(t, err, domain.ErrCustomerNotRegistered)
	require.False(t, removed)
}

func TestLedgerRemove_Success(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.ledger.Apply(context.Background(), ApplyGiftCardCommand{
		CustomerID: "customer-1",
		CouponCode: "SAVE10",
	})
	require.NoError(t, err)

	removed, err := env.ledger.Remove(context.Background(), RemoveGiftCardCommand{
		CustomerID: "customer-1",
		GiftCardID: "gc-1",
	})
	require.NoError(t, err)
	require.True(t, removed)

	customer, err := env.customers.Get("customer-1")
	require.NoError(t, err)
	require.EqualValues(t, 0, customer.GiftBalanceMinor)
	require.Empty(t, customer.GiftCards)

	pending, err := env.outbox.PullPending(10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, eventTypeGiftCardRemoved, pending[1].EventType)
}

func TestLedgerRemove_NotApplied(t *testing.T) {
	env := newTestEnv(t)

	removed, err := env.ledger.Remove(context.Background(), RemoveGiftCardCommand{
		CustomerID: "customer-1",
		GiftCardID: "gc-1",
	})
	require.ErrorIs(t, err, domain.ErrGiftCardNotApplied)
	require.False(t, removed)
}

// Снятие запрещено, как только часть номинала потрачена заказами.
func TestLedgerRemove_ConsumedCardRefused(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.ledger.Apply(context.Background(), ApplyGiftCardCommand{
		CustomerID: "customer-1",
		CouponCode: "SAVE10",
	})
	require.NoError(t, err)

	env.cards.Put(domain.GiftCard{
		ID:           "gc-1",
		Code:         "SAVE10",
		AmountMinor:  1000,
		BalanceMinor: 400,
		Usage: []domain.GiftCardUsage{
			{ID: "usage-1", OrderID: "order-1", AmountMinor: 600, UsedAt: env.now},
		},
		CreatedAt: env.now,
	})

	removed, err := env.ledger.Remove(context.Background(), RemoveGiftCardCommand{
		CustomerID: "customer-1",
		GiftCardID: "gc-1",
	})
	require.ErrorIs(t, err, domain.ErrGiftCardConsumed)
	require.False(t, removed)

	// Запись и баланс остаются как были.
	customer, err := env.customers.Get("customer-1")
	require.NoError(t, err)
	require.EqualValues(t, 1000, customer.GiftBalanceMinor)
	require.Len(t, customer.GiftCards, 1)
}

func TestLedgerApply_ConcurrentSingleCredit(t *testing.T) {
	env := newTestEnv(t)

	// Обе стороны читают одну версию покупателя; сохранение второй
	// завершится конфликтом версий без двойного зачисления.
	stale, err := env.customers.Get("customer-1")
	require.NoError(t, err)

	_, err = env.ledger.Apply(context.Background(), ApplyGiftCardCommand{
		CustomerID: "customer-1",
		CouponCode: "SAVE10",
	})
	require.NoError(t, err)

	stale.GiftBalanceMinor += 1000
	require.ErrorIs(t, env.customers.Save(stale), domain.ErrCustomerVersionConflict)

	customer, err := env.customers.Get("customer-1")
	require.NoError(t, err)
	require.EqualValues(t, 1000, customer.GiftBalanceMinor)
}

func TestLedgerRegister(t *testing.T) {
	env := newTestEnv(t)

	d := dispatch.New()
	require.NoError(t, env.ledger.Register(d))
	require.NoError(t, d.EnsureRegistered(RequestApplyGiftCard, RequestRemoveGiftCard))

	result, err := d.Send(context.Background(), ApplyGiftCardCommand{
		CustomerID: "customer-1",
		CouponCode: "SAVE10",
	})
	require.NoError(t, err)

	applied, ok := result.(bool)
	require.True(t, ok)
	require.True(t, applied)

	require.ErrorIs(t, env.ledger.Register(d), dispatch.ErrHandlerExists)
}
