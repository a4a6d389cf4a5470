package returns

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
	service  *Service
	orders   *memory.OrderStore
	returns  domain.ReturnRequestRepository
	outbox   domain.OutboxRepository
	timeline domain.TimelineRepository
}

func newTestEnv(t *testing.T, settings domain.ReturnSettings) *testEnv {
	t.Helper()

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	orders := memory.NewOrderRepository()
	orders.Put(domain.Order{
		ID:          "order-1",
		CustomerID:  "customer-1",
		Status:      domain.OrderStatusComplete,
		Currency:    "USD",
		AmountMinor: 1500,
		Items: []domain.OrderItem{
			{ID: "item-1", SKU: "sku-1", Qty: 5, PriceMinor: 100, CreatedAt: now},
			{ID: "item-2", SKU: "sku-2", Qty: 2, PriceMinor: 500, CreatedAt: now},
		},
		CompletedAt: now.AddDate(0, 0, -1),
		CreatedAt:   now.AddDate(0, 0, -2),
		UpdatedAt:   now,
	})
	orders.Put(domain.Order{
		ID:          "order-foreign",
		CustomerID:  "customer-2",
		Status:      domain.OrderStatusComplete,
		Currency:    "USD",
		AmountMinor: 100,
		Items: []domain.OrderItem{
			{ID: "item-f1", SKU: "sku-9", Qty: 1, PriceMinor: 100, CreatedAt: now},
		},
		CompletedAt: now.AddDate(0, 0, -1),
		CreatedAt:   now.AddDate(0, 0, -2),
		UpdatedAt:   now,
	})

	customers := memory.NewCustomerRepository()
	require.NoError(t, customers.Create(domain.Customer{
		ID:         "customer-1",
		Email:      "ivan@example.com",
		Registered: true,
		Addresses: []domain.Address{
			{
				ID: "addr-1",
				Attributes: []domain.AddressAttribute{
					{Key: "FirstName", Value: "Ivan"},
					{Key: "City", Value: "Minsk"},
				},
				CreatedAt: now,
			},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}))
	require.NoError(t, customers.Create(domain.Customer{
		ID:         "customer-guest",
		Email:      "guest@example.com",
		Registered: false,
		CreatedAt:  now,
		UpdatedAt:  now,
	}))

	returnRepo := memory.NewReturnRequestRepository()
	outbox := memory.NewOutboxRepository()
	timeline := memory.NewTimelineRepository()

	service := NewService(orders, customers, returnRepo, outbox, timeline, settings, nil, nil)
	service.now = func() time.Time { return now }
	service.checker.now = service.now
	service.resolver.now = service.now

	return &testEnv{
		service:  service,
		orders:   orders,
		returns:  returnRepo,
		outbox:   outbox,
		timeline: timeline,
	}
}

func submitCommand() SubmitReturnRequestCommand {
	return SubmitReturnRequestCommand{
		CustomerID: "customer-1",
		OrderID:    "order-1",
		Items: []ReturnItemForm{
			{OrderItemID: "item-1", Qty: 2, Reason: "defective", RequestedAction: "refund"},
		},
		Comments: "scratched on arrival",
		Address:  AddressForm{PickupAddressID: "addr-1"},
	}
}

func TestServiceSubmit_Success(t *testing.T) {
	env := newTestEnv(t, domain.DefaultReturnSettings())

	created, err := env.service.Submit(context.Background(), submitCommand())
	require.NoError(t, err)
	require.True(t, created.Submitted())
	require.EqualValues(t, 1, created.ReturnNumber)
	require.Equal(t, domain.ReturnStatusPending, created.Status)
	require.Equal(t, "addr-1", created.PickupAddress.ID)
	require.Len(t, created.Items, 1)

	stored, err := env.returns.Get(created.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, stored.ReturnNumber)

	pending, err := env.outbox.PullPending(10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, eventTypeReturnSubmitted, pending[0].EventType)
	require.Equal(t, created.ID, pending[0].AggregateID)

	events, err := env.timeline.List(created.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, timelineEventReturnSubmitted, events[0].Type)
}

func TestServiceSubmit_SecondOpenReturnConflicts(t *testing.T) {
	env := newTestEnv(t, domain.DefaultReturnSettings())

	_, err := env.service.Submit(context.Background(), submitCommand())
	require.NoError(t, err)

	_, err = env.service.Submit(context.Background(), submitCommand())
	require.ErrorIs(t, err, domain.ErrReturnRequestAlreadyOpen)
}

func TestServiceSubmit_QtyClampedToOrdered(t *testing.T) {
	env := newTestEnv(t, domain.DefaultReturnSettings())

	cmd := submitCommand()
	cmd.Items = []ReturnItemForm{
		{OrderItemID: "item-1", Qty: 50, Reason: "defective", RequestedAction: "refund"},
	}

	created, err := env.service.Submit(context.Background(), cmd)
	require.NoError(t, err)
	require.EqualValues(t, 5, created.Items[0].Qty)
}

func TestServiceSubmit_ZeroQtyLinesSkipped(t *testing.T) {
	env := newTestEnv(t, domain.DefaultReturnSettings())

	cmd := submitCommand()
	cmd.Items = []ReturnItemForm{
		{OrderItemID: "item-1", Qty: 0},
		{OrderItemID: "item-2", Qty: 1, Reason: "wrong size", RequestedAction: "exchange"},
	}

	created, err := env.service.Submit(context.Background(), cmd)
	require.NoError(t, err)
	require.Len(t, created.Items, 1)
	require.Equal(t, "item-2", created.Items[0].OrderItemID)
}

func TestServiceSubmit_NoItemsSelected(t *testing.T) {
	env := newTestEnv(t, domain.DefaultReturnSettings())

	cmd := submitCommand()
	cmd.Items = []ReturnItemForm{{OrderItemID: "item-1", Qty: 0}}

	_, err := env.service.Submit(context.Background(), cmd)
	require.ErrorIs(t, err, domain.ErrNoItemsSelected)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

// Несколько дефектов формы возвращаются одним списком.
func TestServiceSubmit_CollectsAllValidationErrors(t *testing.T) {
	settings := domain.DefaultReturnSettings()
	settings.PickupDateRequired = true
	env := newTestEnv(t, settings)

	cmd := submitCommand()
	cmd.Items = nil
	cmd.Address = AddressForm{
		Attributes: []domain.AddressAttribute{{Key: "Nickname", Value: "Vanya"}},
	}

	_, err := env.service.Submit(context.Background(), cmd)
	require.Error(t, err)
	require.ErrorIs(t, err, domain.ErrNoItemsSelected)
	require.ErrorIs(t, err, domain.ErrPickupDateRequired)
	require.ErrorIs(t, err, domain.ErrAddressAttributeUnknown)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.GreaterOrEqual(t, len(verr.Errs), 3)
	// Покупатель вводил новый адрес, и клиент должен это увидеть.
	require.True(t, verr.NewAddressUsed)
}

// Ошибка по сохранённому адресу не помечается как ввод нового: клиент
// по флагу различает, какую часть адресной формы показать с ошибками.
func TestServiceSubmit_StaleSavedAddressNotMarkedNew(t *testing.T) {
	env := newTestEnv(t, domain.DefaultReturnSettings())

	cmd := submitCommand()
	cmd.Address = AddressForm{PickupAddressID: "addr-deleted"}

	_, err := env.service.Submit(context.Background(), cmd)
	require.ErrorIs(t, err, domain.ErrPickupAddressNotFound)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.False(t, verr.NewAddressUsed)
}

func TestServiceSubmit_PickupDateIgnoredWhenDisabled(t *testing.T) {
	settings := domain.DefaultReturnSettings()
	settings.AllowSpecifyPickupDate = false
	settings.PickupDateRequired = true
	env := newTestEnv(t, settings)

	pickup := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	cmd := submitCommand()
	cmd.PickupDate = &pickup

	created, err := env.service.Submit(context.Background(), cmd)
	require.NoError(t, err)
	require.Nil(t, created.PickupDate)
}

func TestServiceSubmit_ForeignOrderLooksMissing(t *testing.T) {
	env := newTestEnv(t, domain.DefaultReturnSettings())

	cmd := submitCommand()
	cmd.OrderID = "order-foreign"

	_, err := env.service.Submit(context.Background(), cmd)
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestServiceSubmit_UnregisteredCustomer(t *testing.T) {
	env := newTestEnv(t, domain.DefaultReturnSettings())

	cmd := submitCommand()
	cmd.CustomerID = "customer-guest"

	_, err := env.service.Submit(context.Background(), cmd)
	require.ErrorIs(t, err, domain.ErrCustomerNotRegistered)
}

func TestServiceSubmit_NotAllowedOrder(t *testing.T) {
	env := newTestEnv(t, domain.DefaultReturnSettings())

	env.orders.Put(domain.Order{
		ID:         "order-pending",
		CustomerID: "customer-1",
		Status:     domain.OrderStatusProcessing,
		Currency:   "USD",
		Items: []domain.OrderItem{
			{ID: "item-p1", SKU: "sku-1", Qty: 1, PriceMinor: 100},
		},
	})

	cmd := submitCommand()
	cmd.OrderID = "order-pending"
	cmd.Items = []ReturnItemForm{{OrderItemID: "item-p1", Qty: 1}}

	_, err := env.service.Submit(context.Background(), cmd)
	require.ErrorIs(t, err, domain.ErrReturnNotAllowed)
}

func TestServiceCustomerReturnRequests(t *testing.T) {
	env := newTestEnv(t, domain.DefaultReturnSettings())

	first, err := env.service.Submit(context.Background(), submitCommand())
	require.NoError(t, err)

	// Закрываем первую заявку и подаём вторую по тому же заказу.
	first.Status = domain.ReturnStatusClosed
	require.NoError(t, env.returns.Save(first))

	second, err := env.service.Submit(context.Background(), submitCommand())
	require.NoError(t, err)

	list, err := env.service.CustomerReturnRequests(context.Background(), CustomerReturnRequestsQuery{
		CustomerID: "customer-1",
	})
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, second.ID, list[0].ID)
	require.Equal(t, first.ID, list[1].ID)
}

func TestServiceReturnRequestDetails(t *testing.T) {
	env := newTestEnv(t, domain.DefaultReturnSettings())

	created, err := env.service.Submit(context.Background(), submitCommand())
	require.NoError(t, err)

	details, err := env.service.ReturnRequestDetails(context.Background(), ReturnRequestDetailsQuery{
		CustomerID:      "customer-1",
		ReturnRequestID: created.ID,
	})
	require.NoError(t, err)
	require.Equal(t, created.ID, details.Request.ID)
	require.Len(t, details.Timeline, 1)

	// Чужая заявка неотличима от несуществующей.
	_, err = env.service.ReturnRequestDetails(context.Background(), ReturnRequestDetailsQuery{
		CustomerID:      "customer-2",
		ReturnRequestID: created.ID,
	})
	require.ErrorIs(t, err, domain.ErrReturnRequestNotFound)

	_, err = env.service.ReturnRequestDetails(context.Background(), ReturnRequestDetailsQuery{
		CustomerID:      "customer-1",
		ReturnRequestID: "missing",
	})
	require.ErrorIs(t, err, domain.ErrReturnRequestNotFound)
}

func TestServiceReturnRequestForm(t *testing.T) {
	settings := domain.DefaultReturnSettings()
	settings.PickupDateRequired = true
	env := newTestEnv(t, settings)

	form, err := env.service.ReturnRequestForm(context.Background(), ReturnRequestFormQuery{
		CustomerID: "customer-1",
		OrderID:    "order-1",
	})
	require.NoError(t, err)
	require.Equal(t, "order-1", form.Order.ID)
	require.Len(t, form.ReturnableItems, 2)
	require.Len(t, form.SavedAddresses, 1)
	require.True(t, form.AllowSpecifyPickupAddress)
	require.True(t, form.PickupDateRequired)

	_, err = env.service.ReturnRequestForm(context.Background(), ReturnRequestFormQuery{
		CustomerID: "customer-1",
		OrderID:    "order-foreign",
	})
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}

// Форма не отдаётся по заказу с уже открытой заявкой: показывать её
// бессмысленно, подача всё равно упрётся в конфликт.
func TestServiceReturnRequestForm_OpenReturnBlocks(t *testing.T) {
	env := newTestEnv(t, domain.DefaultReturnSettings())

	_, err := env.service.Submit(context.Background(), submitCommand())
	require.NoError(t, err)

	_, err = env.service.ReturnRequestForm(context.Background(), ReturnRequestFormQuery{
		CustomerID: "customer-1",
		OrderID:    "order-1",
	})
	require.ErrorIs(t, err, domain.ErrReturnRequestAlreadyOpen)
}

func TestServiceReturnableOrders(t *testing.T) {
	env := newTestEnv(t, domain.DefaultReturnSettings())
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	// Срок возврата по этому заказу давно вышел.
	env.orders.Put(domain.Order{
		ID:          "order-old",
		CustomerID:  "customer-1",
		Status:      domain.OrderStatusComplete,
		Currency:    "USD",
		AmountMinor: 700,
		Items: []domain.OrderItem{
			{ID: "item-old", SKU: "sku-3", Qty: 1, PriceMinor: 700, CreatedAt: now.AddDate(-2, 0, 0)},
		},
		CompletedAt: now.AddDate(-2, 0, 0),
		CreatedAt:   now.AddDate(-2, 0, -1),
		UpdatedAt:   now.AddDate(-2, 0, 0),
	})

	list, err := env.service.ReturnableOrders(context.Background(), ReturnableOrdersQuery{CustomerID: "customer-1"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "order-1", list[0].ID)

	// После подачи заявки заказ выпадает из выборки.
	_, err = env.service.Submit(context.Background(), submitCommand())
	require.NoError(t, err)

	list, err = env.service.ReturnableOrders(context.Background(), ReturnableOrdersQuery{CustomerID: "customer-1"})
	require.NoError(t, err)
	require.Empty(t, list)

	_, err = env.service.ReturnableOrders(context.Background(), ReturnableOrdersQuery{CustomerID: ""})
	require.ErrorIs(t, err, domain.ErrReturnCustomerRequired)

	_, err = env.service.ReturnableOrders(context.Background(), ReturnableOrdersQuery{CustomerID: "customer-guest"})
	require.ErrorIs(t, err, domain.ErrCustomerNotRegistered)
}

func TestServiceRegister(t *testing.T) {
	env := newTestEnv(t, domain.DefaultReturnSettings())

	d := dispatch.New()
	require.NoError(t, env.service.Register(d))
	require.NoError(t, d.EnsureRegistered(
		RequestSubmitReturnRequest,
		RequestCustomerReturnRequests,
		RequestReturnRequestDetails,
		RequestReturnRequestForm,
		RequestReturnableOrders,
	))

	result, err := d.Send(context.Background(), submitCommand())
	require.NoError(t, err)

	created, ok := result.(domain.ReturnRequest)
	require.True(t, ok)
	require.EqualValues(t, 1, created.ReturnNumber)

	// Повторная регистрация тех же обработчиков — ошибка конфигурации.
	require.ErrorIs(t, env.service.Register(d), dispatch.ErrHandlerExists)
}
