package returns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dborovsky/grandnode/internal/dispatch"
	"github.com/dborovsky/grandnode/internal/domain"
	"github.com/dborovsky/grandnode/internal/metrics"
)

// Имена запросов в реестре диспетчера.
const (
	RequestSubmitReturnRequest    = "returns.submit_return_request"
	RequestCustomerReturnRequests = "returns.customer_return_requests"
	RequestReturnRequestDetails   = "returns.return_request_details"
	RequestReturnRequestForm      = "returns.return_request_form"
	RequestReturnableOrders       = "returns.returnable_orders"

	defaultListReturnsLimit = 100

	timelineEventReturnSubmitted = "ReturnRequestSubmitted"

	eventTypeReturnSubmitted = "return_request.submitted"
	aggregateReturnRequest   = "return_request"
)

// SubmitReturnRequestCommand — подача заявки на возврат по заказу.
type SubmitReturnRequestCommand struct {
	CustomerID string
	OrderID    string
	Items      []ReturnItemForm
	Comments   string
	// PickupDate — желаемая дата забора; nil, если не указана.
	PickupDate *time.Time
	Address    AddressForm
}

// RequestName возвращает имя запроса для маршрутизации.
func (SubmitReturnRequestCommand) RequestName() string { return RequestSubmitReturnRequest }

// ReturnItemForm — одна строка формы возврата.
type ReturnItemForm struct {
	OrderItemID     string
	Qty             int32
	Reason          string
	RequestedAction string
}

// CustomerReturnRequestsQuery — список заявок покупателя.
type CustomerReturnRequestsQuery struct {
	CustomerID string
	Limit      int
}

// RequestName возвращает имя запроса для маршрутизации.
func (CustomerReturnRequestsQuery) RequestName() string { return RequestCustomerReturnRequests }

// ReturnRequestDetailsQuery — одна заявка с историей событий.
type ReturnRequestDetailsQuery struct {
	CustomerID      string
	ReturnRequestID string
}

// RequestName возвращает имя запроса для маршрутизации.
func (ReturnRequestDetailsQuery) RequestName() string { return RequestReturnRequestDetails }

// ReturnRequestFormQuery — данные для отображения формы подачи заявки.
type ReturnRequestFormQuery struct {
	CustomerID string
	OrderID    string
}

// RequestName возвращает имя запроса для маршрутизации.
func (ReturnRequestFormQuery) RequestName() string { return RequestReturnRequestForm }

// ReturnableOrdersQuery — заказы покупателя, по которым сейчас можно
// подать заявку на возврат.
type ReturnableOrdersQuery struct {
	CustomerID string
	Limit      int
}

// RequestName возвращает имя запроса для маршрутизации.
func (ReturnableOrdersQuery) RequestName() string { return RequestReturnableOrders }

// ReturnRequestDetails — заявка вместе с её историей.
type ReturnRequestDetails struct {
	Request  domain.ReturnRequest
	Timeline []domain.TimelineEvent
}

// ReturnRequestForm — презентационная модель формы подачи заявки:
// возвращаемые позиции заказа, сохранённые адреса и флаги настроек.
type ReturnRequestForm struct {
	Order                     domain.Order
	ReturnableItems           []domain.OrderItem
	SavedAddresses            []domain.Address
	AllowSpecifyPickupAddress bool
	AllowSpecifyPickupDate    bool
	PickupDateRequired        bool
}

// Service связывает проверку допустимости, резолвер адреса и хранилище
// заявок в сценарии подачи и чтения возвратов.
type Service struct {
	orders    domain.OrderRepository
	customers domain.CustomerRepository
	returns   domain.ReturnRequestRepository
	outbox    domain.OutboxRepository
	timeline  domain.TimelineRepository

	checker  *EligibilityChecker
	resolver *AddressResolver
	settings domain.ReturnSettings

	metrics *metrics.ReturnsMetrics
	logger  *log.Entry
	now     func() time.Time
}

// NewService конструирует сервис возвратов с зависимостями.
func NewService(
	orders domain.OrderRepository,
	customers domain.CustomerRepository,
	returnRepo domain.ReturnRequestRepository,
	outbox domain.OutboxRepository,
	timeline domain.TimelineRepository,
	settings domain.ReturnSettings,
	returnsMetrics *metrics.ReturnsMetrics,
	logger *log.Entry,
) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "returns-service")
	}
	return &Service{
		orders:    orders,
		customers: customers,
		returns:   returnRepo,
		outbox:    outbox,
		timeline:  timeline,
		checker:   NewEligibilityChecker(settings),
		resolver:  NewAddressResolver(nil),
		settings:  settings,
		metrics:   returnsMetrics,
		logger:    logger,
		now:       time.Now,
	}
}

// Register регистрирует обработчики сервиса в диспетчере.
func (s *Service) Register(d *dispatch.Dispatcher) error {
	if err := d.Register(RequestSubmitReturnRequest, dispatch.HandlerFunc(
		func(ctx context.Context, req dispatch.Request) (any, error) {
			cmd, ok := req.(SubmitReturnRequestCommand)
			if !ok {
				return nil, fmt.Errorf("unexpected request type %T", req)
			}
			return s.Submit(ctx, cmd)
		})); err != nil {
		return err
	}
	if err := d.Register(RequestCustomerReturnRequests, dispatch.HandlerFunc(
		func(ctx context.Context, req dispatch.Request) (any, error) {
			query, ok := req.(CustomerReturnRequestsQuery)
			if !ok {
				return nil, fmt.Errorf("unexpected request type %T", req)
			}
			return s.CustomerReturnRequests(ctx, query)
		})); err != nil {
		return err
	}
	if err := d.Register(RequestReturnRequestDetails, dispatch.HandlerFunc(
		func(ctx context.Context, req dispatch.Request) (any, error) {
			query, ok := req.(ReturnRequestDetailsQuery)
			if !ok {
				return nil, fmt.Errorf("unexpected request type %T", req)
			}
			return s.ReturnRequestDetails(ctx, query)
		})); err != nil {
		return err
	}
	if err := d.Register(RequestReturnRequestForm, dispatch.HandlerFunc(
		func(ctx context.Context, req dispatch.Request) (any, error) {
			query, ok := req.(ReturnRequestFormQuery)
			if !ok {
				return nil, fmt.Errorf("unexpected request type %T", req)
			}
			return s.ReturnRequestForm(ctx, query)
		})); err != nil {
		return err
	}
	return d.Register(RequestReturnableOrders, dispatch.HandlerFunc(
		func(ctx context.Context, req dispatch.Request) (any, error) {
			query, ok := req.(ReturnableOrdersQuery)
			if !ok {
				return nil, fmt.Errorf("unexpected request type %T", req)
			}
			return s.ReturnableOrders(ctx, query)
		}))
}

// Submit подаёт заявку на возврат. Все замечания к форме собираются
// в ValidationError, чтобы форму можно было показать с полным списком.
// Успешной заявке хранилище присваивает сквозной номер.
func (s *Service) Submit(_ context.Context, cmd SubmitReturnRequestCommand) (domain.ReturnRequest, error) {
	started := time.Now()
	defer s.observe("submit_return_request", started)

	if cmd.CustomerID == "" {
		return domain.ReturnRequest{}, newValidationError([]error{domain.ErrReturnCustomerRequired})
	}
	if cmd.OrderID == "" {
		return domain.ReturnRequest{}, newValidationError([]error{domain.ErrReturnOrderRequired})
	}

	customer, err := s.loadCustomer(cmd.CustomerID, "Submit")
	if err != nil {
		return domain.ReturnRequest{}, err
	}
	if !customer.Registered {
		return domain.ReturnRequest{}, domain.ErrCustomerNotRegistered
	}

	order, err := s.loadOwnedOrder(cmd.CustomerID, cmd.OrderID, "Submit")
	if err != nil {
		return domain.ReturnRequest{}, err
	}

	if err := s.checker.IsReturnRequestAllowed(order); err != nil {
		s.recordRejected()
		return domain.ReturnRequest{}, err
	}
	// Ранняя проверка; гонку двух одновременных заявок всё равно
	// разрешает хранилище при Create.
	if err := s.ensureNoOpenReturn(cmd.OrderID, "Submit"); err != nil {
		if errors.Is(err, domain.ErrReturnRequestAlreadyOpen) {
			s.recordRejected()
		}
		return domain.ReturnRequest{}, err
	}

	var errs []error

	items, itemErrs := buildReturnItems(order, cmd.Items)
	errs = append(errs, itemErrs...)

	pickupDate := cmd.PickupDate
	if !s.settings.AllowSpecifyPickupDate {
		pickupDate = nil
	} else if s.settings.PickupDateRequired && pickupDate == nil {
		errs = append(errs, domain.ErrPickupDateRequired)
	}

	pickupAddress, newAddressUsed, addrErrs := s.resolver.Resolve(customer, cmd.Address, s.settings)
	errs = append(errs, addrErrs...)

	if len(errs) > 0 {
		s.recordRejected()
		return domain.ReturnRequest{}, &ValidationError{Errs: errs, NewAddressUsed: newAddressUsed}
	}

	now := s.now().UTC()
	rr := domain.ReturnRequest{
		CustomerID:    cmd.CustomerID,
		OrderID:       cmd.OrderID,
		Items:         items,
		Comments:      cmd.Comments,
		PickupDate:    pickupDate,
		PickupAddress: pickupAddress,
		Status:        domain.ReturnStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if invErrs := rr.ValidateInvariants(); len(invErrs) > 0 {
		s.recordRejected()
		return domain.ReturnRequest{}, &ValidationError{Errs: invErrs, NewAddressUsed: newAddressUsed}
	}

	created, err := s.returns.Create(rr)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrReturnRequestAlreadyOpen):
			s.recordRejected()
			return domain.ReturnRequest{}, err
		default:
			s.logger.WithError(err).WithFields(log.Fields{
				"customer_id": cmd.CustomerID,
				"order_id":    cmd.OrderID,
			}).Error("failed to persist return request")
			return domain.ReturnRequest{}, fmt.Errorf("persist return request: %w", err)
		}
	}

	s.appendTimeline(created.ID, timelineEventReturnSubmitted, fmt.Sprintf("return #%d", created.ReturnNumber))
	s.enqueueReturnSubmitted(created)

	if s.metrics != nil {
		s.metrics.RecordReturnSubmitted()
	}
	s.logger.WithFields(log.Fields{
		"return_request_id": created.ID,
		"return_number":     created.ReturnNumber,
		"order_id":          created.OrderID,
	}).Info("return request submitted")

	return created, nil
}

// CustomerReturnRequests возвращает заявки покупателя, новые первыми.
func (s *Service) CustomerReturnRequests(_ context.Context, query CustomerReturnRequestsQuery) ([]domain.ReturnRequest, error) {
	started := time.Now()
	defer s.observe("customer_return_requests", started)

	if query.CustomerID == "" {
		return nil, domain.ErrReturnCustomerRequired
	}

	limit := query.Limit
	if limit <= 0 {
		limit = defaultListReturnsLimit
	}

	list, err := s.returns.ListByCustomer(query.CustomerID, limit)
	if err != nil {
		s.logger.WithError(err).WithField("customer_id", query.CustomerID).Error("failed to list return requests")
		return nil, fmt.Errorf("list return requests: %w", err)
	}
	return list, nil
}

// ReturnRequestDetails возвращает заявку с историей событий.
// Чужая заявка неотличима от несуществующей: владение проверяется
// и по заявке, и по её заказу.
func (s *Service) ReturnRequestDetails(_ context.Context, query ReturnRequestDetailsQuery) (ReturnRequestDetails, error) {
	started := time.Now()
	defer s.observe("return_request_details", started)

	if query.CustomerID == "" || query.ReturnRequestID == "" {
		return ReturnRequestDetails{}, domain.ErrReturnRequestNotFound
	}

	rr, err := s.returns.Get(query.ReturnRequestID)
	if err != nil {
		if errors.Is(err, domain.ErrReturnRequestNotFound) {
			return ReturnRequestDetails{}, err
		}
		s.logger.WithError(err).WithField("return_request_id", query.ReturnRequestID).Error("failed to load return request")
		return ReturnRequestDetails{}, fmt.Errorf("load return request: %w", err)
	}
	if rr.CustomerID != query.CustomerID {
		return ReturnRequestDetails{}, domain.ErrReturnRequestNotFound
	}

	if _, err := s.loadOwnedOrder(query.CustomerID, rr.OrderID, "ReturnRequestDetails"); err != nil {
		if domain.IsNotFound(err) {
			return ReturnRequestDetails{}, domain.ErrReturnRequestNotFound
		}
		return ReturnRequestDetails{}, err
	}

	return ReturnRequestDetails{
		Request:  rr,
		Timeline: s.listTimeline(rr.ID),
	}, nil
}

// ReturnRequestForm возвращает данные для формы подачи заявки.
func (s *Service) ReturnRequestForm(_ context.Context, query ReturnRequestFormQuery) (ReturnRequestForm, error) {
	started := time.Now()
	defer s.observe("return_request_form", started)

	customer, err := s.loadCustomer(query.CustomerID, "ReturnRequestForm")
	if err != nil {
		return ReturnRequestForm{}, err
	}
	if !customer.Registered {
		return ReturnRequestForm{}, domain.ErrCustomerNotRegistered
	}

	order, err := s.loadOwnedOrder(query.CustomerID, query.OrderID, "ReturnRequestForm")
	if err != nil {
		return ReturnRequestForm{}, err
	}

	if err := s.checker.IsReturnRequestAllowed(order); err != nil {
		return ReturnRequestForm{}, err
	}
	if err := s.ensureNoOpenReturn(query.OrderID, "ReturnRequestForm"); err != nil {
		return ReturnRequestForm{}, err
	}

	return ReturnRequestForm{
		Order:                     order,
		ReturnableItems:           order.Items,
		SavedAddresses:            customer.Addresses,
		AllowSpecifyPickupAddress: s.settings.AllowSpecifyPickupAddress,
		AllowSpecifyPickupDate:    s.settings.AllowSpecifyPickupDate,
		PickupDateRequired:        s.settings.PickupDateRequired,
	}, nil
}

// ReturnableOrders возвращает завершённые заказы покупателя, по которым
// сейчас можно открыть возврат: срок не вышел и открытой заявки нет.
func (s *Service) ReturnableOrders(_ context.Context, query ReturnableOrdersQuery) ([]domain.Order, error) {
	started := time.Now()
	defer s.observe("returnable_orders", started)

	if query.CustomerID == "" {
		return nil, domain.ErrReturnCustomerRequired
	}
	customer, err := s.loadCustomer(query.CustomerID, "ReturnableOrders")
	if err != nil {
		return nil, err
	}
	if !customer.Registered {
		return nil, domain.ErrCustomerNotRegistered
	}

	limit := query.Limit
	if limit <= 0 {
		limit = defaultListReturnsLimit
	}

	// Лимит применяется после фильтрации, поэтому выборка без лимита.
	orders, err := s.orders.ListByCustomer(query.CustomerID, 0)
	if err != nil {
		s.logger.WithError(err).WithField("customer_id", query.CustomerID).Error("failed to list orders")
		return nil, fmt.Errorf("list orders: %w", err)
	}

	result := make([]domain.Order, 0, len(orders))
	for _, order := range orders {
		if s.checker.IsReturnRequestAllowed(order) != nil {
			continue
		}
		if err := s.ensureNoOpenReturn(order.ID, "ReturnableOrders"); err != nil {
			if errors.Is(err, domain.ErrReturnRequestAlreadyOpen) {
				continue
			}
			return nil, err
		}
		result = append(result, order)
		if len(result) == limit {
			break
		}
	}
	return result, nil
}

// ensureNoOpenReturn проверяет, что по заказу нет открытой заявки.
func (s *Service) ensureNoOpenReturn(orderID, operation string) error {
	_, err := s.returns.GetOpenByOrder(orderID)
	switch {
	case err == nil:
		return domain.ErrReturnRequestAlreadyOpen
	case errors.Is(err, domain.ErrReturnRequestNotFound):
		return nil
	default:
		s.logger.WithError(err).WithFields(log.Fields{
			"operation": operation,
			"order_id":  orderID,
		}).Error("failed to check open return request")
		return fmt.Errorf("check open return request: %w", err)
	}
}

// buildReturnItems сверяет строки формы с позициями заказа.
// Количество сверх заказанного урезается до заказанного; строки
// с нулевым количеством пропускаются.
func buildReturnItems(order domain.Order, forms []ReturnItemForm) ([]domain.ReturnItem, []error) {
	var errs []error

	items := make([]domain.ReturnItem, 0, len(forms))
	for _, form := range forms {
		if form.OrderItemID == "" {
			errs = append(errs, domain.ErrReturnOrderItemRequired)
			continue
		}
		orderItem, ok := order.Item(form.OrderItemID)
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %s", domain.ErrReturnOrderItemRequired, form.OrderItemID))
			continue
		}
		qty := form.Qty
		if qty > orderItem.Qty {
			qty = orderItem.Qty
		}
		if qty <= 0 {
			continue
		}
		items = append(items, domain.ReturnItem{
			OrderItemID:     form.OrderItemID,
			Qty:             qty,
			Reason:          form.Reason,
			RequestedAction: form.RequestedAction,
		})
	}

	if len(items) == 0 && len(errs) == 0 {
		errs = append(errs, domain.ErrNoItemsSelected)
	}
	return items, errs
}

func (s *Service) loadCustomer(customerID, operation string) (domain.Customer, error) {
	customer, err := s.customers.Get(customerID)
	if err == nil {
		return customer, nil
	}

	s.logger.WithError(err).WithFields(log.Fields{
		"operation":   operation,
		"customer_id": customerID,
	}).Warn("failed to load customer")

	if errors.Is(err, domain.ErrCustomerNotFound) {
		return domain.Customer{}, err
	}
	return domain.Customer{}, fmt.Errorf("load customer: %w", err)
}

// loadOwnedOrder загружает заказ и проверяет владение: чужой заказ
// наружу неотличим от несуществующего.
func (s *Service) loadOwnedOrder(customerID, orderID, operation string) (domain.Order, error) {
	order, err := s.orders.Get(orderID)
	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"operation": operation,
			"order_id":  orderID,
		}).Warn("failed to load order")

		if errors.Is(err, domain.ErrOrderNotFound) {
			return domain.Order{}, err
		}
		return domain.Order{}, fmt.Errorf("load order: %w", err)
	}
	if order.CustomerID != customerID {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order, nil
}

func (s *Service) appendTimeline(returnRequestID, eventType, reason string) {
	if s.timeline == nil {
		return
	}
	event := domain.TimelineEvent{
		ReturnRequestID: returnRequestID,
		Type:            eventType,
		Reason:          reason,
		Occurred:        s.now().UTC(),
	}
	if err := s.timeline.Append(event); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"return_request_id": returnRequestID,
			"event":             eventType,
		}).Warn("failed to append timeline event")
		return
	}
	if s.metrics != nil {
		s.metrics.RecordTimelineEvent()
	}
}

func (s *Service) listTimeline(returnRequestID string) []domain.TimelineEvent {
	if s.timeline == nil {
		return nil
	}
	events, err := s.timeline.List(returnRequestID)
	if err != nil {
		s.logger.WithError(err).WithField("return_request_id", returnRequestID).Warn("failed to list timeline events")
		return nil
	}
	return events
}

type returnSubmittedPayload struct {
	ReturnRequestID string `json:"return_request_id"`
	ReturnNumber    int64  `json:"return_number"`
	CustomerID      string `json:"customer_id"`
	OrderID         string `json:"order_id"`
	SubmittedAt     string `json:"submitted_at"`
}

// enqueueReturnSubmitted кладёт событие подачи в outbox. Заявка уже
// сохранена, поэтому сбой публикации не отменяет подачу: worker
// публикует из хранилища, а потеря best-effort записи только логируется.
func (s *Service) enqueueReturnSubmitted(rr domain.ReturnRequest) {
	if s.outbox == nil {
		return
	}
	payload, err := json.Marshal(returnSubmittedPayload{
		ReturnRequestID: rr.ID,
		ReturnNumber:    rr.ReturnNumber,
		CustomerID:      rr.CustomerID,
		OrderID:         rr.OrderID,
		SubmittedAt:     rr.CreatedAt.Format(time.RFC3339),
	})
	if err != nil {
		s.logger.WithError(err).WithField("return_request_id", rr.ID).Warn("failed to encode outbox payload")
		return
	}
	if _, err := s.outbox.Enqueue(domain.OutboxMessage{
		AggregateType: aggregateReturnRequest,
		AggregateID:   rr.ID,
		EventType:     eventTypeReturnSubmitted,
		Payload:       payload,
	}); err != nil {
		s.logger.WithError(err).WithField("return_request_id", rr.ID).Warn("failed to enqueue outbox event")
		return
	}
	if s.metrics != nil {
		s.metrics.RecordOutboxEvent()
	}
}

func (s *Service) recordRejected() {
	if s.metrics != nil {
		s.metrics.RecordReturnRejected()
	}
}

func (s *Service) observe(operation string, started time.Time) {
	if s.metrics != nil {
		s.metrics.RecordHandlerDuration(operation, time.Since(started))
	}
}
