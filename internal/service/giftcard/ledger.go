// Пакет giftcard ведёт применение подарочных карт к покупателям:
// зачисление остатка карты на подарочный баланс и его откат.
package giftcard

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
	RequestApplyGiftCard  = "giftcard.apply_gift_card"
	RequestRemoveGiftCard = "giftcard.remove_gift_card"

	eventTypeGiftCardApplied = "gift_card.applied"
	eventTypeGiftCardRemoved = "gift_card.removed"
	aggregateGiftCard        = "gift_card"
)

// ApplyGiftCardCommand — применение карты по коду купона.
type ApplyGiftCardCommand struct {
	CustomerID string
	CouponCode string
}

// RequestName возвращает имя запроса для маршрутизации.
func (ApplyGiftCardCommand) RequestName() string { return RequestApplyGiftCard }

// RemoveGiftCardCommand — снятие ранее применённой карты.
type RemoveGiftCardCommand struct {
	CustomerID string
	GiftCardID string
}

// RequestName возвращает имя запроса для маршрутизации.
func (RemoveGiftCardCommand) RequestName() string { return RequestRemoveGiftCard }

// Ledger применяет и снимает подарочные карты. Проверка "ещё не
// применена" и зачисление выполняются как одна атомарная единица
// через optimistic locking покупателя: конкурирующая запись получает
// конфликт версий, двойного зачисления не бывает.
type Ledger struct {
	customers domain.CustomerRepository
	cards     domain.GiftCardRepository
	outbox    domain.OutboxRepository

	metrics *metrics.ReturnsMetrics
	logger  *log.Entry
	now     func() time.Time
}

// NewLedger конструирует ledger с зависимостями.
func NewLedger(
	customers domain.CustomerRepository,
	cards domain.GiftCardRepository,
	outbox domain.OutboxRepository,
	returnsMetrics *metrics.ReturnsMetrics,
	logger *log.Entry,
) *Ledger {
	if logger == nil {
		logger = log.New().WithField("component", "giftcard-ledger")
	}
	return &Ledger{
		customers: customers,
		cards:     cards,
		outbox:    outbox,
		metrics:   returnsMetrics,
		logger:    logger,
		now:       time.Now,
	}
}

// Register регистрирует обработчики ledger в диспетчере.
func (l *Ledger) Register(d *dispatch.Dispatcher) error {
	if err := d.Register(RequestApplyGiftCard, dispatch.HandlerFunc(
		func(ctx context.Context, req dispatch.Request) (any, error) {
			cmd, ok := req.(ApplyGiftCardCommand)
			if !ok {
				return nil, fmt.Errorf("unexpected request type %T", req)
			}
			return l.Apply(ctx, cmd)
		})); err != nil {
		return err
	}
	return d.Register(RequestRemoveGiftCard, dispatch.HandlerFunc(
		func(ctx context.Context, req dispatch.Request) (any, error) {
			cmd, ok := req.(RemoveGiftCardCommand)
			if !ok {
				return nil, fmt.Errorf("unexpected request type %T", req)
			}
			return l.Remove(ctx, cmd)
		}))
}

// Apply применяет карту к покупателю: остаток карты зачисляется на
// подарочный баланс, применение фиксируется записью. Каждая карта
// применяется не более одного раза.
func (l *Ledger) Apply(_ context.Context, cmd ApplyGiftCardCommand) (bool, error) {
	started := time.Now()
	defer l.observe("apply_gift_card", started)

	code := domain.NormalizeCouponCode(cmd.CouponCode)
	if cmd.CustomerID == "" || code == "" {
		return false, domain.ErrGiftCardNotFound
	}

	customer, err := l.loadCustomer(cmd.CustomerID, "Apply")
	if err != nil {
		return false, err
	}
	if !customer.Registered {
		return false, domain.ErrCustomerNotRegistered
	}

	card, err := l.cards.GetByCode(code)
	if err != nil {
		if errors.Is(err, domain.ErrGiftCardNotFound) {
			return false, err
		}
		l.logger.WithError(err).WithField("coupon_code", code).Error("failed to load gift card")
		return false, fmt.Errorf("load gift card: %w", err)
	}

	if customer.HasGiftCardCode(card.Code) {
		return false, domain.ErrGiftCardAlreadyApplied
	}
	if !card.UsableAt(l.now().UTC()) {
		return false, domain.ErrGiftCardNotUsable
	}
	if card.BalanceMinor <= 0 {
		return false, domain.ErrGiftCardEmpty
	}

	now := l.now().UTC()
	customer.GiftCards = append(customer.GiftCards, domain.AppliedGiftCard{
		GiftCardID:  card.ID,
		Code:        card.Code,
		AmountMinor: card.BalanceMinor,
		AppliedAt:   now,
	})
	customer.GiftBalanceMinor += card.BalanceMinor
	customer.UpdatedAt = now

	if err := l.saveCustomer(customer, "Apply"); err != nil {
		return false, err
	}

	l.enqueueGiftCardEvent(eventTypeGiftCardApplied, card.ID, card.Code, customer.ID, card.BalanceMinor)
	if l.metrics != nil {
		l.metrics.RecordGiftCardApplied()
	}
	l.logger.WithFields(log.Fields{
		"customer_id":  customer.ID,
		"gift_card_id": card.ID,
		"amount_minor": card.BalanceMinor,
	}).Info("gift card applied")

	return true, nil
}

// Remove снимает применённую карту и откатывает зачисление.
// Карта, часть номинала которой уже потрачена заказами, не снимается.
func (l *Ledger) Remove(_ context.Context, cmd RemoveGiftCardCommand) (bool, error) {
	started := time.Now()
	defer l.observe("remove_gift_card", started)

	if cmd.CustomerID == "" || cmd.GiftCardID == "" {
		return false, domain.ErrGiftCardNotApplied
	}

	customer, err := l.loadCustomer(cmd.CustomerID, "Remove")
	if err != nil {
		return false, err
	}
	if !customer.Registered {
		return false, domain.ErrCustomerNotRegistered
	}

	applied, ok := customer.AppliedGiftCardByID(cmd.GiftCardID)
	if !ok {
		return false, domain.ErrGiftCardNotApplied
	}

	card, err := l.cards.Get(cmd.GiftCardID)
	switch {
	case err == nil:
		if card.ConsumedMinor() > 0 {
			return false, domain.ErrGiftCardConsumed
		}
	case errors.Is(err, domain.ErrGiftCardNotFound):
		// Карту удалил каталог: списаний по ней уже не будет, запись снимаем.
		l.logger.WithField("gift_card_id", cmd.GiftCardID).Warn("applied gift card is gone from the catalog")
	default:
		l.logger.WithError(err).WithField("gift_card_id", cmd.GiftCardID).Error("failed to load gift card")
		return false, fmt.Errorf("load gift card: %w", err)
	}

	now := l.now().UTC()
	remaining := make([]domain.AppliedGiftCard, 0, len(customer.GiftCards)-1)
	for _, record := range customer.GiftCards {
		if record.GiftCardID != cmd.GiftCardID {
			remaining = append(remaining, record)
		}
	}
	customer.GiftCards = remaining
	customer.GiftBalanceMinor -= applied.AmountMinor
	customer.UpdatedAt = now

	if err := l.saveCustomer(customer, "Remove"); err != nil {
		return false, err
	}

	l.enqueueGiftCardEvent(eventTypeGiftCardRemoved, applied.GiftCardID, applied.Code, customer.ID, applied.AmountMinor)
	if l.metrics != nil {
		l.metrics.RecordGiftCardRemoved()
	}
	l.logger.WithFields(log.Fields{
		"customer_id":  customer.ID,
		"gift_card_id": applied.GiftCardID,
		"amount_minor": applied.AmountMinor,
	}).Info("gift card removed")

	return true, nil
}

func (l *Ledger) loadCustomer(customerID, operation string) (domain.Customer, error) {
	customer, err := l.customers.Get(customerID)
	if err == nil {
		return customer, nil
	}

	l.logger.WithError(err).WithFields(log.Fields{
		"operation":   operation,
		"customer_id": customerID,
	}).Warn("failed to load customer")

	if errors.Is(err, domain.ErrCustomerNotFound) {
		return domain.Customer{}, err
	}
	return domain.Customer{}, fmt.Errorf("load customer: %w", err)
}

func (l *Ledger) saveCustomer(customer domain.Customer, operation string) error {
	if err := l.customers.Save(customer); err != nil {
		if domain.IsVersionConflict(err) {
			if l.metrics != nil {
				l.metrics.RecordGiftCardConflict()
			}
			l.logger.WithFields(log.Fields{
				"operation":   operation,
				"customer_id": customer.ID,
			}).Warn("customer version conflict")
			return err
		}
		l.logger.WithError(err).WithFields(log.Fields{
			"operation":   operation,
			"customer_id": customer.ID,
		}).Error("failed to save customer")
		return fmt.Errorf("save customer: %w", err)
	}
	return nil
}

type giftCardEventPayload struct {
	GiftCardID  string `json:"gift_card_id"`
	Code        string `json:"code"`
	CustomerID  string `json:"customer_id"`
	AmountMinor int64  `json:"amount_minor"`
	OccurredAt  string `json:"occurred_at"`
}

func (l *Ledger) enqueueGiftCardEvent(eventType, giftCardID, code, customerID string, amountMinor int64) {
	if l.outbox == nil {
		return
	}
	payload, err := json.Marshal(giftCardEventPayload{
		GiftCardID:  giftCardID,
		Code:        code,
		CustomerID:  customerID,
		AmountMinor: amountMinor,
		OccurredAt:  l.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		l.logger.WithError(err).WithField("gift_card_id", giftCardID).Warn("failed to encode outbox payload")
		return
	}
	if _, err := l.outbox.Enqueue(domain.OutboxMessage{
		AggregateType: aggregateGiftCard,
		AggregateID:   giftCardID,
		EventType:     eventType,
		Payload:       payload,
	}); err != nil {
		l.logger.WithError(err).WithField("gift_card_id", giftCardID).Warn("failed to enqueue outbox event")
		return
	}
	if l.metrics != nil {
		l.metrics.RecordOutboxEvent()
	}
}

func (l *Ledger) observe(operation string, started time.Time) {
	if l.metrics != nil {
		l.metrics.RecordHandlerDuration(operation, time.Since(started))
	}
}
