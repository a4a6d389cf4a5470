package domain

import "time"

// ReturnStatus описывает жизненный цикл заявки на возврат.
// Сменой статусов управляет бэк-офис, не этот модуль.
type ReturnStatus string

const (
	// ReturnStatusPending — заявка подана и ждёт рассмотрения.
	ReturnStatusPending ReturnStatus = "pending"
	// ReturnStatusProcessing — заявка принята, товар в пути/на проверке.
	ReturnStatusProcessing ReturnStatus = "processing"
	// ReturnStatusClosed — заявка завершена (возврат выполнен или отклонён).
	ReturnStatusClosed ReturnStatus = "closed"
	// ReturnStatusCancelled — заявка отменена покупателем.
	ReturnStatusCancelled ReturnStatus = "cancelled"
)

// Open сообщает, считается ли заявка в этом статусе открытой.
// По одному заказу допускается не более одной открытой заявки.
func (s ReturnStatus) Open() bool {
	return s == ReturnStatusPending || s == ReturnStatusProcessing
}

// ReturnItem представляет одну возвращаемую позицию заказа.
type ReturnItem struct {
	// OrderItemID ссылается на позицию исходного заказа.
	OrderItemID string
	// Qty — возвращаемое количество, не больше заказанного.
	Qty int32
	// Reason — причина возврата, выбранная покупателем.
	Reason string
	// RequestedAction — чего покупатель ожидает (обмен, возврат денег и т.п.).
	RequestedAction string
}

// ReturnRequest агрегирует одну заявку покупателя на возврат по заказу.
type ReturnRequest struct {
	ID         string
	// ReturnNumber — сквозной порядковый номер, присваиваемый хранилищем
	// при успешной подаче. Ноль означает, что заявка ещё не сохранена;
	// успешной считается заявка с ReturnNumber > 0.
	ReturnNumber int64
	CustomerID   string
	OrderID      string
	Items        []ReturnItem
	Comments     string
	// PickupDate — желаемая дата забора товара; nil, если не указана.
	PickupDate *time.Time
	// PickupAddress принадлежит заявке: либо снимок сохранённого адреса
	// покупателя, либо новый адрес, собранный из атрибутов формы.
	PickupAddress Address
	Status        ReturnStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Submitted сообщает, была ли заявка успешно подана.
func (rr *ReturnRequest) Submitted() bool {
	return rr.ReturnNumber > 0
}

// ValidateInvariants проверяет базовые инварианты заявки и возвращает список замечаний.
func (rr *ReturnRequest) ValidateInvariants() []error {
	var errs []error

	if rr.CustomerID == "" {
		errs = append(errs, ErrReturnCustomerRequired)
	}
	if rr.OrderID == "" {
		errs = append(errs, ErrReturnOrderRequired)
	}
	if len(rr.Items) == 0 {
		errs = append(errs, ErrReturnItemsRequired)
	}
	for _, item := range rr.Items {
		if item.OrderItemID == "" {
			errs = append(errs, ErrReturnOrderItemRequired)
		}
		if item.Qty <= 0 {
			errs = append(errs, ErrReturnItemQtyInvalid)
		}
	}

	return errs
}
