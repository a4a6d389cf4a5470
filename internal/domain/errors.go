package domain

import "errors"

var (
	// ErrOrderNotFound возвращается, если заказ не найден либо принадлежит
	// другому покупателю: чужие заказы наружу неотличимы от несуществующих.
	ErrOrderNotFound = errors.New("order not found")
	// ErrCustomerNotFound возвращается, если покупатель не найден.
	ErrCustomerNotFound = errors.New("customer not found")
	// ErrCustomerNotRegistered — операция доступна только зарегистрированным покупателям.
	ErrCustomerNotRegistered = errors.New("customer is not registered")
	// ErrCustomerVersionConflict сигнализирует о конфликте версий при сохранении покупателя.
	ErrCustomerVersionConflict = errors.New("customer version conflict")

	// ErrReturnNotAllowed — заказ не проходит проверку допустимости возврата.
	ErrReturnNotAllowed = errors.New("return request is not allowed for this order")
	// ErrReturnRequestNotFound возвращается, если заявка не найдена либо
	// принадлежит другому покупателю.
	ErrReturnRequestNotFound = errors.New("return request not found")
	// ErrReturnRequestAlreadyOpen — по заказу уже есть открытая заявка на возврат.
	ErrReturnRequestAlreadyOpen = errors.New("an open return request already exists for this order")
	// ErrPickupDateRequired — настройки требуют дату забора, а она не указана.
	ErrPickupDateRequired = errors.New("pickup date is required")
	// ErrNoItemsSelected — не выбрана ни одна позиция для возврата.
	// Количество сверх заказанного не считается ошибкой: оно урезается
	// до заказанного, и заявка без единой положительной позиции пуста.
	ErrNoItemsSelected = errors.New("at least one item must be selected for return")
	// ErrPickupAddressNotFound — указанный адрес забора не найден среди сохранённых.
	ErrPickupAddressNotFound = errors.New("pickup address not found")

	// Ошибки схемы атрибутов адреса; оборачиваются с именем атрибута.
	ErrAddressAttributeUnknown  = errors.New("unknown address attribute")
	ErrAddressAttributeRequired = errors.New("address attribute is required")
	ErrAddressAttributeTooLong  = errors.New("address attribute value is too long")

	// Ошибки инвариантов ReturnRequest.
	ErrReturnCustomerRequired  = errors.New("customer_id is required")
	ErrReturnOrderRequired     = errors.New("order_id is required")
	ErrReturnItemsRequired     = errors.New("return request must contain at least one item")
	ErrReturnOrderItemRequired = errors.New("return item must reference an order item")
	ErrReturnItemQtyInvalid    = errors.New("return item qty must be greater than zero")

	// ErrGiftCardNotFound — карта с таким кодом или идентификатором не найдена.
	ErrGiftCardNotFound = errors.New("gift card not found")
	// ErrGiftCardAlreadyApplied — покупатель уже применил эту карту.
	ErrGiftCardAlreadyApplied = errors.New("gift card is already applied")
	// ErrGiftCardNotApplied — карта не применена к покупателю, снимать нечего.
	ErrGiftCardNotApplied = errors.New("gift card is not applied to this customer")
	// ErrGiftCardNotUsable — текущий момент вне периода действия карты.
	ErrGiftCardNotUsable = errors.New("gift card is not valid at this time")
	// ErrGiftCardEmpty — на карте не осталось средств.
	ErrGiftCardEmpty = errors.New("gift card has no remaining balance")
	// ErrGiftCardConsumed — часть номинала уже потрачена заказами;
	// снятие такой карты запрещено.
	ErrGiftCardConsumed = errors.New("gift card value has been partially consumed")

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrCustomerVersionConflict)
}

// IsNotFound проверяет, относится ли ошибка к классу "не найдено".
func IsNotFound(err error) bool {
	return errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, ErrCustomerNotFound) ||
		errors.Is(err, ErrReturnRequestNotFound) ||
		errors.Is(err, ErrGiftCardNotFound) ||
		errors.Is(err, ErrGiftCardNotApplied)
}
