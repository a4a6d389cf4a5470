package domain

// OrderRepository — read-only доступ к заказам. Запись принадлежит
// подсистеме оформления заказов.
type OrderRepository interface {
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(id string) (Order, error)
	// ListByCustomer возвращает заказы покупателя с опциональным ограничением на количество.
	ListByCustomer(customerID string, limit int) ([]Order, error)
}

// CustomerRepository описывает требования к хранилищу покупателей.
type CustomerRepository interface {
	// Get возвращает покупателя по идентификатору или ErrCustomerNotFound.
	Get(id string) (Customer, error)
	// Create сохраняет нового покупателя.
	Create(customer Customer) error
	// Save применяет изменения с учётом optimistic locking: при несовпадении
	// Version возвращает ErrCustomerVersionConflict и ничего не записывает.
	// Проверка "карта ещё не применена" и зачисление проходят как одна
	// атомарная единица именно за счёт этого.
	Save(customer Customer) error
}

// GiftCardRepository — read-only доступ к подарочным картам.
// Выпуском карт и списаниями по заказам владеет каталог.
type GiftCardRepository interface {
	// Get возвращает карту по идентификатору или ErrGiftCardNotFound.
	Get(id string) (GiftCard, error)
	// GetByCode ищет карту по нормализованному коду купона.
	GetByCode(code string) (GiftCard, error)
}

// ReturnRequestRepository описывает требования к хранилищу заявок на возврат.
type ReturnRequestRepository interface {
	// Create присваивает заявке следующий сквозной номер и сохраняет её
	// одной атомарной операцией. Если по заказу уже есть открытая заявка,
	// возвращает ErrReturnRequestAlreadyOpen и ничего не записывает.
	// Пропуски в нумерации от неудавшихся попыток допустимы, дубликаты — нет.
	Create(rr ReturnRequest) (ReturnRequest, error)
	// Get возвращает заявку по идентификатору или ErrReturnRequestNotFound.
	Get(id string) (ReturnRequest, error)
	// GetOpenByOrder возвращает открытую заявку по заказу, если она есть.
	GetOpenByOrder(orderID string) (ReturnRequest, error)
	// ListByCustomer возвращает заявки покупателя, новые первыми.
	ListByCustomer(customerID string, limit int) ([]ReturnRequest, error)
	// Save перезаписывает существующую заявку (смена статуса бэк-офисом).
	Save(rr ReturnRequest) error
}
