// Пакет dispatch маршрутизирует типизированные команды и запросы
// к ровно одному обработчику. Реестр заполняется один раз при старте
// приложения; незарегистрированный тип запроса обнаруживается на этапе
// регистрации, а не в момент вызова.
package dispatch

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrHandlerExists — на имя запроса уже зарегистрирован обработчик.
	ErrHandlerExists = errors.New("handler already registered for request")
	// ErrHandlerMissing — обработчик для запроса не зарегистрирован.
	ErrHandlerMissing = errors.New("no handler registered for request")
	// ErrNilRequest — запрос не передан.
	ErrNilRequest = errors.New("request is required")
)

// Request — типизированный неизменяемый запрос. Имя служит ключом
// маршрутизации и должно быть уникально в рамках приложения.
type Request interface {
	RequestName() string
}

// Handler обрабатывает ровно один тип запроса.
type Handler interface {
	Handle(ctx context.Context, req Request) (any, error)
}

// HandlerFunc — адаптер функции к интерфейсу Handler.
type HandlerFunc func(ctx context.Context, req Request) (any, error)

// Handle вызывает саму функцию.
func (f HandlerFunc) Handle(ctx context.Context, req Request) (any, error) {
	return f(ctx, req)
}

// Dispatcher — реестр "имя запроса → обработчик".
// После заполнения реестр не изменяется, поэтому Send не синхронизируется.
type Dispatcher struct {
	handlers map[string]Handler
}

// New создаёт пустой диспетчер.
func New() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

// Register связывает имя запроса с обработчиком.
// Повторная регистрация того же имени — ошибка конфигурации.
func (d *Dispatcher) Register(name string, handler Handler) error {
	if name == "" {
		return fmt.Errorf("register handler: request name is empty")
	}
	if handler == nil {
		return fmt.Errorf("register handler %q: handler is nil", name)
	}
	if _, exists := d.handlers[name]; exists {
		return fmt.Errorf("%w: %s", ErrHandlerExists, name)
	}
	d.handlers[name] = handler
	return nil
}

// MustRegister — вариант Register для старта приложения: ошибка
// конфигурации останавливает процесс сразу.
func (d *Dispatcher) MustRegister(name string, handler Handler) {
	if err := d.Register(name, handler); err != nil {
		panic(err)
	}
}

// EnsureRegistered проверяет после регистрации, что все перечисленные
// запросы получили обработчики. Вызывается при старте приложения.
func (d *Dispatcher) EnsureRegistered(names ...string) error {
	for _, name := range names {
		if _, ok := d.handlers[name]; !ok {
			return fmt.Errorf("%w: %s", ErrHandlerMissing, name)
		}
	}
	return nil
}

// Send доставляет запрос его обработчику и возвращает типизированный
// результат. Обработчик вызывается не более одного раза за Send.
func (d *Dispatcher) Send(ctx context.Context, req Request) (any, error) {
	if req == nil {
		return nil, ErrNilRequest
	}
	handler, ok := d.handlers[req.RequestName()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrHandlerMissing, req.RequestName())
	}
	return handler.Handle(ctx, req)
}
