package returns

import "strings"

// ValidationError накапливает все замечания к форме, чтобы покупатель
// увидел их разом, а не по одному за попытку. NewAddressUsed сообщает,
// что покупатель вводил новый адрес, а не выбирал сохранённый: клиент
// по этому флагу решает, какую часть формы показать с ошибками.
type ValidationError struct {
	Errs           []error
	NewAddressUsed bool
}

// Error объединяет замечания в одну строку.
func (e *ValidationError) Error() string {
	return joinErrors(e.Errs)
}

// Unwrap раскрывает отдельные замечания для errors.Is/As.
func (e *ValidationError) Unwrap() []error {
	return e.Errs
}

func newValidationError(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return &ValidationError{Errs: errs}
}

func joinErrors(errs []error) string {
	builder := strings.Builder{}
	for i, err := range errs {
		builder.WriteString(err.Error())
		if i < len(errs)-1 {
			builder.WriteString("; ")
		}
	}
	return builder.String()
}
