package domain

import (
	"fmt"
	"strings"
	"time"
)

// AddressAttribute — одно значение произвольного атрибута адреса
// (например "City" → "Минск"). Набор допустимых ключей задаёт схема.
type AddressAttribute struct {
	Key   string
	Value string
}

// Address идентифицирует физический адрес. Пустой ID означает новый,
// ещё не сохранённый адрес; непустой — ссылку на сохранённый адрес покупателя.
type Address struct {
	ID         string
	Attributes []AddressAttribute
	CreatedAt  time.Time
}

// Attribute возвращает значение атрибута по ключу.
func (a *Address) Attribute(key string) (string, bool) {
	for _, attr := range a.Attributes {
		if attr.Key == key {
			return attr.Value, true
		}
	}
	return "", false
}

// AttributeDefinition описывает один допустимый атрибут адреса.
type AttributeDefinition struct {
	Key      string
	Required bool
	// MaxLength — ограничение длины значения; 0 означает "без ограничения".
	MaxLength int
}

// DefaultAddressSchema — схема атрибутов адреса забора, используемая
// при отсутствии явной конфигурации.
func DefaultAddressSchema() []AttributeDefinition {
	return []AttributeDefinition{
		{Key: "FirstName", Required: true, MaxLength: 100},
		{Key: "LastName", Required: true, MaxLength: 100},
		{Key: "Address1", Required: true, MaxLength: 200},
		{Key: "Address2", MaxLength: 200},
		{Key: "City", Required: true, MaxLength: 100},
		{Key: "ZipPostalCode", Required: true, MaxLength: 20},
		{Key: "Country", Required: true, MaxLength: 100},
		{Key: "PhoneNumber", MaxLength: 32},
	}
}

// NormalizeAttributes обрезает пробелы в ключах и значениях и отбрасывает
// атрибуты с пустым значением. Других преобразований нет: значения
// должны читаться обратно ровно в том виде, в котором их ввёл покупатель.
func NormalizeAttributes(attrs []AddressAttribute) []AddressAttribute {
	result := make([]AddressAttribute, 0, len(attrs))
	for _, attr := range attrs {
		key := strings.TrimSpace(attr.Key)
		value := strings.TrimSpace(attr.Value)
		if key == "" || value == "" {
			continue
		}
		result = append(result, AddressAttribute{Key: key, Value: value})
	}
	return result
}

// ValidateAttributes сверяет атрибуты со схемой. Ошибки не прерывают
// проверку, а накапливаются, чтобы форму можно было показать со всеми
// замечаниями сразу.
func ValidateAttributes(schema []AttributeDefinition, attrs []AddressAttribute) []error {
	var errs []error

	byKey := make(map[string]AttributeDefinition, len(schema))
	for _, def := range schema {
		byKey[def.Key] = def
	}

	seen := make(map[string]struct{}, len(attrs))
	for _, attr := range attrs {
		def, ok := byKey[attr.Key]
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %s", ErrAddressAttributeUnknown, attr.Key))
			continue
		}
		seen[attr.Key] = struct{}{}
		if def.MaxLength > 0 && len([]rune(attr.Value)) > def.MaxLength {
			errs = append(errs, fmt.Errorf("%w: %s", ErrAddressAttributeTooLong, attr.Key))
		}
	}

	for _, def := range schema {
		if !def.Required {
			continue
		}
		if _, ok := seen[def.Key]; !ok {
			errs = append(errs, fmt.Errorf("%w: %s", ErrAddressAttributeRequired, def.Key))
		}
	}

	return errs
}
