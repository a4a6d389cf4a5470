package returns

import (
	"time"

	"github.com/dborovsky/grandnode/internal/domain"
)

// AddressForm — адресная часть формы подачи заявки. Либо ссылка на
// сохранённый адрес покупателя, либо атрибуты нового адреса.
type AddressForm struct {
	PickupAddressID string
	Attributes      []domain.AddressAttribute
}

// AddressResolver собирает адрес забора товара для заявки на возврат.
type AddressResolver struct {
	schema []domain.AttributeDefinition
	now    func() time.Time
}

// NewAddressResolver конструирует резолвер со схемой атрибутов адреса.
// Пустая схема заменяется схемой по умолчанию.
func NewAddressResolver(schema []domain.AttributeDefinition) *AddressResolver {
	if len(schema) == 0 {
		schema = domain.DefaultAddressSchema()
	}
	return &AddressResolver{schema: schema, now: time.Now}
}

// Resolve возвращает адрес забора и признак того, что адрес новый.
// Если указание адреса выключено настройками — пустой адрес без ошибок.
// Сохранённый адрес возвращается снимком с тем же идентификатором;
// новый адрес собирается из атрибутов формы, все замечания схемы
// накапливаются и возвращаются списком.
func (r *AddressResolver) Resolve(
	customer domain.Customer,
	form AddressForm,
	settings domain.ReturnSettings,
) (domain.Address, bool, []error) {
	if !settings.AllowSpecifyPickupAddress {
		return domain.Address{}, false, nil
	}

	if form.PickupAddressID != "" {
		addr, ok := customer.AddressByID(form.PickupAddressID)
		if !ok {
			return domain.Address{}, false, []error{domain.ErrPickupAddressNotFound}
		}
		return addr, false, nil
	}

	normalized := domain.NormalizeAttributes(form.Attributes)
	if errs := domain.ValidateAttributes(r.schema, normalized); len(errs) > 0 {
		return domain.Address{}, true, errs
	}

	return domain.Address{
		Attributes: normalized,
		CreatedAt:  r.now().UTC(),
	}, true, nil
}
