package domain

// ReturnSettings — неизменяемая конфигурация процесса возвратов.
// Передаётся в обработчики при конструировании, глобального состояния нет.
type ReturnSettings struct {
	// ReturnsEnabled выключает подачу заявок целиком.
	ReturnsEnabled bool
	// ReturnPeriodDays — окно возврата в днях от завершения заказа;
	// 0 означает "без ограничения по сроку".
	ReturnPeriodDays int
	// AllowSpecifyPickupAddress разрешает покупателю указывать адрес забора.
	AllowSpecifyPickupAddress bool
	// AllowSpecifyPickupDate разрешает указывать желаемую дату забора.
	AllowSpecifyPickupDate bool
	// PickupDateRequired делает дату забора обязательной
	// (учитывается только вместе с AllowSpecifyPickupDate).
	PickupDateRequired bool
}

// DefaultReturnSettings возвращает настройки по умолчанию.
func DefaultReturnSettings() ReturnSettings {
	return ReturnSettings{
		ReturnsEnabled:            true,
		ReturnPeriodDays:          365,
		AllowSpecifyPickupAddress: true,
		AllowSpecifyPickupDate:    true,
		PickupDateRequired:        false,
	}
}
