// Пакет returns реализует подачу и чтение заявок на возврат товара.
package returns

import (
	"fmt"
	"time"

	"github.com/dborovsky/grandnode/internal/domain"
)

// EligibilityChecker решает, допускается ли возврат по заказу.
// Чистая функция от состояния заказа и настроек; отказ всегда
// объясняется конкретной причиной поверх ErrReturnNotAllowed.
type EligibilityChecker struct {
	settings domain.ReturnSettings
	now      func() time.Time
}

// NewEligibilityChecker конструирует проверку с заданными настройками.
func NewEligibilityChecker(settings domain.ReturnSettings) *EligibilityChecker {
	return &EligibilityChecker{settings: settings, now: time.Now}
}

// IsReturnRequestAllowed проверяет заказ против правил возвратов.
// Любое сомнение трактуется в сторону запрета.
func (c *EligibilityChecker) IsReturnRequestAllowed(order domain.Order) error {
	if !c.settings.ReturnsEnabled {
		return fmt.Errorf("%w: returns are disabled", domain.ErrReturnNotAllowed)
	}
	if order.ID == "" {
		return fmt.Errorf("%w: order is missing", domain.ErrReturnNotAllowed)
	}
	if order.Deleted {
		return fmt.Errorf("%w: order is deleted", domain.ErrReturnNotAllowed)
	}
	if order.Status != domain.OrderStatusComplete {
		return fmt.Errorf("%w: order is not complete", domain.ErrReturnNotAllowed)
	}
	if c.settings.ReturnPeriodDays > 0 {
		if order.CompletedAt.IsZero() {
			return fmt.Errorf("%w: order completion time is unknown", domain.ErrReturnNotAllowed)
		}
		deadline := order.CompletedAt.AddDate(0, 0, c.settings.ReturnPeriodDays)
		if c.now().UTC().After(deadline) {
			return fmt.Errorf("%w: return period of %d days has expired",
				domain.ErrReturnNotAllowed, c.settings.ReturnPeriodDays)
		}
	}
	return nil
}
