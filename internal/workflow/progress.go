package workflow

import "github.com/avolkhin/courierday-system/internal/model"

// AutoProgress проверяет условие выхода текущего этапа и при его выполнении
// переводит день на следующий этап. Вызывается после каждой мутации,
// способной впервые выполнить условие: добавлено сканирование, разобрана
// посылка доставки, зафиксирован возврат.
//
// Переход со сканирования на доставку выполняет ту же проекцию, что и
// StartDelivery: партия доставки всегда строится в момент начала этапа.
// Пустая партия ожидания не блокирует переход к итогам дня.
//
// Возвращает true, если этап изменился.
func (d *Day) AutoProgress() bool {
	switch d.step {
	case model.StepInput:
		if d.CanProceedToScan() {
			d.step = model.StepScan
			return true
		}
	case model.StepScan:
		if d.ScanComplete() {
			if err := d.StartDelivery(); err == nil {
				return true
			}
		}
	case model.StepDelivery:
		if d.DeliveryComplete() {
			d.step = model.StepPending
			// Без недоставленных посылок возвратный этап завершён сразу.
			if d.PendingComplete() {
				d.step = model.StepPerformance
			}
			return true
		}
	case model.StepPending:
		if d.PendingComplete() {
			d.step = model.StepPerformance
			return true
		}
	case model.StepPerformance:
	}
	return false
}
