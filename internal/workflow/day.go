// Package workflow реализует конечный автомат рабочего дня курьера:
// хранилище состояния дня, обработчики этапов и координатор переходов.
package workflow

import (
	"time"

	"github.com/google/uuid"

	"github.com/avolkhin/courierday-system/internal/model"
)

// Clock возвращает текущий момент времени. Внедряется для детерминированных тестов.
type Clock func() time.Time

// Day является единственным источником истины о рабочем дне курьера:
// текущий этап и пять коллекций посылок.
//
// Day не синхронизирован: все операции должны выполняться одним потоком.
// Сериализацию конкурентных вызовов обеспечивает вызывающий слой.
type Day struct {
	clock Clock
	newID func() string

	// onReset вызывается из StartNewDay для очистки внешнего зеркала состояния.
	onReset func() error

	step      model.Step
	daily     []model.Package
	scanned   []model.ScannedPackage
	delivery  []model.Package
	delivered []model.DeliveredPackage
	pending   []model.PendingPackage
}

// NewDay создаёт пустой рабочий день на этапе ввода посылок.
func NewDay() *Day {
	return NewDayWithClock(time.Now)
}

// NewDayWithClock создаёт пустой рабочий день с указанным источником времени.
func NewDayWithClock(clock Clock) *Day {
	if clock == nil {
		clock = time.Now
	}
	return &Day{
		clock: clock,
		newID: uuid.NewString,
		step:  model.StepInput,
	}
}

// Restore восстанавливает рабочий день из снимка состояния.
// Неизвестный этап в снимке заменяется этапом ввода.
func Restore(s model.Snapshot, clock Clock) *Day {
	d := NewDayWithClock(clock)
	if _, ok := model.ParseStep(string(s.Step)); ok {
		d.step = s.Step
	}
	d.daily = append(d.daily, s.Daily...)
	d.scanned = append(d.scanned, s.Scanned...)
	d.delivery = append(d.delivery, s.Delivery...)
	d.delivered = append(d.delivered, s.Delivered...)
	d.pending = append(d.pending, s.Pending...)
	return d
}

// SetResetHook задаёт функцию очистки внешнего зеркала, вызываемую при сбросе дня.
func (d *Day) SetResetHook(fn func() error) {
	d.onReset = fn
}

// Step возвращает текущий этап рабочего дня.
func (d *Day) Step() model.Step {
	return d.step
}

// SetStep безусловно перезаписывает текущий этап.
// Корректность перехода здесь не проверяется: она обеспечивается координатором.
func (d *Day) SetStep(step model.Step) {
	d.step = step
}

// Snapshot возвращает копию полного состояния дня.
func (d *Day) Snapshot() model.Snapshot {
	return model.Snapshot{
		Step:      d.step,
		Daily:     append([]model.Package(nil), d.daily...),
		Scanned:   append([]model.ScannedPackage(nil), d.scanned...),
		Delivery:  append([]model.Package(nil), d.delivery...),
		Delivered: append([]model.DeliveredPackage(nil), d.delivered...),
		Pending:   append([]model.PendingPackage(nil), d.pending...),
	}
}

// CanProceedToScan сообщает, можно ли перейти к этапу сканирования.
func (d *Day) CanProceedToScan() bool {
	return len(d.daily) > 0
}

// CanProceedToDelivery сообщает, можно ли перейти к этапу доставки:
// партия полностью отсканирована либо доставка уже начата.
func (d *Day) CanProceedToDelivery() bool {
	return d.ScanComplete() || len(d.delivery) > 0
}

// CanProceedToPending сообщает, можно ли перейти к этапу обработки недоставленных посылок.
func (d *Day) CanProceedToPending() bool {
	return len(d.delivery) > 0
}

// CanProceedToPerformance сообщает, разобрана ли вся дневная партия:
// каждая посылка дня доставлена либо переведена в ожидание.
func (d *Day) CanProceedToPerformance() bool {
	processed := len(d.delivered) + len(d.pending)
	return processed > 0 && processed == len(d.daily)
}

// AddDailyPackage регистрирует посылку в дневном списке на этапе ввода.
// Трек-номер должен быть уникален в пределах дня.
func (d *Day) AddDailyPackage(trackingNumber string, isCOD bool) (model.Package, error) {
	if d.step != model.StepInput {
		return model.Package{}, ErrWrongStep
	}
	for _, p := range d.daily {
		if p.TrackingNumber == trackingNumber {
			return model.Package{}, ErrDuplicateTracking
		}
	}

	pkg := model.Package{
		ID:             d.newID(),
		TrackingNumber: trackingNumber,
		IsCOD:          isCOD,
	}
	d.daily = append(d.daily, pkg)
	return pkg, nil
}

// RemoveDailyPackage удаляет посылку из дневного списка на этапе ввода.
func (d *Day) RemoveDailyPackage(id string) error {
	if d.step != model.StepInput {
		return ErrWrongStep
	}
	for i, p := range d.daily {
		if p.ID == id {
			d.daily = append(d.daily[:i], d.daily[i+1:]...)
			return nil
		}
	}
	return ErrPackageNotFound
}

// StartScanning переводит день с этапа ввода на этап сканирования.
func (d *Day) StartScanning() error {
	if d.step != model.StepInput {
		return ErrWrongStep
	}
	if !d.CanProceedToScan() {
		return ErrNoDailyPackages
	}
	d.step = model.StepScan
	return nil
}

// StartNewDay сбрасывает состояние к началу нового рабочего дня:
// этап ввода, все пять коллекций пусты, внешнее зеркало очищено.
// Повторный вызов даёт тот же результат, что и одиночный.
func (d *Day) StartNewDay() error {
	d.step = model.StepInput
	d.daily = nil
	d.scanned = nil
	d.delivery = nil
	d.delivered = nil
	d.pending = nil

	if d.onReset != nil {
		return d.onReset()
	}
	return nil
}
