package workflow

import "github.com/avolkhin/courierday-system/internal/model"

// ScanPackage сверяет отсканированный трек-номер с дневным списком и
// добавляет посылку в коллекцию отсканированных.
//
// isCOD задаёт режим сканера (наложенный платёж или обычная посылка):
// несовпадение режима с категорией посылки отклоняется, чтобы сверка
// по категориям не нарушалась уже на этапе сканирования.
// Дневной список при сканировании не изменяется.
func (d *Day) ScanPackage(trackingNumber string, isCOD bool) (model.ScannedPackage, error) {
	if d.step != model.StepScan {
		return model.ScannedPackage{}, ErrWrongStep
	}

	var found *model.Package
	for i := range d.daily {
		if d.daily[i].TrackingNumber == trackingNumber {
			found = &d.daily[i]
			break
		}
	}
	if found == nil {
		return model.ScannedPackage{}, ErrUnknownTracking
	}

	for _, s := range d.scanned {
		if s.ID == found.ID {
			return model.ScannedPackage{}, ErrAlreadyScanned
		}
	}

	if found.IsCOD != isCOD {
		return model.ScannedPackage{}, ErrCategoryMismatch
	}

	scanned := model.ScannedPackage{
		Package:  *found,
		ScanTime: d.clock(),
	}
	d.scanned = append(d.scanned, scanned)
	return scanned, nil
}

// RemoveScanned удаляет посылку из коллекции отсканированных.
func (d *Day) RemoveScanned(id string) error {
	if d.step != model.StepScan {
		return ErrWrongStep
	}
	for i, s := range d.scanned {
		if s.ID == id {
			d.scanned = append(d.scanned[:i], d.scanned[i+1:]...)
			return nil
		}
	}
	return ErrPackageNotFound
}

// ScanComplete сообщает, что партия отсканирована полностью.
// Совпадать должны не только общие количества, но и количества по категориям:
// совпадение только итога могло бы скрыть перекос между COD и обычными посылками.
func (d *Day) ScanComplete() bool {
	if len(d.daily) == 0 {
		return false
	}

	dailyCOD := 0
	for _, p := range d.daily {
		if p.IsCOD {
			dailyCOD++
		}
	}
	scannedCOD := 0
	for _, s := range d.scanned {
		if s.IsCOD {
			scannedCOD++
		}
	}

	return len(d.scanned) == len(d.daily) &&
		scannedCOD == dailyCOD &&
		len(d.scanned)-scannedCOD == len(d.daily)-dailyCOD
}

// StartDelivery проецирует отсканированные посылки в партию доставки и
// переводит день на этап доставки. Проекция сохраняет только базовые поля
// посылки: метаданные сканирования в доставку не попадают. Прежнее
// содержимое партии доставки заменяется целиком.
func (d *Day) StartDelivery() error {
	if d.step != model.StepScan {
		return ErrWrongStep
	}
	if !d.ScanComplete() {
		return ErrScanIncomplete
	}

	d.delivery = make([]model.Package, 0, len(d.scanned))
	for _, s := range d.scanned {
		d.delivery = append(d.delivery, s.Package)
	}
	d.step = model.StepDelivery
	return nil
}
