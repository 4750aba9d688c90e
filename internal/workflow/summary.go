package workflow

import (
	"math"
	"time"

	"github.com/avolkhin/courierday-system/internal/model"
)

// Summary возвращает итоговые показатели рабочего дня.
// Посылки в ожидании с отметкой о возврате считаются возвращёнными.
func (d *Day) Summary() model.Summary {
	s := model.Summary{
		Total:     len(d.daily),
		Delivered: len(d.delivered),
		Pending:   len(d.pending),
	}

	for _, p := range d.pending {
		if p.ReturnedAt != nil {
			s.Returned++
		}
	}
	for _, p := range d.delivered {
		if p.IsCOD {
			s.DeliveredCOD++
		}
	}

	if s.Total > 0 {
		rate := float64(s.Delivered) / float64(s.Total) * 100
		s.SuccessRate = math.Round(rate*100) / 100
	}

	var firstScan, lastDelivery *time.Time
	for i := range d.scanned {
		t := d.scanned[i].ScanTime
		if firstScan == nil || t.Before(*firstScan) {
			firstScan = &t
		}
	}
	for i := range d.delivered {
		t := d.delivered[i].DeliveredAt
		if lastDelivery == nil || t.After(*lastDelivery) {
			lastDelivery = &t
		}
	}
	s.FirstScanAt = firstScan
	s.LastDeliveryAt = lastDelivery

	return s
}
