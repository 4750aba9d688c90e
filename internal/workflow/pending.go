package workflow

import (
	"strings"

	"github.com/avolkhin/courierday-system/internal/model"
)

// ReturnAllPending фиксирует единый акт передачи всех недоставленных посылок
// на склад: каждой посылке партии одновременно проставляются имя принимающего
// лидера, фотоподтверждение и момент возврата. Частичное применение невозможно.
// Повторный вызов перезаписывает реквизиты возврата, а не добавляет новые.
func (d *Day) ReturnAllPending(leaderName, returnPhoto string) error {
	if d.step != model.StepPending {
		return ErrWrongStep
	}
	if strings.TrimSpace(leaderName) == "" {
		return ErrEmptyLeader
	}
	if strings.TrimSpace(returnPhoto) == "" {
		return ErrEmptyProof
	}

	now := d.clock()
	for i := range d.pending {
		d.pending[i].LeaderName = strings.TrimSpace(leaderName)
		d.pending[i].ReturnPhoto = returnPhoto
		t := now
		d.pending[i].ReturnedAt = &t
	}
	return nil
}

// PendingComplete сообщает, что возвратный этап завершён: ни одна посылка
// в ожидании не осталась без отметки о возврате. Пустая партия считается
// завершённой сразу и не блокирует переход к итогам дня.
func (d *Day) PendingComplete() bool {
	for _, p := range d.pending {
		if p.ReturnedAt == nil {
			return false
		}
	}
	return true
}
