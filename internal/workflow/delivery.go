package workflow

import (
	"strings"

	"github.com/avolkhin/courierday-system/internal/model"
)

// MarkDelivered закрывает доставку посылки: фиксирует получателя,
// фотоподтверждение и момент вручения, затем убирает посылку из партии доставки.
func (d *Day) MarkDelivered(id, recipientName, proofPhoto string) (model.DeliveredPackage, error) {
	if d.step != model.StepDelivery {
		return model.DeliveredPackage{}, ErrWrongStep
	}
	if strings.TrimSpace(recipientName) == "" {
		return model.DeliveredPackage{}, ErrEmptyRecipient
	}
	if strings.TrimSpace(proofPhoto) == "" {
		return model.DeliveredPackage{}, ErrEmptyProof
	}

	i, ok := d.findInDelivery(id)
	if !ok {
		return model.DeliveredPackage{}, ErrPackageNotFound
	}

	delivered := model.DeliveredPackage{
		Package:       d.delivery[i],
		RecipientName: strings.TrimSpace(recipientName),
		ProofPhoto:    proofPhoto,
		DeliveredAt:   d.clock(),
	}
	d.delivered = append(d.delivered, delivered)
	d.delivery = append(d.delivery[:i], d.delivery[i+1:]...)
	return delivered, nil
}

// MarkPending переводит посылку в ожидание с указанной причиной
// и убирает её из партии доставки.
func (d *Day) MarkPending(id, reason string) (model.PendingPackage, error) {
	if d.step != model.StepDelivery {
		return model.PendingPackage{}, ErrWrongStep
	}
	if strings.TrimSpace(reason) == "" {
		return model.PendingPackage{}, ErrEmptyReason
	}

	i, ok := d.findInDelivery(id)
	if !ok {
		return model.PendingPackage{}, ErrPackageNotFound
	}

	pending := model.PendingPackage{
		Package: d.delivery[i],
		Reason:  strings.TrimSpace(reason),
	}
	d.pending = append(d.pending, pending)
	d.delivery = append(d.delivery[:i], d.delivery[i+1:]...)
	return pending, nil
}

// DeliveryComplete сообщает, что каждая посылка партии доставки получила
// ровно один исход: вручена либо переведена в ожидание.
func (d *Day) DeliveryComplete() bool {
	return len(d.delivery) == 0 && len(d.delivered)+len(d.pending) > 0
}

func (d *Day) findInDelivery(id string) (int, bool) {
	for i, p := range d.delivery {
		if p.ID == id {
			return i, true
		}
	}
	return 0, false
}
