// Package model содержит доменные сущности сервиса рабочего дня курьера.
package model

import (
	"strings"
	"time"
)

// Courier представляет зарегистрированного курьера.
type Courier struct {
	ID           int64
	Login        string
	PasswordHash []byte
	CreatedAt    time.Time
}

// Step описывает этап рабочего дня курьера.
type Step string

const (
	StepInput       Step = "input"
	StepScan        Step = "scan"
	StepDelivery    Step = "delivery"
	StepPending     Step = "pending"
	StepPerformance Step = "performance"
)

// Steps содержит этапы рабочего дня в порядке их прохождения.
var Steps = []Step{
	StepInput,
	StepScan,
	StepDelivery,
	StepPending,
	StepPerformance,
}

var stepSet = func() map[Step]struct{} {
	set := make(map[Step]struct{}, len(Steps))
	for _, s := range Steps {
		set[s] = struct{}{}
	}
	return set
}()

// ParseStep преобразует строку в известный этап рабочего дня.
func ParseStep(value string) (Step, bool) {
	normalized := Step(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := stepSet[normalized]
	return normalized, ok
}

// Next возвращает следующий этап рабочего дня.
// Для последнего этапа возвращается он сам: маршрут линейный, циклов нет.
func (s Step) Next() Step {
	for i, step := range Steps {
		if step == s && i+1 < len(Steps) {
			return Steps[i+1]
		}
	}
	return s
}

// Package описывает посылку, назначенную курьеру на текущий рабочий день.
type Package struct {
	ID             string
	TrackingNumber string
	IsCOD          bool
}

// ScannedPackage описывает посылку, отсканированную на этапе сканирования.
type ScannedPackage struct {
	Package
	ScanTime time.Time
}

// DeliveredPackage описывает успешно доставленную посылку.
type DeliveredPackage struct {
	Package
	RecipientName string
	ProofPhoto    string
	DeliveredAt   time.Time
}

// PendingPackage описывает недоставленную посылку.
// Поля LeaderName, ReturnPhoto и ReturnedAt заполняются одновременно
// при возврате всей партии на склад.
type PendingPackage struct {
	Package
	Reason      string
	LeaderName  string
	ReturnPhoto string
	ReturnedAt  *time.Time
}

// Snapshot содержит полное состояние рабочего дня: текущий этап и пять коллекций посылок.
type Snapshot struct {
	Step      Step
	Daily     []Package
	Scanned   []ScannedPackage
	Delivery  []Package
	Delivered []DeliveredPackage
	Pending   []PendingPackage
}

// Summary содержит итоговые показатели рабочего дня для этапа производительности.
type Summary struct {
	Total          int        `json:"total"`
	Delivered      int        `json:"delivered"`
	Pending        int        `json:"pending"`
	Returned       int        `json:"returned"`
	DeliveredCOD   int        `json:"delivered_cod"`
	SuccessRate    float64    `json:"success_rate"`
	FirstScanAt    *time.Time `json:"first_scan_at,omitempty"`
	LastDeliveryAt *time.Time `json:"last_delivery_at,omitempty"`
}
