// Package handler содержит HTTP-обработчики API сервиса рабочего дня курьера.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/avolkhin/courierday-system/internal/middleware"
	"github.com/avolkhin/courierday-system/internal/model"
	"github.com/avolkhin/courierday-system/internal/repository"
	"github.com/avolkhin/courierday-system/internal/service"
	"github.com/avolkhin/courierday-system/internal/validation"
	"github.com/avolkhin/courierday-system/internal/workflow"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterCourier(ctx context.Context, login, password string) (int64, error)
	AuthenticateCourier(ctx context.Context, login, password string) (int64, error)
	GetSnapshot(ctx context.Context, courierID int64) (model.Snapshot, error)
	GetSummary(ctx context.Context, courierID int64) (model.Summary, error)
	AddDailyPackage(ctx context.Context, courierID int64, trackingNumber string, isCOD bool) (model.Package, error)
	RemoveDailyPackage(ctx context.Context, courierID int64, id string) error
	ImportManifest(ctx context.Context, courierID int64) (int, time.Duration, error)
	StartScanning(ctx context.Context, courierID int64) error
	ScanPackage(ctx context.Context, courierID int64, trackingNumber string, isCOD bool) (model.ScannedPackage, error)
	RemoveScanned(ctx context.Context, courierID int64, id string) error
	StartDelivery(ctx context.Context, courierID int64) error
	MarkDelivered(ctx context.Context, courierID int64, id, recipientName, proofPhoto string) (model.DeliveredPackage, error)
	MarkPending(ctx context.Context, courierID int64, id, reason string) (model.PendingPackage, error)
	ReturnAllPending(ctx context.Context, courierID int64, leaderName, returnPhoto string) error
	StartNewDay(ctx context.Context, courierID int64) error
}

// Handler реализует HTTP-обработчики API сервиса рабочего дня курьера.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

type credentialsRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// Register обрабатывает регистрацию нового курьера.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	courierID, err := h.service.RegisterCourier(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrCourierExists) {
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
			return
		}
		h.logger.Error("register courier error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, courierID)
	w.WriteHeader(http.StatusOK)
}

// Login выполняет аутентификацию курьера и установку cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	courierID, err := h.service.AuthenticateCourier(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrCourierNotFound) || errors.Is(err, service.ErrInvalidCredentials) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.logger.Error("login courier error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, courierID)
	w.WriteHeader(http.StatusOK)
}

type packageResponse struct {
	ID             string `json:"id"`
	TrackingNumber string `json:"tracking_number"`
	IsCOD          bool   `json:"is_cod"`
}

type scannedPackageResponse struct {
	packageResponse
	ScanTime string `json:"scan_time"`
}

type deliveredPackageResponse struct {
	packageResponse
	RecipientName string `json:"recipient_name"`
	ProofPhoto    string `json:"proof_photo"`
	DeliveredAt   string `json:"delivered_at"`
}

type pendingPackageResponse struct {
	packageResponse
	Reason      string `json:"reason"`
	LeaderName  string `json:"leader_name,omitempty"`
	ReturnPhoto string `json:"return_photo,omitempty"`
	ReturnedAt  string `json:"returned_at,omitempty"`
}

type dayResponse struct {
	Step      string                     `json:"step"`
	Daily     []packageResponse          `json:"daily"`
	Scanned   []scannedPackageResponse   `json:"scanned"`
	Delivery  []packageResponse          `json:"delivery"`
	Delivered []deliveredPackageResponse `json:"delivered"`
	Pending   []pendingPackageResponse   `json:"pending"`
}

func toPackageResponse(p model.Package) packageResponse {
	return packageResponse{
		ID:             p.ID,
		TrackingNumber: p.TrackingNumber,
		IsCOD:          p.IsCOD,
	}
}

func toDayResponse(snap model.Snapshot) dayResponse {
	resp := dayResponse{
		Step:      string(snap.Step),
		Daily:     make([]packageResponse, 0, len(snap.Daily)),
		Scanned:   make([]scannedPackageResponse, 0, len(snap.Scanned)),
		Delivery:  make([]packageResponse, 0, len(snap.Delivery)),
		Delivered: make([]deliveredPackageResponse, 0, len(snap.Delivered)),
		Pending:   make([]pendingPackageResponse, 0, len(snap.Pending)),
	}

	for _, p := range snap.Daily {
		resp.Daily = append(resp.Daily, toPackageResponse(p))
	}
	for _, p := range snap.Scanned {
		resp.Scanned = append(resp.Scanned, scannedPackageResponse{
			packageResponse: toPackageResponse(p.Package),
			ScanTime:        p.ScanTime.Format(time.RFC3339),
		})
	}
	for _, p := range snap.Delivery {
		resp.Delivery = append(resp.Delivery, toPackageResponse(p))
	}
	for _, p := range snap.Delivered {
		resp.Delivered = append(resp.Delivered, deliveredPackageResponse{
			packageResponse: toPackageResponse(p.Package),
			RecipientName:   p.RecipientName,
			ProofPhoto:      p.ProofPhoto,
			DeliveredAt:     p.DeliveredAt.Format(time.RFC3339),
		})
	}
	for _, p := range snap.Pending {
		pr := pendingPackageResponse{
			packageResponse: toPackageResponse(p.Package),
			Reason:          p.Reason,
			LeaderName:      p.LeaderName,
			ReturnPhoto:     p.ReturnPhoto,
		}
		if p.ReturnedAt != nil {
			pr.ReturnedAt = p.ReturnedAt.Format(time.RFC3339)
		}
		resp.Pending = append(resp.Pending, pr)
	}

	return resp
}

// GetDay возвращает полное состояние рабочего дня текущего курьера.
func (h *Handler) GetDay(w http.ResponseWriter, r *http.Request) {
	courierID, ok := middleware.GetCourierIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	snap, err := h.service.GetSnapshot(r.Context(), courierID)
	if err != nil {
		h.logger.Error("get day error", zap.Error(err), zap.Int64("courierID", courierID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, toDayResponse(snap))
}

type addPackageRequest struct {
	TrackingNumber string `json:"tracking_number"`
	IsCOD          bool   `json:"is_cod"`
}

// AddPackage регистрирует посылку в дневном списке текущего курьера.
func (h *Handler) AddPackage(w http.ResponseWriter, r *http.Request) {
	courierID, ok := middleware.GetCourierIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req addPackageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if !validation.IsValidTrackingNumber(req.TrackingNumber) {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	pkg, err := h.service.AddDailyPackage(r.Context(), courierID, req.TrackingNumber, req.IsCOD)
	if err != nil {
		h.writeWorkflowError(w, err, courierID, "add package")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(toPackageResponse(pkg)); err != nil {
		h.logger.Error("encode response error", zap.Error(err))
	}
}

// RemovePackage удаляет посылку из дневного списка текущего курьера.
func (h *Handler) RemovePackage(w http.ResponseWriter, r *http.Request) {
	courierID, ok := middleware.GetCourierIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	if err := h.service.RemoveDailyPackage(r.Context(), courierID, pathID(r)); err != nil {
		h.writeWorkflowError(w, err, courierID, "remove package")
		return
	}

	w.WriteHeader(http.StatusOK)
}

type importResponse struct {
	Added int `json:"added"`
}

// ImportManifest добавляет в дневной список посылки из внешнего манифеста.
func (h *Handler) ImportManifest(w http.ResponseWriter, r *http.Request) {
	courierID, ok := middleware.GetCourierIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	added, retryAfter, err := h.service.ImportManifest(r.Context(), courierID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrManifestBusy):
			if retryAfter > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
			}
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		case errors.Is(err, service.ErrManifestNotConfigured):
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		default:
			h.writeWorkflowError(w, err, courierID, "import manifest")
		}
		return
	}

	h.writeJSON(w, importResponse{Added: added})
}

// StartScanning переводит рабочий день текущего курьера на этап сканирования.
func (h *Handler) StartScanning(w http.ResponseWriter, r *http.Request) {
	courierID, ok := middleware.GetCourierIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	if err := h.service.StartScanning(r.Context(), courierID); err != nil {
		h.writeWorkflowError(w, err, courierID, "start scanning")
		return
	}

	w.WriteHeader(http.StatusOK)
}

type scanRequest struct {
	TrackingNumber string `json:"tracking_number"`
	IsCOD          bool   `json:"is_cod"`
}

// ScanPackage регистрирует сканирование посылки текущим курьером.
func (h *Handler) ScanPackage(w http.ResponseWriter, r *http.Request) {
	courierID, ok := middleware.GetCourierIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if !validation.IsValidTrackingNumber(req.TrackingNumber) {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	scanned, err := h.service.ScanPackage(r.Context(), courierID, req.TrackingNumber, req.IsCOD)
	if err != nil {
		h.writeWorkflowError(w, err, courierID, "scan package")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	resp := scannedPackageResponse{
		packageResponse: toPackageResponse(scanned.Package),
		ScanTime:        scanned.ScanTime.Format(time.RFC3339),
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("encode response error", zap.Error(err))
	}
}

// RemoveScanned отменяет сканирование посылки.
func (h *Handler) RemoveScanned(w http.ResponseWriter, r *http.Request) {
	courierID, ok := middleware.GetCourierIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	if err := h.service.RemoveScanned(r.Context(), courierID, pathID(r)); err != nil {
		h.writeWorkflowError(w, err, courierID, "remove scanned")
		return
	}

	w.WriteHeader(http.StatusOK)
}

// StartDelivery начинает этап доставки для текущего курьера.
func (h *Handler) StartDelivery(w http.ResponseWriter, r *http.Request) {
	courierID, ok := middleware.GetCourierIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	if err := h.service.StartDelivery(r.Context(), courierID); err != nil {
		h.writeWorkflowError(w, err, courierID, "start delivery")
		return
	}

	w.WriteHeader(http.StatusOK)
}

type markDeliveredRequest struct {
	RecipientName string `json:"recipient_name"`
	ProofPhoto    string `json:"proof_photo"`
}

// MarkDelivered закрывает доставку посылки.
func (h *Handler) MarkDelivered(w http.ResponseWriter, r *http.Request) {
	courierID, ok := middleware.GetCourierIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req markDeliveredRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	delivered, err := h.service.MarkDelivered(r.Context(), courierID, pathID(r), req.RecipientName, req.ProofPhoto)
	if err != nil {
		h.writeWorkflowError(w, err, courierID, "mark delivered")
		return
	}

	resp := deliveredPackageResponse{
		packageResponse: toPackageResponse(delivered.Package),
		RecipientName:   delivered.RecipientName,
		ProofPhoto:      delivered.ProofPhoto,
		DeliveredAt:     delivered.DeliveredAt.Format(time.RFC3339),
	}
	h.writeJSON(w, resp)
}

type markPendingRequest struct {
	Reason string `json:"reason"`
}

// MarkPending переводит посылку в ожидание.
func (h *Handler) MarkPending(w http.ResponseWriter, r *http.Request) {
	courierID, ok := middleware.GetCourierIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req markPendingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	pending, err := h.service.MarkPending(r.Context(), courierID, pathID(r), req.Reason)
	if err != nil {
		h.writeWorkflowError(w, err, courierID, "mark pending")
		return
	}

	resp := pendingPackageResponse{
		packageResponse: toPackageResponse(pending.Package),
		Reason:          pending.Reason,
	}
	h.writeJSON(w, resp)
}

type returnRequest struct {
	LeaderName  string `json:"leader_name"`
	ReturnPhoto string `json:"return_photo"`
}

// ReturnPending фиксирует возврат всех недоставленных посылок на склад.
func (h *Handler) ReturnPending(w http.ResponseWriter, r *http.Request) {
	courierID, ok := middleware.GetCourierIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req returnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.ReturnAllPending(r.Context(), courierID, req.LeaderName, req.ReturnPhoto); err != nil {
		h.writeWorkflowError(w, err, courierID, "return pending")
		return
	}

	w.WriteHeader(http.StatusOK)
}

// GetSummary возвращает итоговые показатели рабочего дня текущего курьера.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	courierID, ok := middleware.GetCourierIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	summary, err := h.service.GetSummary(r.Context(), courierID)
	if err != nil {
		h.logger.Error("get summary error", zap.Error(err), zap.Int64("courierID", courierID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, summary)
}

// ResetDay начинает новый рабочий день для текущего курьера.
func (h *Handler) ResetDay(w http.ResponseWriter, r *http.Request) {
	courierID, ok := middleware.GetCourierIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	if err := h.service.StartNewDay(r.Context(), courierID); err != nil {
		h.logger.Error("reset day error", zap.Error(err), zap.Int64("courierID", courierID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (h *Handler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// writeWorkflowError преобразует ошибки конечного автомата рабочего дня в HTTP-статусы.
func (h *Handler) writeWorkflowError(w http.ResponseWriter, err error, courierID int64, op string) {
	switch {
	case errors.Is(err, workflow.ErrUnknownTracking),
		errors.Is(err, workflow.ErrPackageNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, workflow.ErrDuplicateTracking),
		errors.Is(err, workflow.ErrAlreadyScanned),
		errors.Is(err, workflow.ErrCategoryMismatch),
		errors.Is(err, workflow.ErrScanIncomplete),
		errors.Is(err, workflow.ErrNoDailyPackages):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, workflow.ErrWrongStep),
		errors.Is(err, workflow.ErrEmptyRecipient),
		errors.Is(err, workflow.ErrEmptyProof),
		errors.Is(err, workflow.ErrEmptyReason),
		errors.Is(err, workflow.ErrEmptyLeader):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Error(op+" error", zap.Error(err), zap.Int64("courierID", courierID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
