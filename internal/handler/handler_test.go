package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/avolkhin/courierday-system/internal/middleware"
	"github.com/avolkhin/courierday-system/internal/model"
	"github.com/avolkhin/courierday-system/internal/repository"
	"github.com/avolkhin/courierday-system/internal/service"
	"github.com/avolkhin/courierday-system/internal/workflow"
)

type stubService struct {
	registerCourierID int64
	registerErr       error

	authCourierID int64
	authErr       error

	snapshotResp model.Snapshot
	snapshotErr  error

	summaryResp model.Summary
	summaryErr  error

	addPackageResp model.Package
	addPackageErr  error

	removePackageErr error

	importAdded      int
	importRetryAfter time.Duration
	importErr        error

	startScanningErr error

	scanResp model.ScannedPackage
	scanErr  error

	removeScannedErr error

	startDeliveryErr error

	deliveredResp model.DeliveredPackage
	deliveredErr  error

	pendingResp model.PendingPackage
	pendingErr  error

	returnErr error

	newDayErr error
}

func (s *stubService) RegisterCourier(ctx context.Context, login, password string) (int64, error) {
	return s.registerCourierID, s.registerErr
}

func (s *stubService) AuthenticateCourier(ctx context.Context, login, password string) (int64, error) {
	return s.authCourierID, s.authErr
}

func (s *stubService) GetSnapshot(ctx context.Context, courierID int64) (model.Snapshot, error) {
	return s.snapshotResp, s.snapshotErr
}

func (s *stubService) GetSummary(ctx context.Context, courierID int64) (model.Summary, error) {
	return s.summaryResp, s.summaryErr
}

func (s *stubService) AddDailyPackage(ctx context.Context, courierID int64, trackingNumber string, isCOD bool) (model.Package, error) {
	return s.addPackageResp, s.addPackageErr
}

func (s *stubService) RemoveDailyPackage(ctx context.Context, courierID int64, id string) error {
	return s.removePackageErr
}

func (s *stubService) ImportManifest(ctx context.Context, courierID int64) (int, time.Duration, error) {
	return s.importAdded, s.importRetryAfter, s.importErr
}

func (s *stubService) StartScanning(ctx context.Context, courierID int64) error {
	return s.startScanningErr
}

func (s *stubService) ScanPackage(ctx context.Context, courierID int64, trackingNumber string, isCOD bool) (model.ScannedPackage, error) {
	return s.scanResp, s.scanErr
}

func (s *stubService) RemoveScanned(ctx context.Context, courierID int64, id string) error {
	return s.removeScannedErr
}

func (s *stubService) StartDelivery(ctx context.Context, courierID int64) error {
	return s.startDeliveryErr
}

func (s *stubService) MarkDelivered(ctx context.Context, courierID int64, id, recipientName, proofPhoto string) (model.DeliveredPackage, error) {
	return s.deliveredResp, s.deliveredErr
}

func (s *stubService) MarkPending(ctx context.Context, courierID int64, id, reason string) (model.PendingPackage, error) {
	return s.pendingResp, s.pendingErr
}

func (s *stubService) ReturnAllPending(ctx context.Context, courierID int64, leaderName, returnPhoto string) error {
	return s.returnErr
}

func (s *stubService) StartNewDay(ctx context.Context, courierID int64) error {
	return s.newDayErr
}

func newTestHandler(t *testing.T, svc Service) *Handler {
	t.Helper()

	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	auth := middleware.NewAuthMiddleware("test-secret")

	return NewHandler(svc, logger, auth)
}

func authedRequest(t *testing.T, h *Handler, method, target string, body []byte) *http.Request {
	t.Helper()

	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}

	rec := httptest.NewRecorder()
	h.authMiddleware.SetAuthCookie(rec, 1)
	req.AddCookie(rec.Result().Cookies()[0])

	return req
}

func TestRegister_Success(t *testing.T) {
	svc := &stubService{
		registerCourierID: 42,
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(credentialsRequest{
		Login:    "kurir",
		Password: "pass",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/courier/register", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Register(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if len(res.Cookies()) == 0 {
		t.Fatalf("expected auth cookie to be set")
	}
}

func TestRegister_ConflictOnDuplicateLogin(t *testing.T) {
	svc := &stubService{
		registerErr: repository.ErrCourierExists,
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(credentialsRequest{
		Login:    "kurir",
		Password: "pass",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/courier/register", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Register(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusConflict)
	}
}

func TestLogin_UnauthorizedOnBadCredentials(t *testing.T) {
	svc := &stubService{
		authErr: service.ErrInvalidCredentials,
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(credentialsRequest{
		Login:    "kurir",
		Password: "wrong",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/courier/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Login(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnauthorized)
	}
}

func TestGetDay_JSONResponse(t *testing.T) {
	now := time.Date(2024, 4, 1, 9, 30, 0, 0, time.UTC)
	svc := &stubService{
		snapshotResp: model.Snapshot{
			Step: model.StepScan,
			Daily: []model.Package{
				{ID: "p1", TrackingNumber: "A1", IsCOD: true},
			},
			Scanned: []model.ScannedPackage{
				{Package: model.Package{ID: "p1", TrackingNumber: "A1", IsCOD: true}, ScanTime: now},
			},
		},
	}
	h := newTestHandler(t, svc)

	req := authedRequest(t, h, http.MethodGet, "/api/day", nil)
	rec := httptest.NewRecorder()

	handlerWithAuth := h.authMiddleware.Middleware(http.HandlerFunc(h.GetDay))
	handlerWithAuth.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if ct := res.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type = %q, want application/json", ct)
	}

	var resp dayResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Step != string(model.StepScan) {
		t.Fatalf("step = %q, want %q", resp.Step, model.StepScan)
	}
	if len(resp.Scanned) != 1 || resp.Scanned[0].ScanTime != now.Format(time.RFC3339) {
		t.Fatalf("unexpected scanned collection: %+v", resp.Scanned)
	}
}

func TestGetDay_UnauthorizedWithoutCookie(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	req := httptest.NewRequest(http.MethodGet, "/api/day", nil)
	rec := httptest.NewRecorder()

	handlerWithAuth := h.authMiddleware.Middleware(http.HandlerFunc(h.GetDay))
	handlerWithAuth.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnauthorized)
	}
}

func TestAddPackage_Created(t *testing.T) {
	svc := &stubService{
		addPackageResp: model.Package{ID: "p1", TrackingNumber: "A1", IsCOD: false},
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(addPackageRequest{TrackingNumber: "A1"})
	req := authedRequest(t, h, http.MethodPost, "/api/day/packages", body)
	rec := httptest.NewRecorder()

	handlerWithAuth := h.authMiddleware.Middleware(http.HandlerFunc(h.AddPackage))
	handlerWithAuth.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusCreated)
	}

	var resp packageResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != "p1" || resp.TrackingNumber != "A1" {
		t.Fatalf("unexpected package response: %+v", resp)
	}
}

func TestAddPackage_UnprocessableOnBadTracking(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	body, _ := json.Marshal(addPackageRequest{TrackingNumber: "не трек"})
	req := authedRequest(t, h, http.MethodPost, "/api/day/packages", body)
	rec := httptest.NewRecorder()

	handlerWithAuth := h.authMiddleware.Middleware(http.HandlerFunc(h.AddPackage))
	handlerWithAuth.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnprocessableEntity)
	}
}

func TestAddPackage_ConflictOnDuplicate(t *testing.T) {
	svc := &stubService{
		addPackageErr: workflow.ErrDuplicateTracking,
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(addPackageRequest{TrackingNumber: "A1"})
	req := authedRequest(t, h, http.MethodPost, "/api/day/packages", body)
	rec := httptest.NewRecorder()

	handlerWithAuth := h.authMiddleware.Middleware(http.HandlerFunc(h.AddPackage))
	handlerWithAuth.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusConflict)
	}
}

func TestScanPackage_NotFoundOnUnknownTracking(t *testing.T) {
	svc := &stubService{
		scanErr: workflow.ErrUnknownTracking,
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(scanRequest{TrackingNumber: "B9"})
	req := authedRequest(t, h, http.MethodPost, "/api/day/scan", body)
	rec := httptest.NewRecorder()

	handlerWithAuth := h.authMiddleware.Middleware(http.HandlerFunc(h.ScanPackage))
	handlerWithAuth.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusNotFound)
	}
}

func TestMarkDelivered_BadRequestOnEmptyRecipient(t *testing.T) {
	svc := &stubService{
		deliveredErr: workflow.ErrEmptyRecipient,
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(markDeliveredRequest{ProofPhoto: "photo.jpg"})
	req := authedRequest(t, h, http.MethodPost, "/api/day/delivery/p1/delivered", body)
	rec := httptest.NewRecorder()

	handlerWithAuth := h.authMiddleware.Middleware(http.HandlerFunc(h.MarkDelivered))
	handlerWithAuth.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

func TestStartDelivery_ConflictOnIncompleteScan(t *testing.T) {
	svc := &stubService{
		startDeliveryErr: workflow.ErrScanIncomplete,
	}
	h := newTestHandler(t, svc)

	req := authedRequest(t, h, http.MethodPost, "/api/day/delivery/start", nil)
	rec := httptest.NewRecorder()

	handlerWithAuth := h.authMiddleware.Middleware(http.HandlerFunc(h.StartDelivery))
	handlerWithAuth.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusConflict)
	}
}

func TestImportManifest_RetryAfterOnBusy(t *testing.T) {
	svc := &stubService{
		importErr:        service.ErrManifestBusy,
		importRetryAfter: 30 * time.Second,
	}
	h := newTestHandler(t, svc)

	req := authedRequest(t, h, http.MethodPost, "/api/day/packages/import", nil)
	rec := httptest.NewRecorder()

	handlerWithAuth := h.authMiddleware.Middleware(http.HandlerFunc(h.ImportManifest))
	handlerWithAuth.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusServiceUnavailable)
	}
	if ra := res.Header.Get("Retry-After"); ra != "30" {
		t.Fatalf("Retry-After = %q, want %q", ra, "30")
	}
}

func TestReturnPending_WrongStepBadRequest(t *testing.T) {
	svc := &stubService{
		returnErr: workflow.ErrWrongStep,
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(returnRequest{LeaderName: "Смирнов", ReturnPhoto: "ret.jpg"})
	req := authedRequest(t, h, http.MethodPost, "/api/day/pending/return", body)
	rec := httptest.NewRecorder()

	handlerWithAuth := h.authMiddleware.Middleware(http.HandlerFunc(h.ReturnPending))
	handlerWithAuth.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

func TestGetSummary_JSONResponse(t *testing.T) {
	svc := &stubService{
		summaryResp: model.Summary{
			Total:       4,
			Delivered:   3,
			Pending:     1,
			SuccessRate: 75,
		},
	}
	h := newTestHandler(t, svc)

	req := authedRequest(t, h, http.MethodGet, "/api/day/summary", nil)
	rec := httptest.NewRecorder()

	handlerWithAuth := h.authMiddleware.Middleware(http.HandlerFunc(h.GetSummary))
	handlerWithAuth.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if ct := res.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type = %q, want application/json", ct)
	}

	var resp model.Summary
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Delivered != 3 || resp.SuccessRate != 75 {
		t.Fatalf("unexpected summary: %+v", resp)
	}
}

func TestRouter_ResetRouteWired(t *testing.T) {
	h := newTestHandler(t, &stubService{})
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/day/reset", nil)
	rec := httptest.NewRecorder()
	h.authMiddleware.SetAuthCookie(rec, 1)
	req.AddCookie(rec.Result().Cookies()[0])

	respRec := httptest.NewRecorder()
	router.ServeHTTP(respRec, req)

	res := respRec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
}
