package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/starfall-ai/starfall-backend/api/middleware"
	"github.com/starfall-ai/starfall-backend/internal/ledger"
	"github.com/starfall-ai/starfall-backend/pkg/db/models"
	"github.com/starfall-ai/starfall-backend/pkg/enums"
)

type testLedgerService struct {
	debitFn    func(ctx context.Context, input ledger.DebitInput) (*models.LedgerEntry, error)
	refundFn   func(ctx context.Context, input ledger.RefundInput) (*models.LedgerEntry, error)
	grantSubFn func(ctx context.Context, input ledger.GrantInput) (*models.LedgerEntry, error)
	grantPkgFn func(ctx context.Context, input ledger.GrantInput) (*models.LedgerEntry, error)
	expireFn   func(ctx context.Context, userID uuid.UUID) (*models.LedgerEntry, error)
	balanceFn  func(ctx context.Context, userID uuid.UUID) (*ledger.Balance, error)
}

func (s *testLedgerService) WithTx(tx *gorm.DB) ledger.Service { return s }

func (s *testLedgerService) Debit(ctx context.Context, input ledger.DebitInput) (*models.LedgerEntry, error) {
	if s.debitFn != nil {
		return s.debitFn(ctx, input)
	}
	return nil, nil
}

func (s *testLedgerService) Refund(ctx context.Context, input ledger.RefundInput) (*models.LedgerEntry, error) {
	if s.refundFn != nil {
		return s.refundFn(ctx, input)
	}
	return nil, nil
}

func (s *testLedgerService) GrantSubscription(ctx context.Context, input ledger.GrantInput) (*models.LedgerEntry, error) {
	if s.grantSubFn != nil {
		return s.grantSubFn(ctx, input)
	}
	return nil, nil
}

func (s *testLedgerService) GrantPackage(ctx context.Context, input ledger.GrantInput) (*models.LedgerEntry, error) {
	if s.grantPkgFn != nil {
		return s.grantPkgFn(ctx, input)
	}
	return nil, nil
}

func (s *testLedgerService) ExpireSubscription(ctx context.Context, userID uuid.UUID) (*models.LedgerEntry, error) {
	if s.expireFn != nil {
		return s.expireFn(ctx, userID)
	}
	return nil, nil
}

func (s *testLedgerService) GetBalance(ctx context.Context, userID uuid.UUID) (*ledger.Balance, error) {
	if s.balanceFn != nil {
		return s.balanceFn(ctx, userID)
	}
	return &ledger.Balance{}, nil
}

func TestAdminGrantStarsTargetsSubscriptionPool(t *testing.T) {
	userID := uuid.New()
	var granted ledger.GrantInput
	svc := &testLedgerService{
		grantSubFn: func(ctx context.Context, input ledger.GrantInput) (*models.LedgerEntry, error) {
			granted = input
			return &models.LedgerEntry{
				ID:               uuid.New(),
				UserID:           input.UserID,
				Kind:             enums.LedgerEntryGrant,
				Amount:           input.Amount,
				FromSubscription: input.Amount,
			}, nil
		},
		grantPkgFn: func(ctx context.Context, input ledger.GrantInput) (*models.LedgerEntry, error) {
			t.Fatal("wrong pool")
			return nil, nil
		},
	}

	body := `{"pool": "subscription", "amount": 500, "metadata": {"plan": "studio"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/users/"+userID.String()+"/grants", strings.NewReader(body))
	req = addRouteParam(req, "userId", userID.String())
	resp := httptest.NewRecorder()

	AdminGrantStars(svc, testLogger())(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	if granted.UserID != userID || granted.Amount != 500 {
		t.Fatalf("grant input = %+v", granted)
	}
	var meta map[string]string
	if err := json.Unmarshal(granted.Metadata, &meta); err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if meta["plan"] != "studio" {
		t.Fatalf("metadata = %+v", meta)
	}
}

func TestAdminGrantStarsRejectsUnknownPool(t *testing.T) {
	userID := uuid.New()
	body := `{"pool": "bonus", "amount": 10}`
	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/users/"+userID.String()+"/grants", strings.NewReader(body))
	req = addRouteParam(req, "userId", userID.String())
	resp := httptest.NewRecorder()

	AdminGrantStars(&testLedgerService{}, testLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestAdminRefundStarsPassesSplit(t *testing.T) {
	userID := uuid.New()
	jobID := uuid.New()
	var refunded ledger.RefundInput
	svc := &testLedgerService{
		refundFn: func(ctx context.Context, input ledger.RefundInput) (*models.LedgerEntry, error) {
			refunded = input
			return &models.LedgerEntry{ID: uuid.New(), UserID: input.UserID, Kind: enums.LedgerEntryRefund}, nil
		},
	}

	body := `{"job_id": "` + jobID.String() + `", "to_subscription": 30, "to_package": 12, "reason": "goodwill"}`
	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/users/"+userID.String()+"/refunds", strings.NewReader(body))
	req = addRouteParam(req, "userId", userID.String())
	resp := httptest.NewRecorder()

	AdminRefundStars(svc, testLogger())(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	if refunded.ToSubscription != 30 || refunded.ToPackage != 12 || refunded.JobID != jobID {
		t.Fatalf("refund input = %+v", refunded)
	}
	if refunded.Reason != "goodwill" {
		t.Fatalf("reason = %q", refunded.Reason)
	}
}

func TestAdminExpireSubscriptionNothingToExpire(t *testing.T) {
	userID := uuid.New()
	svc := &testLedgerService{
		expireFn: func(ctx context.Context, uid uuid.UUID) (*models.LedgerEntry, error) {
			if uid != userID {
				t.Fatalf("unexpected user %s", uid)
			}
			return nil, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/users/"+userID.String()+"/subscription/expire", nil)
	req = addRouteParam(req, "userId", userID.String())
	resp := httptest.NewRecorder()

	AdminExpireSubscription(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	var envelope struct {
		Data map[string]int `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if envelope.Data["expired_stars"] != 0 {
		t.Fatalf("response = %+v", envelope.Data)
	}
}

func TestAdminEndpointsRejectBadUserID(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/users/bogus/grants", strings.NewReader(`{}`))
	req = addRouteParam(req, "userId", "bogus")
	resp := httptest.NewRecorder()

	AdminGrantStars(&testLedgerService{}, testLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestBalanceGetReturnsPools(t *testing.T) {
	userID := uuid.New()
	svc := &testLedgerService{
		balanceFn: func(ctx context.Context, uid uuid.UUID) (*ledger.Balance, error) {
			if uid != userID {
				t.Fatalf("unexpected user %s", uid)
			}
			return &ledger.Balance{SubscriptionStars: 120, PackageStars: 45, TotalStars: 165}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/balance", nil)
	req = req.WithContext(middleware.WithUserID(req.Context(), userID))
	resp := httptest.NewRecorder()

	BalanceGet(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	var envelope struct {
		Data ledger.Balance `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if envelope.Data.TotalStars != 165 {
		t.Fatalf("balance = %+v", envelope.Data)
	}
}

func TestBalanceGetMissingIdentity(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/balance", nil)
	resp := httptest.NewRecorder()

	BalanceGet(&testLedgerService{}, testLogger())(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}
