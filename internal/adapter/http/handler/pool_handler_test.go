package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/iho/golend/internal/adapter/http/dto"
	"github.com/iho/golend/internal/domain"
	"github.com/iho/golend/internal/usecase"
)

type poolCall struct {
	op     string
	loanID uint64
	who    common.Address
	amount *uint256.Int
}

// poolServiceStub records calls and answers with a fresh funding pool, or
// err when set.
type poolServiceStub struct {
	t     *testing.T
	calls []poolCall
	err   error
}

func (s *poolServiceStub) pool() *domain.Pool {
	pool, err := domain.NewPool(crypto.CreateAddress(usdc, 0), domain.LoanTerms{
		Requester:       requester,
		Asset:           usdc,
		RequestedAmount: uint256.NewInt(1000),
		PeriodDays:      30,
		RateMin:         uint256.NewInt(0),
		RateMax:         uint256.NewInt(0),
	})
	if err != nil {
		s.t.Fatalf("NewPool failed: %v", err)
	}
	return pool
}

func (s *poolServiceStub) result(op string, loanID uint64, who common.Address, amount *uint256.Int) (*usecase.PoolResult, error) {
	s.calls = append(s.calls, poolCall{op: op, loanID: loanID, who: who, amount: amount})
	if s.err != nil {
		return nil, s.err
	}
	return &usecase.PoolResult{LoanID: loanID, Pool: s.pool(), Amount: amount}, nil
}

func (s *poolServiceStub) Fund(_ context.Context, id uint64, who common.Address, amount *uint256.Int) (*usecase.PoolResult, error) {
	return s.result("fund", id, who, amount)
}

func (s *poolServiceStub) Withdraw(_ context.Context, id uint64, who common.Address, amount *uint256.Int) (*usecase.PoolResult, error) {
	return s.result("withdraw", id, who, amount)
}

func (s *poolServiceStub) Finalize(_ context.Context, id uint64, who common.Address) (*usecase.PoolResult, error) {
	return s.result("finalize", id, who, nil)
}

func (s *poolServiceStub) Release(_ context.Context, id uint64, who common.Address) (*usecase.PoolResult, error) {
	return s.result("release", id, who, nil)
}

func (s *poolServiceStub) AcceptPayment(_ context.Context, id uint64) (*usecase.PoolResult, error) {
	return s.result("accept-payment", id, common.Address{}, nil)
}

func (s *poolServiceStub) Claim(_ context.Context, id uint64, who common.Address) (*usecase.PoolResult, error) {
	return s.result("claim", id, who, nil)
}

func (s *poolServiceStub) GetPool(_ context.Context, id uint64) (*domain.Pool, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.pool(), nil
}

func (s *poolServiceStub) LenderInfo(_ context.Context, id uint64, who common.Address) (domain.LenderInfo, error) {
	return domain.LenderInfo{LendingAmount: uint256.NewInt(40), ClaimedAmount: uint256.NewInt(0)}, s.err
}

func (s *poolServiceStub) ClaimableAmount(_ context.Context, id uint64, who common.Address) (*uint256.Int, error) {
	return uint256.NewInt(7), s.err
}

func TestPoolHandler_AmountOperations(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		path    string
		handler func(*PoolHandler) http.HandlerFunc
		op      string
	}{
		{name: "fund", pattern: "/loans/{id}/pool/fund", path: "/loans/5/pool/fund", handler: func(h *PoolHandler) http.HandlerFunc { return h.Fund }, op: "fund"},
		{name: "withdraw", pattern: "/loans/{id}/pool/withdraw", path: "/loans/5/pool/withdraw", handler: func(h *PoolHandler) http.HandlerFunc { return h.Withdraw }, op: "withdraw"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &poolServiceStub{t: t}
			h := NewPoolHandler(stub)

			req := httptest.NewRequest(http.MethodPost, tt.path, jsonBody(t, dto.PoolAmountRequest{Amount: "40"}))
			rec := serve(http.MethodPost, tt.pattern, tt.handler(h), req, &domain.Caller{Address: lender})

			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
			}
			if len(stub.calls) != 1 {
				t.Fatalf("expected one call, got %d", len(stub.calls))
			}
			call := stub.calls[0]
			if call.op != tt.op || call.loanID != 5 || call.who != lender || call.amount.Uint64() != 40 {
				t.Fatalf("unexpected call %+v", call)
			}

			var resp dto.PoolResultResponse
			decode(t, rec, &resp)
			if resp.Amount == nil || resp.Amount.Base != "40" || resp.Pool == nil {
				t.Fatalf("unexpected response %+v", resp)
			}
		})
	}
}

func TestPoolHandler_CallerOperations(t *testing.T) {
	ops := map[string]func(*PoolHandler) http.HandlerFunc{
		"finalize":       func(h *PoolHandler) http.HandlerFunc { return h.Finalize },
		"release":        func(h *PoolHandler) http.HandlerFunc { return h.Release },
		"claim":          func(h *PoolHandler) http.HandlerFunc { return h.Claim },
		"accept-payment": func(h *PoolHandler) http.HandlerFunc { return h.AcceptPayment },
	}

	for op, handler := range ops {
		t.Run(op, func(t *testing.T) {
			stub := &poolServiceStub{t: t}
			h := NewPoolHandler(stub)

			path := fmt.Sprintf("/loans/2/pool/%s", op)
			req := httptest.NewRequest(http.MethodPost, path, nil)
			rec := serve(http.MethodPost, "/loans/{id}/pool/"+op, handler(h), req, &domain.Caller{Address: requester})

			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
			}
			if len(stub.calls) != 1 || stub.calls[0].op != op || stub.calls[0].loanID != 2 {
				t.Fatalf("unexpected calls %+v", stub.calls)
			}
			if op != "accept-payment" && stub.calls[0].who != requester {
				t.Fatalf("expected caller to be passed through, got %s", stub.calls[0].who.Hex())
			}
		})
	}
}

func TestPoolHandler_MapsDomainErrors(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: domain.ErrUnauthorized, want: http.StatusForbidden},
		{err: domain.ErrInvalidState, want: http.StatusConflict},
		{err: domain.ErrInsufficientCapacity, want: http.StatusBadRequest},
		{err: fmt.Errorf("%w: %w", domain.ErrTransferFailed, domain.ErrInsufficientFunds), want: http.StatusBadRequest},
		{err: domain.ErrPoolNotFound, want: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			h := NewPoolHandler(&poolServiceStub{t: t, err: tt.err})

			req := httptest.NewRequest(http.MethodPost, "/loans/0/pool/fund", jsonBody(t, dto.PoolAmountRequest{Amount: "1"}))
			rec := serve(http.MethodPost, "/loans/{id}/pool/fund", h.Fund, req, &domain.Caller{Address: lender})

			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestPoolHandler_RejectsBadInput(t *testing.T) {
	stub := &poolServiceStub{t: t}
	h := NewPoolHandler(stub)

	req := httptest.NewRequest(http.MethodPost, "/loans/0/pool/fund", jsonBody(t, dto.PoolAmountRequest{Amount: "1.5"}))
	rec := serve(http.MethodPost, "/loans/{id}/pool/fund", h.Fund, req, &domain.Caller{Address: lender})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected fractional base units to be rejected, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/loans/0/pool/fund", jsonBody(t, map[string]any{"amount": "1", "lender": lender.Hex()}))
	rec = serve(http.MethodPost, "/loans/{id}/pool/fund", h.Fund, req, &domain.Caller{Address: lender})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected unknown fields to be rejected, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/loans/0/pool/fund", jsonBody(t, dto.PoolAmountRequest{Amount: "1"}))
	rec = serve(http.MethodPost, "/loans/{id}/pool/fund", h.Fund, req, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected anonymous fund to be rejected, got %d", rec.Code)
	}

	if len(stub.calls) != 0 {
		t.Fatalf("expected no pool calls, got %+v", stub.calls)
	}
}

func TestPoolHandler_Reads(t *testing.T) {
	h := NewPoolHandler(&poolServiceStub{t: t})

	rec := serve(http.MethodGet, "/loans/{id}/pool", h.Get, httptest.NewRequest(http.MethodGet, "/loans/0/pool?decimals=2", nil), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var pool dto.PoolResponse
	decode(t, rec, &pool)
	if pool.Status != "funding" || pool.AmountRemaining.Units == nil || pool.AmountRemaining.Units.String() != "10" {
		t.Fatalf("unexpected pool response %+v", pool)
	}

	path := "/loans/0/pool/lenders/" + lender.Hex()
	rec = serve(http.MethodGet, "/loans/{id}/pool/lenders/{address}", h.LenderInfo, httptest.NewRequest(http.MethodGet, path, nil), nil)
	var info dto.LenderInfoResponse
	decode(t, rec, &info)
	if info.LendingAmount.Base != "40" || info.Lender != lender.Hex() {
		t.Fatalf("unexpected lender info %+v", info)
	}

	rec = serve(http.MethodGet, "/loans/{id}/pool/lenders/{address}/claimable", h.Claimable, httptest.NewRequest(http.MethodGet, path+"/claimable", nil), nil)
	var claimable dto.ClaimableResponse
	decode(t, rec, &claimable)
	if claimable.Claimable.Base != "7" {
		t.Fatalf("unexpected claimable %+v", claimable)
	}

	rec = serve(http.MethodGet, "/loans/{id}/pool/lenders/{address}", h.LenderInfo, httptest.NewRequest(http.MethodGet, "/loans/0/pool/lenders/bob", nil), nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected malformed address to be rejected, got %d", rec.Code)
	}
}
