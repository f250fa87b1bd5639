package dto

import (
	"time"

	"github.com/holiman/uint256"

	"github.com/iho/golend/internal/domain"
	"github.com/iho/golend/internal/usecase"
)

// LoanResponse represents loan metadata in API responses.
type LoanResponse struct {
	ID              uint64    `json:"id"`
	Requester       string    `json:"requester"`
	PoolAddress     string    `json:"pool_address"`
	Headline        string    `json:"headline"`
	Description     string    `json:"description"`
	Asset           string    `json:"asset"`
	LoanAmount      Amount    `json:"loan_amount"`
	LoanPeriod      uint64    `json:"loan_period"`
	InterestRateMin string    `json:"interest_rate_min"`
	InterestRateMax string    `json:"interest_rate_max"`
	Timestamp       time.Time `json:"timestamp"`
}

// LoanFromDomain converts loan metadata to response.
func LoanFromDomain(l *domain.LoanMetadata, decimals *int32) *LoanResponse {
	return &LoanResponse{
		ID:              l.ID,
		Requester:       l.Requester.Hex(),
		PoolAddress:     l.PoolAddress.Hex(),
		Headline:        l.Headline,
		Description:     l.Description,
		Asset:           l.Asset.Hex(),
		LoanAmount:      NewAmount(l.LoanAmount, decimals),
		LoanPeriod:      l.LoanPeriod,
		InterestRateMin: domain.CloneAmount(l.InterestRateMin).Dec(),
		InterestRateMax: domain.CloneAmount(l.InterestRateMax).Dec(),
		Timestamp:       l.Timestamp,
	}
}

// ListLoansResponse represents a page of loans.
type ListLoansResponse struct {
	Loans []*LoanResponse `json:"loans"`
	Total int             `json:"total"`
}

// LoansFromDomain converts a page of loans to response.
func LoansFromDomain(loans []*domain.LoanMetadata, decimals *int32) ListLoansResponse {
	out := make([]*LoanResponse, len(loans))
	for i, l := range loans {
		out[i] = LoanFromDomain(l, decimals)
	}
	return ListLoansResponse{Loans: out, Total: len(out)}
}

// TermsResponse mirrors the pool's finalized terms.
type TermsResponse struct {
	PrincipalAmount Amount `json:"principal_amount"`
	InterestRate    string `json:"interest_rate"`
	InterestAmount  Amount `json:"interest_amount"`
	AmountOwed      Amount `json:"amount_owed"`
	AmountRepaid    Amount `json:"amount_repaid"`
}

// LenderResponse is one lender's position.
type LenderResponse struct {
	Lender        string `json:"lender"`
	LendingAmount Amount `json:"lending_amount"`
	ClaimedAmount Amount `json:"claimed_amount"`
}

// PoolResponse represents a pool's state and terms.
type PoolResponse struct {
	LoanID          uint64            `json:"loan_id"`
	Address         string            `json:"address"`
	Requester       string            `json:"requester"`
	Asset           string            `json:"asset"`
	RequestedAmount Amount            `json:"requested_amount"`
	PeriodDays      uint64            `json:"period_days"`
	Status          string            `json:"status"`
	AmountRemaining Amount            `json:"amount_remaining"`
	Terms           TermsResponse     `json:"terms"`
	TotalPledged    Amount            `json:"total_pledged"`
	Uncredited      Amount            `json:"uncredited"`
	Lenders         []*LenderResponse `json:"lenders"`
	Version         int64             `json:"version"`
}

// PoolFromDomain converts a pool to response.
func PoolFromDomain(p *domain.Pool, decimals *int32) *PoolResponse {
	loan := p.LoanTerms()
	state := p.State()
	terms := p.Terms()

	lenders := p.Lenders()
	out := make([]*LenderResponse, len(lenders))
	for i, l := range lenders {
		out[i] = &LenderResponse{
			Lender:        l.Lender.Hex(),
			LendingAmount: NewAmount(l.Contributed, decimals),
			ClaimedAmount: NewAmount(l.Claimed, decimals),
		}
	}

	return &PoolResponse{
		LoanID:          loan.LoanID,
		Address:         p.Address().Hex(),
		Requester:       loan.Requester.Hex(),
		Asset:           loan.Asset.Hex(),
		RequestedAmount: NewAmount(loan.RequestedAmount, decimals),
		PeriodDays:      loan.PeriodDays,
		Status:          state.Status.String(),
		AmountRemaining: NewAmount(state.AmountRemaining, decimals),
		Terms: TermsResponse{
			PrincipalAmount: NewAmount(terms.PrincipalAmount, decimals),
			InterestRate:    terms.InterestRate.Dec(),
			InterestAmount:  NewAmount(terms.InterestAmount, decimals),
			AmountOwed:      NewAmount(terms.AmountOwed, decimals),
			AmountRepaid:    NewAmount(terms.AmountRepaid, decimals),
		},
		TotalPledged: NewAmount(p.TotalPledged(), decimals),
		Uncredited:   NewAmount(p.Uncredited(), decimals),
		Lenders:      out,
		Version:      p.Version(),
	}
}

// LenderInfoResponse is the lenderInfo read model.
type LenderInfoResponse struct {
	LoanID        uint64 `json:"loan_id"`
	Lender        string `json:"lender"`
	LendingAmount Amount `json:"lending_amount"`
	ClaimedAmount Amount `json:"claimed_amount"`
}

// ClaimableResponse is the claimable amount of one lender.
type ClaimableResponse struct {
	LoanID    uint64 `json:"loan_id"`
	Lender    string `json:"lender"`
	Claimable Amount `json:"claimable"`
}

// ReceiptResponse describes what an accept-payment call observed.
type ReceiptResponse struct {
	Observed Amount `json:"observed"`
	Credited Amount `json:"credited"`
	Excess   Amount `json:"excess"`
	Repaid   bool   `json:"repaid"`
}

// PoolResultResponse is the outcome of a pool operation.
type PoolResultResponse struct {
	LoanID    uint64              `json:"loan_id"`
	Amount    *Amount             `json:"amount,omitempty"`
	Receipt   *ReceiptResponse    `json:"receipt,omitempty"`
	Pool      *PoolResponse       `json:"pool"`
	Transfers []*TransferResponse `json:"transfers,omitempty"`
}

// PoolResultFromUseCase converts a pool operation result to response.
func PoolResultFromUseCase(res *usecase.PoolResult, decimals *int32) *PoolResultResponse {
	out := &PoolResultResponse{
		LoanID:    res.LoanID,
		Pool:      PoolFromDomain(res.Pool, decimals),
		Transfers: TransfersFromDomain(res.Transfers, decimals),
	}
	if res.Amount != nil {
		a := NewAmount(res.Amount, decimals)
		out.Amount = &a
	}
	if res.Receipt != nil {
		out.Receipt = &ReceiptResponse{
			Observed: NewAmount(res.Receipt.Observed, decimals),
			Credited: NewAmount(res.Receipt.Credited, decimals),
			Excess:   NewAmount(res.Receipt.Excess, decimals),
			Repaid:   res.Receipt.Repaid,
		}
	}
	return out
}

// TransferResponse represents an asset transfer in API responses.
type TransferResponse struct {
	ID        string         `json:"id"`
	Asset     string         `json:"asset"`
	From      string         `json:"from"`
	To        string         `json:"to"`
	Amount    Amount         `json:"amount"`
	CreatedAt time.Time      `json:"created_at"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// TransferFromDomain converts domain transfer to response.
func TransferFromDomain(t *domain.Transfer, decimals *int32) *TransferResponse {
	return &TransferResponse{
		ID:        t.ID,
		Asset:     t.Asset.Hex(),
		From:      t.From.Hex(),
		To:        t.To.Hex(),
		Amount:    NewAmount(t.Amount, decimals),
		CreatedAt: t.CreatedAt,
		Metadata:  t.Metadata,
	}
}

// TransfersFromDomain converts domain transfers to responses.
func TransfersFromDomain(transfers []*domain.Transfer, decimals *int32) []*TransferResponse {
	if len(transfers) == 0 {
		return nil
	}
	result := make([]*TransferResponse, len(transfers))
	for i, t := range transfers {
		result[i] = TransferFromDomain(t, decimals)
	}
	return result
}

// BalanceResponse is one owner's balance of one asset.
type BalanceResponse struct {
	Owner   string `json:"owner"`
	Asset   string `json:"asset"`
	Balance Amount `json:"balance"`
}

// NewBalanceResponse builds a BalanceResponse.
func NewBalanceResponse(owner, asset string, balance *uint256.Int, decimals *int32) *BalanceResponse {
	return &BalanceResponse{Owner: owner, Asset: asset, Balance: NewAmount(balance, decimals)}
}

// AccountResponse represents an asset book account.
type AccountResponse struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	Asset     string    `json:"asset"`
	Balance   Amount    `json:"balance"`
	Issuer    bool      `json:"issuer"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AccountFromDomain converts domain account to response.
func AccountFromDomain(a *domain.Account, decimals *int32) *AccountResponse {
	return &AccountResponse{
		ID:        a.ID,
		Owner:     a.Owner.Hex(),
		Asset:     a.Asset.Hex(),
		Balance:   NewAmount(a.Balance, decimals),
		Issuer:    a.Issuer,
		Version:   a.Version,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

// AccountsFromDomain converts domain accounts to responses.
func AccountsFromDomain(accounts []*domain.Account, decimals *int32) []*AccountResponse {
	result := make([]*AccountResponse, len(accounts))
	for i, a := range accounts {
		result[i] = AccountFromDomain(a, decimals)
	}
	return result
}

// EntryResponse represents an entry in API responses.
type EntryResponse struct {
	ID                     string    `json:"id"`
	AccountID              string    `json:"account_id"`
	TransferID             string    `json:"transfer_id"`
	Direction              string    `json:"direction"`
	Amount                 Amount    `json:"amount"`
	AccountPreviousBalance Amount    `json:"account_previous_balance"`
	AccountCurrentBalance  Amount    `json:"account_current_balance"`
	AccountVersion         int64     `json:"account_version"`
	CreatedAt              time.Time `json:"created_at"`
}

// EntryFromDomain converts domain entry to response.
func EntryFromDomain(e *domain.Entry, decimals *int32) *EntryResponse {
	return &EntryResponse{
		ID:                     e.ID,
		AccountID:              e.AccountID,
		TransferID:             e.TransferID,
		Direction:              string(e.Direction),
		Amount:                 NewAmount(e.Amount, decimals),
		AccountPreviousBalance: NewAmount(e.AccountPreviousBalance, decimals),
		AccountCurrentBalance:  NewAmount(e.AccountCurrentBalance, decimals),
		AccountVersion:         e.AccountVersion,
		CreatedAt:              e.CreatedAt,
	}
}

// EntriesFromDomain converts domain entries to responses.
func EntriesFromDomain(entries []*domain.Entry, decimals *int32) []*EntryResponse {
	result := make([]*EntryResponse, len(entries))
	for i, e := range entries {
		result[i] = EntryFromDomain(e, decimals)
	}
	return result
}

// AssetTotalsResponse aggregates the book for one asset.
type AssetTotalsResponse struct {
	Asset        string `json:"asset"`
	IssuerSupply string `json:"issuer_supply"`
	HolderTotal  string `json:"holder_total"`
	DebitTotal   string `json:"debit_total"`
	CreditTotal  string `json:"credit_total"`
	Balanced     bool   `json:"balanced"`
}

// ConsistencyResponse is the asset book consistency report.
type ConsistencyResponse struct {
	Consistent bool                   `json:"consistent"`
	Assets     []*AssetTotalsResponse `json:"assets"`
	CheckedAt  time.Time              `json:"checked_at"`
}

// ConsistencyFromUseCase converts a consistency report to response.
func ConsistencyFromUseCase(r *usecase.ConsistencyReport) *ConsistencyResponse {
	assets := make([]*AssetTotalsResponse, len(r.Assets))
	for i, t := range r.Assets {
		assets[i] = &AssetTotalsResponse{
			Asset:        t.Asset.Hex(),
			IssuerSupply: domain.CloneAmount(t.IssuerSupply).Dec(),
			HolderTotal:  domain.CloneAmount(t.HolderTotal).Dec(),
			DebitTotal:   domain.CloneAmount(t.DebitTotal).Dec(),
			CreditTotal:  domain.CloneAmount(t.CreditTotal).Dec(),
			Balanced:     t.Balanced(),
		}
	}
	return &ConsistencyResponse{
		Consistent: r.Consistent,
		Assets:     assets,
		CheckedAt:  r.CheckedAt,
	}
}

// PoolReconciliationResponse is the reconciliation of one pool.
type PoolReconciliationResponse struct {
	LoanID       uint64    `json:"loan_id"`
	PoolAddress  string    `json:"pool_address"`
	Status       string    `json:"status"`
	Expected     Amount    `json:"expected"`
	Actual       Amount    `json:"actual"`
	Dust         Amount    `json:"dust"`
	Uncredited   Amount    `json:"uncredited"`
	IsReconciled bool      `json:"is_reconciled"`
	LastChecked  time.Time `json:"last_checked"`
}

// PoolReconciliationFromUseCase converts a pool reconciliation to response.
func PoolReconciliationFromUseCase(r *usecase.PoolReconciliation, decimals *int32) *PoolReconciliationResponse {
	return &PoolReconciliationResponse{
		LoanID:       r.LoanID,
		PoolAddress:  r.PoolAddress.Hex(),
		Status:       r.Status.String(),
		Expected:     NewAmount(r.Expected, decimals),
		Actual:       NewAmount(r.Actual, decimals),
		Dust:         NewAmount(r.Dust, decimals),
		Uncredited:   NewAmount(r.Uncredited, decimals),
		IsReconciled: r.IsReconciled,
		LastChecked:  r.LastChecked,
	}
}

// ReconciliationReportResponse is the book-wide reconciliation report.
type ReconciliationReportResponse struct {
	TotalPools       int                           `json:"total_pools"`
	ReconciledPools  int                           `json:"reconciled_pools"`
	Discrepancies    []*PoolReconciliationResponse `json:"discrepancies"`
	LedgerConsistent bool                          `json:"ledger_consistent"`
	CheckedAt        time.Time                     `json:"checked_at"`
}

// ReconciliationReportFromUseCase converts a reconciliation report to response.
func ReconciliationReportFromUseCase(r *usecase.ReconciliationReport) *ReconciliationReportResponse {
	out := make([]*PoolReconciliationResponse, len(r.Discrepancies))
	for i, d := range r.Discrepancies {
		out[i] = PoolReconciliationFromUseCase(d, nil)
	}
	return &ReconciliationReportResponse{
		TotalPools:       r.TotalPools,
		ReconciledPools:  r.ReconciledPools,
		Discrepancies:    out,
		LedgerConsistent: r.LedgerConsistent,
		CheckedAt:        r.CheckedAt,
	}
}

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
