package handler

import (
	"context"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"

	"github.com/iho/golend/internal/adapter/http/dto"
	"github.com/iho/golend/internal/domain"
	"github.com/iho/golend/internal/usecase"
)

// TransferService defines the asset book writes needed by AssetHandler.
type TransferService interface {
	Deposit(ctx context.Context, input usecase.DepositInput) (*domain.Transfer, error)
	CreateTransfer(ctx context.Context, input usecase.CreateTransferInput) (*domain.Transfer, error)
	GetTransfer(ctx context.Context, id string) (*domain.Transfer, error)
}

// AccountService defines the asset book reads needed by AssetHandler.
type AccountService interface {
	BalanceOf(ctx context.Context, owner, asset common.Address) (*uint256.Int, error)
	ListAccounts(ctx context.Context, owner common.Address) ([]*domain.Account, error)
}

// EntryService defines the entry queries needed by AssetHandler.
type EntryService interface {
	GetEntriesByAccount(ctx context.Context, input usecase.GetEntriesByAccountInput) ([]*domain.Entry, error)
	GetEntriesByTransfer(ctx context.Context, transferID string) ([]*domain.Entry, error)
}

// AssetHandler handles asset book HTTP requests.
type AssetHandler struct {
	transferUC TransferService
	accountUC  AccountService
	entryUC    EntryService
}

// NewAssetHandler creates a new AssetHandler.
func NewAssetHandler(transferUC TransferService, accountUC AccountService, entryUC EntryService) *AssetHandler {
	return &AssetHandler{
		transferUC: transferUC,
		accountUC:  accountUC,
		entryUC:    entryUC,
	}
}

// Deposit mints an asset to an owner. Routed behind the admin role.
func (h *AssetHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req dto.DepositRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	input, err := req.ToUseCaseInput()
	if err != nil {
		writeDomainError(w, "invalid deposit request", err)
		return
	}

	transfer, err := h.transferUC.Deposit(r.Context(), input)
	if err != nil {
		writeDomainError(w, "failed to deposit", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.TransferFromDomain(transfer, req.Decimals))
}

// Transfer moves an asset from the caller to another owner.
func (h *AssetHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	var req dto.TransferRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	input, err := req.ToUseCaseInput(caller)
	if err != nil {
		writeDomainError(w, "invalid transfer request", err)
		return
	}

	transfer, err := h.transferUC.CreateTransfer(r.Context(), input)
	if err != nil {
		writeDomainError(w, "failed to create transfer", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.TransferFromDomain(transfer, req.Decimals))
}

// GetTransfer retrieves a transfer with its entries.
func (h *AssetHandler) GetTransfer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	decimals, err := parseDecimals(r)
	if err != nil {
		writeDomainError(w, "invalid query", err)
		return
	}

	transfer, err := h.transferUC.GetTransfer(r.Context(), id)
	if err != nil {
		writeDomainError(w, "failed to get transfer", err)
		return
	}

	entries, err := h.entryUC.GetEntriesByTransfer(r.Context(), id)
	if err != nil {
		writeDomainError(w, "failed to get transfer entries", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"transfer": dto.TransferFromDomain(transfer, decimals),
		"entries":  dto.EntriesFromDomain(entries, decimals),
	})
}

// Accounts lists every asset account of an owner.
func (h *AssetHandler) Accounts(w http.ResponseWriter, r *http.Request) {
	owner, err := addressParam(r, "address")
	if err != nil {
		writeDomainError(w, "invalid owner", err)
		return
	}
	decimals, err := parseDecimals(r)
	if err != nil {
		writeDomainError(w, "invalid query", err)
		return
	}

	accounts, err := h.accountUC.ListAccounts(r.Context(), owner)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list accounts", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"accounts": dto.AccountsFromDomain(accounts, decimals),
	})
}

// Balance returns an owner's balance of one asset. Unknown accounts hold
// zero.
func (h *AssetHandler) Balance(w http.ResponseWriter, r *http.Request) {
	owner, asset, decimals, ok := accountParams(w, r)
	if !ok {
		return
	}

	balance, err := h.accountUC.BalanceOf(r.Context(), owner, asset)
	if err != nil {
		writeDomainError(w, "failed to get balance", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.NewBalanceResponse(owner.Hex(), asset.Hex(), balance, decimals))
}

// Entries lists the entries of an owner's asset account, newest first.
func (h *AssetHandler) Entries(w http.ResponseWriter, r *http.Request) {
	owner, asset, decimals, ok := accountParams(w, r)
	if !ok {
		return
	}

	entries, err := h.entryUC.GetEntriesByAccount(r.Context(), usecase.GetEntriesByAccountInput{
		Owner:  owner,
		Asset:  asset,
		Limit:  parseIntQuery(r, "limit", 20),
		Offset: parseIntQuery(r, "offset", 0),
	})
	if err != nil {
		writeDomainError(w, "failed to list entries", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": dto.EntriesFromDomain(entries, decimals),
	})
}

func accountParams(w http.ResponseWriter, r *http.Request) (common.Address, common.Address, *int32, bool) {
	owner, err := addressParam(r, "address")
	if err != nil {
		writeDomainError(w, "invalid owner", err)
		return common.Address{}, common.Address{}, nil, false
	}
	asset, err := addressParam(r, "asset")
	if err != nil {
		writeDomainError(w, "invalid asset", err)
		return common.Address{}, common.Address{}, nil, false
	}
	decimals, err := parseDecimals(r)
	if err != nil {
		writeDomainError(w, "invalid query", err)
		return common.Address{}, common.Address{}, nil, false
	}
	return owner, asset, decimals, true
}
