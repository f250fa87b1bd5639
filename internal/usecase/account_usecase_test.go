package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"github.com/iho/golend/internal/domain"
	"github.com/iho/golend/internal/usecase"
	"github.com/iho/golend/internal/usecase/mocks"
)

func TestAccountUseCase_BalanceOf(t *testing.T) {
	tests := []struct {
		name        string
		setupMocks  func(*mocks.MockAccountRepository)
		want        uint64
		expectError bool
	}{
		{
			name: "existing account",
			setupMocks: func(repo *mocks.MockAccountRepository) {
				acc := domain.NewAccount("acc-1", lenderA, usdcAddr, time.Now())
				acc.Balance = usdc(3)
				repo.EXPECT().GetByOwnerAsset(gomock.Any(), lenderA, usdcAddr).Return(acc, nil)
			},
			want: 3_000_000,
		},
		{
			name: "missing account holds nothing",
			setupMocks: func(repo *mocks.MockAccountRepository) {
				repo.EXPECT().GetByOwnerAsset(gomock.Any(), lenderA, usdcAddr).Return(nil, domain.ErrAccountNotFound)
			},
			want: 0,
		},
		{
			name: "repository failure",
			setupMocks: func(repo *mocks.MockAccountRepository) {
				repo.EXPECT().GetByOwnerAsset(gomock.Any(), lenderA, usdcAddr).Return(nil, errors.New("db down"))
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			repo := mocks.NewMockAccountRepository(ctrl)
			tt.setupMocks(repo)

			uc := usecase.NewAccountUseCase(repo)
			got, err := uc.BalanceOf(context.Background(), lenderA, usdcAddr)

			if tt.expectError {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Uint64() != tt.want {
				t.Fatalf("BalanceOf() = %s, want %d", got.Dec(), tt.want)
			}
		})
	}
}

func TestAccountUseCase_GetAccount(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockAccountRepository(ctrl)
	repo.EXPECT().GetByOwnerAsset(gomock.Any(), lenderB, usdcAddr).Return(nil, domain.ErrAccountNotFound)

	uc := usecase.NewAccountUseCase(repo)
	if _, err := uc.GetAccount(context.Background(), lenderB, usdcAddr); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestAccountUseCase_ListAccounts(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockAccountRepository(ctrl)
	accounts := []*domain.Account{
		domain.NewAccount("acc-1", lenderA, usdcAddr, time.Now()),
		domain.NewAccount("acc-2", lenderA, registryAddr, time.Now()),
	}
	repo.EXPECT().ListByOwner(gomock.Any(), lenderA).Return(accounts, nil)

	uc := usecase.NewAccountUseCase(repo)
	got, err := uc.ListAccounts(context.Background(), lenderA)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(got))
	}
}
