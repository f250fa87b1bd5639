package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	ErrInvalidHeadline    = errors.New("invalid headline")
	ErrInvalidDescription = errors.New("invalid description")
	ErrInvalidAddress     = errors.New("invalid account address")
	ErrMetadataTooLarge   = errors.New("metadata size exceeds limit")
	ErrInvalidMetadata    = errors.New("metadata is not valid JSON")
)

const (
	MaxHeadlineLength    = 200
	MinHeadlineLength    = 1
	MaxDescriptionLength = 5000
	MaxMetadataSize      = 10 << 10
	MaxLoanPeriodDays    = 3650
)

// MaxInterestRate caps the annual rate window at 10000% (100 WAD).
var MaxInterestRate = new(uint256.Int).Mul(uint256.NewInt(100), WAD)

// ParseAddress parses a 0x-prefixed 20-byte hex account identifier.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return common.HexToAddress(s), nil
}

// ValidateHeadline requires 1 to MaxHeadlineLength runes after trimming.
func ValidateHeadline(headline string) error {
	headline = strings.TrimSpace(headline)
	n := utf8.RuneCountInString(headline)

	if n < MinHeadlineLength {
		return fmt.Errorf("%w: headline cannot be empty", ErrInvalidHeadline)
	}

	if n > MaxHeadlineLength {
		return fmt.Errorf("%w: headline exceeds %d characters", ErrInvalidHeadline, MaxHeadlineLength)
	}

	return nil
}

func ValidateDescription(description string) error {
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		return fmt.Errorf("%w: description exceeds %d characters", ErrInvalidDescription, MaxDescriptionLength)
	}
	return nil
}

// ValidateAmount rejects nil and zero amounts.
func ValidateAmount(amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	return nil
}

// ValidateMetadata checks that transfer metadata encodes to JSON within
// MaxMetadataSize bytes. Metadata is stored as JSONB.
func ValidateMetadata(metadata map[string]any) error {
	if len(metadata) == 0 {
		return nil
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}
	if len(raw) > MaxMetadataSize {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrMetadataTooLarge, len(raw), MaxMetadataSize)
	}
	return nil
}

// Loan listing page bounds.
const (
	DefaultPageSize = 50
	MaxPageSize     = 1000
)

// ValidatePagination clamps a loan listing page.
func ValidatePagination(limit, offset int) (int, int) {
	return ClampPage(limit, offset, DefaultPageSize, MaxPageSize)
}

// ClampPage replaces a non-positive limit with def, caps it at ceiling and
// floors offset at zero.
func ClampPage(limit, offset, def, ceiling int) (int, int) {
	switch {
	case limit <= 0:
		limit = def
	case limit > ceiling:
		limit = ceiling
	}
	return limit, max(offset, 0)
}
