package usecase

import (
	"time"

	"github.com/holiman/uint256"
)

// Recorder receives operation outcomes for monitoring.
type Recorder interface {
	LoanCreated()
	PoolOperation(operation string, err error, elapsed time.Duration, amount *uint256.Int)
	AssetTransfer(err error, amount *uint256.Int)
	CacheLookup(hit bool)
}

type nopRecorder struct{}

func (nopRecorder) LoanCreated() {}

func (nopRecorder) PoolOperation(string, error, time.Duration, *uint256.Int) {}

func (nopRecorder) AssetTransfer(error, *uint256.Int) {}

func (nopRecorder) CacheLookup(bool) {}

func recorderOrNop(r Recorder) Recorder {
	if r == nil {
		return nopRecorder{}
	}
	return r
}
