package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPoolWithConfigFailures(t *testing.T) {
	tests := []struct {
		name    string
		cfg     PoolConfig
		wantMsg string
	}{
		{
			name:    "unparseable url",
			cfg:     PoolConfig{DatabaseURL: "not-a-url"},
			wantMsg: "parse database URL",
		},
		{
			name: "unreachable host",
			cfg: PoolConfig{
				DatabaseURL:       "postgres://golend@127.0.0.1:1/golend?connect_timeout=1",
				MaxConns:          2,
				MaxConnLifetime:   time.Minute,
				HealthCheckPeriod: time.Second,
			},
			wantMsg: "ping database",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()

			pool, err := NewPoolWithConfig(ctx, tt.cfg)
			require.Error(t, err)
			assert.Nil(t, pool)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestNewPoolRejectsBadURL(t *testing.T) {
	_, err := NewPool(context.Background(), "postgres://%zz", 5, 1)
	assert.Error(t, err)
}
