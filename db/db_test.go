package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPoolDefaults(t *testing.T) {
	tests := []struct {
		name string
		in   Pool
		want Pool
	}{
		{
			name: "zero value",
			want: Pool{MaxOpenConns: 25, MaxIdleConns: 25, ConnMaxLifetime: 5 * time.Minute, ConnMaxIdleTime: time.Minute, ConnectTimeout: 5 * time.Second},
		},
		{
			name: "idle capped by open",
			in:   Pool{MaxOpenConns: 10, MaxIdleConns: 40, ConnectTimeout: time.Second},
			want: Pool{MaxOpenConns: 10, MaxIdleConns: 10, ConnMaxLifetime: 5 * time.Minute, ConnMaxIdleTime: time.Minute, ConnectTimeout: time.Second},
		},
		{
			name: "explicit values kept",
			in:   Pool{MaxOpenConns: 8, MaxIdleConns: 4, ConnMaxLifetime: time.Hour, ConnMaxIdleTime: 2 * time.Minute, ConnectTimeout: 3 * time.Second},
			want: Pool{MaxOpenConns: 8, MaxIdleConns: 4, ConnMaxLifetime: time.Hour, ConnMaxIdleTime: 2 * time.Minute, ConnectTimeout: 3 * time.Second},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.withDefaults())
		})
	}
}
