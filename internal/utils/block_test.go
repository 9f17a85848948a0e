package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manifest-network/chainview/internal/chain/chaintest"
)

func TestBlockWindow(t *testing.T) {
	cases := []struct {
		name   string
		height uint64
		count  uint
		want   []uint64
	}{
		{name: "regular", height: 100, count: 5, want: []uint64{100, 99, 98, 97, 96}},
		{name: "near genesis", height: 2, count: 5, want: []uint64{2, 1, 0}},
		{name: "genesis", height: 0, count: 5, want: []uint64{0}},
		{name: "exact", height: 4, count: 5, want: []uint64{4, 3, 2, 1, 0}},
		{name: "empty", height: 10, count: 0, want: nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, BlockWindow(tc.height, tc.count))
		})
	}
}

func TestShortID(t *testing.T) {
	cases := []struct {
		hash string
		want string
	}{
		{hash: "0x1234567890abcdef", want: "0x12345678"},
		{hash: "0x1234", want: "0x1234"},
		{hash: "", want: ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ShortID(tc.hash))
	}
}

func TestGetLatestBlockHeightWithRetry(t *testing.T) {
	retryBaseDelay = time.Millisecond
	t.Cleanup(func() { retryBaseDelay = 250 * time.Millisecond })

	client := chaintest.New(1)
	client.AddBlock(12, 0)

	height, err := GetLatestBlockHeightWithRetry(context.Background(), client, 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), height)
	assert.Equal(t, 1, client.Calls("BlockNumber"))

	client.HeightErr = errors.New("connection refused")
	_, err = GetLatestBlockHeightWithRetry(context.Background(), client, 3)
	assert.ErrorContains(t, err, "failed after 3 attempt(s)")
	assert.ErrorContains(t, err, "connection refused")
	assert.Equal(t, 4, client.Calls("BlockNumber"))
}

func TestRetryStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := chaintest.New(1)
	client.HeightErr = errors.New("unavailable")

	_, err := GetLatestBlockHeightWithRetry(ctx, client, 5)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, client.Calls("BlockNumber"))
}
