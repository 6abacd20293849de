package registry

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedis_BadURL(t *testing.T) {
	t.Parallel()
	_, err := NewRedis(context.Background(), "not-a-url", "k")
	assert.ErrorContains(t, err, "parse redis url")
}

// Runs against a real server when TEST_REDIS_URL is set.
func TestRedis_Integration(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	key := fmt.Sprintf("ticketwatch:test:%d", time.Now().UnixNano())

	r, err := NewRedis(ctx, url, key)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = r.rdb.Del(context.Background(), key).Err()
		_ = r.Close()
	})
	r.now = stepClock()

	exerciseRegistry(t, r)
}
