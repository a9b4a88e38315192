package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestIDContext(t *testing.T) {
	t.Run("round trips through the context", func(t *testing.T) {
		ctx := WithRequestID(context.Background(), "req-123")
		assert.Equal(t, "req-123", RequestIDFromContext(ctx))
	})

	t.Run("empty when never set", func(t *testing.T) {
		assert.Equal(t, "", RequestIDFromContext(context.Background()))
	})

	t.Run("last write wins", func(t *testing.T) {
		ctx := WithRequestID(context.Background(), "req-1")
		ctx = WithRequestID(ctx, "req-2")
		assert.Equal(t, "req-2", RequestIDFromContext(ctx))
	})

	t.Run("ignores foreign keys of the same name", func(t *testing.T) {
		type otherKey string
		ctx := context.WithValue(context.Background(), otherKey("request_id"), "spoofed")
		assert.Equal(t, "", RequestIDFromContext(ctx))
	})
}
