package trace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnsureKeepsExistingID(t *testing.T) {
	ctx := WithContext(context.Background(), "abc")
	ctx, id := Ensure(ctx)
	assert.Equal(t, "abc", id)
	assert.Equal(t, "abc", FromContext(ctx))
}

func TestEnsureGeneratesID(t *testing.T) {
	ctx, id := Ensure(context.Background())
	assert.NotEmpty(t, id)
	assert.Equal(t, id, FromContext(ctx))
}

func TestWithContextIgnoresEmpty(t *testing.T) {
	ctx := WithContext(context.Background(), "")
	assert.Empty(t, FromContext(ctx))
}
