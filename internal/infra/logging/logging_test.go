//go:build !integration

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := WithDeviceID(WithUserID(WithTraceID(context.Background(), "t-1"), "u-1"), "dev-A")
	With(ctx, &base).Info().Msg("hello")

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "t-1", got["trace_id"])
	assert.Equal(t, "u-1", got["user_id"])
	assert.Equal(t, "dev-A", got["device_id"])
	assert.Equal(t, "t-1", TraceID(ctx))
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "abc", Redact("abc", true))
	assert.Equal(t, "***", Redact("abc", false))
	assert.Equal(t, "abcd...ij", Redact("abcdefghij", false))
}
