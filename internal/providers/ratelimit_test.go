package providers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateLimitedPassesThrough(t *testing.T) {
	r := NewRateLimited(NewMockProvider(4), 0)
	vecs, info, err := r.Embed(context.Background(), EmbedRequest{Inputs: []string{"x"}})
	require.NoError(t, err)
	require.Equal(t, "mock", info.Name)
	require.Len(t, vecs[0], 4)

	resp, _, err := r.Generate(context.Background(), GenerateRequest{Operation: OpCondense, Question: "q"})
	require.NoError(t, err)
	require.Equal(t, "q", resp.Text)
}

func TestRateLimitedHonoursContext(t *testing.T) {
	r := NewRateLimited(NewMockProvider(4), 0.001)
	ctx := context.Background()
	_, _, err := r.Embed(ctx, EmbedRequest{Inputs: []string{"first"}})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, _, err = r.Embed(ctx, EmbedRequest{Inputs: []string{"second"}})
	require.Error(t, err)
}
