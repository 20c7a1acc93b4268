package providers

import (
	"errors"
	"fmt"
	"testing"

	"lexrag/internal/util"

	"github.com/ollama/ollama/api"
	"github.com/stretchr/testify/require"
)

func TestClassifyError(t *testing.T) {
	cases := []struct {
		msg  string
		want ErrorType
	}{
		{"insufficient_quota", ErrorQuota},
		{"429 rate", ErrorRate},
		{"rate limit reached for requests", ErrorRate},
		{"maximum context length exceeded", ErrorContext},
		{"timeout", ErrorTransient},
		{"openai embedding error 503: overloaded", ErrorTransient},
		{"openai key missing for alias \"\"", ErrorConfig},
		{"bad request", ErrorPermanent},
		{`openai generate error 400: {"error":{"message":"invalid model"}}`, ErrorPermanent},
		{"groq generate error 404: model not found", ErrorPermanent},
		{"groq generate error 429: rate_limit_exceeded", ErrorRate},
		{"openai generate error 429: insufficient_quota", ErrorQuota},
		{"openai generate error 401: invalid_api_key", ErrorConfig},
		{"openai generate error 400: maximum context length is 8192 tokens", ErrorContext},
		{"openai embedding error 500: temporarily unavailable, try to regenerate", ErrorTransient},
	}
	for _, tc := range cases {
		if got := ClassifyError(errors.New(tc.msg)); got != tc.want {
			t.Fatalf("classify %q: got %s want %s", tc.msg, got, tc.want)
		}
	}
}

func TestClassifyOllamaStatusError(t *testing.T) {
	require.Equal(t, ErrorPermanent, ClassifyError(api.StatusError{StatusCode: 404, ErrorMessage: "model \"llama3\" not found, try pulling it first"}))
	require.Equal(t, ErrorTransient, ClassifyError(fmt.Errorf("ollama generate: %w", api.StatusError{StatusCode: 503, ErrorMessage: "server busy"})))
}

func TestCategorize(t *testing.T) {
	require.NoError(t, Categorize(nil))
	require.ErrorIs(t, Categorize(errors.New("429 rate limited")), util.ErrTransient)
	require.ErrorIs(t, Categorize(errors.New("groq key missing for alias \"\"")), util.ErrConfiguration)
	require.ErrorIs(t, Categorize(util.ConfigError("unsupported provider")), util.ErrConfiguration)

	require.NotErrorIs(t, Categorize(errors.New("openai generate error 400: invalid model")), util.ErrTransient)

	err := Categorize(errors.New("bad request"))
	require.NotErrorIs(t, err, util.ErrTransient)
	require.NotErrorIs(t, err, util.ErrConfiguration)
}
