package util

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTaxonomyWrapping(t *testing.T) {
	require.ErrorIs(t, ConfigError("index name is required"), ErrConfiguration)
	require.ErrorIs(t, UserInputError("question is blank"), ErrUserInput)
	require.ErrorIs(t, DataError("page label %q", ""), ErrData)

	base := errors.New("dial tcp: connection refused")
	err := Transient(base)
	require.ErrorIs(t, err, ErrTransient)
	require.ErrorIs(t, err, base)
	require.Equal(t, err, Transient(err))
	require.NoError(t, Transient(nil))

	wrapped := fmt.Errorf("upsert batch 3: %w", err)
	require.ErrorIs(t, wrapped, ErrTransient)
}
