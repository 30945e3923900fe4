package composables

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestUseTx_NoPool(t *testing.T) {
	t.Parallel()

	_, err := UseTx(context.Background())
	require.ErrorIs(t, err, ErrNoPool)
}

func TestInTx_NoPool(t *testing.T) {
	t.Parallel()

	called := false
	err := InTx(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, ErrNoPool)
	require.False(t, called)
}

func TestUseLogger(t *testing.T) {
	t.Parallel()

	require.NotNil(t, UseLogger(context.Background()))

	entry := logrus.NewEntry(logrus.New()).WithField("job", "x")
	ctx := WithLogger(context.Background(), entry)
	require.Same(t, entry, UseLogger(ctx))
}
