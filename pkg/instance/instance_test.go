package instance

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIDPrefersConfiguredValue(t *testing.T) {
	t.Setenv("ORDERFLOW_WORKER_ID", " relay-2 ")
	require.Equal(t, "relay-2", ID())

	t.Setenv("ORDERFLOW_WORKER_ID", "")
	require.NotEmpty(t, ID())
}
