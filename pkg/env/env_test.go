package env

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFirstPrefersEarlierKeys(t *testing.T) {
	t.Setenv("ORDERFLOW_LOG_FORMAT", "")
	t.Setenv("LOG_FORMAT", "console")
	require.Equal(t, "console", First("json", "ORDERFLOW_LOG_FORMAT", "LOG_FORMAT"))

	t.Setenv("ORDERFLOW_LOG_FORMAT", "json")
	require.Equal(t, "json", First("x", "ORDERFLOW_LOG_FORMAT", "LOG_FORMAT"))

	t.Setenv("ORDERFLOW_LOG_FORMAT", " ")
	t.Setenv("LOG_FORMAT", "")
	require.Equal(t, "json", First("json", "ORDERFLOW_LOG_FORMAT", "LOG_FORMAT"))
}
