package demwb

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteMetrics(t *testing.T) {
	toolInvocations.WithLabelValues("gdaldem").Inc()
	f := filepath.Join(t.TempDir(), "demwb.prom")
	require.NoError(t, WriteMetrics(f))
	b, err := os.ReadFile(f)
	require.NoError(t, err)
	assert.Contains(t, string(b), `demwb_tool_invocations_total{tool="gdaldem"}`)
	assert.Contains(t, string(b), "demwb_context_duration_seconds_bucket")
}
