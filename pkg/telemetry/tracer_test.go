package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/camlf/academic-hub/internal/testutil"
	"github.com/camlf/academic-hub/pkg/pagination"
	"github.com/camlf/academic-hub/pkg/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_Stdout(t *testing.T) {
	var buf bytes.Buffer
	ctx := context.Background()

	provider, err := Setup(ctx, Config{
		Exporter:    ExporterStdout,
		ServiceName: "hub-test",
		Output:      &buf,
	})
	require.NoError(t, err)

	exec := testutil.NewScriptedExecutor()
	exec.Script("dv", testutil.PageStep("", testutil.At(0)))
	p := pagination.NewPaginator(exec, pagination.DefaultConfig())
	_, err = p.Fetch(ctx, pagination.FetchRequest{
		SourceID:   "dv",
		Namespace:  "ns",
		StartIndex: "2024-01-01T00:00:00Z",
		EndIndex:   "2024-01-02T00:00:00Z",
		Mode:       query.ModeStored,
	})
	require.NoError(t, err)

	require.NoError(t, provider.Shutdown(ctx))

	out := buf.String()
	assert.Contains(t, out, "pagination.session")
	assert.Contains(t, out, "pagination.page")
	assert.Contains(t, out, "hub-test")
}

func TestSetup_Exporters(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"none", Config{Exporter: ExporterNone}, false},
		{"empty", Config{}, false},
		{"otlp", Config{Exporter: ExporterOTLP, Endpoint: "localhost:4317", Insecure: true}, false},
		{"unknown", Config{Exporter: "zipkin"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := Setup(context.Background(), tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NoError(t, provider.ForceFlush(context.Background()))
		})
	}
}
