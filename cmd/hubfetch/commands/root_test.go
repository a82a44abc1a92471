package commands

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/camlf/academic-hub/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var timeRange = []string{"--start", "2024-01-01T00:00:00Z", "--end", "2024-01-02T00:00:00Z"}

func setEnv(t *testing.T, hubURL string) {
	t.Helper()

	t.Setenv("HUB_CONFIG", "")
	t.Setenv("HUB_BASE_URL", hubURL)
	t.Setenv("HUB_TOKEN", "secret")
	t.Setenv("REDIS_URL", "")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("HUB_WORKERS", "")
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	cmd := newRootCommand("test", "none")
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "hub.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func storedPages(mock *testutil.MockHub) {
	path := testutil.DataPath("ns", "dv_narrow", "stored")
	mock.Enqueue(path,
		testutil.NewRecordsResponse(`[{"Timestamp": "2024-01-01T00:00:00Z", "Flow": 1}]`, path+"?continuationToken=2"),
		testutil.NewRecordsResponse(`[{"Timestamp": "2024-01-01T00:05:00Z", "Flow": 2}]`, ""),
	)
}

func TestInterpolated(t *testing.T) {
	mock := testutil.NewMockHub()
	defer mock.Close()
	setEnv(t, mock.URL())
	mock.Enqueue(testutil.DataPath("ns", "dv", "interpolated"),
		testutil.NewCSVResponse("Timestamp,Temp,Pump__state\n2024-01-01T00:00:00Z,,On\n", ""))

	args := append([]string{"interpolated", "dv", "-n", "ns", "--interval", "00:01:00"}, timeRange...)
	stdout, _, err := run(t, args...)

	require.NoError(t, err)
	assert.Equal(t, "Timestamp,Temp,Pump\n2024-01-01T00:00:00Z,,On\n", stdout)
}

func TestInterpolated_Raw(t *testing.T) {
	mock := testutil.NewMockHub()
	defer mock.Close()
	setEnv(t, mock.URL())
	mock.Enqueue(testutil.DataPath("ns", "dv", "interpolated"),
		testutil.NewCSVResponse("Timestamp,Temp,Temp__state\n2024-01-01T00:00:00Z,,On\n", ""))

	args := append([]string{"interpolated", "dv", "-n", "ns", "--interval", "00:01:00", "--raw"}, timeRange...)
	stdout, _, err := run(t, args...)

	require.NoError(t, err)
	assert.Contains(t, stdout, "Temp__state")
}

func TestInterpolated_ManySourcesToFile(t *testing.T) {
	mock := testutil.NewMockHub()
	defer mock.Close()
	setEnv(t, mock.URL())
	mock.Enqueue(testutil.DataPath("ns", "a", "interpolated"),
		testutil.NewCSVResponse("Timestamp,Temp\n2024-01-01T00:00:00Z,1\n", ""))
	mock.Enqueue(testutil.DataPath("ns", "b", "interpolated"),
		testutil.NewCSVResponse("Timestamp,Temp\n2024-01-01T00:00:00Z,2\n", ""))

	cfgPath := writeConfig(t, "namespaces:\n  Campus: ns\n")
	out := filepath.Join(t.TempDir(), "out.csv")

	args := append([]string{"-c", cfgPath, "interpolated", "b", "a", "-d", "campus",
		"--interval", "00:01:00", "--workers", "2", "-o", out}, timeRange...)
	stdout, _, err := run(t, args...)
	require.NoError(t, err)
	assert.Empty(t, stdout)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "Timestamp,Temp,SourceId\n"+
		"2024-01-01T00:00:00Z,1,a\n"+
		"2024-01-01T00:00:00Z,2,b\n", string(data))
}

func TestStored_ResumeToken(t *testing.T) {
	mock := testutil.NewMockHub()
	defer mock.Close()
	setEnv(t, mock.URL())
	storedPages(mock)
	cfgPath := writeConfig(t, "paging:\n  max_stored_rows: 1\n")

	args := append([]string{"-c", cfgPath, "stored", "dv", "-n", "ns"}, timeRange...)
	stdout, stderr, err := run(t, args...)
	require.NoError(t, err)
	assert.Equal(t, "Timestamp,Flow\n2024-01-01T00:00:00Z,1\n", stdout)

	match := regexp.MustCompile(`--resume-token (\S+)`).FindStringSubmatch(stderr)
	require.Len(t, match, 2, "stderr: %s", stderr)

	stdout, _, err = run(t, append(args, "--resume-token", match[1])...)
	require.NoError(t, err)
	assert.Equal(t, "Timestamp,Flow\n2024-01-01T00:05:00Z,2\n", stdout)
}

func TestStored_Checkpoint(t *testing.T) {
	mock := testutil.NewMockHub()
	defer mock.Close()
	setEnv(t, mock.URL())
	storedPages(mock)
	cfgPath := writeConfig(t, fmt.Sprintf(
		"paging:\n  max_stored_rows: 1\ncheckpoint:\n  backend: sqlite\n  path: %s\n",
		filepath.Join(t.TempDir(), "c.db")))

	args := append([]string{"-c", cfgPath, "stored", "dv", "-n", "ns", "--resume"}, timeRange...)

	stdout, stderr, err := run(t, args...)
	require.NoError(t, err)
	assert.Contains(t, stdout, "2024-01-01T00:00:00Z")
	assert.Contains(t, stderr, "checkpoint saved")

	stdout, _, err = run(t, args...)
	require.NoError(t, err)
	assert.Equal(t, "Timestamp,Flow\n2024-01-01T00:05:00Z,2\n", stdout)
}

func TestStored_NoStoredVersion(t *testing.T) {
	mock := testutil.NewMockHub()
	defer mock.Close()
	setEnv(t, mock.URL())

	args := append([]string{"stored", "dv", "-n", "ns"}, timeRange...)
	stdout, stderr, err := run(t, args...)

	require.NoError(t, err)
	assert.Equal(t, "Timestamp\n", stdout)
	assert.Contains(t, stderr, "dv: no stored data")
}

func TestFetch_Errors(t *testing.T) {
	mock := testutil.NewMockHub()
	defer mock.Close()

	tests := []struct {
		name string
		args []string
	}{
		{"no namespace", []string{"interpolated", "dv", "--interval", "00:01:00"}},
		{"unknown dataset", []string{"interpolated", "dv", "-d", "nope", "--interval", "00:01:00"}},
		{"missing interval", []string{"interpolated", "dv", "-n", "ns"}},
		{"bad interval", []string{"interpolated", "dv", "-n", "ns", "--interval", "1m"}},
		{"resume without backend", []string{"stored", "dv", "-n", "ns", "--resume"}},
		{"resume many", []string{"stored", "a", "b", "-n", "ns", "--resume"}},
		{"bad resume token", []string{"stored", "dv", "-n", "ns", "--resume-token", "!!"}},
		{"no sources", []string{"stored", "-n", "ns"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setEnv(t, mock.URL())
			_, _, err := run(t, append(tt.args, timeRange...)...)
			assert.Error(t, err)
		})
	}
	assert.Equal(t, 0, mock.GetRequestCount())
}

func TestFetch_MissingToken(t *testing.T) {
	mock := testutil.NewMockHub()
	defer mock.Close()
	setEnv(t, mock.URL())
	t.Setenv("HUB_TOKEN", "")

	_, _, err := run(t, append([]string{"stored", "dv", "-n", "ns"}, timeRange...)...)
	assert.ErrorContains(t, err, "HUB_TOKEN")
}
