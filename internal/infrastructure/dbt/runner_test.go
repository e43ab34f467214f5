package dbt

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TelegramWarehouse/internal/ports"
)

// fakeDbt echoes its arguments, fails "test" with exit status 1 and
// hangs when asked to build slow_model.
const fakeDbt = `#!/bin/sh
echo "args: $*"
echo "profiles: $DBT_PROFILES_DIR"
if [ "$1" = "test" ]; then
  echo "1 of 4 FAIL" >&2
  exit 1
fi
for arg in "$@"; do
  if [ "$arg" = "slow_model" ]; then
    exec sleep 5
  fi
done
exit 0
`

func writeFakeBinary(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fixture requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "dbt")
	require.NoError(t, os.WriteFile(path, []byte(fakeDbt), 0o755))
	return path
}

func TestRunCapturesOutput(t *testing.T) {
	bin := writeFakeBinary(t)
	r := NewRunner(Options{Binary: bin, ProjectDir: t.TempDir(), ProfilesDir: "/etc/dbt"}, nil)

	res, err := r.Run(context.Background(), ports.TransformRun)
	require.NoError(t, err)
	assert.True(t, res.Succeeded())
	assert.Contains(t, res.Stdout, "args: run")
	assert.Contains(t, res.Stdout, "profiles: /etc/dbt")
}

func TestRunNonZeroExit(t *testing.T) {
	r := NewRunner(Options{Binary: writeFakeBinary(t)}, nil)

	res, err := r.Run(context.Background(), ports.TransformTest)
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExitCode)
	assert.False(t, res.Succeeded())
	assert.Contains(t, res.Stderr, "FAIL")
}

func TestRunDocsWithSelectors(t *testing.T) {
	r := NewRunner(Options{Binary: writeFakeBinary(t), Target: "prod"}, nil)

	res, err := r.Run(context.Background(), ports.TransformDocs)
	require.NoError(t, err)
	assert.Contains(t, res.Stdout, "args: docs generate --target prod")

	res, err = r.Run(context.Background(), ports.TransformRun, "fct_image_detections")
	require.NoError(t, err)
	assert.Contains(t, res.Stdout, "--select fct_image_detections")
}

func TestRunMissingBinary(t *testing.T) {
	r := NewRunner(Options{Binary: filepath.Join(t.TempDir(), "missing")}, nil)
	res, err := r.Run(context.Background(), ports.TransformRun)
	require.Error(t, err)
	assert.Equal(t, -1, res.ExitCode)
}

func TestRunUnknownCommand(t *testing.T) {
	r := NewRunner(Options{}, nil)
	_, err := r.Run(context.Background(), ports.TransformCommand("seed"))
	require.Error(t, err)
}

func TestRunTimeout(t *testing.T) {
	r := NewRunner(Options{Binary: writeFakeBinary(t), Timeout: 200 * time.Millisecond}, nil)

	started := time.Now()
	_, err := r.Run(context.Background(), ports.TransformRun, "slow_model")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
	assert.Less(t, time.Since(started), 4*time.Second)
}
