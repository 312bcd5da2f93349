package log_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/blocklens/blocklens/internal/log"

	"github.com/stretchr/testify/require"
)

func TestContextAttrs(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := log.New(&buf, true)

	ctx := log.ContextAttrs(t.Context(), slog.String("batch", "b-1"))
	logger.InfoContext(ctx, "hello")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	require.Equal(t, "hello", record["msg"])
	require.Equal(t, "b-1", record["batch"])
}

func TestWriter(t *testing.T) {
	t.Parallel()
	for _, dst := range []string{"", "stderr", "stdout", "discard"} {
		w, err := log.Writer(dst)
		require.NoError(t, err)
		require.NotNil(t, w)
	}

	path := filepath.Join(t.TempDir(), "logs", "blocklens.log")
	w, err := log.Writer(path)
	require.NoError(t, err)
	_, err = io.WriteString(w, "rotated\n")
	require.NoError(t, err)
	require.NoError(t, w.(io.Closer).Close())

	_, err = os.Stat(path)
	require.NoError(t, err)
}
