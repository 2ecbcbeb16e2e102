package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// smallWriter returns a writer that rotates after a single small write by
// shrinking the limit below the MB granularity of RotationConfig.
func smallWriter(t *testing.T, path string, limit int64, cfg RotationConfig) *RotatingWriter {
	t.Helper()
	rw, err := NewRotatingWriter(path, cfg)
	require.NoError(t, err)
	rw.limit = limit
	t.Cleanup(func() { _ = rw.Close() })
	return rw
}

func TestRotatingWriter_WritesAndTracksSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), LogFileName)
	rw := smallWriter(t, path, 0, DefaultRotationConfig())

	n, err := rw.Write([]byte("hello\n"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, int64(6), rw.CurrentSize())
}

func TestRotatingWriter_Rotates(t *testing.T) {
	path := filepath.Join(t.TempDir(), LogFileName)
	rw := smallWriter(t, path, 10, RotationConfig{MaxBackups: 2})

	_, err := rw.Write([]byte("first-0123\n"))
	require.NoError(t, err)
	_, err = rw.Write([]byte("second\n"))
	require.NoError(t, err)
	_, err = rw.Write([]byte("third-0123\n"))
	require.NoError(t, err)

	live, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "third-0123\n", string(live))

	b1, err := os.ReadFile(path + ".1")
	require.NoError(t, err)
	assert.Equal(t, "second\n", string(b1))

	b2, err := os.ReadFile(path + ".2")
	require.NoError(t, err)
	assert.Equal(t, "first-0123\n", string(b2))
}

func TestRotatingWriter_DropsOldestBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), LogFileName)
	rw := smallWriter(t, path, 4, RotationConfig{MaxBackups: 1})

	for _, s := range []string{"aaaa", "bbbb", "cccc"} {
		_, err := rw.Write([]byte(s))
		require.NoError(t, err)
	}

	b1, err := os.ReadFile(path + ".1")
	require.NoError(t, err)
	assert.Equal(t, "bbbb", string(b1))
	_, err = os.Stat(path + ".2")
	assert.True(t, os.IsNotExist(err))
}

func TestRotatingWriter_NoBackupsTruncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), LogFileName)
	rw := smallWriter(t, path, 4, RotationConfig{})

	_, _ = rw.Write([]byte("aaaa"))
	_, _ = rw.Write([]byte("bbbb"))

	live, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "bbbb", string(live))
	_, err = os.Stat(path + ".1")
	assert.True(t, os.IsNotExist(err))
}

func TestRotatingWriter_Compress(t *testing.T) {
	path := filepath.Join(t.TempDir(), LogFileName)
	rw := smallWriter(t, path, 4, RotationConfig{MaxBackups: 2, Compress: true})

	_, _ = rw.Write([]byte("aaaa"))
	_, _ = rw.Write([]byte("bbbb"))

	assert.Eventually(t, func() bool {
		_, gzErr := os.Stat(path + ".1.gz")
		_, rawErr := os.Stat(path + ".1")
		return gzErr == nil && os.IsNotExist(rawErr)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRotatingWriter_WriteAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), LogFileName)
	rw, err := NewRotatingWriter(path, DefaultRotationConfig())
	require.NoError(t, err)

	require.NoError(t, rw.Close())
	require.NoError(t, rw.Close())

	_, err = rw.Write([]byte("x"))
	assert.Error(t, err)
}

func TestNewLoggerWithRotation(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLoggerWithRotation(dir, LevelInfo, DefaultRotationConfig())
	require.NoError(t, err)

	logger.WithComponent("test").Info("rotating")
	require.NoError(t, logger.Close())

	content, err := os.ReadFile(filepath.Join(dir, LogFileName))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(content), `"component":"test"`))
}
