package archive

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBucket struct {
	exists  bool
	made    int
	puts    map[string]string
	types   map[string]string
	failKey string
}

func (f *fakeBucket) BucketExists(context.Context, string) (bool, error) { return f.exists, nil }

func (f *fakeBucket) MakeBucket(context.Context, string, minio.MakeBucketOptions) error {
	f.made++
	f.exists = true
	return nil
}

func (f *fakeBucket) FPutObject(_ context.Context, _, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if object == f.failKey {
		return minio.UploadInfo{}, errors.New("access denied")
	}
	if f.puts == nil {
		f.puts = map[string]string{}
		f.types = map[string]string{}
	}
	f.puts[object] = filePath
	f.types[object] = opts.ContentType
	return minio.UploadInfo{Key: object}, nil
}

func writeTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "@a.json"), []byte("[]"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "_manifest.json"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "export.csv"), []byte("a\n"), 0o644))
	return dir
}

func TestMirrorDirUploadsTree(t *testing.T) {
	t.Parallel()

	fake := &fakeBucket{}
	m := newMirror(fake, "warehouse", nil)

	n, err := m.MirrorDir(context.Background(), writeTree(t), "/raw/telegram_messages/2026-01-16/")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 1, fake.made)

	keys := make([]string, 0, len(fake.puts))
	for k := range fake.puts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	assert.Equal(t, []string{
		"raw/telegram_messages/2026-01-16/@a.json",
		"raw/telegram_messages/2026-01-16/_manifest.json",
		"raw/telegram_messages/2026-01-16/sub/export.csv",
	}, keys)
	assert.Equal(t, "text/csv", fake.types["raw/telegram_messages/2026-01-16/sub/export.csv"])

	_, err = m.MirrorDir(context.Background(), writeTree(t), "again")
	require.NoError(t, err)
	assert.Equal(t, 1, fake.made, "bucket is checked once")
}

func TestMirrorDirMissingIsEmpty(t *testing.T) {
	t.Parallel()

	m := newMirror(&fakeBucket{exists: true}, "warehouse", nil)
	n, err := m.MirrorDir(context.Background(), filepath.Join(t.TempDir(), "absent"), "x")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMirrorDirPutFailure(t *testing.T) {
	t.Parallel()

	fake := &fakeBucket{exists: true, failKey: "p/@a.json"}
	m := newMirror(fake, "warehouse", nil)

	_, err := m.MirrorDir(context.Background(), writeTree(t), "p")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}

func TestNewMirrorRequiresBucket(t *testing.T) {
	t.Parallel()

	_, err := NewMirror(Options{Endpoint: "localhost:9000"}, nil)
	require.Error(t, err)

	m, err := NewMirror(Options{Endpoint: "localhost:9000", Bucket: "warehouse"}, nil)
	require.NoError(t, err)
	assert.NotNil(t, m)
}
