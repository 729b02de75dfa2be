package fs

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chebi2gene/internal/blob/core"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "blobs"))
	require.NoError(t, err)
	return s
}

func TestPutGetHead(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	info, err := s.Put(ctx, "jobs/1/report.json", strings.NewReader(`{"ok":true}`), core.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"chebi_id": "17579"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(11), info.Size)
	assert.Len(t, info.ETag, 64)

	head, err := s.Head(ctx, "jobs/1/report.json")
	require.NoError(t, err)
	assert.Equal(t, info.ETag, head.ETag)
	assert.Equal(t, "17579", head.Metadata["chebi_id"])

	got, rc, err := s.Get(ctx, "jobs/1/report.json")
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(body))
	assert.Equal(t, "application/json", got.ContentType)

	_, err = os.Stat(filepath.Join(s.Root(), "jobs", "1", "report.json.meta"))
	assert.NoError(t, err)
}

func TestPutDoesNotOverwrite(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	_, err := s.Put(ctx, "a", strings.NewReader("first"), core.PutOptions{ContentType: "text/plain"})
	require.NoError(t, err)

	_, err = s.Put(ctx, "a", strings.NewReader("second"), core.PutOptions{ContentType: "text/html"})
	assert.ErrorIs(t, err, core.ErrExists)

	head, err := s.Head(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "text/plain", head.ContentType)
	assert.Equal(t, int64(5), head.Size)
}

func TestRejectsUnsafeKeys(t *testing.T) {
	s := newStore(t)
	for _, key := range []string{"", "/abs", "../escape", "a/../../b", "a//b", "x.meta", "dir/.tmp-123", `a\b`} {
		_, err := s.Put(context.Background(), key, bytes.NewReader(nil), core.PutOptions{})
		assert.ErrorIs(t, err, core.ErrInvalidKey, key)
	}
}

func TestMissingAndDelete(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, _, err := s.Get(ctx, "nope")
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = s.Head(ctx, "nope")
	assert.ErrorIs(t, err, core.ErrNotFound)

	existed, err := s.Delete(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, existed)

	_, err = s.Put(ctx, "gone", strings.NewReader("x"), core.PutOptions{})
	require.NoError(t, err)
	existed, err = s.Delete(ctx, "gone")
	require.NoError(t, err)
	assert.True(t, existed)
	_, err = s.Head(ctx, "gone")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestListSortedByKey(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	for _, key := range []string{"jobs/b/x.csv", "jobs/a/x.csv", "other/x.csv"} {
		_, err := s.Put(ctx, key, strings.NewReader(key), core.PutOptions{})
		require.NoError(t, err)
	}

	infos, err := s.List(ctx, "jobs/")
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "jobs/a/x.csv", infos[0].Key)
	assert.Equal(t, "jobs/b/x.csv", infos[1].Key)

	all, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestDefaultRoot(t *testing.T) {
	t.Chdir(t.TempDir())
	s, err := New("")
	require.NoError(t, err)
	assert.Equal(t, DefaultRoot, s.Root())
	assert.Equal(t, core.DriverFilesystem, s.Driver())
}
