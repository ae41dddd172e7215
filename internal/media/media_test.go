package media

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveKeepsRemoteURLs(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	path, err := s.Save("https://cdn.example.com/phone.png")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/phone.png", path)
}

func TestSaveDecodesDataURL(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	payload := []byte("\x89PNG fake image bytes")
	path, err := s.Save("data:image/png;base64," + base64.StdEncoding.EncodeToString(payload))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(path, URLPrefix))
	assert.True(t, strings.HasSuffix(path, ".png"))

	written, err := os.ReadFile(filepath.Join(dir, strings.TrimPrefix(path, URLPrefix)))
	require.NoError(t, err)
	assert.Equal(t, payload, written)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, payload, rec.Body.Bytes())

	require.NoError(t, s.Remove(path))
	_, err = os.Stat(filepath.Join(dir, strings.TrimPrefix(path, URLPrefix)))
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, s.Remove(path), "removing twice is not an error")
}

func TestSaveRejectsUnsupported(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = s.Save("ftp://example.com/a.png")
	assert.ErrorIs(t, err, ErrUnsupported)
	_, err = s.Save("data:text/plain;base64,aGVsbG8=")
	assert.ErrorIs(t, err, ErrUnsupported)
	_, err = s.Save("data:image/png;base64,***")
	assert.Error(t, err)
}

func TestSaveAllRollsBack(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	good := "data:image/gif;base64," + base64.StdEncoding.EncodeToString([]byte("GIF89a"))
	_, err = s.SaveAll([]string{good, "not an image"})
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRemoveIgnoresRemote(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	assert.NoError(t, s.Remove("https://cdn.example.com/x.png"))
}
