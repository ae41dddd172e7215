// Package media stores uploaded product images on local disk.
package media

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// URLPrefix is the path stored images are served under.
const URLPrefix = "/media/"

// MaxImageBytes caps a decoded data URL.
const MaxImageBytes = 5 << 20

// ErrUnsupported is returned for image references that are neither http(s)
// URLs nor base64 image data URLs.
var ErrUnsupported = errors.New("image must be an http(s) URL or a base64 image data URL")

var dataURL = regexp.MustCompile(`^data:image/(png|jpe?g|gif|webp);base64,`)

// Store writes images into a directory.
type Store struct {
	dir string
}

// New returns a Store rooted at dir, creating it when missing.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create media dir %s", dir)
	}
	return &Store{dir: dir}, nil
}

// Save turns an image reference into a stored path. Remote URLs are kept as
// they are; data URLs are decoded to a file and returned as /media/<name>.
func (s *Store) Save(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	lower := strings.ToLower(ref)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return ref, nil
	}
	m := dataURL.FindStringSubmatch(lower)
	if m == nil {
		return "", ErrUnsupported
	}
	payload := ref[len(m[0]):]
	if base64.StdEncoding.DecodedLen(len(payload)) > MaxImageBytes+3 {
		return "", errors.New("image exceeds 5MB")
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", errors.New("image data is not valid base64")
	}
	if len(raw) > MaxImageBytes {
		return "", errors.New("image exceeds 5MB")
	}

	ext := m[1]
	if ext == "jpeg" {
		ext = "jpg"
	}
	name, err := randomName(ext)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(s.dir, name), raw, 0o644); err != nil {
		return "", errors.Wrap(err, "write image")
	}
	return URLPrefix + name, nil
}

// SaveAll stores every reference, removing already written files when one fails.
func (s *Store) SaveAll(refs []string) ([]string, error) {
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		if strings.TrimSpace(ref) == "" {
			continue
		}
		path, err := s.Save(ref)
		if err != nil {
			for _, p := range out {
				_ = s.Remove(p)
			}
			return nil, err
		}
		out = append(out, path)
	}
	return out, nil
}

// Remove deletes a stored file. Remote URLs and missing files are ignored.
func (s *Store) Remove(path string) error {
	if !strings.HasPrefix(path, URLPrefix) {
		return nil
	}
	name := filepath.Base(strings.TrimPrefix(path, URLPrefix))
	if name == "." || name == "/" {
		return nil
	}
	err := os.Remove(filepath.Join(s.dir, name))
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "remove %s", path)
	}
	return nil
}

// Handler serves stored files under URLPrefix.
func (s *Store) Handler() http.Handler {
	return http.StripPrefix(URLPrefix, http.FileServer(http.Dir(s.dir)))
}

func randomName(ext string) (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "random file name")
	}
	return hex.EncodeToString(buf) + "." + ext, nil
}
