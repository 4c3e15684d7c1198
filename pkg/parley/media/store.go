// Package media stores uploaded images and returns the URL they are served from.
package media

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/mikepea/parley/pkg/parley/apperr"
)

// Store persists an image and returns a durable URL for it
type Store interface {
	Upload(ctx context.Context, data string) (string, error)
}

// MaxImageSize is the largest decoded image accepted
const MaxImageSize = 5 << 20

// FileStore writes images to a local directory served under BaseURL/media
type FileStore struct {
	dir     string
	baseURL string
}

// NewFileStore creates the directory if needed
func NewFileStore(dir, baseURL string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Dir returns the directory images are written to
func (s *FileStore) Dir() string {
	return s.dir
}

// Upload accepts a data URI ("data:image/png;base64,...") or bare base64
func (s *FileStore) Upload(ctx context.Context, data string) (string, error) {
	raw, err := decode(data)
	if err != nil {
		return "", apperr.Upload(err)
	}
	if len(raw) > MaxImageSize {
		return "", apperr.Upload(fmt.Errorf("image is %d bytes, limit is %d", len(raw), MaxImageSize))
	}

	mtype := mimetype.Detect(raw)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return "", apperr.Upload(fmt.Errorf("unsupported content type %s", mtype.String()))
	}

	name := uuid.NewString() + mtype.Extension()
	if err := os.WriteFile(filepath.Join(s.dir, name), raw, 0o644); err != nil {
		return "", apperr.Upload(err)
	}
	return s.baseURL + "/media/" + name, nil
}

func decode(data string) ([]byte, error) {
	if strings.HasPrefix(data, "data:") {
		comma := strings.IndexByte(data, ',')
		if comma < 0 || !strings.HasSuffix(data[:comma], ";base64") {
			return nil, fmt.Errorf("malformed data URI")
		}
		data = data[comma+1:]
	}

	// Size the payload from its encoded length so oversized bodies are never decoded
	size := base64.StdEncoding.DecodedLen(len(data)) - strings.Count(data[len(data)-min(2, len(data)):], "=")
	if size > MaxImageSize {
		return nil, fmt.Errorf("image is %d bytes, limit is %d", size, MaxImageSize)
	}
	return base64.StdEncoding.DecodeString(data)
}
