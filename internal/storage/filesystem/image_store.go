// Package filesystem persists generated images under a local directory and
// exposes them through a public base URL.
package filesystem

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // GIF decoder
	_ "image/jpeg" // JPEG decoder
	_ "image/png"  // PNG decoder
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	_ "golang.org/x/image/webp" // WebP decoder

	"github.com/davidbz/roomgen/internal/domain"
	"github.com/davidbz/roomgen/internal/metrics"
	"github.com/davidbz/roomgen/internal/observability"
)

const backend = "filesystem"

// ImageStore downloads provider images and writes them to
// {dir}/designs/{designID}/{kind}_{index}_{unixms}.{ext}.
type ImageStore struct {
	dir        string
	publicBase string
	maxBytes   int64
	client     *http.Client
	now        func() time.Time
}

// Option configures an ImageStore.
type Option func(*ImageStore)

// WithHTTPClient replaces the download client.
func WithHTTPClient(client *http.Client) Option {
	return func(s *ImageStore) {
		s.client = client
	}
}

// WithClock replaces the time source used for file names.
func WithClock(now func() time.Time) Option {
	return func(s *ImageStore) {
		s.now = now
	}
}

// NewImageStore creates the storage directory if needed and returns a store.
func NewImageStore(cfg *Config, opts ...Option) (*ImageStore, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if cfg.Dir == "" {
		return nil, errors.New("storage directory is required")
	}

	info, err := os.Stat(cfg.Dir)
	if os.IsNotExist(err) {
		if mkErr := os.MkdirAll(cfg.Dir, 0o755); mkErr != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", cfg.Dir, mkErr)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to check directory %s: %w", cfg.Dir, err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("path %s exists but is not a directory", cfg.Dir)
	}

	maxBytes := cfg.MaxImageBytes
	if maxBytes <= 0 {
		maxBytes = 20 << 20
	}

	s := &ImageStore{
		dir:        cfg.Dir,
		publicBase: strings.TrimSuffix(cfg.PublicBaseURL, "/"),
		maxBytes:   maxBytes,
		client:     &http.Client{Timeout: cfg.DownloadTimeout},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Dir returns the storage root.
func (s *ImageStore) Dir() string {
	return s.dir
}

// Persist fetches sourceURL, validates that it decodes as an image and
// stores it, returning the public URL. Failures wrap domain.ErrStorage.
func (s *ImageStore) Persist(
	ctx context.Context,
	sourceURL, designID string,
	kind domain.ImageKind,
	index int,
) (string, error) {
	metrics.IncStoreOp(backend, "persist")

	dirName, err := safeSegment(designID)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrStorage, err)
	}

	data, err := s.fetch(ctx, sourceURL)
	if err != nil {
		metrics.IncError("image_store", "fetch_error")
		return "", fmt.Errorf("%w: %w", domain.ErrStorage, err)
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		metrics.IncError("image_store", "decode_error")
		return "", fmt.Errorf("%w: downloaded content is not an image: %w", domain.ErrStorage, err)
	}

	name := fmt.Sprintf("%s_%d_%d.%s", kind, index, s.now().UnixMilli(), extension(format))
	rel := path.Join("designs", dirName, name)

	if err := s.write(filepath.FromSlash(rel), data); err != nil {
		metrics.IncError("image_store", "write_error")
		return "", fmt.Errorf("%w: %w", domain.ErrStorage, err)
	}

	observability.FromContext(ctx).Debug("image persisted",
		observability.String("path", rel),
		observability.Int("bytes", len(data)),
	)

	return s.publicBase + "/" + rel, nil
}

func (s *ImageStore) fetch(ctx context.Context, sourceURL string) ([]byte, error) {
	if sourceURL == "" {
		return nil, errors.New("source URL cannot be empty")
	}

	if strings.HasPrefix(sourceURL, "data:") {
		return decodeDataURI(sourceURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", s.maxBytes)
	}

	return data, nil
}

// write stores data via a temp file and rename so readers never see partial files.
func (s *ImageStore) write(rel string, data []byte) error {
	full := filepath.Join(s.dir, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("failed to create design directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close image: %w", err)
	}

	if err := os.Rename(tmp.Name(), full); err != nil {
		return fmt.Errorf("failed to move image into place: %w", err)
	}

	return nil
}

func decodeDataURI(uri string) ([]byte, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return nil, errors.New("malformed data URI")
	}
	if !strings.HasSuffix(header, ";base64") {
		return nil, errors.New("data URI must be base64 encoded")
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode data URI: %w", err)
	}
	return data, nil
}

func safeSegment(designID string) (string, error) {
	if designID == "" {
		return "", errors.New("design id cannot be empty")
	}
	if designID == "." || designID == ".." || strings.ContainsAny(designID, `/\`) {
		return "", fmt.Errorf("invalid design id %q", designID)
	}
	return designID, nil
}

func extension(format string) string {
	if format == "jpeg" {
		return "jpg"
	}
	return format
}

var _ domain.ImageStore = (*ImageStore)(nil)
