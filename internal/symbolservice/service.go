// Package symbolservice answers symbolication requests for ELF32 images over a stream
// connection, one JSON object per line in each direction.
package symbolservice

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/isseis/go-safe-elf-image/internal/elfimage"
	"github.com/isseis/go-safe-elf-image/internal/safefileio"
	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultMaxCachedImages is used when Options.MaxCachedImages is not positive
	DefaultMaxCachedImages = 64

	// maxRequestSize bounds a single request line
	maxRequestSize = 1 << 20
)

// Options configures a Service.
type Options struct {
	MaxCachedImages int
	MaxFileSize     int64
	Verbose         bool
	NoDemangle      bool
	Logger          *slog.Logger
}

// Service symbolicates addresses against a bounded cache of prepared images.
type Service struct {
	opts   Options
	logger *slog.Logger

	readFile func(path string, maxSize int64) ([]byte, error)
	loads    singleflight.Group

	mu     sync.Mutex
	images map[string]*cachedImage
	order  []string // load order, oldest first
}

type cachedImage struct {
	mu    sync.Mutex
	data  []byte
	image *elfimage.Image
}

// New creates a Service.
func New(opts Options) *Service {
	if opts.MaxCachedImages <= 0 {
		opts.MaxCachedImages = DefaultMaxCachedImages
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = safefileio.MaxFileSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		opts:     opts,
		logger:   logger,
		readFile: safefileio.SafeReadFile,
		images:   make(map[string]*cachedImage),
	}
}

// CachedImages returns the number of images currently cached.
func (s *Service) CachedImages() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.images)
}

// image returns the cached image for path, loading it on a miss. Loads run outside s.mu so a
// slow or stuck file never delays lookups of other images; concurrent misses for the same
// path share one load. Invalid images are not cached.
func (s *Service) image(path string) (*cachedImage, error) {
	if !filepath.IsAbs(path) {
		return nil, fmt.Errorf("%w: %q", ErrRelativePath, path)
	}
	path = filepath.Clean(path)

	if cached, ok := s.lookup(path); ok {
		return cached, nil
	}

	v, err, _ := s.loads.Do(path, func() (any, error) {
		if cached, ok := s.lookup(path); ok {
			return cached, nil
		}
		cached, err := s.load(path)
		if err != nil {
			return nil, err
		}
		s.insert(path, cached)
		return cached, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*cachedImage), nil
}

func (s *Service) lookup(path string) (*cachedImage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cached, ok := s.images[path]
	return cached, ok
}

// load reads, parses and prepares the image at path without touching the cache.
func (s *Service) load(path string) (*cachedImage, error) {
	data, err := s.readFile(path, s.opts.MaxFileSize)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	img := elfimage.New(data, elfimage.Options{
		Verbose:    s.opts.Verbose,
		Logger:     s.logger,
		NoDemangle: s.opts.NoDemangle,
	})
	if !img.IsValid() {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidImage, path, img.Err())
	}
	img.Prepare()

	s.logger.Debug("Loaded image",
		slog.String("path", path),
		slog.Int("size", len(data)),
		slog.Uint64("symbols", uint64(img.SymbolCount())))
	return &cachedImage{data: data, image: img}, nil
}

// insert adds cached under path, evicting the oldest image when the cache is full.
func (s *Service) insert(path string, cached *cachedImage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.images[path]; ok {
		s.images[path] = cached
		return
	}
	if len(s.order) >= s.opts.MaxCachedImages {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.images, oldest)
		s.logger.Debug("Evicted image", slog.String("path", oldest))
	}
	s.images[path] = cached
	s.order = append(s.order, path)
}

// Symbolicate resolves addresses inside the image at path.
func (s *Service) Symbolicate(path string, addresses []uint32) ([]Frame, error) {
	cached, err := s.image(path)
	if err != nil {
		return nil, err
	}

	cached.mu.Lock()
	defer cached.mu.Unlock()

	frames := make([]Frame, 0, len(addresses))
	for _, address := range addresses {
		name, offset := cached.image.Symbolicate(address)
		frames = append(frames, Frame{
			Address: FormatAddress(address),
			Symbol:  name,
			Offset:  offset,
			Text:    cached.image.SymbolicateString(address),
		})
	}
	return frames, nil
}

// Serve answers one decoded request.
func (s *Service) Serve(req Request) Response {
	resp := Response{ID: ulid.Make().String()}
	logger := s.logger.With(slog.String("request_id", resp.ID))

	addresses := make([]uint32, 0, len(req.Addresses))
	for _, text := range req.Addresses {
		address, err := ParseAddress(text)
		if err != nil {
			resp.Error = err.Error()
			logger.Warn("Rejected request", slog.Any("error", err))
			return resp
		}
		addresses = append(addresses, address)
	}

	frames, err := s.Symbolicate(req.Path, addresses)
	if err != nil {
		resp.Error = err.Error()
		logger.Warn("Symbolication failed", slog.String("path", req.Path), slog.Any("error", err))
		return resp
	}
	resp.Frames = frames
	logger.Debug("Symbolicated", slog.String("path", req.Path), slog.Int("addresses", len(frames)))
	return resp
}

// Handle serves requests from conn until EOF or until ctx is done. When ctx ends, conn is
// closed if it implements io.Closer so that a blocked read returns.
func (s *Service) Handle(ctx context.Context, conn io.ReadWriter) error {
	if closer, ok := conn.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() { _ = closer.Close() })
		defer stop()
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), maxRequestSize)
	encoder := json.NewEncoder(conn)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var resp Response
		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			resp = Response{ID: ulid.Make().String(), Error: fmt.Sprintf("%v: %v", ErrMalformedRequest, err)}
		} else {
			resp = s.Serve(req)
		}

		if err := encoder.Encode(resp); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to write response: %w", err)
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, bufio.ErrTooLong) {
			return fmt.Errorf("%w: request exceeds %d bytes", ErrMalformedRequest, maxRequestSize)
		}
		return fmt.Errorf("failed to read request: %w", err)
	}
	return nil
}
