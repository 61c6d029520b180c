package logging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/isseis/go-safe-elf-image/internal/terminal"
)

var (
	ErrWriterRequired = errors.New("logging: writer is required")
)

// ANSI color codes
const (
	resetCode  = "\033[0m"
	grayCode   = "\033[90m"
	yellowCode = "\033[33m"
	redCode    = "\033[31m"
	cyanCode   = "\033[36m"
)

// NewConditionalTextHandler returns a slog.TextHandler on w that stays silent when caps
// reports an interactive terminal, where InteractiveHandler takes over.
func NewConditionalTextHandler(w io.Writer, caps terminal.Capabilities, opts *slog.HandlerOptions) (slog.Handler, error) {
	if w == nil {
		return nil, ErrWriterRequired
	}
	return &conditionalHandler{
		active: !caps.Interactive,
		inner:  slog.NewTextHandler(w, opts),
	}, nil
}

type conditionalHandler struct {
	active bool
	inner  slog.Handler
}

func (h *conditionalHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.active && h.inner.Enabled(ctx, level)
}

func (h *conditionalHandler) Handle(ctx context.Context, r slog.Record) error {
	if !h.active {
		return nil
	}
	return h.inner.Handle(ctx, r)
}

func (h *conditionalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &conditionalHandler{active: h.active, inner: h.inner.WithAttrs(attrs)}
}

func (h *conditionalHandler) WithGroup(name string) slog.Handler {
	return &conditionalHandler{active: h.active, inner: h.inner.WithGroup(name)}
}

// InteractiveHandler writes one compact line per record for a person watching a terminal:
// "LEVEL message key=value ...", colored by level when the terminal supports it.
type InteractiveHandler struct {
	mu     *sync.Mutex
	writer io.Writer
	level  slog.Leveler
	color  bool
	active bool
	attrs  []slog.Attr
	groups []string
}

// NewInteractiveHandler creates an InteractiveHandler that is active only when caps reports
// an interactive terminal.
func NewInteractiveHandler(w io.Writer, caps terminal.Capabilities, level slog.Leveler) (*InteractiveHandler, error) {
	if w == nil {
		return nil, ErrWriterRequired
	}
	if level == nil {
		level = slog.LevelInfo
	}
	return &InteractiveHandler{
		mu:     &sync.Mutex{},
		writer: w,
		level:  level,
		color:  caps.Color,
		active: caps.Interactive,
	}, nil
}

func (h *InteractiveHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.active && level >= h.level.Level()
}

func (h *InteractiveHandler) Handle(_ context.Context, r slog.Record) error {
	if !h.active {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(h.formatLevel(r.Level))
	sb.WriteByte(' ')
	sb.WriteString(r.Message)

	prefix := ""
	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}
	for _, attr := range h.attrs {
		h.appendAttr(&sb, "", attr)
	}
	r.Attrs(func(attr slog.Attr) bool {
		h.appendAttr(&sb, prefix, attr)
		return true
	})
	sb.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.writer, sb.String())
	return err
}

func (h *InteractiveHandler) appendAttr(sb *strings.Builder, prefix string, attr slog.Attr) {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return
	}
	if attr.Value.Kind() == slog.KindGroup {
		groupPrefix := prefix
		if attr.Key != "" {
			groupPrefix += attr.Key + "."
		}
		for _, member := range attr.Value.Group() {
			h.appendAttr(sb, groupPrefix, member)
		}
		return
	}

	sb.WriteByte(' ')
	key := prefix + attr.Key + "="
	if h.color {
		key = grayCode + key + resetCode
	}
	sb.WriteString(key)
	sb.WriteString(attr.Value.String())
}

func (h *InteractiveHandler) formatLevel(level slog.Level) string {
	text := level.String()
	if !h.color {
		return text
	}
	switch {
	case level >= slog.LevelError:
		return redCode + text + resetCode
	case level >= slog.LevelWarn:
		return yellowCode + text + resetCode
	case level >= slog.LevelInfo:
		return cyanCode + text + resetCode
	default:
		return grayCode + text + resetCode
	}
}

func (h *InteractiveHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	clone := *h
	prefix := ""
	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}
	clone.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	clone.attrs = append(clone.attrs, h.attrs...)
	for _, attr := range attrs {
		clone.attrs = append(clone.attrs, slog.Attr{Key: prefix + attr.Key, Value: attr.Value})
	}
	return &clone
}

func (h *InteractiveHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(append([]string(nil), h.groups...), name)
	return &clone
}
