package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// ContextExtractor pulls a single attribute out of a context, returning
// ok=false when nothing relevant is present.
type ContextExtractor func(ctx context.Context) (slog.Attr, bool)

type config struct {
	level           slog.Leveler
	json            bool
	output          io.Writer
	attrs           []slog.Attr
	handlerOpts     *slog.HandlerOptions
	contextValues   []contextValueKey
	extractors      []ContextExtractor
}

type contextValueKey struct {
	ctxKey  string
	attrKey string
}

// Option configures logger construction.
type Option func(*config)

// New builds a *slog.Logger from the given options. With no options it
// produces a text logger at info level writing to stdout.
func New(opts ...Option) *slog.Logger {
	cfg := &config{
		level:  slog.LevelInfo,
		output: os.Stdout,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	handlerOpts := cfg.handlerOpts
	if handlerOpts == nil {
		handlerOpts = &slog.HandlerOptions{Level: cfg.level}
	} else if handlerOpts.Level == nil {
		handlerOpts.Level = cfg.level
	}

	var handler slog.Handler
	if cfg.json {
		handler = slog.NewJSONHandler(cfg.output, handlerOpts)
	} else {
		handler = slog.NewTextHandler(cfg.output, handlerOpts)
	}

	if len(cfg.contextValues) > 0 || len(cfg.extractors) > 0 {
		handler = &contextHandler{
			Handler:       handler,
			contextValues: cfg.contextValues,
			extractors:    cfg.extractors,
		}
	}

	log := slog.New(handler)
	if len(cfg.attrs) > 0 {
		args := make([]any, len(cfg.attrs))
		for i, a := range cfg.attrs {
			args[i] = a
		}
		log = log.With(args...)
	}

	return log
}

// SetAsDefault installs log as the slog package-level default.
func SetAsDefault(log *slog.Logger) {
	slog.SetDefault(log)
}

// WithDevelopment configures a human-readable text logger at debug level,
// tagged with the given service name.
func WithDevelopment(service string) Option {
	return func(c *config) {
		c.json = false
		c.level = slog.LevelDebug
		c.output = os.Stdout
		c.attrs = append(c.attrs, slog.String("service", service), slog.String("env", "development"))
	}
}

// WithStaging configures a JSON logger at info level, tagged staging.
func WithStaging(service string) Option {
	return func(c *config) {
		c.json = true
		c.level = slog.LevelInfo
		c.output = os.Stdout
		c.attrs = append(c.attrs, slog.String("service", service), slog.String("env", "staging"))
	}
}

// WithProduction configures a JSON logger at info level, tagged production.
func WithProduction(service string) Option {
	return func(c *config) {
		c.json = true
		c.level = slog.LevelInfo
		c.output = os.Stdout
		c.attrs = append(c.attrs, slog.String("service", service), slog.String("env", "production"))
	}
}

// WithLevel overrides the minimum log level.
func WithLevel(level slog.Leveler) Option {
	return func(c *config) { c.level = level }
}

// WithJSONFormatter switches the handler to JSON output.
func WithJSONFormatter() Option {
	return func(c *config) { c.json = true }
}

// WithOutput overrides the destination writer.
func WithOutput(w io.Writer) Option {
	return func(c *config) { c.output = w }
}

// WithAttr attaches static attributes to every record.
func WithAttr(attrs ...slog.Attr) Option {
	return func(c *config) { c.attrs = append(c.attrs, attrs...) }
}

// WithHandlerOptions supplies slog.HandlerOptions directly, e.g. to enable
// AddSource or a custom ReplaceAttr.
func WithHandlerOptions(opts *slog.HandlerOptions) Option {
	return func(c *config) { c.handlerOpts = opts }
}

// WithContextValue registers a context.Value lookup: when ctxKey is present
// in the logging context, it is emitted under attrKey.
func WithContextValue(ctxKey, attrKey string) Option {
	return func(c *config) {
		c.contextValues = append(c.contextValues, contextValueKey{ctxKey: ctxKey, attrKey: attrKey})
	}
}

// WithContextExtractors registers custom context-to-attribute extraction functions.
func WithContextExtractors(extractors ...ContextExtractor) Option {
	return func(c *config) { c.extractors = append(c.extractors, extractors...) }
}

// contextHandler decorates every record with attributes pulled from the
// logging call's context, so callers get automatic request/user-scoped
// fields without threading them through every log statement.
type contextHandler struct {
	slog.Handler
	contextValues []contextValueKey
	extractors    []ContextExtractor
}

func (h *contextHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, cv := range h.contextValues {
		if v := ctx.Value(cv.ctxKey); v != nil {
			r.AddAttrs(slog.Any(cv.attrKey, v))
		}
	}
	for _, extract := range h.extractors {
		if attr, ok := extract(ctx); ok {
			r.AddAttrs(attr)
		}
	}
	return h.Handler.Handle(ctx, r)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{
		Handler:       h.Handler.WithAttrs(attrs),
		contextValues: h.contextValues,
		extractors:    h.extractors,
	}
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{
		Handler:       h.Handler.WithGroup(name),
		contextValues: h.contextValues,
		extractors:    h.extractors,
	}
}
