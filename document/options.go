package document

import (
	"github.com/wudi/pagekit/observability"
	"github.com/wudi/pagekit/ocr"
	"github.com/wudi/pagekit/recovery"
	"github.com/wudi/pagekit/render"
	"github.com/wudi/pagekit/security"
	"github.com/wudi/pagekit/workerpool"
)

type config struct {
	ownerPassword string
	userPassword  string
	logger        observability.Logger
	tracer        observability.Tracer
	limits        security.Limits
	recovery      recovery.Strategy
	pool          *workerpool.Pool
	rasterizer    render.Rasterizer
	ocr           ocr.Engine
	ocrLanguages  []string
}

func defaultConfig() config {
	return config{
		logger: observability.NopLogger{},
		tracer: observability.NopTracer(),
		limits: security.DefaultLimits(),
	}
}

// Option configures Open and OpenBytes.
type Option func(*config)

// WithPasswords sets the owner and user passwords. The owner password is
// tried first.
func WithPasswords(owner, user string) Option {
	return func(c *config) { c.ownerPassword, c.userPassword = owner, user }
}

func WithLogger(l observability.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithTracer(t observability.Tracer) Option {
	return func(c *config) {
		if t != nil {
			c.tracer = t
		}
	}
}

// WithLimits bounds parsing and decoding work.
func WithLimits(l security.Limits) Option {
	return func(c *config) { c.limits = l }
}

// WithRecovery decides how structural damage is handled. The default is a
// recovery.Lenient that logs through the document logger.
func WithRecovery(s recovery.Strategy) Option {
	return func(c *config) {
		if s != nil {
			c.recovery = s
		}
	}
}

// WithPool runs asynchronous renders on p instead of the shared default
// pool.
func WithPool(p *workerpool.Pool) Option {
	return func(c *config) { c.pool = p }
}

// WithRasterizer replaces the built-in renderer.
func WithRasterizer(r render.Rasterizer) Option {
	return func(c *config) { c.rasterizer = r }
}

// WithOCR enables recognition for pages without a text layer.
func WithOCR(e ocr.Engine, languages ...string) Option {
	return func(c *config) { c.ocr, c.ocrLanguages = e, languages }
}
