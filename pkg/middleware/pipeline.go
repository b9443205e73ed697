package middleware

import (
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"webcrawl/pkg/config"
	"webcrawl/pkg/stats"
	"webcrawl/pkg/utils"
	"webcrawl/pkg/web"
)

// Spider identifies the running spider for log tagging. Middlewares that
// care about the per-spider status allow-list additionally assert
// StatusListCarrier.
type Spider interface {
	Name() string
}

// StatusListCarrier is implemented by spiders that accept extra response
// statuses beyond the 2xx range.
type StatusListCarrier interface {
	HandleHTTPStatusList() []int
}

// Middleware is the minimal contract for a pipeline stage. The three phase
// hooks are optional capabilities — a stage without a given hook is a no-op
// for that phase, not an error.
type Middleware interface {
	Name() string
}

// RequestProcessor is the request-phase hook, run in ascending order before
// transport.
type RequestProcessor interface {
	ProcessRequest(req *web.Request, spider Spider) Outcome
}

// ResponseProcessor is the response-phase hook, run in descending order
// after transport.
type ResponseProcessor interface {
	ProcessResponse(req *web.Request, resp *web.Response, spider Spider) Outcome
}

// ExceptionProcessor is the exception-phase hook, run in descending order
// when transport (or a request hook) failed.
type ExceptionProcessor interface {
	ProcessException(req *web.Request, err error, spider Spider) Outcome
}

type pipelineEntry struct {
	order int
	mw    Middleware
}

// Pipeline is the ordered chain-of-responsibility over all enabled
// middlewares. Lower order keys run first in the request phase and last in
// the response and exception phases — one order, two stacks. The pipeline
// itself owns no per-request state.
type Pipeline struct {
	entries []pipelineEntry
	log     *logrus.Logger
}

// NewPipeline creates an empty pipeline.
func NewPipeline(log *logrus.Logger) *Pipeline {
	return &Pipeline{log: log}
}

// Add registers a middleware at the given order key, keeping the chain
// sorted. Registration is a startup-time operation; Add is not safe to call
// concurrently with processing.
func (p *Pipeline) Add(order int, mw Middleware) {
	p.entries = append(p.entries, pipelineEntry{order: order, mw: mw})
	sort.SliceStable(p.entries, func(i, j int) bool {
		return p.entries[i].order < p.entries[j].order
	})
}

// Names returns the registered middleware names in request-phase order.
func (p *Pipeline) Names() []string {
	names := make([]string, 0, len(p.entries))
	for _, e := range p.entries {
		names = append(names, e.mw.Name())
	}
	return names
}

// ProcessRequest threads req through each request hook in ascending order.
// The first non-Pass outcome short-circuits: a substituted response skips
// transport, a replacement request is a brand-new task for the scheduler,
// an abort terminates the chain. Pass from every hook sends req to
// transport.
func (p *Pipeline) ProcessRequest(req *web.Request, spider Spider) Outcome {
	for _, e := range p.entries {
		hook, ok := e.mw.(RequestProcessor)
		if !ok {
			continue
		}
		out := hook.ProcessRequest(req, spider)
		if out.Kind() != KindPass {
			return out
		}
	}
	return Pass()
}

// ProcessResponse threads resp back through each response hook in
// descending order. A hook substituting a response hands the replacement to
// the remaining hooks; a replacement request or an abort stops the chain.
// The final outcome always carries the (possibly substituted) response.
func (p *Pipeline) ProcessResponse(req *web.Request, resp *web.Response, spider Spider) Outcome {
	for i := len(p.entries) - 1; i >= 0; i-- {
		hook, ok := p.entries[i].mw.(ResponseProcessor)
		if !ok {
			continue
		}
		out := hook.ProcessResponse(req, resp, spider)
		switch out.Kind() {
		case KindPass:
			continue
		case KindResponse:
			resp = out.Response()
		case KindRequest, KindAbort:
			return out
		}
	}
	return WithResponse(resp)
}

// ProcessException threads a transport failure through each exception hook
// in descending order, stopping at the first non-Pass outcome. Pass from
// every hook means the exception propagates to the engine as a failure.
func (p *Pipeline) ProcessException(req *web.Request, err error, spider Spider) Outcome {
	for i := len(p.entries) - 1; i >= 0; i-- {
		hook, ok := p.entries[i].mw.(ExceptionProcessor)
		if !ok {
			continue
		}
		out := hook.ProcessException(req, err, spider)
		if out.Kind() != KindPass {
			return out
		}
	}
	return Pass()
}

// Default order keys for the built-in downloader middlewares. Request phase
// runs ascending; response and exception phases run descending.
const (
	OrderRetry       = 550
	OrderMetaRefresh = 580
	OrderRedirect    = 600
	OrderCookies     = 700
)

// BuildDefault constructs the standard chain from settings. Middlewares
// whose enabling flag is off report ErrNotConfigured and are omitted from
// the chain entirely. Any other constructor error is a fatal
// misconfiguration.
func BuildDefault(s *config.Settings, st stats.Collector, log *logrus.Logger) (*Pipeline, error) {
	p := NewPipeline(log)

	type builder struct {
		order int
		build func() (Middleware, error)
	}
	builders := []builder{
		{OrderRetry, func() (Middleware, error) { return NewRetry(s, st, log) }},
		{OrderMetaRefresh, func() (Middleware, error) { return NewMetaRefresh(s, log) }},
		{OrderRedirect, func() (Middleware, error) { return NewRedirect(s, log) }},
		{OrderCookies, func() (Middleware, error) { return NewCookies(s, log) }},
	}

	for _, b := range builders {
		mw, err := b.build()
		if err != nil {
			if errors.Is(err, utils.ErrNotConfigured) {
				continue
			}
			return nil, fmt.Errorf("building middleware chain: %w", err)
		}
		p.Add(b.order, mw)
	}

	log.WithField("middlewares", p.Names()).Info("Downloader middleware chain built")
	return p, nil
}
