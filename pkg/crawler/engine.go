package crawler

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"webcrawl/pkg/fetch"
	"webcrawl/pkg/httperror"
	"webcrawl/pkg/middleware"
	"webcrawl/pkg/queue"
	"webcrawl/pkg/stats"
	"webcrawl/pkg/storage"
	"webcrawl/pkg/utils"
	"webcrawl/pkg/web"
)

// Spider is the crawl's business logic: it seeds the first requests and
// handles every delivered response, optionally discovering new requests.
type Spider interface {
	Name() string
	StartRequests() ([]*web.Request, error)
	Parse(resp *web.Response) ([]*web.Request, error)
}

// Options carries the engine's collaborators. Pipeline, Filter, Downloader
// and Stats are required; Robots and Store may be nil to disable robots
// gating and persistence.
type Options struct {
	Pipeline   *middleware.Pipeline
	Filter     *httperror.Filter
	Downloader *fetch.Downloader
	Limiter    *fetch.RateLimiter
	HostSems   *fetch.HostSemaphorePool
	Robots     *fetch.RobotsGate
	Store      storage.ResultStore
	Stats      stats.Collector
	Workers    int
	SemTimeout time.Duration // cap on waiting for a per-host slot; 0 = wait indefinitely
	Log        *logrus.Logger
}

// Engine drives the crawl: workers pop scheduled requests, thread them
// through the middleware pipeline and transport, and route each outcome —
// re-schedule, deliver to the spider, or abandon. The engine owns no
// per-request state beyond the in-flight counter; all durable state lives
// in the middlewares and collaborators.
type Engine struct {
	pipeline   *middleware.Pipeline
	filter     *httperror.Filter
	downloader *fetch.Downloader
	scheduler  *queue.Scheduler
	limiter    *fetch.RateLimiter
	hostSems   *fetch.HostSemaphorePool
	robots     *fetch.RobotsGate
	store      storage.ResultStore
	stats      stats.Collector
	spider     Spider
	workers    int
	semTimeout time.Duration
	pending    atomic.Int64
	log        *logrus.Logger
	runID      string
}

// NewEngine wires an engine for one spider run.
func NewEngine(spider Spider, opts Options) *Engine {
	workers := opts.Workers
	if workers <= 0 {
		workers = 8
	}
	return &Engine{
		pipeline:   opts.Pipeline,
		filter:     opts.Filter,
		downloader: opts.Downloader,
		scheduler:  queue.NewScheduler(opts.Log),
		limiter:    opts.Limiter,
		hostSems:   opts.HostSems,
		robots:     opts.Robots,
		store:      opts.Store,
		stats:      opts.Stats,
		spider:     spider,
		workers:    workers,
		semTimeout: opts.SemTimeout,
		log:        opts.Log,
		runID:      uuid.NewString(),
	}
}

// Run seeds the start requests and blocks until the crawl drains or ctx is
// cancelled. The scheduler closes once no task is pending, which releases
// every worker.
func (e *Engine) Run(ctx context.Context) error {
	runLog := e.log.WithFields(logrus.Fields{"spider": e.spider.Name(), "run_id": e.runID})
	runLog.Info("Starting crawl")
	startTime := time.Now()

	starts, err := e.spider.StartRequests()
	if err != nil {
		return err
	}
	for _, req := range starts {
		e.schedule(req)
	}
	if e.pending.Load() == 0 {
		runLog.Warn("No start requests to crawl")
		e.scheduler.Close()
	}

	// Cancellation drains the workers by closing the scheduler. The watcher
	// context also stops this goroutine once the crawl finishes on its own.
	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	go func() {
		<-watchCtx.Done()
		e.scheduler.Close()
	}()

	var wg sync.WaitGroup
	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.worker(watchCtx)
		}()
	}
	wg.Wait()

	runLog.WithField("elapsed", time.Since(startTime).Round(time.Millisecond)).Info("Crawl finished")
	e.logStats(runLog)
	return ctx.Err()
}

func (e *Engine) worker(ctx context.Context) {
	for {
		req, ok := e.scheduler.Pop()
		if !ok {
			return
		}
		e.handleTask(ctx, req)
		if e.pending.Add(-1) == 0 {
			e.scheduler.Close()
		}
	}
}

// handleTask threads one scheduled request through the request phase,
// transport, and the response or exception phase.
func (e *Engine) handleTask(ctx context.Context, req *web.Request) {
	out := e.pipeline.ProcessRequest(req, e.spider)
	switch out.Kind() {
	case middleware.KindRequest:
		e.schedule(out.Request())
		return
	case middleware.KindResponse:
		// A request hook substituted a response; transport is skipped.
		e.handleResponse(req, out.Response())
		return
	case middleware.KindAbort:
		e.abandon(req, out.Reason())
		return
	}

	u, err := req.ParsedURL()
	if err != nil {
		e.fail(req, err)
		return
	}
	if e.robots != nil && !e.robots.Allowed(ctx, u) {
		e.stats.Inc("robotstxt/forbidden")
		e.log.WithField("url", req.URL).Debug("Forbidden by robots.txt")
		e.record(req, storage.TaskStateAbandoned, 0, utils.CategorizeError(utils.ErrRobotsDisallowed))
		return
	}

	resp, err := e.download(ctx, req)
	if err != nil {
		e.stats.Inc("downloader/exception_count")
		e.handleException(req, err)
		return
	}
	e.stats.Inc("downloader/response_count")
	e.handleResponse(req, resp)
}

// download performs one transport attempt under the per-host concurrency
// cap and rate limit. The semaphore is released before any response
// processing so slow callbacks never starve a host's slot.
func (e *Engine) download(ctx context.Context, req *web.Request) (*web.Response, error) {
	host := req.Host()
	if e.hostSems != nil {
		acquireCtx := ctx
		if e.semTimeout > 0 {
			var cancel context.CancelFunc
			acquireCtx, cancel = context.WithTimeout(ctx, e.semTimeout)
			defer cancel()
		}
		if err := e.hostSems.Acquire(acquireCtx, host); err != nil {
			return nil, err
		}
		defer e.hostSems.Release(host)
	}
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx, host); err != nil {
			return nil, err
		}
	}
	e.stats.Inc("downloader/request_count")
	resp, err := e.downloader.Fetch(ctx, req)
	if e.limiter != nil {
		e.limiter.MarkRequest(host)
	}
	return resp, err
}

func (e *Engine) handleResponse(req *web.Request, resp *web.Response) {
	out := e.pipeline.ProcessResponse(req, resp, e.spider)
	switch out.Kind() {
	case middleware.KindRequest:
		e.schedule(out.Request())
	case middleware.KindAbort:
		e.abandon(req, out.Reason())
	case middleware.KindResponse:
		e.deliver(out.Response())
	}
}

func (e *Engine) handleException(req *web.Request, err error) {
	out := e.pipeline.ProcessException(req, err, e.spider)
	switch out.Kind() {
	case middleware.KindRequest:
		e.schedule(out.Request())
	case middleware.KindResponse:
		e.deliver(out.Response())
	case middleware.KindAbort:
		e.abandon(req, out.Reason())
	case middleware.KindPass:
		// No middleware recovered the failure; it is terminal.
		e.fail(req, err)
	}
}

// deliver runs the spider-boundary status filter and, when the response is
// allowed through, invokes the spider callback and schedules whatever it
// discovered.
func (e *Engine) deliver(resp *web.Response) {
	if err := e.filter.CheckResponse(resp, e.spider); err != nil {
		if e.filter.HandleException(err, e.spider) {
			// Filtered: counted and logged, no callbacks for this response.
			e.record(resp.Request, storage.TaskStateIgnored, resp.Status, "HTTP_StatusFiltered")
			return
		}
		e.fail(resp.Request, err)
		return
	}

	newReqs, err := e.spider.Parse(resp)
	if err != nil {
		e.stats.Inc("spider/callback_error_count")
		e.log.WithFields(logrus.Fields{
			"response": resp.String(),
			"spider":   e.spider.Name(),
		}).Errorf("Spider callback failed: %v", err)
		return
	}
	e.stats.Inc("response/delivered_count")
	e.record(resp.Request, storage.TaskStateDelivered, resp.Status, "")
	for _, req := range newReqs {
		e.schedule(req)
	}
}

// abandon terminates a task chain on a policy decision (redirect budget
// exhaustion and the like). Absorbed here: a log line and counters, never a
// crawl failure.
func (e *Engine) abandon(req *web.Request, reason string) {
	e.stats.Inc("task/abandoned_count")
	e.log.WithFields(logrus.Fields{
		"request": req.String(),
		"reason":  reason,
		"spider":  e.spider.Name(),
	}).Debug("Task abandoned")
	e.record(req, storage.TaskStateAbandoned, 0, reason)
}

// fail records a terminal transport failure that no middleware recovered.
func (e *Engine) fail(req *web.Request, err error) {
	category := utils.CategorizeError(err)
	e.stats.Inc("downloader/exception_type_count/" + category)
	e.log.WithFields(logrus.Fields{
		"request":  req.String(),
		"category": category,
		"spider":   e.spider.Name(),
	}).Warnf("Task failed: %v", err)
	e.record(req, storage.TaskStateFailed, 0, category)
}

// schedule hands a request to the scheduler, skipping fresh tasks whose
// URL already has a delivered result from an earlier (resumed) run.
func (e *Engine) schedule(req *web.Request) {
	fresh := req.Meta.RetryTimes == 0 && req.Meta.RedirectTimes == 0
	if e.store != nil && fresh {
		if result, ok, _ := e.store.Get(req.URL); ok && result.State == storage.TaskStateDelivered {
			e.stats.Inc("scheduler/skipped_resume_count")
			return
		}
	}
	e.pending.Add(1)
	e.scheduler.Add(req)
}

// record persists the terminal outcome of a task chain, keyed by the first
// URL in the chain so redirect generations collapse onto one entry.
func (e *Engine) record(req *web.Request, state storage.TaskState, httpStatus int, errType string) {
	if e.store == nil {
		return
	}
	chainURL := req.URL
	if len(req.Meta.RedirectURLs) > 0 {
		chainURL = req.Meta.RedirectURLs[0]
	}
	result := &storage.TaskResult{
		State:         state,
		HTTPStatus:    httpStatus,
		ErrorType:     errType,
		RedirectTimes: req.Meta.RedirectTimes,
		RetryTimes:    req.Meta.RetryTimes,
		FinishedAt:    time.Now(),
	}
	if err := e.store.Record(chainURL, result); err != nil {
		e.log.Warnf("Failed to record result for %s: %v", chainURL, err)
	}
}

func (e *Engine) logStats(runLog *logrus.Entry) {
	snapshot := e.stats.Snapshot()
	keys := make([]string, 0, len(snapshot))
	for k := range snapshot {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		runLog.Infof("stat %s = %d", k, snapshot[k])
	}
}
