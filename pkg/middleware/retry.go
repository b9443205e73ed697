package middleware

import (
	"github.com/sirupsen/logrus"

	"webcrawl/pkg/config"
	"webcrawl/pkg/stats"
	"webcrawl/pkg/utils"
	"webcrawl/pkg/web"
)

// Retry re-enqueues requests that failed with a retryable status code or a
// transient transport error, bounded by a per-task budget. Exhaustion falls
// back to the pre-retry default: the original response passes through, or
// the exception keeps propagating. A result is never silently dropped.
type Retry struct {
	maxRetryTimes  int
	retryHTTPCodes map[int]struct{}
	priorityAdjust int
	stats          stats.Collector
	log            *logrus.Logger
}

// NewRetry builds the retry middleware, or ErrNotConfigured when
// RETRY_ENABLED is off.
func NewRetry(s *config.Settings, st stats.Collector, log *logrus.Logger) (*Retry, error) {
	enabled, err := s.GetBool("RETRY_ENABLED")
	if err != nil {
		return nil, err
	}
	if !enabled {
		return nil, utils.ErrNotConfigured
	}
	maxTimes, err := s.GetInt("RETRY_TIMES")
	if err != nil {
		return nil, err
	}
	codes, err := s.GetIntList("RETRY_HTTP_CODES")
	if err != nil {
		return nil, err
	}
	codeSet := make(map[int]struct{}, len(codes))
	for _, code := range codes {
		codeSet[code] = struct{}{}
	}
	adjust, err := s.GetInt("RETRY_PRIORITY_ADJUST")
	if err != nil {
		return nil, err
	}
	return &Retry{
		maxRetryTimes:  maxTimes,
		retryHTTPCodes: codeSet,
		priorityAdjust: adjust,
		stats:          st,
		log:            log,
	}, nil
}

func (m *Retry) Name() string { return "retry" }

// ProcessResponse retries responses whose status is in RETRY_HTTP_CODES.
// On budget exhaustion the original response continues down the chain.
func (m *Retry) ProcessResponse(req *web.Request, resp *web.Response, spider Spider) Outcome {
	if req.Meta.DontRetry {
		return Pass()
	}
	if _, retryable := m.retryHTTPCodes[resp.Status]; !retryable {
		return Pass()
	}
	return m.retry(req, resp.StatusMessage(), spider)
}

// ProcessException retries requests that failed with a transient transport
// error. On budget exhaustion the exception keeps propagating.
func (m *Retry) ProcessException(req *web.Request, err error, spider Spider) Outcome {
	if req.Meta.DontRetry || !utils.IsTransient(err) {
		return Pass()
	}
	return m.retry(req, utils.CategorizeError(err), spider)
}

// retry clones the request for another attempt if the budget allows.
// Retried requests bypass de-duplication: the URL is unchanged, so the
// dupe-filter would otherwise drop them.
func (m *Retry) retry(req *web.Request, reason string, spider Spider) Outcome {
	retries := req.Meta.RetryTimes + 1
	budget := m.maxRetryTimes
	if req.Meta.MaxRetryTimes != nil {
		budget = *req.Meta.MaxRetryTimes
	}

	entry := m.log.WithFields(logrus.Fields{
		"request": req.String(),
		"retries": retries,
		"reason":  reason,
		"spider":  spider.Name(),
	})

	if retries > budget {
		m.stats.Inc("retry/max_reached")
		entry.Debug("Gave up retrying")
		return Pass()
	}

	retryReq := req.Clone()
	retryReq.Meta.RetryTimes = retries
	retryReq.DontFilter = true
	retryReq.Priority = req.Priority + m.priorityAdjust

	m.stats.Inc("retry/count")
	m.stats.Inc("retry/reason_count/" + reason)
	entry.Debug("Retrying")
	return WithRequest(retryReq)
}
