// Package httperror filters non-success responses at the spider boundary.
// It is not a downloader middleware: it closes the same request/response
// contract on the delivery side, deciding whether a response reaches spider
// callbacks at all.
package httperror

import (
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/sirupsen/logrus"

	"webcrawl/pkg/config"
	"webcrawl/pkg/stats"
	"webcrawl/pkg/web"
)

// Spider identifies the running spider for log tagging.
type Spider interface {
	Name() string
}

// StatusListCarrier is implemented by spiders that accept extra response
// statuses beyond the 2xx range.
type StatusListCarrier interface {
	HandleHTTPStatusList() []int
}

// ResponseIgnored is the typed, catchable signal that a non-success
// response was filtered before reaching spider callbacks. It carries the
// response so the companion exception hook can count it per status.
type ResponseIgnored struct {
	Response *web.Response
}

func (e *ResponseIgnored) Error() string {
	return fmt.Sprintf("ignoring non-success response %s", e.Response)
}

// Filter decides which non-2xx responses are allowed through to spider
// callbacks. The allow-list resolves, in precedence order: the request's
// Meta.HandleHTTPStatusList, Meta.HandleHTTPStatusAll, HTTPERROR_ALLOW_ALL,
// the spider's own list, then HTTPERROR_ALLOWED_CODES.
type Filter struct {
	allowAll     bool
	allowedCodes []int
	stats        stats.Collector
	log          *logrus.Logger
}

// NewFilter builds the status filter from settings.
func NewFilter(s *config.Settings, st stats.Collector, log *logrus.Logger) (*Filter, error) {
	allowAll, err := s.GetBool("HTTPERROR_ALLOW_ALL")
	if err != nil {
		return nil, err
	}
	codes, err := s.GetIntList("HTTPERROR_ALLOWED_CODES")
	if err != nil {
		return nil, err
	}
	return &Filter{allowAll: allowAll, allowedCodes: codes, stats: st, log: log}, nil
}

// CheckResponse returns nil when the response may proceed to callbacks, or
// a *ResponseIgnored signal when it must be filtered.
func (f *Filter) CheckResponse(resp *web.Response, spider Spider) error {
	if resp.Status >= 200 && resp.Status < 300 {
		return nil
	}
	meta := resp.Meta()
	if meta.HandleHTTPStatusList != nil {
		if slices.Contains(meta.HandleHTTPStatusList, resp.Status) {
			return nil
		}
		return &ResponseIgnored{Response: resp}
	}
	if meta.HandleHTTPStatusAll || f.allowAll {
		return nil
	}
	allowed := f.allowedCodes
	if carrier, ok := spider.(StatusListCarrier); ok && carrier.HandleHTTPStatusList() != nil {
		allowed = carrier.HandleHTTPStatusList()
	}
	if slices.Contains(allowed, resp.Status) {
		return nil
	}
	return &ResponseIgnored{Response: resp}
}

// HandleException absorbs a ResponseIgnored signal: it counts the drop
// (total and per-status), logs, and reports true so the engine invokes no
// callbacks for the response. Other errors are not ours and return false.
func (f *Filter) HandleException(err error, spider Spider) bool {
	var ignored *ResponseIgnored
	if !errors.As(err, &ignored) {
		return false
	}
	f.stats.Inc("httperror/response_ignored_count")
	f.stats.Inc("httperror/response_ignored_status_count/" + strconv.Itoa(ignored.Response.Status))
	f.log.WithFields(logrus.Fields{
		"response": ignored.Response.String(),
		"spider":   spider.Name(),
	}).Info("Ignoring response: HTTP status code is not handled or not allowed")
	return true
}
