package middleware

import (
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"webcrawl/pkg/config"
	"webcrawl/pkg/utils"
	"webcrawl/pkg/web"
)

// maxRedirectsReason is the abort reason stamped when a redirect chain
// exhausts its budget.
const maxRedirectsReason = "max redirections reached"

// redirectCore is the budget logic shared by the HTTP redirect and
// meta-refresh policies.
type redirectCore struct {
	maxRedirectTimes int
	priorityAdjust   int
	log              *logrus.Logger
}

func newRedirectCore(s *config.Settings, enabledKey string, log *logrus.Logger) (redirectCore, error) {
	enabled, err := s.GetBool(enabledKey)
	if err != nil {
		return redirectCore{}, err
	}
	if !enabled {
		return redirectCore{}, utils.ErrNotConfigured
	}
	maxTimes, err := s.GetInt("REDIRECT_MAX_TIMES")
	if err != nil {
		return redirectCore{}, err
	}
	adjust, err := s.GetInt("REDIRECT_PRIORITY_ADJUST")
	if err != nil {
		return redirectCore{}, err
	}
	return redirectCore{maxRedirectTimes: maxTimes, priorityAdjust: adjust, log: log}, nil
}

// redirect applies the shared budget check and, on success, stamps the
// candidate request with the extended chain history. The chain continues
// only while the local TTL is nonzero AND the global count stays within
// the configured max: a per-request TTL can shorten the budget but never
// extend it.
func (c *redirectCore) redirect(candidate, original *web.Request, spider Spider, reason string) Outcome {
	ttl := c.maxRedirectTimes
	if original.Meta.RedirectTTL != nil {
		ttl = *original.Meta.RedirectTTL
	}
	redirects := original.Meta.RedirectTimes + 1

	if ttl == 0 || redirects > c.maxRedirectTimes {
		c.log.WithFields(logrus.Fields{
			"request": original.String(),
			"spider":  spider.Name(),
		}).Debugf("Discarding %s: %s", original, maxRedirectsReason)
		return Abort(maxRedirectsReason)
	}

	candidate.Meta.RedirectTimes = redirects
	candidate.Meta.SetRedirectTTL(ttl - 1)
	candidate.Meta.RedirectURLs = append(candidate.Meta.RedirectURLs, original.URL)
	candidate.Meta.RedirectReasons = append(candidate.Meta.RedirectReasons, reason)
	candidate.DontFilter = original.DontFilter
	candidate.Priority = original.Priority + c.priorityAdjust

	c.log.WithFields(logrus.Fields{
		"reason": reason,
		"from":   original.URL,
		"to":     candidate.URL,
		"hops":   redirects,
		"spider": spider.Name(),
	}).Debug("Redirecting")
	return WithRequest(candidate)
}

// Redirect follows HTTP 3xx responses by re-enqueuing a request at the
// Location target, subject to the shared redirect budget.
type Redirect struct {
	redirectCore
}

// NewRedirect builds the HTTP redirect middleware, or ErrNotConfigured when
// REDIRECT_ENABLED is off.
func NewRedirect(s *config.Settings, log *logrus.Logger) (*Redirect, error) {
	core, err := newRedirectCore(s, "REDIRECT_ENABLED", log)
	if err != nil {
		return nil, err
	}
	return &Redirect{redirectCore: core}, nil
}

func (m *Redirect) Name() string { return "redirect" }

// ProcessResponse converts a 301/302/303/307/308 response carrying a
// Location header into a new outgoing request. 301, 307, 308 and HEAD
// preserve method and body; 302/303 otherwise rebuild as a bodyless GET.
func (m *Redirect) ProcessResponse(req *web.Request, resp *web.Response, spider Spider) Outcome {
	meta := req.Meta
	if meta.DontRedirect ||
		meta.HandleHTTPStatusAll ||
		slices.Contains(meta.HandleHTTPStatusList, resp.Status) ||
		statusHandledBySpider(spider, resp.Status) {
		return Pass()
	}

	switch resp.Status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
	default:
		return Pass()
	}
	location := resp.Headers.Get("Location")
	if location == "" {
		return Pass()
	}

	redirectedURL, ok := resolveLocation(req.URL, location)
	if !ok {
		m.log.WithField("location", location).Warnf("Unparseable Location header on %s", resp)
		return Pass()
	}

	reason := strconv.Itoa(resp.Status)
	if resp.Status == http.StatusMovedPermanently ||
		resp.Status == http.StatusTemporaryRedirect ||
		resp.Status == http.StatusPermanentRedirect ||
		req.Method == http.MethodHead {
		return m.redirect(req.ReplaceURL(redirectedURL), req, spider, reason)
	}
	return m.redirect(req.ReplaceWithGet(redirectedURL), req, spider, reason)
}

func statusHandledBySpider(spider Spider, status int) bool {
	carrier, ok := spider.(StatusListCarrier)
	return ok && slices.Contains(carrier.HandleHTTPStatusList(), status)
}

// resolveLocation joins a (whitespace-normalized) Location value against
// the base URL, yielding an absolute target.
func resolveLocation(baseURL, location string) (string, bool) {
	location = strings.TrimSpace(location)
	// Percent-encode bare spaces; servers emit them often enough to matter.
	location = strings.ReplaceAll(location, " ", "%20")
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", false
	}
	target, err := url.Parse(location)
	if err != nil {
		return "", false
	}
	return base.ResolveReference(target).String(), true
}
