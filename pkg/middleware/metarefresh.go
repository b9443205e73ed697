package middleware

import (
	"bytes"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"webcrawl/pkg/config"
	"webcrawl/pkg/web"
)

// MetaRefresh follows HTML meta-refresh directives the way browsers do,
// treating them as GET redirects when the declared delay is short enough.
type MetaRefresh struct {
	redirectCore
	ignoreTags map[string]struct{}
	maxDelay   float64
}

// NewMetaRefresh builds the meta-refresh middleware, or ErrNotConfigured
// when METAREFRESH_ENABLED is off. REDIRECT_MAX_METAREFRESH_DELAY takes
// precedence over METAREFRESH_MAXDELAY when both are set.
func NewMetaRefresh(s *config.Settings, log *logrus.Logger) (*MetaRefresh, error) {
	core, err := newRedirectCore(s, "METAREFRESH_ENABLED", log)
	if err != nil {
		return nil, err
	}
	tags, err := s.GetList("METAREFRESH_IGNORE_TAGS")
	if err != nil {
		return nil, err
	}
	ignore := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		ignore[strings.ToLower(tag)] = struct{}{}
	}
	delayKey := "METAREFRESH_MAXDELAY"
	if s.Has("REDIRECT_MAX_METAREFRESH_DELAY") {
		delayKey = "REDIRECT_MAX_METAREFRESH_DELAY"
	}
	maxDelay, err := s.GetInt(delayKey)
	if err != nil {
		return nil, err
	}
	return &MetaRefresh{redirectCore: core, ignoreTags: ignore, maxDelay: float64(maxDelay)}, nil
}

func (m *MetaRefresh) Name() string { return "metarefresh" }

// ProcessResponse scans HTML bodies for a meta-refresh directive and, when
// one points at a URL with a delay under the configured max, rebuilds the
// task as a GET at the target.
func (m *MetaRefresh) ProcessResponse(req *web.Request, resp *web.Response, spider Spider) Outcome {
	if req.Meta.DontRedirect || req.Method == http.MethodHead || !resp.IsHTML() {
		return Pass()
	}

	interval, target, found := m.findRefresh(resp)
	if !found || interval >= m.maxDelay {
		return Pass()
	}
	return m.redirect(req.ReplaceWithGet(target), req, spider, "meta refresh")
}

// refreshContentRe matches the content attribute of a refresh directive:
// an interval, optionally followed by "; url=<target>" with optional quotes.
var refreshContentRe = regexp.MustCompile(`(?i)^\s*(\d+(?:\.\d+)?)\s*(?:;\s*url\s*=\s*['"]?\s*([^'"\s]+?)\s*['"]?\s*)?$`)

// findRefresh returns the first honored meta-refresh directive in the body:
// its interval and the absolute target URL. Directives nested inside any of
// the configured ignore tags (script, noscript by default) are skipped.
func (m *MetaRefresh) findRefresh(resp *web.Response) (interval float64, target string, found bool) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		m.log.WithField("url", resp.URL).Debugf("Meta refresh scan failed to parse HTML: %v", err)
		return 0, "", false
	}

	base, err := url.Parse(resp.URL)
	if err != nil {
		return 0, "", false
	}

	doc.Find("meta").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		equiv, _ := sel.Attr("http-equiv")
		if !strings.EqualFold(strings.TrimSpace(equiv), "refresh") {
			return true
		}
		if m.insideIgnoredTag(sel) {
			return true
		}
		content, ok := sel.Attr("content")
		if !ok {
			return true
		}
		matches := refreshContentRe.FindStringSubmatch(content)
		if matches == nil || matches[2] == "" {
			return true
		}
		secs, parseErr := strconv.ParseFloat(matches[1], 64)
		if parseErr != nil {
			return true
		}
		ref, parseErr := url.Parse(matches[2])
		if parseErr != nil {
			return true
		}
		interval = secs
		target = base.ResolveReference(ref).String()
		found = true
		return false
	})
	return interval, target, found
}

func (m *MetaRefresh) insideIgnoredTag(sel *goquery.Selection) bool {
	for parents := sel.Parent(); parents.Length() > 0; parents = parents.Parent() {
		if node := parents.Get(0); node != nil {
			if _, ignored := m.ignoreTags[strings.ToLower(node.Data)]; ignored {
				return true
			}
		}
	}
	return false
}
