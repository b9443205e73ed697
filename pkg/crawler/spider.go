package crawler

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"webcrawl/pkg/web"
)

// LinkSpider crawls outward from its start URLs, following same-host links
// discovered in delivered HTML. A seen-set keeps rediscovered links from
// re-entering the schedule; MaxPages (0 = unlimited) caps how many pages
// are parsed for further links.
type LinkSpider struct {
	name      string
	startURLs []string
	hosts     map[string]struct{}
	maxPages  int
	log       *logrus.Logger

	mu     sync.Mutex
	seen   map[string]struct{}
	parsed int
}

// NewLinkSpider builds a spider allowed to roam the hosts of its start URLs.
func NewLinkSpider(name string, startURLs []string, maxPages int, log *logrus.Logger) (*LinkSpider, error) {
	if len(startURLs) == 0 {
		return nil, fmt.Errorf("spider %q: no start URLs", name)
	}
	hosts := make(map[string]struct{}, len(startURLs))
	for _, raw := range startURLs {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("spider %q: invalid start URL %q", name, raw)
		}
		hosts[u.Host] = struct{}{}
	}
	return &LinkSpider{
		name:      name,
		startURLs: startURLs,
		hosts:     hosts,
		maxPages:  maxPages,
		log:       log,
		seen:      make(map[string]struct{}),
	}, nil
}

func (s *LinkSpider) Name() string { return s.name }

func (s *LinkSpider) StartRequests() ([]*web.Request, error) {
	reqs := make([]*web.Request, 0, len(s.startURLs))
	for _, raw := range s.startURLs {
		req, err := web.NewRequest(raw)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.seen[req.URL] = struct{}{}
		s.mu.Unlock()
		reqs = append(reqs, req)
	}
	return reqs, nil
}

// Parse extracts same-host links from HTML responses. Non-HTML responses
// are delivered but yield nothing.
func (s *LinkSpider) Parse(resp *web.Response) ([]*web.Request, error) {
	s.mu.Lock()
	s.parsed++
	budgetLeft := s.maxPages == 0 || s.parsed < s.maxPages
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"response": resp.String(),
		"spider":   s.name,
	}).Debug("Parsed page")

	if !budgetLeft || !resp.IsHTML() {
		return nil, nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("parsing HTML from %s: %w", resp.URL, err)
	}
	base, err := url.Parse(resp.URL)
	if err != nil {
		return nil, err
	}

	var reqs []*web.Request
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		link := s.normalize(base, href)
		if link == "" {
			return
		}
		s.mu.Lock()
		_, dup := s.seen[link]
		if !dup {
			s.seen[link] = struct{}{}
		}
		s.mu.Unlock()
		if dup {
			return
		}
		req, reqErr := web.NewRequest(link)
		if reqErr != nil {
			return
		}
		reqs = append(reqs, req)
	})
	return reqs, nil
}

// normalize resolves href against the page URL, drops fragments, and
// rejects links that leave the allowed hosts.
func (s *LinkSpider) normalize(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") ||
		strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "javascript:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	if _, ok := s.hosts[abs.Host]; !ok {
		return ""
	}
	abs.Fragment = ""
	return abs.String()
}
