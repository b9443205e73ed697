package fetch

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/temoto/robotstxt"
)

// RobotsGate checks robots.txt before the engine schedules a fetch. Parsed
// files are cached per host for the crawl's lifetime; hosts whose file
// cannot be fetched or parsed are treated as allow-all.
type RobotsGate struct {
	client    *http.Client
	userAgent string
	cache     map[string]*robotstxt.RobotsData // host -> parsed data, nil on failure
	cacheMu   sync.Mutex
	log       *logrus.Logger
}

// NewRobotsGate creates a RobotsGate using the shared HTTP client.
func NewRobotsGate(client *http.Client, userAgent string, log *logrus.Logger) *RobotsGate {
	return &RobotsGate{
		client:    client,
		userAgent: userAgent,
		cache:     make(map[string]*robotstxt.RobotsData),
		log:       log,
	}
}

// Allowed reports whether the user agent may fetch targetURL per the host's
// robots.txt rules.
func (g *RobotsGate) Allowed(ctx context.Context, targetURL *url.URL) bool {
	data := g.robotsData(ctx, targetURL)
	if data == nil {
		return true
	}
	return data.TestAgent(targetURL.RequestURI(), g.userAgent)
}

func (g *RobotsGate) robotsData(ctx context.Context, targetURL *url.URL) *robotstxt.RobotsData {
	host := targetURL.Hostname()

	g.cacheMu.Lock()
	data, found := g.cache[host]
	g.cacheMu.Unlock()
	if found {
		return data
	}

	robotsURL := &url.URL{Scheme: targetURL.Scheme, Host: targetURL.Host, Path: "/robots.txt"}
	hostLog := g.log.WithFields(logrus.Fields{"host": host, "robots_url": robotsURL.String()})
	hostLog.Debug("Fetching robots.txt")

	data = g.fetchAndParse(ctx, robotsURL, hostLog)

	g.cacheMu.Lock()
	g.cache[host] = data
	g.cacheMu.Unlock()
	return data
}

func (g *RobotsGate) fetchAndParse(ctx context.Context, robotsURL *url.URL, hostLog *logrus.Entry) *robotstxt.RobotsData {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		hostLog.Errorf("Error creating robots.txt request: %v", err)
		return nil
	}
	req.Header.Set("User-Agent", g.userAgent)

	resp, err := g.client.Do(req)
	if err != nil {
		hostLog.Warnf("Fetching robots.txt failed: %v", err)
		return nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		hostLog.Warnf("Error reading robots.txt body: %v", err)
		return nil
	}

	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		hostLog.Warnf("Error parsing robots.txt: %v", err)
		return nil
	}
	hostLog.Debug("Parsed robots.txt")
	return data
}
