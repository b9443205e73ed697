package middleware

import (
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/publicsuffix"

	"webcrawl/pkg/config"
	"webcrawl/pkg/utils"
	"webcrawl/pkg/web"
)

// Cookies multiplexes independent cookie jars keyed by Meta.CookieJar.
// Jars are created lazily on first use and live for the whole crawl; the
// guarded map is the only shared mutable state, so concurrent in-flight
// requests on the same jar key serialize on it.
type Cookies struct {
	mu    sync.Mutex
	jars  map[string]http.CookieJar
	debug bool
	log   *logrus.Logger
}

// NewCookies builds the cookie middleware, or ErrNotConfigured when
// COOKIES_ENABLED is off.
func NewCookies(s *config.Settings, log *logrus.Logger) (*Cookies, error) {
	enabled, err := s.GetBool("COOKIES_ENABLED")
	if err != nil {
		return nil, err
	}
	if !enabled {
		return nil, utils.ErrNotConfigured
	}
	debug, err := s.GetBool("COOKIES_DEBUG")
	if err != nil {
		return nil, err
	}
	return &Cookies{
		jars:  make(map[string]http.CookieJar),
		debug: debug,
		log:   log,
	}, nil
}

func (m *Cookies) Name() string { return "cookies" }

// jar returns the store for a jar key, creating it on first use. The
// public-suffix list enforces standard domain-acceptance rules.
func (m *Cookies) jar(key string) http.CookieJar {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jars[key]; ok {
		return j
	}
	j, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		// cookiejar.New never fails with a non-nil options struct
		panic(err)
	}
	m.jars[key] = j
	return j
}

// ProcessRequest registers any cookies attached directly to the request
// into the selected jar, then replaces the Cookie header with the jar's
// canonical header for the request URL.
func (m *Cookies) ProcessRequest(req *web.Request, spider Spider) Outcome {
	if req.Meta.DontMergeCookies {
		return Pass()
	}
	u, err := req.ParsedURL()
	if err != nil {
		return Pass()
	}
	jar := m.jar(req.Meta.CookieJar)

	if len(req.Cookies) > 0 {
		attached := make([]*http.Cookie, 0, len(req.Cookies))
		for _, c := range req.Cookies {
			attached = append(attached, &http.Cookie{
				Name:   c.Name,
				Value:  c.Value,
				Domain: c.Domain,
				Path:   c.Path,
				Secure: c.Secure,
			})
		}
		// The jar applies domain/path/secure acceptance rules as if these
		// arrived from the request's own URL.
		jar.SetCookies(u, attached)
	}

	req.Headers.Del("Cookie")
	if matched := jar.Cookies(u); len(matched) > 0 {
		pairs := make([]string, 0, len(matched))
		for _, c := range matched {
			pairs = append(pairs, c.Name+"="+c.Value)
		}
		req.Headers.Set("Cookie", strings.Join(pairs, "; "))
	}

	if m.debug {
		if header := req.Headers.Get("Cookie"); header != "" {
			m.log.WithFields(logrus.Fields{
				"request": req.String(),
				"spider":  spider.Name(),
			}).Debugf("Sending cookies: %s", header)
		}
	}
	return Pass()
}

// ProcessResponse absorbs every Set-Cookie header from the response into
// the same jar, dropping cookies that fail validity or expiry checks.
func (m *Cookies) ProcessResponse(req *web.Request, resp *web.Response, spider Spider) Outcome {
	if req.Meta.DontMergeCookies {
		return Pass()
	}
	u, err := req.ParsedURL()
	if err != nil {
		return Pass()
	}

	received := (&http.Response{Header: resp.Headers}).Cookies()
	if len(received) > 0 {
		m.jar(req.Meta.CookieJar).SetCookies(u, received)
	}

	if m.debug && len(resp.Headers.Values("Set-Cookie")) > 0 {
		m.log.WithFields(logrus.Fields{
			"response": resp.String(),
			"spider":   spider.Name(),
		}).Debugf("Received cookies: %s", strings.Join(resp.Headers.Values("Set-Cookie"), "; "))
	}
	return Pass()
}
