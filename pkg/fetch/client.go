package fetch

import (
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"webcrawl/pkg/config"
)

// NewClient creates the shared HTTP client. Transport-level redirect
// following is disabled: the middleware chain decides what to send next,
// so every 3xx must surface as a plain response.
func NewClient(s *config.Settings, log *logrus.Logger) (*http.Client, error) {
	timeoutSecs, err := s.GetInt("DOWNLOAD_TIMEOUT_SECS")
	if err != nil {
		return nil, err
	}

	dialer := &net.Dialer{
		Timeout:   15 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy:                  http.ProxyFromEnvironment,
		DialContext:            dialer.DialContext,
		ForceAttemptHTTP2:      true,
		MaxIdleConns:           100,
		MaxIdleConnsPerHost:    4,
		IdleConnTimeout:        90 * time.Second,
		TLSHandshakeTimeout:    10 * time.Second,
		ExpectContinueTimeout:  1 * time.Second,
		MaxResponseHeaderBytes: 1 << 20,
	}

	client := &http.Client{
		Timeout:   time.Duration(timeoutSecs) * time.Second,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	log.WithField("timeout", client.Timeout).Info("HTTP client initialized (transport redirects disabled)")
	return client, nil
}
