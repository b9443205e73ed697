package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"webcrawl/pkg/config"
	"webcrawl/pkg/utils"
	"webcrawl/pkg/web"
)

// Downloader executes exactly one transport attempt per call. It performs
// no retries and follows no redirects — both are middleware decisions made
// on the response it returns.
type Downloader struct {
	client      *http.Client
	userAgent   string
	maxBodySize int64
	log         *logrus.Logger
}

// NewDownloader builds a Downloader around the shared client.
func NewDownloader(client *http.Client, s *config.Settings, log *logrus.Logger) (*Downloader, error) {
	userAgent, err := s.GetString("USER_AGENT")
	if err != nil {
		return nil, err
	}
	maxSize, err := s.GetInt("DOWNLOAD_MAXSIZE")
	if err != nil {
		return nil, err
	}
	return &Downloader{
		client:      client,
		userAgent:   userAgent,
		maxBodySize: int64(maxSize),
		log:         log,
	}, nil
}

// Fetch performs the HTTP exchange for one request generation and builds
// the single Response for this attempt. Transport errors come back
// unwrapped enough for the retry middleware's transient classification.
func (d *Downloader) Fetch(ctx context.Context, req *web.Request) (*web.Response, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrRequestCreation, err)
	}
	for k, vv := range req.Headers {
		httpReq.Header[k] = append([]string(nil), vv...)
	}
	if httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", d.userAgent)
	}

	httpResp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	limited := io.LimitReader(httpResp.Body, d.maxBodySize)
	respBody, err := io.ReadAll(limited)
	if err != nil {
		// Keep the underlying error in the chain: a truncated body is a
		// transient failure the retry middleware must recognize.
		return nil, fmt.Errorf("%w: %w", utils.ErrResponseBodyRead, err)
	}

	d.log.WithFields(logrus.Fields{
		"url":    req.URL,
		"status": httpResp.StatusCode,
		"bytes":  len(respBody),
	}).Debug("Fetched")

	return &web.Response{
		URL:     req.URL,
		Status:  httpResp.StatusCode,
		Headers: httpResp.Header,
		Body:    respBody,
		Request: req,
	}, nil
}
