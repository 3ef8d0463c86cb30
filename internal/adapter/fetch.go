package adapter

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/pharmintel/pricewatch/internal/pharma"
)

// fetcher wraps a shared colly collector for plain HTTP pages.
type fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

func newFetcher(cfg Config) *fetcher {
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.WithTransport(newHTTPTransport())
	return &fetcher{cfg: cfg, baseCollector: c}
}

// fetch executes a single GET and returns the body. Errors are mapped
// to the failure taxonomy: 404 is ErrNotFound, network trouble is
// transient, other HTTP statuses are transient too since pharmacy
// sites throw intermittent 5xx and 403 under load.
func (f *fetcher) fetch(ctx context.Context, url string) ([]byte, error) {
	var (
		body     []byte
		status   int
		fetchErr error
	)

	collector := f.baseCollector.Clone()
	collector.UserAgent = f.cfg.UserAgent
	collector.IgnoreRobotsTxt = true
	collector.SetRequestTimeout(f.cfg.FetchTimeout)

	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return nil, pharma.Transient(fmt.Errorf("fetch %s: %w", url, ctx.Err()))
	case err := <-done:
		if err == nil && fetchErr == nil {
			return body, nil
		}
	}

	if status == http.StatusNotFound || status == http.StatusGone {
		return nil, fmt.Errorf("fetch %s: %w", url, pharma.ErrNotFound)
	}
	cause := fetchErr
	if cause == nil {
		cause = fmt.Errorf("status %d", status)
	}
	return nil, pharma.Transient(fmt.Errorf("fetch %s: %w", url, cause))
}

// fetchDocument fetches a page and parses it into a goquery document.
func (f *fetcher) fetchDocument(ctx context.Context, url string) (*goquery.Document, []byte, error) {
	body, err := f.fetch(ctx, url)
	if err != nil {
		return nil, nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, nil, &pharma.ExtractionError{URL: url, Reason: fmt.Sprintf("parse html: %v", err)}
	}
	return doc, body, nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
