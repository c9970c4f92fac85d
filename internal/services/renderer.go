package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	redisclient "github.com/yungbote/eventscout-backend/internal/clients/redis"
	"github.com/yungbote/eventscout-backend/internal/logger"
)

// PageRenderer fetches the HTML of a page. When RENDER_API_URL points at a
// browser-rendering proxy the request goes through it so client-side pages
// come back fully rendered; otherwise it is a plain GET.
type PageRenderer interface {
	Render(ctx context.Context, pageURL string) (string, error)
}

type pageRenderer struct {
	log        *logger.Logger
	renderAPI  string
	renderKey  string
	httpClient *http.Client
	cache      redisclient.RenderCache
}

func NewPageRenderer(log *logger.Logger, cache redisclient.RenderCache) PageRenderer {
	timeoutSec := 60
	if v := os.Getenv("RENDER_TIMEOUT_SECONDS"); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed > 0 {
			timeoutSec = parsed
		}
	}
	return &pageRenderer{
		log:        log.With("service", "PageRenderer"),
		renderAPI:  strings.TrimSpace(os.Getenv("RENDER_API_URL")),
		renderKey:  os.Getenv("RENDER_API_KEY"),
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
		cache:      cache,
	}
}

func (r *pageRenderer) Render(ctx context.Context, pageURL string) (string, error) {
	if r.cache != nil {
		if html, ok := r.cache.Get(ctx, pageURL); ok {
			return html, nil
		}
	}

	target := pageURL
	if r.renderAPI != "" {
		q := url.Values{}
		q.Set("url", pageURL)
		if r.renderKey != "" {
			q.Set("api_key", r.renderKey)
		}
		sep := "?"
		if strings.Contains(r.renderAPI, "?") {
			sep = "&"
		}
		target = r.renderAPI + sep + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("render %s: http %d", pageURL, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return "", fmt.Errorf("render %s: read body: %w", pageURL, err)
	}

	html := string(raw)
	if r.cache != nil {
		r.cache.Set(ctx, pageURL, html)
	}
	return html, nil
}
