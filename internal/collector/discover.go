package collector

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gocolly/colly/v2"
)

var ErrNoFeedDiscovered = errors.New("no feed link found on page")

// discoverFeedURL 抓取 HTML 页面，取第一个 <link rel="alternate"> 指向的 RSS/Atom 地址
func discoverFeedURL(ctx context.Context, pageURL string, client *Client) (string, error) {
	ua := DefaultUserAgent
	if client != nil && client.UserAgent != "" {
		ua = client.UserAgent
	}
	if client != nil {
		if err := client.Limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	c := colly.NewCollector(colly.UserAgent(ua))
	timeout := DefaultClientTimeout
	if client != nil && client.HTTP != nil && client.HTTP.Timeout > 0 {
		timeout = client.HTTP.Timeout
	}
	c.SetRequestTimeout(timeout)

	var found string
	c.OnHTML(`link[rel="alternate"]`, func(e *colly.HTMLElement) {
		if found != "" {
			return
		}
		typ := strings.ToLower(e.Attr("type"))
		if !strings.Contains(typ, "rss") && !strings.Contains(typ, "atom") {
			return
		}
		href := strings.TrimSpace(e.Attr("href"))
		if href == "" {
			return
		}
		found = e.Request.AbsoluteURL(href)
	})

	if err := c.Visit(pageURL); err != nil {
		return "", fmt.Errorf("discover feed on %s: %w", pageURL, err)
	}
	if found == "" {
		return "", ErrNoFeedDiscovered
	}
	return found, nil
}
