package collector

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

const (
	redditAuthURL   = "https://www.reddit.com"
	redditAPIURL    = "https://oauth.reddit.com"
	redditPublicURL = "https://www.reddit.com"
	redditMaxLimit  = 100

	DefaultRedditUserAgent = "CryptoNewsHub/0.1"
)

// RedditFetcher 使用 application-only OAuth 拉取子版块最新帖子
type RedditFetcher struct {
	Client       *Client
	ClientID     string
	ClientSecret string
	UserAgent    string
	// AuthURL / APIURL 为空时使用官方地址
	AuthURL string
	APIURL  string
	Now     func() time.Time
}

func (r *RedditFetcher) Name() string {
	return "reddit"
}

func (r *RedditFetcher) Platform() Platform {
	return PlatformForum
}

type redditTokenResp struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type redditListing struct {
	Data struct {
		Children []struct {
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	Title      string  `json:"title"`
	Selftext   string  `json:"selftext"`
	URL        string  `json:"url"`
	Permalink  string  `json:"permalink"`
	CreatedUTC float64 `json:"created_utc"`
}

func (r *RedditFetcher) Fetch(ctx context.Context, subreddits []string, max int) Batch {
	batch := Batch{Platform: PlatformForum}
	if r.ClientID == "" || r.ClientSecret == "" {
		batch.Skipped = "REDDIT_CLIENT_ID / REDDIT_CLIENT_SECRET not configured"
		log.Warn("reddit: api credentials not provided, skip", "subreddits", len(subreddits))
		return batch
	}

	token, err := r.accessToken(ctx)
	if err != nil {
		// 拿不到 token 时每个子版块都记为失败，但不影响其它采集器
		log.Warn("reddit: init api failed", "err", err)
		for _, sub := range subreddits {
			batch.Results = append(batch.Results, SourceResult{
				Platform:   PlatformForum,
				Identifier: sub,
				Err:        err,
			})
		}
		return batch
	}

	for _, sub := range subreddits {
		items, err := r.fetchSubreddit(ctx, token, sub, max)
		if err != nil {
			log.Warn("reddit: fetch failed", "subreddit", "r/"+sub, "err", err)
		}
		batch.Results = append(batch.Results, SourceResult{
			Platform:   PlatformForum,
			Identifier: sub,
			Items:      items,
			Err:        err,
		})
	}
	return batch
}

func (r *RedditFetcher) userAgent() string {
	if r.UserAgent != "" {
		return r.UserAgent
	}
	return DefaultRedditUserAgent
}

func (r *RedditFetcher) accessToken(ctx context.Context) (string, error) {
	base := r.AuthURL
	if base == "" {
		base = redditAuthURL
	}
	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/v1/access_token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("reddit: build token request: %w", err)
	}
	req.SetBasicAuth(r.ClientID, r.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", r.userAgent())

	var tok redditTokenResp
	if err := r.Client.doJSON(req, &tok); err != nil {
		return "", fmt.Errorf("reddit: request token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("reddit: request token: empty access token")
	}
	return tok.AccessToken, nil
}

func (r *RedditFetcher) fetchSubreddit(ctx context.Context, token, sub string, max int) ([]Item, error) {
	if max <= 0 {
		return nil, nil
	}
	base := r.APIURL
	if base == "" {
		base = redditAPIURL
	}

	q := url.Values{}
	q.Set("limit", strconv.Itoa(clamp(max, 1, redditMaxLimit)))
	q.Set("raw_json", "1")

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	header.Set("User-Agent", r.userAgent())

	var listing redditListing
	if err := r.Client.GetJSON(ctx, base+"/r/"+url.PathEscape(sub)+"/new?"+q.Encode(), header, &listing); err != nil {
		return nil, fmt.Errorf("reddit: list r/%s: %w", sub, err)
	}

	now := nowFunc(r.Now)
	children := listing.Data.Children
	if len(children) > max {
		children = children[:max]
	}
	items := make([]Item, 0, len(children))
	for _, c := range children {
		p := c.Data
		link := p.URL
		if link == "" && p.Permalink != "" {
			link = redditPublicURL + p.Permalink
		}
		items = append(items, Normalize(RawRecord{
			Title:       p.Title,
			Body:        p.Selftext,
			URL:         link,
			PublishedAt: unixSeconds(p.CreatedUTC),
		}, PlatformForum, "r/"+sub, now))
	}
	return items, nil
}

func unixSeconds(v float64) *time.Time {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	sec, frac := math.Modf(v)
	t := time.Unix(int64(sec), int64(frac*1e9)).UTC()
	return &t
}
