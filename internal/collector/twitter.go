package collector

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
)

const (
	twitterBaseURL = "https://api.twitter.com"
	// v2 接口 max_results 只接受 5..100
	twitterMinResults = 5
	twitterMaxResults = 100
)

// TwitterFetcher 通过 Twitter API v2 拉取指定用户的最新推文
type TwitterFetcher struct {
	Client      *Client
	BearerToken string
	// BaseURL 为空时使用官方地址，测试时指向 httptest
	BaseURL string
	Now     func() time.Time
}

func (t *TwitterFetcher) Name() string {
	return "twitter"
}

func (t *TwitterFetcher) Platform() Platform {
	return PlatformSocial
}

type twitterUserResp struct {
	Data struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"data"`
}

type twitterTweetsResp struct {
	Data []struct {
		ID        string `json:"id"`
		Text      string `json:"text"`
		CreatedAt string `json:"created_at"`
	} `json:"data"`
}

func (t *TwitterFetcher) Fetch(ctx context.Context, usernames []string, max int) Batch {
	batch := Batch{Platform: PlatformSocial}
	if t.BearerToken == "" {
		batch.Skipped = "TWITTER_BEARER_TOKEN not configured"
		log.Warn("twitter: bearer token not provided, skip", "usernames", len(usernames))
		return batch
	}

	for _, username := range usernames {
		items, err := t.fetchUser(ctx, username, max)
		if err != nil {
			log.Warn("twitter: fetch failed", "username", username, "err", err)
		}
		batch.Results = append(batch.Results, SourceResult{
			Platform:   PlatformSocial,
			Identifier: username,
			Items:      items,
			Err:        err,
		})
	}
	return batch
}

func (t *TwitterFetcher) fetchUser(ctx context.Context, username string, max int) ([]Item, error) {
	if max <= 0 {
		return nil, nil
	}

	base := t.BaseURL
	if base == "" {
		base = twitterBaseURL
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+t.BearerToken)

	var user twitterUserResp
	if err := t.Client.GetJSON(ctx, base+"/2/users/by/username/"+url.PathEscape(username), header, &user); err != nil {
		return nil, fmt.Errorf("twitter: lookup user %s: %w", username, err)
	}
	if user.Data.ID == "" {
		return nil, fmt.Errorf("twitter: lookup user %s: empty user id", username)
	}

	q := url.Values{}
	q.Set("max_results", strconv.Itoa(clamp(max, twitterMinResults, twitterMaxResults)))
	q.Set("tweet.fields", "created_at")

	var tweets twitterTweetsResp
	tweetsURL := base + "/2/users/" + url.PathEscape(user.Data.ID) + "/tweets?" + q.Encode()
	if err := t.Client.GetJSON(ctx, tweetsURL, header, &tweets); err != nil {
		return nil, fmt.Errorf("twitter: fetch tweets of %s: %w", username, err)
	}

	now := nowFunc(t.Now)
	data := tweets.Data
	if len(data) > max {
		data = data[:max]
	}
	items := make([]Item, 0, len(data))
	for _, tw := range data {
		items = append(items, Normalize(RawRecord{
			Text:      tw.Text,
			URL:       fmt.Sprintf("https://twitter.com/%s/status/%s", username, tw.ID),
			Published: tw.CreatedAt,
		}, PlatformSocial, username, now))
	}
	return items, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func nowFunc(f func() time.Time) time.Time {
	if f != nil {
		return f()
	}
	return time.Now()
}
