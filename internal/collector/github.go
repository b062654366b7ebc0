package collector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

const githubAPIURL = "https://api.github.com"

// GitHubFetcher 拉取仓库最近的 commit 和 release。
// 默认直连 GitHub API；配置 GatewayURL 后改走网关（gitmcp.io 的 /{owner}/{repo}/commits 路径风格）
type GitHubFetcher struct {
	Client *Client
	// Token 可选，匿名也能访问，只是限额更低
	Token      string
	BaseURL    string
	GatewayURL string
	Now        func() time.Time
}

func (g *GitHubFetcher) Name() string {
	return "github"
}

func (g *GitHubFetcher) Platform() Platform {
	return PlatformRepo
}

type githubCommit struct {
	HTMLURL string `json:"html_url"`
	URL     string `json:"url"`
	Commit  struct {
		Message string `json:"message"`
		Author  struct {
			Date string `json:"date"`
		} `json:"author"`
	} `json:"commit"`
}

type githubRelease struct {
	Name        string `json:"name"`
	TagName     string `json:"tag_name"`
	HTMLURL     string `json:"html_url"`
	URL         string `json:"url"`
	Body        string `json:"body"`
	PublishedAt string `json:"published_at"`
}

func (g *GitHubFetcher) Fetch(ctx context.Context, repos []string, max int) Batch {
	batch := Batch{Platform: PlatformRepo}
	for _, repo := range repos {
		items, err := g.fetchRepo(ctx, repo, max)
		if err != nil {
			log.Warn("github: fetch failed", "repo", repo, "err", err)
		}
		batch.Results = append(batch.Results, SourceResult{
			Platform:   PlatformRepo,
			Identifier: repo,
			Items:      items,
			Err:        err,
		})
	}
	return batch
}

// splitRepo 只接受 owner/repo 形式
func splitRepo(full string) (string, string, error) {
	parts := strings.Split(strings.TrimSpace(full), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("github: invalid repo format %q, want owner/repo", full)
	}
	return parts[0], parts[1], nil
}

func (g *GitHubFetcher) endpoint(owner, repo, kind string, max int) string {
	q := url.Values{}
	q.Set("per_page", strconv.Itoa(clamp(max, 1, 100)))
	path := "/" + url.PathEscape(owner) + "/" + url.PathEscape(repo) + "/" + kind
	if g.GatewayURL != "" {
		return strings.TrimRight(g.GatewayURL, "/") + path + "?" + q.Encode()
	}
	base := g.BaseURL
	if base == "" {
		base = githubAPIURL
	}
	return strings.TrimRight(base, "/") + "/repos" + path + "?" + q.Encode()
}

func (g *GitHubFetcher) header() http.Header {
	h := http.Header{}
	if g.GatewayURL == "" {
		h.Set("Accept", "application/vnd.github+json")
	}
	if g.Token != "" {
		h.Set("Authorization", "token "+g.Token)
	}
	return h
}

// fetchRepo commit 和 release 互不影响：一边失败另一边照常产出；两边都失败才算整个仓库失败
func (g *GitHubFetcher) fetchRepo(ctx context.Context, full string, max int) ([]Item, error) {
	owner, repo, err := splitRepo(full)
	if err != nil {
		return nil, err
	}
	if max <= 0 {
		return nil, nil
	}
	now := nowFunc(g.Now)

	commits, commitErr := g.fetchCommits(ctx, owner, repo, full, max, now)
	releases, releaseErr := g.fetchReleases(ctx, owner, repo, full, max, now)

	items := append(commits, releases...)
	if commitErr != nil && releaseErr != nil {
		return items, errors.Join(commitErr, releaseErr)
	}
	if commitErr != nil {
		log.Warn("github: commits unavailable", "repo", full, "err", commitErr)
	}
	if releaseErr != nil {
		log.Warn("github: releases unavailable", "repo", full, "err", releaseErr)
	}
	return items, nil
}

func (g *GitHubFetcher) fetchCommits(ctx context.Context, owner, repo, full string, max int, now time.Time) ([]Item, error) {
	var commits []githubCommit
	if err := g.Client.GetJSON(ctx, g.endpoint(owner, repo, "commits", max), g.header(), &commits); err != nil {
		return nil, fmt.Errorf("github: commits of %s: %w", full, err)
	}
	if len(commits) > max {
		commits = commits[:max]
	}

	items := make([]Item, 0, len(commits))
	for _, c := range commits {
		msg := firstLine(c.Commit.Message)
		// 空提交信息没有展示价值
		if msg == "" {
			continue
		}
		link := c.HTMLURL
		if link == "" {
			link = c.URL
		}
		items = append(items, Normalize(RawRecord{
			Title:     msg,
			Body:      msg,
			URL:       link,
			Published: c.Commit.Author.Date,
		}, PlatformRepo, full, now))
	}
	return items, nil
}

func (g *GitHubFetcher) fetchReleases(ctx context.Context, owner, repo, full string, max int, now time.Time) ([]Item, error) {
	var releases []githubRelease
	if err := g.Client.GetJSON(ctx, g.endpoint(owner, repo, "releases", max), g.header(), &releases); err != nil {
		return nil, fmt.Errorf("github: releases of %s: %w", full, err)
	}
	if len(releases) > max {
		releases = releases[:max]
	}

	items := make([]Item, 0, len(releases))
	for _, r := range releases {
		title := strings.TrimSpace(r.Name)
		if title == "" {
			title = strings.TrimSpace(r.TagName)
		}
		if title == "" {
			continue
		}
		link := r.HTMLURL
		if link == "" {
			link = r.URL
		}
		items = append(items, Normalize(RawRecord{
			Title:     title,
			Body:      r.Body,
			URL:       link,
			Published: r.PublishedAt,
		}, PlatformRepo, full, now))
	}
	return items, nil
}
