package scheduler

import (
	"github.com/LJTian/CryptoNewsHub/internal/collector"
	"github.com/LJTian/CryptoNewsHub/internal/config"
)

// BuildJobs 按配置注册采集器，顺序固定为 social → forum → feed → repo
func BuildJobs(cfg *config.Config) []Job {
	client := collector.NewClient(cfg.HTTPTimeout, cfg.RequestsPerSecond, cfg.UserAgent)
	creds := cfg.Credentials

	feeds := &collector.FeedFetcher{
		Client:   client,
		Feeds:    cfg.Sources.Feeds,
		Discover: cfg.DiscoverFeeds,
	}

	return []Job{
		{
			Fetcher:     &collector.TwitterFetcher{Client: client, BearerToken: creds.TwitterBearerToken},
			Identifiers: cfg.Sources.Twitter,
		},
		{
			Fetcher: &collector.RedditFetcher{
				Client:       client,
				ClientID:     creds.RedditClientID,
				ClientSecret: creds.RedditClientSecret,
				UserAgent:    creds.RedditUserAgent,
			},
			Identifiers: cfg.Sources.Subreddits,
		},
		{Fetcher: feeds, Identifiers: feeds.Names()},
		{
			Fetcher: &collector.GitHubFetcher{
				Client:     client,
				Token:      creds.GitHubToken,
				GatewayURL: creds.GitHubGatewayURL,
			},
			Identifiers: cfg.Sources.GitHubRepos,
		},
	}
}
