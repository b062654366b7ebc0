package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/LJTian/CryptoNewsHub/internal/collector"
	"gopkg.in/yaml.v3"
)

// Sources 各平台要采集的标识符，顺序即采集与输出顺序
type Sources struct {
	Twitter     []string               `yaml:"twitter"`
	Subreddits  []string               `yaml:"subreddits"`
	Feeds       []collector.FeedSource `yaml:"feeds"`
	GitHubRepos []string               `yaml:"github_repos"`
}

// DefaultSources 内置的加密货币相关来源
func DefaultSources() Sources {
	return Sources{
		Twitter: []string{
			"APompliano", "VitalikButerin", "cz_binance", "IvanonTech", "pmarca",
			"CryptoWendyO", "natbrunell", "ErikVoorhees", "laurashin", "AltcoinDailyio",
		},
		Subreddits: []string{
			"CryptoCurrency", "Bitcoin", "Ethereum", "CryptoMarkets", "dogecoin",
			"Altcoin", "DeFi", "BitcoinBeginners", "NFT", "CryptoTechnology",
		},
		Feeds: []collector.FeedSource{
			{Name: "CoinDesk", URL: "https://www.coindesk.com/arc/outboundfeeds/rss/"},
			{Name: "Decrypt", URL: "https://decrypt.co/feed"},
			{Name: "Bankless", URL: "https://www.bankless.com/feed"},
			{Name: "BeInCrypto", URL: "https://beincrypto.com/feed/"},
			{Name: "The Block", URL: "https://www.theblock.co/rss"},
			{Name: "Bitcoin Magazine", URL: "https://bitcoinmagazine.com/.rss/full/"},
			{Name: "Blockworks", URL: "https://blockworks.co/rss"},
			{Name: "The Defiant", URL: "https://thedefiant.io/feed"},
			{Name: "TechNews180", URL: "https://technews180.com/feed"},
			{Name: "Cointelegraph Magazine", URL: "https://cointelegraph.com/magazine/feed"},
			{Name: "ShiftMag", URL: "https://shiftmag.io/feed"},
		},
		GitHubRepos: []string{
			"0xjeffro/CryptoHub",
			"ViktorVL584/Crypto-News-Aggregator",
			"kukapay/crypto-rss-mcp",
		},
	}
}

// LoadSources 从 YAML 文件读取来源列表；文件里没写的平台沿用默认值
func LoadSources(path string) (Sources, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Sources{}, fmt.Errorf("config: read sources file: %w", err)
	}

	var file struct {
		Twitter     *[]string               `yaml:"twitter"`
		Subreddits  *[]string               `yaml:"subreddits"`
		Feeds       *[]collector.FeedSource `yaml:"feeds"`
		GitHubRepos *[]string               `yaml:"github_repos"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Sources{}, fmt.Errorf("config: parse sources file %s: %w", path, err)
	}

	src := DefaultSources()
	if file.Twitter != nil {
		src.Twitter = trimAll(*file.Twitter)
	}
	if file.Subreddits != nil {
		src.Subreddits = trimAll(*file.Subreddits)
	}
	if file.Feeds != nil {
		src.Feeds = *file.Feeds
	}
	if file.GitHubRepos != nil {
		src.GitHubRepos = trimAll(*file.GitHubRepos)
	}

	for i, f := range src.Feeds {
		if strings.TrimSpace(f.Name) == "" || strings.TrimSpace(f.URL) == "" {
			return Sources{}, fmt.Errorf("config: feed #%d in %s needs both name and url", i+1, path)
		}
	}
	return src, nil
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
