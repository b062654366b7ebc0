package collector

import (
	"context"
	"time"
)

// Platform 来源类别（不是来源本身）
type Platform string

const (
	PlatformSocial Platform = "social"
	PlatformForum  Platform = "forum"
	PlatformFeed   Platform = "feed"
	PlatformRepo   Platform = "repo"
)

// Platforms 按采集顺序列出全部类别
var Platforms = []Platform{PlatformSocial, PlatformForum, PlatformFeed, PlatformRepo}

func (p Platform) Valid() bool {
	switch p {
	case PlatformSocial, PlatformForum, PlatformFeed, PlatformRepo:
		return true
	}
	return false
}

// Item 统一后的新闻条目，构造后不再修改
type Item struct {
	Platform  Platform `json:"platform"`
	Source    string   `json:"source"`
	Title     string   `json:"title"`
	URL       string   `json:"url"`
	Summary   string   `json:"summary"`
	Published string   `json:"published"`
}

// RawRecord 各平台原始记录，交给 Normalize 转换
type RawRecord struct {
	Title string
	// Text 没有天然标题的自由文本（推文）
	Text string
	Body string
	URL  string
	// Published 上游给的时间字符串；PublishedAt 非空时优先
	Published   string
	PublishedAt *time.Time
}

// SourceResult 单个标识符（用户名 / 子版块 / 订阅源 / 仓库）的采集结果
type SourceResult struct {
	Platform   Platform
	Identifier string
	Items      []Item
	Err        error
}

func (r SourceResult) Failed() bool {
	return r.Err != nil
}

// Batch 一个采集器一次运行的结果。Skipped 非空表示缺少凭据，整体跳过
type Batch struct {
	Platform Platform
	Skipped  string
	Results  []SourceResult
}

// Items 按标识符顺序拼接所有条目
func (b Batch) Items() []Item {
	n := 0
	for _, r := range b.Results {
		n += len(r.Items)
	}
	out := make([]Item, 0, n)
	for _, r := range b.Results {
		out = append(out, r.Items...)
	}
	return out
}

// Fetcher 抽象每一类数据源。单个标识符失败只影响它自己，Fetch 不返回错误
type Fetcher interface {
	Name() string
	Platform() Platform
	Fetch(ctx context.Context, identifiers []string, maxPerIdentifier int) Batch
}
