package collector

import (
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

const (
	MaxTitleRunes   = 100
	MaxSummaryRunes = 200

	// PlaceholderURL 上游缺失链接时使用
	PlaceholderURL = "#"
)

// Normalize 把一条原始记录转成 Item。纯函数，不做 I/O，任何字段缺失都用默认值兜底
func Normalize(raw RawRecord, platform Platform, source string, now time.Time) Item {
	title := cleanText(raw.Title)
	summary := cleanText(raw.Body)

	switch platform {
	case PlatformSocial:
		// 推文没有标题：标题取正文前 100 个字符，摘要保留全文
		text := cleanText(raw.Text)
		title = truncateRunes(text, MaxTitleRunes)
		summary = text
	case PlatformForum, PlatformRepo:
		summary = truncateRunes(summary, MaxSummaryRunes)
	}

	url := strings.TrimSpace(raw.URL)
	if url == "" {
		url = PlaceholderURL
	}

	source = strings.TrimSpace(source)
	if source == "" {
		source = string(platform)
	}

	var published time.Time
	if at := raw.PublishedAt; at != nil && !at.IsZero() && formattableYear(*at) {
		published = *at
	} else {
		published = SafeParseTimestamp(raw.Published, now)
	}

	return Item{
		Platform:  platform,
		Source:    source,
		Title:     title,
		URL:       url,
		Summary:   summary,
		Published: FormatTimestamp(published),
	}
}

// formattableYear RFC 3339 只能表示四位年份，超出的（例如毫秒被当成秒）按缺失处理
func formattableYear(t time.Time) bool {
	y := t.Year()
	return y >= 0 && y <= 9999
}

func cleanText(s string) string {
	return strings.TrimSpace(norm.NFC.String(strings.ToValidUTF8(s, "\uFFFD")))
}

// truncateRunes 按 rune 截断，不加省略号
func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return s
	}
	return string(rs[:limit])
}

// firstLine 提交信息只取第一行
func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
