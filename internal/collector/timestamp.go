package collector

import (
	"strings"
	"time"
)

// 上游常见的 ISO-8601 变体；不带时区的按 UTC 处理
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseTimestamp 解析带时区的时间字符串
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// SafeParseTimestamp 是唯一的时间兜底策略：解析失败一律视为 now（UTC）。
// 缺失时间、无法解析、排序兜底三处共用
func SafeParseTimestamp(s string, now time.Time) time.Time {
	if t, ok := ParseTimestamp(s); ok {
		return t
	}
	return now.UTC()
}

// FormatTimestamp 统一输出为带显式偏移的 RFC 3339
func FormatTimestamp(t time.Time) string {
	return t.Format(time.RFC3339)
}
