package processor

import (
	"sort"
	"time"

	"github.com/LJTian/CryptoNewsHub/internal/collector"
)

// SimpleProcessor 聚合之后的处理：只保留“今天”的条目，再按发布时间倒序
type SimpleProcessor struct {
	Location *time.Location
}

func NewSimpleProcessor(loc *time.Location) *SimpleProcessor {
	if loc == nil {
		loc = time.UTC
	}
	return &SimpleProcessor{Location: loc}
}

// Process 不修改入参，返回新的切片
func (p *SimpleProcessor) Process(items []collector.Item, now time.Time) []collector.Item {
	return SortByRecency(FilterToday(items, p.Location, now), now)
}

// Aggregate 按采集器调用顺序拼接，不去重也不重排
func Aggregate(collections ...[]collector.Item) []collector.Item {
	n := 0
	for _, c := range collections {
		n += len(c)
	}
	out := make([]collector.Item, 0, n)
	for _, c := range collections {
		out = append(out, c...)
	}
	return out
}

// Today 返回 now 在 loc 时区下的日期 YYYY-MM-DD
func Today(loc *time.Location, now time.Time) string {
	return now.In(loc).Format(time.DateOnly)
}

// FilterToday 只保留发布日期（换算到 loc 时区）等于今天的条目。
// 时间无法解析的条目按 now 处理，因此总会保留
func FilterToday(items []collector.Item, loc *time.Location, now time.Time) []collector.Item {
	if loc == nil {
		loc = time.UTC
	}
	today := Today(loc, now)
	out := make([]collector.Item, 0, len(items))
	for _, it := range items {
		published := collector.SafeParseTimestamp(it.Published, now)
		if published.In(loc).Format(time.DateOnly) == today {
			out = append(out, it)
		}
	}
	return out
}

// SortByRecency 按发布时间倒序；无法解析的时间视为 now，排在靠前的位置
func SortByRecency(items []collector.Item, now time.Time) []collector.Item {
	type keyed struct {
		at   time.Time
		item collector.Item
	}
	ks := make([]keyed, len(items))
	for i, it := range items {
		ks[i] = keyed{at: collector.SafeParseTimestamp(it.Published, now), item: it}
	}
	sort.SliceStable(ks, func(i, j int) bool {
		return ks[i].at.After(ks[j].at)
	})

	out := make([]collector.Item, len(ks))
	for i, k := range ks {
		out[i] = k.item
	}
	return out
}
