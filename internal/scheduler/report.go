package scheduler

import (
	"time"

	"github.com/LJTian/CryptoNewsHub/internal/collector"
	"github.com/LJTian/CryptoNewsHub/internal/processor"
	"github.com/charmbracelet/log"
)

// SourceStatus 单个标识符的本轮结果。
// Fetched>0 且 Kept=0 说明被日期过滤掉；Error 非空说明抓取失败；Skipped 非空说明缺少凭据
type SourceStatus struct {
	Platform   collector.Platform `json:"platform"`
	Fetcher    string             `json:"fetcher"`
	Identifier string             `json:"identifier"`
	Fetched    int                `json:"fetched"`
	Kept       int                `json:"kept"`
	Error      string             `json:"error,omitempty"`
	Skipped    string             `json:"skipped,omitempty"`
}

// Report 一轮运行的汇总，随快照一起保存
type Report struct {
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt time.Time      `json:"finishedAt"`
	Sources    []SourceStatus `json:"sources"`
	Fetched    int            `json:"fetched"`
	Kept       int            `json:"kept"`
	Failed     int            `json:"failed"`
	Skipped    int            `json:"skipped"`
	Outputs    []string       `json:"outputs"`
}

func (r *Report) addBatch(j Job, b collector.Batch, loc *time.Location, now time.Time) {
	name := j.Fetcher.Name()
	if b.Skipped != "" {
		for _, id := range j.Identifiers {
			r.Sources = append(r.Sources, SourceStatus{
				Platform:   b.Platform,
				Fetcher:    name,
				Identifier: id,
				Skipped:    b.Skipped,
			})
		}
		r.Skipped += len(j.Identifiers)
		return
	}

	for _, res := range b.Results {
		st := SourceStatus{
			Platform:   res.Platform,
			Fetcher:    name,
			Identifier: res.Identifier,
			Fetched:    len(res.Items),
			Kept:       len(processor.FilterToday(res.Items, loc, now)),
		}
		if res.Err != nil {
			st.Error = res.Err.Error()
			r.Failed++
		}
		r.Fetched += st.Fetched
		r.Sources = append(r.Sources, st)
	}
}

// Failures 返回失败的来源
func (r *Report) Failures() []SourceStatus {
	var out []SourceStatus
	for _, s := range r.Sources {
		if s.Error != "" {
			out = append(out, s)
		}
	}
	return out
}

func (r *Report) log() {
	for _, s := range r.Sources {
		switch {
		case s.Skipped != "":
			log.Warn("source skipped", "fetcher", s.Fetcher, "id", s.Identifier, "reason", s.Skipped)
		case s.Error != "":
			log.Warn("source failed", "fetcher", s.Fetcher, "id", s.Identifier, "err", s.Error)
		case s.Fetched > 0 && s.Kept == 0:
			log.Info("source has no items for today", "fetcher", s.Fetcher, "id", s.Identifier, "fetched", s.Fetched)
		default:
			log.Info("source done", "fetcher", s.Fetcher, "id", s.Identifier, "fetched", s.Fetched, "kept", s.Kept)
		}
	}
	log.Printf("collect job done: sources=%d failed=%d skipped=%d fetched=%d kept=%d in %s",
		len(r.Sources), r.Failed, r.Skipped, r.Fetched, r.Kept, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
}
