package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/LJTian/CryptoNewsHub/internal/collector"
	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	latestSnapshotKey = "news:snapshot:latest"
	snapshotCacheTTL  = 5 * time.Minute

	DefaultListLimit = 50
	MaxListLimit     = 1000
)

// ErrNoSnapshot 还没有任何一轮运行落库
var ErrNoSnapshot = errors.New("no snapshot yet")

// Channel 描述一类数据源，例如 social / forum / feed / repo
type Channel struct {
	ID      uint   `gorm:"primaryKey" json:"id"`
	Code    string `gorm:"size:64;uniqueIndex" json:"code"`
	Name    string `gorm:"size:128" json:"name"`
	BaseURL string `gorm:"size:256" json:"baseUrl"`
	Status  string `gorm:"size:32;index" json:"status"` // active / disabled

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Snapshot 一轮运行的最终结果。Items 为 Item 数组，Report 为运行报告
type Snapshot struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	RunDate    string         `gorm:"size:10;index" json:"runDate"`
	StartedAt  time.Time      `gorm:"index" json:"startedAt"`
	FinishedAt time.Time      `json:"finishedAt"`
	ItemCount  int            `json:"itemCount"`
	Items      datatypes.JSON `gorm:"type:jsonb" json:"items"`
	Report     datatypes.JSON `gorm:"type:jsonb" json:"report"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SnapshotSummary 列表接口用，不带条目内容
type SnapshotSummary struct {
	ID         uint      `json:"id"`
	RunDate    string    `json:"runDate"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	ItemCount  int       `json:"itemCount"`
}

// NewSnapshot 把条目和报告编码成 JSON，字符串先规范成合法 UTF-8
func NewSnapshot(runDate string, startedAt, finishedAt time.Time, items []collector.Item, report any) (*Snapshot, error) {
	clean := make([]collector.Item, len(items))
	for i, it := range items {
		it.Source = toValidUTF8(it.Source)
		it.Title = toValidUTF8(it.Title)
		it.URL = toValidUTF8(it.URL)
		it.Summary = toValidUTF8(it.Summary)
		clean[i] = it
	}
	itemsJSON, err := json.Marshal(clean)
	if err != nil {
		return nil, fmt.Errorf("storage: encode items: %w", err)
	}
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("storage: encode report: %w", err)
	}
	return &Snapshot{
		RunDate:    runDate,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		ItemCount:  len(items),
		Items:      datatypes.JSON(itemsJSON),
		Report:     datatypes.JSON(reportJSON),
	}, nil
}

// DecodeItems 解出快照里的条目
func (s *Snapshot) DecodeItems() ([]collector.Item, error) {
	if len(s.Items) == 0 {
		return []collector.Item{}, nil
	}
	var items []collector.Item
	if err := json.Unmarshal(s.Items, &items); err != nil {
		return nil, fmt.Errorf("storage: decode snapshot %d items: %w", s.ID, err)
	}
	return items, nil
}

type Store struct {
	DB    *gorm.DB
	Redis *redis.Client
}

func NewStore(dsn, redisAddr string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&Channel{}, &Snapshot{}); err != nil {
		return nil, err
	}

	var rdb *redis.Client
	if redisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr: redisAddr,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis ping failed", "addr", redisAddr, "err", err)
		}
	}

	return &Store{DB: db, Redis: rdb}, nil
}

// EnsureChannel 确保某个渠道存在
func (s *Store) EnsureChannel(code, name, baseURL string) (*Channel, error) {
	ch := &Channel{}
	if err := s.DB.Where("code = ?", code).First(ch).Error; err == nil {
		return ch, nil
	}

	ch = &Channel{
		Code:    code,
		Name:    name,
		BaseURL: baseURL,
		Status:  "active",
	}
	if err := s.DB.Create(ch).Error; err != nil {
		return nil, err
	}
	return ch, nil
}

// SaveSnapshot 写入一轮结果并让缓存失效
func (s *Store) SaveSnapshot(ctx context.Context, snap *Snapshot) error {
	if err := s.DB.WithContext(ctx).Create(snap).Error; err != nil {
		return fmt.Errorf("storage: save snapshot: %w", err)
	}
	if s.Redis != nil {
		if err := s.Redis.Del(ctx, latestSnapshotKey).Err(); err != nil {
			log.Warn("redis invalidate failed", "key", latestSnapshotKey, "err", err)
		}
	}
	return nil
}

// LatestSnapshot 返回最新一轮结果，Redis 做读缓存（5 分钟）
func (s *Store) LatestSnapshot(ctx context.Context) (*Snapshot, error) {
	if s.Redis != nil {
		if bs, err := s.Redis.Get(ctx, latestSnapshotKey).Bytes(); err == nil {
			var cached Snapshot
			if err := json.Unmarshal(bs, &cached); err == nil {
				return &cached, nil
			}
		}
	}

	var snap Snapshot
	err := s.DB.WithContext(ctx).Order("started_at DESC").Order("id DESC").First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, err
	}

	if s.Redis != nil {
		if bs, err := json.Marshal(&snap); err == nil {
			_ = s.Redis.Set(ctx, latestSnapshotKey, bs, snapshotCacheTTL).Err()
		}
	}
	return &snap, nil
}

// ListSnapshots 按时间倒序返回运行摘要
func (s *Store) ListSnapshots(ctx context.Context, limit int) ([]SnapshotSummary, error) {
	limit = normalizeLimit(limit)
	var list []SnapshotSummary
	err := s.DB.WithContext(ctx).Model(&Snapshot{}).
		Select("id", "run_date", "started_at", "finished_at", "item_count").
		Order("started_at DESC").Order("id DESC").
		Limit(limit).
		Scan(&list).Error
	if err != nil {
		return nil, err
	}
	return list, nil
}

// LatestItems 最新一轮结果中的条目；platform 为空表示不过滤
func (s *Store) LatestItems(ctx context.Context, platform string, limit int) ([]collector.Item, error) {
	snap, err := s.LatestSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	items, err := snap.DecodeItems()
	if err != nil {
		return nil, err
	}
	return FilterItems(items, platform, limit), nil
}

// FilterItems 按平台过滤并截断，保持原有顺序
func FilterItems(items []collector.Item, platform string, limit int) []collector.Item {
	limit = normalizeLimit(limit)
	out := make([]collector.Item, 0, min(len(items), limit))
	for _, it := range items {
		if platform != "" && string(it.Platform) != platform {
			continue
		}
		out = append(out, it)
		if len(out) == limit {
			break
		}
	}
	return out
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

// toValidUTF8 将字符串规范为合法 UTF-8，避免 PostgreSQL invalid byte sequence 错误
func toValidUTF8(s string) string {
	return strings.ToValidUTF8(s, "\uFFFD")
}
