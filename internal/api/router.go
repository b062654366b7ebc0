package api

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/LJTian/CryptoNewsHub/internal/collector"
	"github.com/LJTian/CryptoNewsHub/internal/output"
	"github.com/LJTian/CryptoNewsHub/internal/scheduler"
	"github.com/LJTian/CryptoNewsHub/internal/storage"
	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
)

// SnapshotReader 读取落库的运行结果
type SnapshotReader interface {
	LatestItems(ctx context.Context, platform string, limit int) ([]collector.Item, error)
	ListSnapshots(ctx context.Context, limit int) ([]storage.SnapshotSummary, error)
}

// Runner 手动触发一轮采集
type Runner interface {
	RunOnce(ctx context.Context) (*scheduler.Report, error)
}

type Server struct {
	store SnapshotReader
	// outputDir 非空时，库里还没有快照就读 latest.json
	outputDir string
	runner    Runner
}

func NewServer(store SnapshotReader, outputDir string, runner Runner) *Server {
	return &Server{store: store, outputDir: outputDir, runner: runner}
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET(healthPath, s.health)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/news", s.listNews)
		v1.GET("/runs", s.listRuns)
		v1.POST("/runs", s.triggerRun)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listNews(c *gin.Context) {
	platform := c.Query("platform")
	if platform != "" && !collector.Platform(platform).Valid() {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "bad_request",
			"message": "unknown platform " + strconv.Quote(platform),
		})
		return
	}
	limit := queryLimit(c)

	items, err := s.latestItems(c.Request.Context(), platform, limit)
	if err != nil {
		log.Warn("api: list news failed", "err", err)
		internalError(c)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    items,
	})
}

func (s *Server) latestItems(ctx context.Context, platform string, limit int) ([]collector.Item, error) {
	if s.store != nil {
		items, err := s.store.LatestItems(ctx, platform, limit)
		if err == nil {
			return items, nil
		}
		if !errors.Is(err, storage.ErrNoSnapshot) {
			return nil, err
		}
	}
	if s.outputDir == "" {
		return []collector.Item{}, nil
	}
	items, err := output.ReadJSON(filepath.Join(s.outputDir, output.JSONFile))
	if errors.Is(err, fs.ErrNotExist) {
		// 新部署还没跑完第一轮
		return []collector.Item{}, nil
	}
	if err != nil {
		return nil, err
	}
	return storage.FilterItems(items, platform, limit), nil
}

func (s *Server) listRuns(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusOK, gin.H{"code": "ok", "message": "success", "data": []storage.SnapshotSummary{}})
		return
	}
	runs, err := s.store.ListSnapshots(c.Request.Context(), queryLimit(c))
	if err != nil {
		log.Warn("api: list runs failed", "err", err)
		internalError(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    runs,
	})
}

func (s *Server) triggerRun(c *gin.Context) {
	if s.runner == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"code":    "unavailable",
			"message": "collector is not running in this process",
		})
		return
	}
	// 客户端断开不应中断已经开始的一轮采集
	report, err := s.runner.RunOnce(context.WithoutCancel(c.Request.Context()))
	if err != nil {
		log.Warn("api: triggered run failed", "err", err)
		internalError(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    report,
	})
}

func queryLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(storage.DefaultListLimit)))
	if err != nil || limit <= 0 {
		return storage.DefaultListLimit
	}
	if limit > storage.MaxListLimit {
		return storage.MaxListLimit
	}
	return limit
}

func internalError(c *gin.Context) {
	c.JSON(http.StatusInternalServerError, gin.H{
		"code":    "internal_error",
		"message": "internal server error",
	})
}
