package web

import (
	"context"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"macross/cache"
	"macross/config"
	"macross/database"
	"macross/marketdata"
	"macross/metrics"
	"macross/storage"
)

// Services 接口依赖；Bars、DB、System 为 nil 时对应功能不可用
type Services struct {
	Config  *config.Config
	Version string

	Cache   cache.ResultCache
	Bars    *storage.SQLiteStorage
	DB      database.Database
	Metrics *metrics.MetricsCollector
	System  *metrics.SystemMetricsCollector

	// Loader 加载配置中的数据集，为 nil 时使用 marketdata.LoadDataset
	Loader func(ctx context.Context) (*marketdata.Dataset, error)
}

type handler struct {
	svc *Services
}

func newHandler(svc *Services) *handler {
	if svc.Cache == nil {
		svc.Cache = cache.NewNopCache()
	}
	if svc.Metrics == nil {
		svc.Metrics = metrics.NewMetricsCollector()
	}
	if svc.Loader == nil {
		svc.Loader = func(ctx context.Context) (*marketdata.Dataset, error) {
			var bars marketdata.BarCache
			if svc.Bars != nil {
				bars = svc.Bars
			}
			return marketdata.LoadDataset(ctx, svc.Config, bars, time.Now())
		}
	}
	return &handler{svc: svc}
}

// NewRouter 创建 gin 路由
func NewRouter(svc *Services, logAll bool) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(GinLoggerMiddleware(logAll))
	r.Use(I18nMiddleware())
	SetupRoutes(r, newHandler(svc))
	return r
}

// SetupRoutes 设置路由
func SetupRoutes(r *gin.Engine, h *handler) {
	// Prometheus metrics 端点
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// pprof 性能分析端点
	pprofGroup := r.Group("/debug/pprof")
	{
		pprofGroup.GET("/", gin.WrapF(pprof.Index))
		pprofGroup.GET("/profile", gin.WrapF(pprof.Profile))
		pprofGroup.GET("/heap", gin.WrapH(pprof.Handler("heap")))
		pprofGroup.GET("/goroutine", gin.WrapH(pprof.Handler("goroutine")))
	}

	api := r.Group("/api")
	{
		api.GET("/status", h.getStatus)
		api.GET("/latest", h.getLatest)

		// 回测 API
		backtestAPI := api.Group("/backtest")
		{
			backtestAPI.POST("/run", h.runBacktest)
			backtestAPI.POST("/search", h.runSearch)
			backtestAPI.GET("/runs", h.listRuns)
			backtestAPI.GET("/runs/:id", h.getRun)
		}

		// 缓存 API
		cacheAPI := api.Group("/cache")
		{
			cacheAPI.GET("/stats", h.getCacheStats)
			cacheAPI.DELETE("/:key", h.deleteCache)
			cacheAPI.DELETE("", h.clearBarCache)
		}
	}

	// WebSocket 路由
	r.GET("/ws/search", h.handleSearchWebSocket)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "not found"})
	})
}
