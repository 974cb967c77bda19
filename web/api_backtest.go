package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"macross/backtest"
	"macross/config"
	"macross/database"
	"macross/logger"
	"macross/marketdata"
	"macross/optimizer"
)

// BarInput 请求中直接提交的K线
type BarInput struct {
	Timestamp string  `json:"timestamp" binding:"required"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close" binding:"required"`
	Volume    float64 `json:"volume"`
}

// BacktestRequest 回测请求，未填写的参数使用配置中的策略参数
type BacktestRequest struct {
	ShortWindow    *int     `json:"short_window"`
	LongWindow     *int     `json:"long_window"`
	InitialCapital *float64 `json:"initial_capital"`
	FeeRate        *float64 `json:"fee_rate"`
	TradeSize      *float64 `json:"trade_size"`

	// Bars 为空时使用配置的数据源
	Bars []BarInput `json:"bars"`

	// IncludeCurve 是否返回权益曲线和成交明细
	IncludeCurve bool `json:"include_curve"`
}

// SearchRequest 参数搜索请求
type SearchRequest struct {
	BacktestRequest
	Grid *config.SearchConfig `json:"grid"`
}

// BacktestResponse 回测响应
type BacktestResponse struct {
	Success bool                     `json:"success"`
	Message string                   `json:"message"`
	RunID   uint                     `json:"run_id,omitempty"`
	Result  *backtest.BacktestResult `json:"result,omitempty"`
}

// SearchResponse 参数搜索响应
type SearchResponse struct {
	Success  bool               `json:"success"`
	Message  string             `json:"message"`
	SearchID uint               `json:"search_id,omitempty"`
	Summary  *optimizer.Summary `json:"summary,omitempty"`
}

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": false, "message": message})
}

// params 合并请求参数和配置
func (req *BacktestRequest) params(base backtest.Params) backtest.Params {
	p := base
	if req.ShortWindow != nil {
		p.ShortWindow = *req.ShortWindow
	}
	if req.LongWindow != nil {
		p.LongWindow = *req.LongWindow
	}
	if req.InitialCapital != nil {
		p.InitialCapital = *req.InitialCapital
	}
	if req.FeeRate != nil {
		p.FeeRate = *req.FeeRate
	}
	if req.TradeSize != nil {
		p.TradeSize = *req.TradeSize
	}
	return p
}

// dataset 取请求中的K线或配置的数据集
func (h *handler) dataset(ctx context.Context, req *BacktestRequest) (*marketdata.Dataset, error) {
	if len(req.Bars) == 0 {
		return h.svc.Loader(ctx)
	}
	series := make(backtest.PriceSeries, 0, len(req.Bars))
	for i, b := range req.Bars {
		ts, err := marketdata.ParseTimestamp(b.Timestamp)
		if err != nil {
			return nil, &backtest.SeriesError{Index: i, Reason: err.Error()}
		}
		series = append(series, backtest.Bar{
			Timestamp: ts, Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume,
		})
	}
	series, _ = marketdata.Normalize(series)
	return &marketdata.Dataset{Source: "request", Series: series}, nil
}

// failErr 按错误类型选择状态码
func failErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, backtest.ErrConfiguration), errors.Is(err, backtest.ErrInvalidSeries):
		fail(c, http.StatusBadRequest, T(c, "api_invalid_params", map[string]interface{}{"Error": err.Error()}))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		fail(c, http.StatusRequestTimeout, err.Error())
	default:
		logger.Error("❌ 请求处理失败: %v", err)
		fail(c, http.StatusInternalServerError, err.Error())
	}
}

// runBacktest 运行回测
func (h *handler) runBacktest(c *gin.Context) {
	var req BacktestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, T(c, "api_invalid_request", map[string]interface{}{"Error": err.Error()}))
		return
	}

	params := req.params(h.svc.Config.Strategy)
	if err := params.Validate(); err != nil {
		failErr(c, err)
		return
	}

	ds, err := h.dataset(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, backtest.ErrInvalidSeries) {
			failErr(c, err)
			return
		}
		logger.Error("获取历史数据失败: %v", err)
		fail(c, http.StatusInternalServerError, T(c, "api_load_failed", map[string]interface{}{"Error": err.Error()}))
		return
	}

	logger.Info("📊 开始回测: %s, %d 根K线", params, len(ds.Series))
	start := time.Now()
	result, err := backtest.Run(ds.Series, params)
	h.svc.Metrics.RecordRun("api", result, time.Since(start))
	if err != nil {
		failErr(c, err)
		return
	}

	resp := BacktestResponse{Success: true, Message: T(c, "api_run_ok")}
	if h.svc.DB != nil {
		run := database.NewBacktestRun(database.RunMeta{
			Mode: "api", Source: ds.Source, Symbol: ds.Symbol, Interval: ds.Interval,
		}, result)
		if err := h.svc.DB.SaveRun(c.Request.Context(), run); err != nil {
			logger.Warn("⚠️ 保存回测记录失败: %v", err)
		} else {
			resp.RunID = run.ID
		}
	}

	if !req.IncludeCurve {
		trimmed := *result
		trimmed.EquityCurve = nil
		trimmed.Fills = nil
		result = &trimmed
	}
	resp.Result = result
	c.JSON(http.StatusOK, resp)
}

// searchGrid 解析搜索请求的网格
func (h *handler) searchGrid(req *SearchRequest) (config.SearchConfig, error) {
	grid := h.svc.Config.Search
	if req.Grid != nil {
		grid = *req.Grid
	}
	if err := grid.Validate(); err != nil {
		return grid, &backtest.ConfigurationError{Field: "grid", Reason: err.Error()}
	}
	return grid, nil
}

// search 执行一次参数搜索并保存记录
func (h *handler) search(ctx context.Context, req *SearchRequest, onResult func(done, total int, r optimizer.Result)) (*optimizer.Summary, uint, error) {
	base := req.params(h.svc.Config.Strategy)
	grid, err := h.searchGrid(req)
	if err != nil {
		return nil, 0, err
	}
	ds, err := h.dataset(ctx, &req.BacktestRequest)
	if err != nil {
		return nil, 0, err
	}

	summary, err := optimizer.GridSearch(ctx, ds.Series, base, grid.Windows(), optimizer.Options{
		Workers:  grid.Workers,
		TopN:     grid.TopN,
		Cache:    h.svc.Cache,
		OnResult: onResult,
	})
	if err != nil {
		return nil, 0, err
	}
	h.svc.Metrics.RecordSweep(summary.Best.Score)

	var id uint
	if h.svc.DB != nil {
		rec := database.NewSearchRecord(database.RunMeta{
			Source: ds.Source, Symbol: ds.Symbol, Interval: ds.Interval,
		}, len(ds.Series), summary)
		if err := h.svc.DB.SaveSearch(ctx, rec); err != nil {
			logger.Warn("⚠️ 保存搜索记录失败: %v", err)
		} else {
			id = rec.ID
		}
	}
	return summary, id, nil
}

// runSearch 运行参数搜索
func (h *handler) runSearch(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, T(c, "api_invalid_request", map[string]interface{}{"Error": err.Error()}))
		return
	}

	summary, id, err := h.search(c.Request.Context(), &req, nil)
	if err != nil {
		failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, SearchResponse{
		Success:  true,
		Message:  T(c, "api_search_ok"),
		SearchID: id,
		Summary:  summary,
	})
}

// listRuns 回测记录列表
func (h *handler) listRuns(c *gin.Context) {
	if h.svc.DB == nil {
		fail(c, http.StatusServiceUnavailable, T(c, "api_db_disabled"))
		return
	}

	filter := &database.RunFilter{
		Mode:   c.Query("mode"),
		Symbol: c.Query("symbol"),
		Limit:  50,
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			fail(c, http.StatusBadRequest, T(c, "api_invalid_request", map[string]interface{}{"Error": fmt.Sprintf("limit=%s", v)}))
			return
		}
		filter.Limit = n
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filter.Offset = n
		}
	}

	runs, err := h.svc.DB.ListRuns(c.Request.Context(), filter)
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "runs": runs})
}

// getRun 单条回测记录（含交易明细）
func (h *handler) getRun(c *gin.Context) {
	if h.svc.DB == nil {
		fail(c, http.StatusServiceUnavailable, T(c, "api_db_disabled"))
		return
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		fail(c, http.StatusBadRequest, T(c, "api_invalid_request", map[string]interface{}{"Error": err.Error()}))
		return
	}
	run, err := h.svc.DB.GetRun(c.Request.Context(), uint(id))
	if errors.Is(err, database.ErrNotFound) {
		fail(c, http.StatusNotFound, T(c, "api_not_found"))
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "run": run})
}
