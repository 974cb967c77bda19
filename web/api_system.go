package web

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"macross/marketdata"
	"macross/utils"
)

// getStatus 运行状态
func (h *handler) getStatus(c *gin.Context) {
	status := gin.H{
		"success":  true,
		"version":  h.svc.Version,
		"time":     utils.NowConfiguredTimezone().Format(time.RFC3339),
		"stats":    h.svc.Metrics.GetStats(),
		"database": h.svc.DB != nil,
	}
	if h.svc.System != nil {
		status["system"] = h.svc.System.Latest()
	}
	c.JSON(http.StatusOK, status)
}

// getLatest 最新收盘价
func (h *handler) getLatest(c *gin.Context) {
	ds, err := h.svc.Loader(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, T(c, "api_load_failed", map[string]interface{}{"Error": err.Error()}))
		return
	}
	bar, err := marketdata.LatestRate(ds.Series)
	if err != nil {
		fail(c, http.StatusNotFound, T(c, "api_load_failed", map[string]interface{}{"Error": err.Error()}))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"symbol":     ds.Symbol,
		"source":     ds.Source,
		"timestamp":  bar.Timestamp,
		"local_time": utils.ToConfiguredTimezone(bar.Timestamp).Format(time.RFC3339),
		"close":      bar.Close,
	})
}

// getCacheStats 评分缓存和K线缓存统计
func (h *handler) getCacheStats(c *gin.Context) {
	scores, err := h.svc.Cache.Stats(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	resp := gin.H{"success": true, "scores": scores}

	if h.svc.Bars != nil {
		bars, err := h.svc.Bars.Stats()
		if err != nil {
			fail(c, http.StatusInternalServerError, err.Error())
			return
		}
		series, err := h.svc.Bars.ListSeries()
		if err != nil {
			fail(c, http.StatusInternalServerError, err.Error())
			return
		}
		resp["bars"] = bars
		resp["series"] = series
	}
	c.JSON(http.StatusOK, resp)
}

// deleteCache 删除一条评分缓存
func (h *handler) deleteCache(c *gin.Context) {
	if err := h.svc.Cache.Delete(c.Request.Context(), c.Param("key")); err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": T(c, "api_cache_deleted")})
}

// clearBarCache 清空K线缓存
func (h *handler) clearBarCache(c *gin.Context) {
	if h.svc.Bars == nil {
		c.JSON(http.StatusOK, gin.H{"success": true, "message": T(c, "api_cache_deleted")})
		return
	}
	if err := h.svc.Bars.Clear(); err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": T(c, "api_cache_deleted")})
}
