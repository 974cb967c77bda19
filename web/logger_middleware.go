package web

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"macross/logger"
)

// GinLoggerMiddleware 请求日志中间件
// logAll=true 时全量输出；否则仅记录错误请求 (状态码 >= 400)
func GinLoggerMiddleware(logAll bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		statusCode := c.Writer.Status()
		if !logAll && statusCode < 400 {
			return
		}

		if raw != "" {
			path = path + "?" + raw
		}
		logMessage := fmt.Sprintf("[GIN] %d | %v | %s | %-7s %s",
			statusCode,
			time.Since(start),
			c.ClientIP(),
			c.Request.Method,
			path,
		)
		if errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String(); errorMessage != "" {
			logMessage += " | Error: " + errorMessage
		}

		logger.WriteWebLog(logMessage)
	}
}
