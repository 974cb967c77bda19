package web

import (
	"strings"

	"github.com/gin-gonic/gin"

	mi18n "macross/i18n"
)

// I18nMiddleware 解析请求的 Accept-Language 头并设置到上下文
func I18nMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("language", parseAcceptLanguage(c.GetHeader("Accept-Language")))
		c.Next()
	}
}

// parseAcceptLanguage 取优先级最高的语言
// 示例: "en-US,en;q=0.9,ja;q=0.8" -> "en-US"
func parseAcceptLanguage(acceptLang string) string {
	first := strings.TrimSpace(strings.Split(acceptLang, ",")[0])
	if idx := strings.Index(first, ";"); idx != -1 {
		first = first[:idx]
	}
	return normalizeLanguage(strings.TrimSpace(first))
}

// normalizeLanguage 映射到内置语言，其余使用系统语言
func normalizeLanguage(lang string) string {
	lang = strings.ToLower(lang)
	switch {
	case strings.HasPrefix(lang, "ja"):
		return "ja-JP"
	case strings.HasPrefix(lang, "en"):
		return "en-US"
	case strings.HasPrefix(lang, "zh"):
		return "zh-CN"
	}
	if sys := mi18n.GetSystemLanguage(); sys != "" {
		return sys
	}
	return "ja-JP"
}

// GetLanguage 从上下文获取语言
func GetLanguage(c *gin.Context) string {
	if lang, ok := c.Get("language"); ok {
		if l, ok := lang.(string); ok {
			return l
		}
	}
	return "ja-JP"
}

// T 翻译消息（从上下文获取语言）
func T(c *gin.Context, key string, data ...map[string]interface{}) string {
	return mi18n.TWithLang(GetLanguage(c), key, data...)
}
