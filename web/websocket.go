package web

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"macross/logger"
	"macross/optimizer"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsMessage 推送给客户端的消息
type wsMessage struct {
	Type    string             `json:"type"` // progress, summary, error
	Done    int                `json:"done,omitempty"`
	Total   int                `json:"total,omitempty"`
	Result  *optimizer.Result  `json:"result,omitempty"`
	Summary *optimizer.Summary `json:"summary,omitempty"`
	ID      uint               `json:"search_id,omitempty"`
	Message string             `json:"message,omitempty"`
}

// handleSearchWebSocket 客户端发送一条 SearchRequest，服务端逐条推送结果
func (h *handler) handleSearchWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	var writeMu sync.Mutex
	send := func(msg wsMessage) {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(msg); err != nil {
			logger.Debug("WebSocket 写入失败: %v", err)
		}
	}

	conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	var req SearchRequest
	if err := conn.ReadJSON(&req); err != nil {
		send(wsMessage{Type: "error", Message: T(c, "api_invalid_request", map[string]interface{}{"Error": err.Error()})})
		return
	}
	conn.SetReadDeadline(time.Time{})

	summary, id, err := h.search(c.Request.Context(), &req, func(done, total int, r optimizer.Result) {
		send(wsMessage{Type: "progress", Done: done, Total: total, Result: &r})
	})
	if err != nil {
		send(wsMessage{Type: "error", Message: err.Error()})
		return
	}
	send(wsMessage{Type: "summary", Summary: summary, ID: id, Message: T(c, "api_search_ok")})

	writeMu.Lock()
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	writeMu.Unlock()
}
