package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/nilm-chat/backend/pkg/log"
)

// RequestLogger 记录每个请求的状态码、耗时与请求 ID。
// 不缓存响应体，SSE 与 WebSocket 连接也能正常透传。
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		log.Infow("HTTP Request Log",
			"statusCode", status,
			"latency", time.Since(start).String(),
			"clientIP", r.RemoteAddr,
			"method", r.Method,
			"path", r.URL.Path,
			"bytes", ww.BytesWritten(),
			"requestID", chimw.GetReqID(r.Context()),
		)
	})
}
