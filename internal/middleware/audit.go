package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/agentvault/sessiongate/internal/pkg/logger"
	"github.com/agentvault/sessiongate/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	HeaderRequestID  = "X-Request-ID"
	ContextRequestID = "request_id"
)

// maxLoggedBody caps how much of a body is echoed into the request log.
const maxLoggedBody = 2048

type bodyLogWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w bodyLogWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// AuditMiddleware tags each request with an id, threads it into the request
// context so ledger entries carry it, and logs the exchange with secrets
// redacted.
func AuditMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := c.GetHeader(HeaderRequestID)
		if reqID == "" {
			reqID = uuid.New().String()
		}
		c.Header(HeaderRequestID, reqID)
		c.Set(ContextRequestID, reqID)
		c.Request = c.Request.WithContext(service.WithRequestID(c.Request.Context(), reqID))

		var reqBody []byte
		if c.Request.Body != nil {
			reqBody, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewBuffer(reqBody))
		}

		blw := &bodyLogWriter{body: bytes.NewBufferString(""), ResponseWriter: c.Writer}
		c.Writer = blw

		c.Next()

		if c.IsWebsocket() {
			logger.Info("websocket closed", "request_id", reqID, "path", c.Request.URL.Path, "duration_ms", time.Since(start).Milliseconds())
			return
		}

		fields := []any{
			"request_id", reqID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if c.Request.Method != "GET" {
			fields = append(fields,
				"request_body", redactAuditBody(c.Request.URL.Path, reqBody),
				"response_body", redactAuditBody(c.Request.URL.Path, blw.body.Bytes()),
			)
		}
		logger.Info("request completed", fields...)
	}
}

func redactAuditBody(path string, body []byte) string {
	if len(body) == 0 {
		return ""
	}
	out := string(body)
	if isSensitivePath(path) {
		redacted, ok := redactJSON(body)
		if !ok {
			return "[redacted]"
		}
		out = string(redacted)
	}
	if len(out) > maxLoggedBody {
		out = out[:maxLoggedBody] + "..."
	}
	return out
}

func isSensitivePath(path string) bool {
	switch {
	case strings.HasPrefix(path, "/v1/"):
		return true
	case strings.HasPrefix(path, "/api/session-key"):
		return true
	default:
		return false
	}
}

func redactJSON(body []byte) ([]byte, bool) {
	var data interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, false
	}
	redactValue(&data)
	out, err := json.Marshal(data)
	if err != nil {
		return nil, false
	}
	return out, true
}

func redactValue(v *interface{}) {
	switch raw := (*v).(type) {
	case map[string]interface{}:
		for key, val := range raw {
			if isSensitiveKey(key) {
				raw[key] = "***"
				continue
			}
			vv := val
			redactValue(&vv)
			raw[key] = vv
		}
	case []interface{}:
		for i, val := range raw {
			vv := val
			redactValue(&vv)
			raw[i] = vv
		}
	}
}

func isSensitiveKey(key string) bool {
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "private_key",
		"privatekey",
		"mnemonic",
		"seed",
		"api_key",
		"signature",
		"sig",
		"context",
		"grant",
		"permissions_context":
		return true
	default:
		return false
	}
}
