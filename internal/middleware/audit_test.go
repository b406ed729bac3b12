package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/agentvault/sessiongate/internal/pkg/apperrors"
	"github.com/agentvault/sessiongate/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRedactAuditBodyActions(t *testing.T) {
	body := []byte(`{"amount_wei":"1","private_key":"0xdead","nested":{"signature":"0xbeef","context":"0x00ab"}}`)
	out := redactAuditBody("/v1/vault/withdraw", body)

	var data map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &data))
	assert.Equal(t, "1", data["amount_wei"])
	assert.Equal(t, "***", data["private_key"])
	nested := data["nested"].(map[string]interface{})
	assert.Equal(t, "***", nested["signature"])
	assert.Equal(t, "***", nested["context"])
}

func TestRedactAuditBodyNonSensitivePath(t *testing.T) {
	body := []byte(`{"ok":true}`)
	assert.Equal(t, string(body), redactAuditBody("/health", body))
}

func TestRedactAuditBodyInvalidJSON(t *testing.T) {
	assert.Equal(t, "[redacted]", redactAuditBody("/v1/vault/ping", []byte("not-json")))
}

func TestAuditMiddlewareThreadsRequestID(t *testing.T) {
	r := gin.New()
	r.Use(AuditMiddleware())
	var seen string
	r.GET("/x", func(c *gin.Context) {
		seen = service.RequestID(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get(HeaderRequestID))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(HeaderRequestID, "caller-id")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "caller-id", seen)
}

func TestErrorHandlerRendersAppError(t *testing.T) {
	r := gin.New()
	r.Use(ErrorHandler())
	r.POST("/busy", func(c *gin.Context) {
		_ = c.Error(apperrors.NewBusy("withdraw"))
	})
	r.POST("/plain", func(c *gin.Context) {
		_ = c.Error(assert.AnError)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/busy", nil))
	assert.Equal(t, http.StatusConflict, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, string(apperrors.ErrBusy), body["code"])
	assert.Equal(t, "withdraw already in progress", body["message"])

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/plain", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestAuthMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(AuthMiddleware("secret"))
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(ContextCallerKey)) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(HeaderGatewayKey, "wrong")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(HeaderGatewayKey, "secret")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "key", w.Body.String())
}

func TestIdempotencyReplaysResponse(t *testing.T) {
	r := gin.New()
	r.Use(AuthMiddleware(""), IdempotencyMiddleware(NewInMemIdempotencyStore()))
	calls := 0
	r.POST("/v1/vault/ping", func(c *gin.Context) {
		calls++
		c.JSON(http.StatusOK, gin.H{"n": calls})
	})

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/vault/ping", strings.NewReader("{}"))
		req.Header.Set(HeaderIdempotencyKey, "k1")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}
	first, second := send(), send()
	assert.Equal(t, 1, calls)
	assert.Equal(t, first.Body.String(), second.Body.String())
}

func TestRateLimit(t *testing.T) {
	r := gin.New()
	r.Use(RateLimitMiddleware(NewLimiter(1, 1)))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := []int{}
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Nil(t, NewLimiter(0, 5))
}
