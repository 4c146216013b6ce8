package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func newRateLimit(t *testing.T, limit int) (*miniredis.Miniredis, *RateLimitMiddleware) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return mr, NewRateLimitMiddleware(RateLimitConfig{
		Redis:  rdb,
		Scope:  "payments",
		Limit:  limit,
		Window: time.Minute,
	})
}

func doRateLimited(mw *RateLimitMiddleware, ip, merchantID string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/payments", nil)
	c.Request.RemoteAddr = ip + ":12345"
	if merchantID != "" {
		c.Set(ContextMerchantID, merchantID)
	}
	mw.Handle()(c)
	return w
}

func TestRateLimitMiddleware_BlocksExcessRequests(t *testing.T) {
	_, mw := newRateLimit(t, 3)

	for i := 0; i < 3; i++ {
		w := doRateLimited(mw, "10.0.0.1", "")
		assert.NotEqual(t, http.StatusTooManyRequests, w.Code, "запрос %d должен пройти", i+1)
	}

	w := doRateLimited(mw, "10.0.0.1", "")

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), `"error":"Too Many Requests"`)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
}

func TestRateLimitMiddleware_SeparateKeys(t *testing.T) {
	mr, mw := newRateLimit(t, 1)

	assert.NotEqual(t, http.StatusTooManyRequests, doRateLimited(mw, "1.1.1.1", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, doRateLimited(mw, "1.1.1.1", "").Code)

	// Другой IP и мерчант с того же IP имеют свои счетчики
	assert.NotEqual(t, http.StatusTooManyRequests, doRateLimited(mw, "2.2.2.2", "").Code)
	assert.NotEqual(t, http.StatusTooManyRequests, doRateLimited(mw, "1.1.1.1", "merch-1").Code)

	assert.True(t, mr.Exists("rate:payments:ip:1.1.1.1"))
	assert.True(t, mr.Exists("rate:payments:merchant:merch-1"))
}

func TestRateLimitMiddleware_WindowExpires(t *testing.T) {
	mr, mw := newRateLimit(t, 1)

	doRateLimited(mw, "3.3.3.3", "")
	assert.Equal(t, http.StatusTooManyRequests, doRateLimited(mw, "3.3.3.3", "").Code)

	mr.FastForward(61 * time.Second)

	assert.NotEqual(t, http.StatusTooManyRequests, doRateLimited(mw, "3.3.3.3", "").Code)
}

func TestRateLimitMiddleware_FailOpen(t *testing.T) {
	mr, mw := newRateLimit(t, 1)
	mr.Close()

	w := doRateLimited(mw, "4.4.4.4", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
}

func TestRateLimitMiddleware_DefaultValues(t *testing.T) {
	mw := NewRateLimitMiddleware(RateLimitConfig{})

	assert.Equal(t, 100, mw.limit)
	assert.Equal(t, time.Minute, mw.window)
	assert.Equal(t, "api", mw.scope)
}
