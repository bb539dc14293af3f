package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pixwallet/internal/adapter/http/middleware"
	redisStore "pixwallet/internal/adapter/storage/redis"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

// setupRateLimitRouter authenticates each request as the owner named in the
// X-Owner header so counters can be told apart.
func setupRateLimitRouter(store *redisStore.RateLimitStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	rule := middleware.RateLimitRule{Limit: 3, Window: time.Minute}
	fakeAuth := func(c *gin.Context) {
		if owner := c.GetHeader("X-Owner"); owner != "" {
			c.Set(middleware.CtxOwnerID, uuid.MustParse(owner))
		}
		c.Next()
	}

	r.POST("/test", fakeAuth, middleware.RateLimiter(store, "withdrawals", rule, zerolog.Nop()), func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	return r
}

func newRateLimitStore(t *testing.T) (*redisStore.RateLimitStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return redisStore.NewRateLimitStore(client), mr
}

func post(router *gin.Engine, owner string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/test", nil)
	if owner != "" {
		req.Header.Set("X-Owner", owner)
	}
	router.ServeHTTP(w, req)
	return w
}

func TestRateLimiter_AllowsWithinLimit(t *testing.T) {
	store, _ := newRateLimitStore(t)
	router := setupRateLimitRouter(store)

	for i := 0; i < 3; i++ {
		w := post(router, "")
		assert.Equal(t, 200, w.Code, "request %d should succeed", i+1)
		assert.Equal(t, "3", w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}
}

func TestRateLimiter_BlocksOverLimit(t *testing.T) {
	store, _ := newRateLimitStore(t)
	router := setupRateLimitRouter(store)

	for i := 0; i < 3; i++ {
		assert.Equal(t, 200, post(router, "").Code)
	}

	w := post(router, "")
	assert.Equal(t, 429, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "RATE_001")
}

func TestRateLimiter_CountsPerOwner(t *testing.T) {
	store, _ := newRateLimitStore(t)
	router := setupRateLimitRouter(store)

	ownerA := uuid.NewString()
	for i := 0; i < 3; i++ {
		assert.Equal(t, 200, post(router, ownerA).Code)
	}
	assert.Equal(t, 429, post(router, ownerA).Code)

	assert.Equal(t, 200, post(router, uuid.NewString()).Code)
}

func TestRateLimiter_RedisDownAllowsRequest(t *testing.T) {
	store, mr := newRateLimitStore(t)
	router := setupRateLimitRouter(store)
	mr.Close()

	assert.Equal(t, 200, post(router, "").Code)
}

func TestDefaultRateLimitRules(t *testing.T) {
	rules := middleware.DefaultRateLimitRules()
	assert.Equal(t, int64(10), rules["withdrawals"].Limit)
	assert.Equal(t, int64(20), rules["deposits"].Limit)
	assert.Equal(t, int64(30), rules["exchange"].Limit)
	assert.Equal(t, time.Minute, rules["read"].Window)
	for group, rule := range rules {
		assert.Greater(t, rule.Limit, int64(0), group)
	}
}
