package middleware

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/cppla/newspaper/config"
	"github.com/cppla/newspaper/views"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	config.Set(config.AppConfig{App: config.AppSection{JWTSecret: "test-secret", SiteName: "Test"}})
	os.Exit(m.Run())
}

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.SetHTMLTemplate(views.MustLoad())
	r.Use(mw...)
	ok := func(ctx *gin.Context) { ctx.String(http.StatusOK, "ok") }
	r.GET("/page", ok)
	r.POST("/page", ok)
	r.GET("/api/v1/thing", ok)
	r.POST("/api/v1/thing", ok)
	return r
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimiterPerIP(t *testing.T) {
	r := newEngine(NewRateLimiter(4).Middleware())

	codes := map[int]int{}
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/page", nil)
		req.RemoteAddr = "198.51.100.7:1234"
		codes[serve(r, req).Code]++
	}
	// burst of two, then the bucket refills at four per minute
	assert.Equal(t, 2, codes[http.StatusOK])
	assert.Equal(t, 3, codes[http.StatusTooManyRequests])

	req := httptest.NewRequest(http.MethodGet, "/api/v1/thing", nil)
	req.RemoteAddr = "198.51.100.7:1234"
	w := serve(r, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")

	req = httptest.NewRequest(http.MethodGet, "/page", nil)
	req.RemoteAddr = "203.0.113.9:1234"
	assert.Equal(t, http.StatusOK, serve(r, req).Code)
}

func TestCSRF(t *testing.T) {
	r := newEngine(CSRF())

	req := httptest.NewRequest(http.MethodPost, "/page", nil)
	req.AddCookie(&http.Cookie{Name: CSRFCookie, Value: "tok"})
	assert.Equal(t, http.StatusForbidden, serve(r, req).Code)

	req = httptest.NewRequest(http.MethodPost, "/page", nil)
	req.AddCookie(&http.Cookie{Name: CSRFCookie, Value: "tok"})
	req.Header.Set(CSRFHeader, "other")
	assert.Equal(t, http.StatusForbidden, serve(r, req).Code)

	req = httptest.NewRequest(http.MethodPost, "/page", nil)
	req.AddCookie(&http.Cookie{Name: CSRFCookie, Value: "tok"})
	req.Header.Set(CSRFHeader, "tok")
	assert.Equal(t, http.StatusOK, serve(r, req).Code)

	// no cookie at all: a fresh token cannot match anything the client sent
	req = httptest.NewRequest(http.MethodPost, "/page", nil)
	req.Header.Set(CSRFHeader, "tok")
	assert.Equal(t, http.StatusForbidden, serve(r, req).Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/thing", nil)
	assert.Equal(t, http.StatusOK, serve(r, req).Code)
}

func TestLoginRequiredRedirects(t *testing.T) {
	r := newEngine(LoginRequired())
	w := serve(r, httptest.NewRequest(http.MethodGet, "/page?x=1", nil))
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, LoginURL+"?next=%2Fpage%3Fx%3D1", w.Header().Get("Location"))
}
