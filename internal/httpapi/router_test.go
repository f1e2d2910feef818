package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/meme-lord/fontleak/internal/config"
	"github.com/meme-lord/fontleak/internal/font"
	"github.com/meme-lord/fontleak/internal/orchestrator"
	"github.com/meme-lord/fontleak/internal/session"
)

func testRouter(t *testing.T) http.Handler {
	t.Helper()
	settings := &config.Settings{
		Host: "http://leak.example", HostLeak: "http://leak.example",
		Selector: "body", Parent: "body", Alphabet: "abcd", Attr: "data-leak",
		Timeout: 200 * time.Millisecond, Length: 4, Browser: "all",
	}
	store := session.NewStore()
	builder := font.NewBuilder(8)
	orch := orchestrator.New(store, builder, func() *config.Settings { return settings }, zap.NewNop(), nil)
	reg := prometheus.NewRegistry()
	return Router(orch, store, zap.NewNop(), reg, rate.Limit(50), 10)
}

func TestRouter_SetupRoute(t *testing.T) {
	r := testRouter(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("User-Agent", "Chrome/120.0")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Result().StatusCode)
}

func TestRouter_Healthz(t *testing.T) {
	r := testRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Result().StatusCode)
}

func TestRouter_Readyz(t *testing.T) {
	r := testRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, w.Result().StatusCode)
}

func TestRouter_Metrics(t *testing.T) {
	r := testRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Result().StatusCode)
}

func TestRouter_LeakRoute(t *testing.T) {
	r := testRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/leak?id=x&idx=1", nil))
	assert.Equal(t, http.StatusBadRequest, w.Result().StatusCode)
}
