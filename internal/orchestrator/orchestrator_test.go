package orchestrator

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meme-lord/fontleak/internal/config"
	"github.com/meme-lord/fontleak/internal/font"
	"github.com/meme-lord/fontleak/internal/session"
)

func testOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	settings := &config.Settings{
		Host:     "http://leak.example",
		HostLeak: "http://leak.example",
		Selector: "body",
		Parent:   "body",
		Alphabet: "abcdefghij",
		Attr:     "data-leak",
		Timeout:  200 * time.Millisecond,
		Length:   4,
		Browser:  "all",
	}
	store := session.NewStore()
	builder := font.NewBuilder(8)
	return New(store, builder, func() *config.Settings { return settings }, nil, nil)
}

func chromeRequest(url string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, url, nil)
	r.Header.Set("User-Agent", "Mozilla/5.0 Chrome/120.0 Safari/537.36")
	return r
}

func safariRequest(url string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, url, nil)
	r.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh) Version/17.0 Safari/605.1.15")
	return r
}

func firefoxRequest(url string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, url, nil)
	r.Header.Set("User-Agent", "Mozilla/5.0 Gecko/20100101 Firefox/120.0")
	return r
}

func TestSetup_ChromeFirstRequestCreatesSessionAndRendersDynamicStep(t *testing.T) {
	o := testOrchestrator(t)
	w := httptest.NewRecorder()
	o.Setup(w, chromeRequest("http://x/?"))

	resp := w.Result()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "@font-face")
	assert.Equal(t, 1, o.store.Len())
}

func TestSetup_ChromeLongPollWakesOnLeak(t *testing.T) {
	o := testOrchestrator(t)

	w1 := httptest.NewRecorder()
	o.Setup(w1, chromeRequest("http://x/?"))
	var sessID string
	for id := range o.storeSnapshot() {
		sessID = id
	}
	require.NotEmpty(t, sessID)

	done := make(chan struct{})
	go func() {
		w2 := httptest.NewRecorder()
		o.Setup(w2, chromeRequest("http://x/?id="+sessID))
		body, _ := io.ReadAll(w2.Result().Body)
		assert.Contains(t, string(body), "@font-face")
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	sess, ok := o.store.Lookup(sessID)
	require.True(t, ok)
	sess.RecordLeak('c', nil)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("long poll never woke on leak")
	}
}

func TestSetup_ChromeLongPollTimesOutWithEmptyCSS(t *testing.T) {
	o := testOrchestrator(t)

	w1 := httptest.NewRecorder()
	o.Setup(w1, chromeRequest("http://x/?"))
	var sessID string
	for id := range o.storeSnapshot() {
		sessID = id
	}

	w2 := httptest.NewRecorder()
	o.Setup(w2, chromeRequest("http://x/?id="+sessID))
	resp := w2.Result()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Empty(t, string(body))
}

func TestSetup_FirefoxRendersAnimation(t *testing.T) {
	o := testOrchestrator(t)
	w := httptest.NewRecorder()
	o.Setup(w, firefoxRequest("http://x/?"))
	resp := w.Result()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "@keyframes")
}

func TestSetup_SafariNoStepRendersSFC(t *testing.T) {
	o := testOrchestrator(t)
	w := httptest.NewRecorder()
	o.Setup(w, safariRequest("http://x/?"))
	resp := w.Result()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "unicode-range")
}

func TestSetup_SafariWithStepReturnsRawFont(t *testing.T) {
	o := testOrchestrator(t)
	w1 := httptest.NewRecorder()
	o.Setup(w1, safariRequest("http://x/?"))
	var sessID string
	for id := range o.storeSnapshot() {
		sessID = id
	}

	w2 := httptest.NewRecorder()
	o.Setup(w2, safariRequest("http://x/?id="+sessID+"&step=0"))
	resp := w2.Result()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "font/opentype", resp.Header.Get("Content-Type"))
	body, _ := io.ReadAll(resp.Body)
	assert.NotEmpty(t, body)
}

func TestSetup_OutOfRangeStepIsBadRequest(t *testing.T) {
	o := testOrchestrator(t)
	w1 := httptest.NewRecorder()
	o.Setup(w1, chromeRequest("http://x/?"))
	var sessID string
	for id := range o.storeSnapshot() {
		sessID = id
	}

	w2 := httptest.NewRecorder()
	o.Setup(w2, chromeRequest("http://x/?id="+sessID+"&step=999"))
	assert.Equal(t, http.StatusBadRequest, w2.Result().StatusCode)
}

func TestLeak_AlwaysReturns400PNGStub(t *testing.T) {
	o := testOrchestrator(t)
	w1 := httptest.NewRecorder()
	o.Setup(w1, chromeRequest("http://x/?"))
	var sessID string
	for id := range o.storeSnapshot() {
		sessID = id
	}

	w2 := httptest.NewRecorder()
	o.Leak(w2, httptest.NewRequest(http.MethodGet, "http://x/leak?id="+sessID+"&idx=2", nil))
	resp := w2.Result()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	sess, _ := o.store.Lookup(sessID)
	assert.Equal(t, 1, sess.Step())
	assert.Equal(t, []rune("c"), sess.Reconstruction())
}

func TestLeak_UnknownSessionIsSilentNoOp(t *testing.T) {
	o := testOrchestrator(t)
	w := httptest.NewRecorder()
	o.Leak(w, httptest.NewRequest(http.MethodGet, "http://x/leak?id=nonexistent&idx=1", nil))
	assert.Equal(t, http.StatusBadRequest, w.Result().StatusCode)
}

func TestStatic_DistinctClientsGetDistinctSessions(t *testing.T) {
	o := testOrchestrator(t)
	w := httptest.NewRecorder()
	o.Static(w, httptest.NewRequest(http.MethodGet, "http://x/static?browser=chrome", nil))
	resp := w.Result()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "sid=")

	req1 := httptest.NewRequest(http.MethodGet, extractLeakURL(t, string(body)), nil)
	req1.RemoteAddr = "10.0.0.1:5555"
	req2 := httptest.NewRequest(http.MethodGet, extractLeakURL(t, string(body)), nil)
	req2.RemoteAddr = "10.0.0.2:5555"

	o.Leak(httptest.NewRecorder(), req1)
	o.Leak(httptest.NewRecorder(), req2)

	assert.Equal(t, 2, o.store.Len())
}

func TestStatic_UnsupportedBrowserIsRejected(t *testing.T) {
	o := testOrchestrator(t)
	w := httptest.NewRecorder()
	o.Static(w, httptest.NewRequest(http.MethodGet, "http://x/static?browser=safari", nil))
	assert.Equal(t, http.StatusNotImplemented, w.Result().StatusCode)
}

func TestDefaultFont_ReturnsOpenTypeBytes(t *testing.T) {
	o := testOrchestrator(t)
	w := httptest.NewRecorder()
	o.DefaultFont(w, httptest.NewRequest(http.MethodGet, "http://x/font.ttf", nil))
	resp := w.Result()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "font/opentype", resp.Header.Get("Content-Type"))
	body, _ := io.ReadAll(resp.Body)
	assert.NotEmpty(t, body)
}

// storeSnapshot exposes session ids for tests without widening Store's
// public API just to support assertions.
func (o *Orchestrator) storeSnapshot() map[string]struct{} {
	ids := make(map[string]struct{})
	o.store.Range(func(id string) { ids[id] = struct{}{} })
	return ids
}

func extractLeakURL(t *testing.T, css string) string {
	t.Helper()
	start := indexOf(css, "http://leak.example/leak?")
	require.GreaterOrEqual(t, start, 0)
	end := indexOf(css[start:], "\"")
	require.Greater(t, end, 0)
	return css[start : start+end]
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
