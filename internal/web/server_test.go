package web

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moyun-danqing/internal/creation"
	"moyun-danqing/internal/dashscope"
	"moyun-danqing/internal/session"
)

type stubService struct {
	mu    sync.Mutex
	calls int
	err   error
	block chan struct{}
}

func (s *stubService) Generate(ctx context.Context, req dashscope.Request) (dashscope.Result, error) {
	s.mu.Lock()
	s.calls++
	block := s.block
	err := s.err
	s.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return dashscope.Result{}, ctx.Err()
		}
	}
	if err != nil {
		return dashscope.Result{}, err
	}
	return dashscope.Result{TaskID: "t", ImageURL: "https://oss.example/painting.png"}, nil
}

type stubFetcher struct {
	image []byte
}

func (f stubFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	return f.image, nil
}

func paintingPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{R: 30, G: 30, B: 30, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type harness struct {
	srv    *httptest.Server
	client *http.Client
	svc    *stubService
	store  *session.Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	svc := &stubService{}
	store := session.NewStore(session.Options{})
	pipeline := creation.NewPipeline(creation.Options{
		Service: svc,
		Fetcher: stubFetcher{image: paintingPNG(t)},
	})

	s, err := New(Options{
		Pipeline: pipeline,
		Sessions: store,
		Secret:   []byte("0123456789abcdef0123456789abcdef"),
	})
	require.NoError(t, err)

	h, err := s.Routes()
	require.NoError(t, err)

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &harness{
		srv:    srv,
		client: &http.Client{Jar: jar},
		svc:    svc,
		store:  store,
	}
}

func (h *harness) create(t *testing.T, poem, st string) (*http.Response, outcomeJSON) {
	t.Helper()
	body, err := json.Marshal(createRequest{Poem: poem, Style: st})
	require.NoError(t, err)

	resp, err := h.client.Post(h.srv.URL+"/api/creations", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out outcomeJSON
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func (h *harness) history(t *testing.T) historyJSON {
	t.Helper()
	resp, err := h.client.Get(h.srv.URL + "/api/history")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out historyJSON
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestStylesListsThreeInOrder(t *testing.T) {
	h := newHarness(t)

	resp, err := h.client.Get(h.srv.URL + "/api/styles")
	require.NoError(t, err)
	defer resp.Body.Close()

	var styles []styleJSON
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&styles))
	require.Len(t, styles, 3)
	assert.Equal(t, "ink-wash", styles[0].Key)
	assert.Equal(t, "水墨", styles[0].Label)
	assert.Equal(t, "blue-green", styles[1].Key)
	assert.Equal(t, "fine-brush", styles[2].Key)
}

func TestCreateArchivesAndServesImage(t *testing.T) {
	h := newHarness(t)

	resp, out := h.create(t, "孤舟蓑笠翁，独钓寒江雪", "fine-brush")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, creation.StateArchived, out.State)
	assert.Equal(t, creation.LevelSuccess, out.Level)
	assert.Contains(t, out.Message, "妙笔丹青成于")
	require.NotNil(t, out.Creation)
	assert.Equal(t, "fine-brush", out.Creation.Style)
	assert.Equal(t, "工笔", out.Creation.StyleLabel)

	img, err := h.client.Get(h.srv.URL + out.Creation.MountedURL)
	require.NoError(t, err)
	defer img.Body.Close()
	assert.Equal(t, http.StatusOK, img.StatusCode)
	assert.Equal(t, "image/png", img.Header.Get("content-type"))

	cfg, err := png.DecodeConfig(img.Body)
	require.NoError(t, err)
	assert.Equal(t, 116, cfg.Width)

	dl, err := h.client.Get(h.srv.URL + out.Creation.DownloadURL)
	require.NoError(t, err)
	defer dl.Body.Close()
	assert.Contains(t, dl.Header.Get("content-disposition"), out.Creation.DownloadName)
}

func TestCreateRejectsShortPoem(t *testing.T) {
	h := newHarness(t)

	resp, out := h.create(t, "春眠", "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, creation.StateRejected, out.State)
	assert.Nil(t, out.Creation)
	assert.Zero(t, h.svc.calls)
}

func TestCreateReportsServiceFailure(t *testing.T) {
	h := newHarness(t)
	h.svc.err = &dashscope.APIError{StatusCode: 400, Code: "DataInspectionFailed", Message: "bad prompt"}

	resp, out := h.create(t, "孤舟蓑笠翁，独钓寒江雪", "")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, creation.StateFailed, out.State)
	assert.Equal(t, creation.LevelError, out.Level)
	assert.Contains(t, out.Message, "DataInspectionFailed")
	assert.Empty(t, h.history(t).Entries)
}

func TestCreateRejectsUnknownStyleAndBadJSON(t *testing.T) {
	h := newHarness(t)

	resp, err := h.client.Post(h.srv.URL+"/api/creations", "application/json",
		strings.NewReader(`{"poem":"孤舟蓑笠翁","style":"oil"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = h.client.Post(h.srv.URL+"/api/creations", "application/json", strings.NewReader(`{`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDuplicateIsShownButNotArchived(t *testing.T) {
	h := newHarness(t)

	_, first := h.create(t, "孤舟蓑笠翁，独钓寒江雪", "")
	require.Equal(t, creation.StateArchived, first.State)

	resp, second := h.create(t, "孤舟蓑笠翁，独钓寒江雪", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, creation.StateSkippedDuplicate, second.State)
	require.NotNil(t, second.Creation)

	img, err := h.client.Get(h.srv.URL + second.Creation.ImageURL)
	require.NoError(t, err)
	img.Body.Close()
	assert.Equal(t, http.StatusOK, img.StatusCode)

	assert.Len(t, h.history(t).Entries, 1)
}

func TestHistoryNewestFirstCappedAndClearable(t *testing.T) {
	h := newHarness(t)

	poems := []string{"床前明月光", "疑是地上霜", "举头望明月", "低头思故乡", "白日依山尽", "黄河入海流", "欲穷千里目"}
	for _, p := range poems {
		_, out := h.create(t, p, "")
		require.Equal(t, creation.StateArchived, out.State, p)
	}

	hist := h.history(t)
	assert.Equal(t, 7, hist.Total)
	require.Len(t, hist.Entries, 6)
	assert.Equal(t, "欲穷千里目", hist.Entries[0].Poem)
	assert.Equal(t, "疑是地上霜", hist.Entries[5].Poem)

	req, err := http.NewRequest(http.MethodDelete, h.srv.URL+"/api/history", nil)
	require.NoError(t, err)
	resp, err := h.client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	assert.Zero(t, h.history(t).Total)
}

func TestSessionsAreIsolatedPerCookie(t *testing.T) {
	h := newHarness(t)

	_, out := h.create(t, "孤舟蓑笠翁，独钓寒江雪", "")
	require.NotNil(t, out.Creation)

	stranger := &http.Client{}
	resp, err := stranger.Get(h.srv.URL + out.Creation.ImageURL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, 2, h.store.Len())
}

func TestConcurrentCreateIsRefused(t *testing.T) {
	h := newHarness(t)
	h.svc.block = make(chan struct{})

	// Prime the cookie so both requests share one session.
	h.history(t)

	done := make(chan int, 1)
	go func() {
		resp, err := h.client.Post(h.srv.URL+"/api/creations", "application/json",
			strings.NewReader(`{"poem":"孤舟蓑笠翁，独钓寒江雪"}`))
		if err != nil {
			done <- 0
			return
		}
		resp.Body.Close()
		done <- resp.StatusCode
	}()

	require.Eventually(t, func() bool {
		h.svc.mu.Lock()
		defer h.svc.mu.Unlock()
		return h.svc.calls == 1
	}, time.Second, 5*time.Millisecond)

	body := strings.NewReader(`{"poem":"千山鸟飞绝"}`)
	resp, err := h.client.Post(h.srv.URL+"/api/creations", "application/json", body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	close(h.svc.block)
	assert.Equal(t, http.StatusOK, <-done)
	assert.Len(t, h.history(t).Entries, 1)
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)

	_, err = New(Options{Pipeline: creation.NewPipeline(creation.Options{}), Sessions: session.NewStore(session.Options{})})
	assert.EqualError(t, err, "cookie secret is required")
}

func TestHealthAndStaticPage(t *testing.T) {
	h := newHarness(t)

	resp, err := h.client.Get(h.srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))

	resp, err = h.client.Get(h.srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("content-type"), "text/html")
}
