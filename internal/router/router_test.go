package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"vidgen-backend/internal/handlers"
	"vidgen-backend/internal/middleware"
	"vidgen-backend/internal/models"
	"vidgen-backend/internal/services"
	"vidgen-backend/internal/storage"
)

const testSecret = "router-secret"

type stubCoordinator struct {
	mu        sync.Mutex
	submitErr error
	status    models.TaskStatus
	statusErr error
	handled   []models.CallbackPayload
	lastUser  string
}

func (c *stubCoordinator) Submit(ctx context.Context, prompt, userID string) (*models.Task, error) {
	c.lastUser = userID
	if c.submitErr != nil {
		return nil, c.submitErr
	}
	return &models.Task{ID: "task-1", UserID: userID, Prompt: prompt, Status: models.TaskQueued}, nil
}

func (c *stubCoordinator) HandleCallback(ctx context.Context, payload models.CallbackPayload) {
	c.mu.Lock()
	c.handled = append(c.handled, payload)
	c.mu.Unlock()
}

func (c *stubCoordinator) QueryStatus(ctx context.Context, taskID, userID string) (models.TaskStatus, error) {
	c.lastUser = userID
	return c.status, c.statusErr
}

type stubLibrary struct {
	objects    map[string]string
	publishErr error
	lastKind   models.VideoKind
}

func (l *stubLibrary) ListVideos(ctx context.Context, userID string) ([]models.VideoEntry, error) {
	return []models.VideoEntry{{TaskID: "t1", HasOriginal: true}}, nil
}

func (l *stubLibrary) OpenVideo(ctx context.Context, userID, taskID string, kind models.VideoKind) (io.ReadCloser, storage.ObjectInfo, error) {
	l.lastKind = kind
	key := storage.VideoKey(userID, taskID, kind)
	data, ok := l.objects[key]
	if !ok {
		return nil, storage.ObjectInfo{}, &services.NotFoundError{Message: "Video not found"}
	}
	return io.NopCloser(strings.NewReader(data)), storage.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (l *stubLibrary) OpenThumbnail(ctx context.Context, userID, taskID string) (io.ReadCloser, storage.ObjectInfo, error) {
	key := storage.ThumbnailKey(userID, taskID)
	data, ok := l.objects[key]
	if !ok {
		return nil, storage.ObjectInfo{}, &services.NotFoundError{Message: "Video not found"}
	}
	return io.NopCloser(strings.NewReader(data)), storage.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (l *stubLibrary) PublishToYouTube(ctx context.Context, userID string, req models.YouTubeUploadRequest) (string, error) {
	if l.publishErr != nil {
		return "", l.publishErr
	}
	return "yt-9", nil
}

func (l *stubLibrary) Finalize(ctx context.Context, userID string, req models.FinalizeVideoRequest) (*models.FinalVideo, error) {
	return &models.FinalVideo{VideoKey: storage.VideoKey(userID, req.TaskID, models.KindOriginal), UserID: userID}, nil
}

func (l *stubLibrary) Library(ctx context.Context, userID string) ([]*models.FinalVideo, error) {
	return []*models.FinalVideo{}, nil
}

type stubInbox struct {
	mu       sync.Mutex
	err      error
	payloads []models.CallbackPayload
}

func (i *stubInbox) Enqueue(ctx context.Context, payload models.CallbackPayload) error {
	if i.err != nil {
		return i.err
	}
	i.mu.Lock()
	i.payloads = append(i.payloads, payload)
	i.mu.Unlock()
	return nil
}

type testEnv struct {
	handler http.Handler
	coord   *stubCoordinator
	lib     *stubLibrary
	inbox   *stubInbox
	token   string
}

func newTestEnv(t *testing.T, callbackSecret string) *testEnv {
	t.Helper()
	return newLimitedTestEnv(t, callbackSecret, 100)
}

func newLimitedTestEnv(t *testing.T, callbackSecret string, generatePerMin int) *testEnv {
	t.Helper()
	auth := middleware.NewJWTAuth(testSecret)
	token, err := auth.GenerateAccessToken("u1", time.Minute)
	if err != nil {
		t.Fatalf("failed to mint token: %v", err)
	}

	env := &testEnv{
		coord: &stubCoordinator{status: models.TaskQueued},
		lib: &stubLibrary{objects: map[string]string{
			"u1/t1.mp4":           "original",
			"u1/t1_processed.mp4": "processed",
			"u1/t1.jpg":           "jpeg",
		}},
		inbox: &stubInbox{},
		token: token,
	}
	vh := handlers.NewVideoHandler(env.coord, env.lib, env.inbox)
	limiter := middleware.NewUserRateLimiter(generatePerMin, time.Minute)
	t.Cleanup(limiter.Stop)
	env.handler = New(auth, vh, nil, Options{CallbackSecret: callbackSecret, FrontendURL: "*", GenerateLimiter: limiter})
	return env
}

func (e *testEnv) do(method, target string, body interface{}, authed bool) *httptest.ResponseRecorder {
	var r io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			r = strings.NewReader(b)
		default:
			data, _ := json.Marshal(b)
			r = bytes.NewReader(data)
		}
	}
	req := httptest.NewRequest(method, target, r)
	if authed {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&out); err != nil {
		t.Fatalf("failed to decode response %q: %v", rr.Body.String(), err)
	}
	return out
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode(t, rr)
	errObj, _ := body["error"].(map[string]interface{})
	code, _ := errObj["code"].(string)
	return code
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, "")
	rr := env.do(http.MethodGet, "/health", nil, false)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"ok"`) {
		t.Fatalf("unexpected health response %d %s", rr.Code, rr.Body.String())
	}
}

func TestAuthenticatedRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t, "")
	routes := []struct{ method, path string }{
		{http.MethodPost, "/api/video/generate"},
		{http.MethodGet, "/api/video/list"},
		{http.MethodGet, "/api/video/status/t1"},
		{http.MethodGet, "/api/video/stream/t1"},
		{http.MethodGet, "/api/video/thumb/t1.jpg"},
		{http.MethodPost, "/api/video/upload/youtube"},
		{http.MethodPost, "/api/video/videos/finalize"},
		{http.MethodGet, "/api/video/videos/library"},
	}
	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			rr := env.do(rt.method, rt.path, nil, false)
			if rr.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rr.Code)
			}
		})
	}
}

func TestGenerate(t *testing.T) {
	env := newTestEnv(t, "")

	rr := env.do(http.MethodPost, "/api/video/generate", map[string]string{"prompt": "a cat"}, true)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	body := decode(t, rr)
	if body["task_id"] != "task-1" || body["status"] != "QUEUED" {
		t.Errorf("unexpected body %v", body)
	}
	if env.coord.lastUser != "u1" {
		t.Errorf("expected user from token, got %q", env.coord.lastUser)
	}
}

func TestGenerate_RateLimitedPerUser(t *testing.T) {
	env := newLimitedTestEnv(t, "", 1)

	if rr := env.do(http.MethodPost, "/api/video/generate", map[string]string{"prompt": "a cat"}, true); rr.Code != http.StatusOK {
		t.Fatalf("expected first request to pass, got %d", rr.Code)
	}
	rr := env.do(http.MethodPost, "/api/video/generate", map[string]string{"prompt": "a dog"}, true)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if code := errorCode(t, rr); code != "RATE_LIMITED" {
		t.Errorf("expected RATE_LIMITED, got %q", code)
	}

	// other routes are not throttled
	if rr := env.do(http.MethodGet, "/api/video/list", nil, true); rr.Code != http.StatusOK {
		t.Errorf("expected list to pass, got %d", rr.Code)
	}
}

func TestGenerate_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     interface{}
		err      error
		wantCode int
		wantErr  string
	}{
		{"malformed body", "{", nil, http.StatusBadRequest, "INVALID_REQUEST"},
		{"validation", map[string]string{"prompt": ""}, &services.ValidationError{Fields: map[string]string{"prompt": "required"}}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"provider failure", map[string]string{"prompt": "x"}, &services.UpstreamError{Service: "kie", Err: errors.New("500")}, http.StatusBadGateway, "UPSTREAM_ERROR"},
		{"store failure", map[string]string{"prompt": "x"}, &services.PersistenceError{Op: "create task", Err: errors.New("down")}, http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, "")
			env.coord.submitErr = tc.err
			rr := env.do(http.MethodPost, "/api/video/generate", tc.body, true)
			if rr.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d", tc.wantCode, rr.Code)
			}
			if code := errorCode(t, rr); code != tc.wantErr {
				t.Errorf("expected %s, got %s", tc.wantErr, code)
			}
		})
	}
}

func TestCallback_AlwaysAcknowledges(t *testing.T) {
	payload := `{"code":200,"msg":"success","data":{"taskId":"t1","info":{"resultUrls":["http://x/v.mp4"]}}}`

	t.Run("enqueued", func(t *testing.T) {
		env := newTestEnv(t, "")
		rr := env.do(http.MethodPost, "/api/video/callback", payload, false)
		if rr.Code != http.StatusOK || strings.TrimSpace(rr.Body.String()) != `{"code":200}` {
			t.Fatalf("unexpected ack %d %s", rr.Code, rr.Body.String())
		}
		if len(env.inbox.payloads) != 1 || env.inbox.payloads[0].Data.TaskID != "t1" {
			t.Fatalf("expected callback to be enqueued, got %+v", env.inbox.payloads)
		}
		if env.inbox.payloads[0].Data.Info.ResultURLs[0] != "http://x/v.mp4" {
			t.Errorf("result urls not decoded")
		}
	})

	t.Run("inbox down falls back to inline", func(t *testing.T) {
		env := newTestEnv(t, "")
		env.inbox.err = errors.New("redis down")
		rr := env.do(http.MethodPost, "/api/video/callback", payload, false)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		if len(env.coord.handled) != 1 {
			t.Fatalf("expected inline handling, got %d", len(env.coord.handled))
		}
	})

	t.Run("malformed", func(t *testing.T) {
		env := newTestEnv(t, "")
		rr := env.do(http.MethodPost, "/api/video/callback", "not json", false)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		if len(env.inbox.payloads) != 0 {
			t.Errorf("malformed callback should not be enqueued")
		}
	})

	t.Run("bad secret", func(t *testing.T) {
		env := newTestEnv(t, "s3cret")
		rr := env.do(http.MethodPost, "/api/video/callback?token=wrong", payload, false)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		if len(env.inbox.payloads) != 0 {
			t.Errorf("callback with bad secret should be dropped")
		}

		rr = env.do(http.MethodPost, "/api/video/callback?token=s3cret", payload, false)
		if rr.Code != http.StatusOK || len(env.inbox.payloads) != 1 {
			t.Errorf("callback with good secret should be enqueued")
		}
	})
}

func TestStatus(t *testing.T) {
	env := newTestEnv(t, "")
	env.coord.status = models.TaskDone

	rr := env.do(http.MethodGet, "/api/video/status/abc", nil, true)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := decode(t, rr)
	if body["task_id"] != "abc" || body["status"] != "DONE" {
		t.Errorf("unexpected body %v", body)
	}

	env.coord.statusErr = &services.NotFoundError{Message: "Task not found"}
	rr = env.do(http.MethodGet, "/api/video/status/abc", nil, true)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for another user's task, got %d", rr.Code)
	}
}

func TestList(t *testing.T) {
	env := newTestEnv(t, "")
	rr := env.do(http.MethodGet, "/api/video/list", nil, true)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	videos, _ := decode(t, rr)["videos"].([]interface{})
	if len(videos) != 1 {
		t.Fatalf("expected one entry, got %v", videos)
	}
}

func TestStream(t *testing.T) {
	env := newTestEnv(t, "")

	tests := []struct {
		target   string
		wantCode int
		wantBody string
	}{
		{"/api/video/stream/t1", http.StatusOK, "original"},
		{"/api/video/stream/t1?type=original", http.StatusOK, "original"},
		{"/api/video/stream/t1?type=processed", http.StatusOK, "processed"},
		{"/api/video/stream/t1?type=thumbnail", http.StatusBadRequest, ""},
		{"/api/video/stream/missing", http.StatusNotFound, ""},
	}
	for _, tc := range tests {
		t.Run(tc.target, func(t *testing.T) {
			rr := env.do(http.MethodGet, tc.target, nil, true)
			if rr.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d", tc.wantCode, rr.Code)
			}
			if tc.wantCode != http.StatusOK {
				return
			}
			if rr.Header().Get("Content-Type") != "video/mp4" {
				t.Errorf("unexpected content type %q", rr.Header().Get("Content-Type"))
			}
			if rr.Body.String() != tc.wantBody {
				t.Errorf("expected %q, got %q", tc.wantBody, rr.Body.String())
			}
		})
	}
}

func TestThumbnail(t *testing.T) {
	env := newTestEnv(t, "")
	rr := env.do(http.MethodGet, "/api/video/thumb/t1.jpg", nil, true)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if rr.Header().Get("Content-Type") != "image/jpeg" || rr.Body.String() != "jpeg" {
		t.Errorf("unexpected thumbnail response %q %q", rr.Header().Get("Content-Type"), rr.Body.String())
	}
}

func TestUploadYouTube(t *testing.T) {
	env := newTestEnv(t, "")
	req := map[string]string{"task_id": "t1", "type": "processed", "title": "Hi"}

	rr := env.do(http.MethodPost, "/api/video/upload/youtube", req, true)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := decode(t, rr)
	if body["status"] != "UPLOADED" || body["external_video_id"] != "yt-9" {
		t.Errorf("unexpected body %v", body)
	}

	env.lib.publishErr = &services.NotLinkedError{UserID: "u1"}
	rr = env.do(http.MethodPost, "/api/video/upload/youtube", req, true)
	if rr.Code != http.StatusBadRequest || errorCode(t, rr) != "NOT_LINKED" {
		t.Fatalf("expected NOT_LINKED, got %d", rr.Code)
	}

	env.lib.publishErr = &services.TransientIOError{Op: "open video", Err: errors.New("timeout")}
	rr = env.do(http.MethodPost, "/api/video/upload/youtube", req, true)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestFinalizeAndLibrary(t *testing.T) {
	env := newTestEnv(t, "")

	rr := env.do(http.MethodPost, "/api/video/videos/finalize", map[string]string{"task_id": "t1"}, true)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if body := decode(t, rr); body["video_key"] != "u1/t1.mp4" {
		t.Errorf("unexpected body %v", body)
	}

	rr = env.do(http.MethodGet, "/api/video/videos/library", nil, true)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"videos":[]`) {
		t.Fatalf("unexpected library response %d %s", rr.Code, rr.Body.String())
	}
}

func TestRequestIDEchoed(t *testing.T) {
	env := newTestEnv(t, "")
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	if rr.Header().Get("X-Request-ID") != "req-42" {
		t.Errorf("expected request id to be echoed")
	}
}
