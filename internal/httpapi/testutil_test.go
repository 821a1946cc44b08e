package httpapi

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"glbd/internal/admission"
	"glbd/internal/codec"
	"glbd/internal/engine"
	"glbd/internal/glb"
	"glbd/internal/manager"
	"glbd/pkg/types"
)

const sceneTextured = `{"asset":{"version":"2.0"},
	"meshes":[{"primitives":[{"attributes":{"POSITION":0}}]}],
	"images":[{"uri":"albedo.png"}],"textures":[{"source":0}],
	"materials":[{"pbrMetallicRoughness":{"baseColorTexture":{"index":0}}}]}`

func testGLB() []byte { return glb.Pack([]byte(sceneTextured), []byte{1, 2, 3, 4}) }

type mockService struct {
	ready    bool
	status   types.StatusResponse
	err      error
	resetErr error
	// gate, when set, blocks processing until closed. It ignores ctx, like a
	// codec that cannot be interrupted.
	gate chan struct{}

	calls atomic.Int32

	mu       sync.Mutex
	opts     manager.OptimizeOptions
	settings codec.TextureSettings
	force    bool
}

func (m *mockService) run(data []byte, route glb.Route, suffix string) (*manager.Result, error) {
	m.calls.Add(1)
	if m.gate != nil {
		<-m.gate
	}
	if m.err != nil {
		return nil, m.err
	}
	out := append(append([]byte{}, data...), suffix...)
	return &manager.Result{
		Data:              out,
		OriginalSize:      len(data),
		CompressedSize:    len(out),
		Strategy:          glb.Strategy{Route: route},
		TexturesProcessed: 1,
		Warnings:          []string{"rock.png: encoder\nfailed"},
	}, nil
}

func (m *mockService) Analyze(data []byte, ignoreDraco bool) (glb.Analysis, glb.Strategy) {
	a := glb.Analyze(data)
	return a, glb.Select(a, ignoreDraco)
}

func (m *mockService) Optimize(ctx context.Context, data []byte, opts manager.OptimizeOptions) (*manager.Result, error) {
	m.mu.Lock()
	m.opts = opts
	m.mu.Unlock()
	return m.run(data, glb.RouteFull, "+opt")
}

func (m *mockService) CompressMesh(ctx context.Context, data []byte, force bool) (*manager.Result, error) {
	m.mu.Lock()
	m.force = force
	m.mu.Unlock()
	return m.run(data, glb.RouteMesh, "+draco")
}

func (m *mockService) CompressTexture(ctx context.Context, image []byte, s codec.TextureSettings) (*manager.Result, error) {
	m.mu.Lock()
	m.settings = s
	m.mu.Unlock()
	return m.run(image, glb.RouteTextures, "+ktx2")
}

func (m *mockService) CompressContainerTextures(ctx context.Context, data []byte, s codec.TextureSettings) (*manager.Result, error) {
	m.mu.Lock()
	m.settings = s
	m.mu.Unlock()
	return m.run(data, glb.RouteTextures, "+ktx2")
}

func (m *mockService) ResetModule(name string) (engine.State, error) {
	if m.resetErr != nil {
		return "", m.resetErr
	}
	return engine.StateUninitialized, nil
}

func (m *mockService) Status() types.StatusResponse { return m.status }
func (m *mockService) Ready() bool                  { return m.ready }

type mockHTTPError struct {
	msg  string
	code int
}

func (e mockHTTPError) Error() string   { return e.msg }
func (e mockHTTPError) StatusCode() int { return e.code }

func newTestMux(svc Service, p admission.Policy) (http.Handler, *admission.Controller) {
	ctrl := admission.New(admission.Config{Default: p})
	return NewMux(svc, ctrl), ctrl
}

func defaultTestPolicy() admission.Policy {
	return admission.Policy{MaxConcurrent: 1, MaxQueueSize: 5, QueueTimeout: 5 * time.Second}
}

func do(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func multipartRequest(t *testing.T, target, filename string, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = fw.Write(data)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within %s", d)
		}
		time.Sleep(2 * time.Millisecond)
	}
}
