package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"glbd/internal/admission"
	"glbd/internal/codec"
	"glbd/internal/glb"
	"glbd/internal/httpapi"
	"glbd/internal/manager"
	"glbd/pkg/types"
)

const (
	sceneTextured = `{"asset":{"version":"2.0"},
		"meshes":[{"primitives":[{"attributes":{"POSITION":0}}]}],
		"images":[{"uri":"albedo.png"}],"textures":[{"source":0}],
		"materials":[{"pbrMetallicRoughness":{"baseColorTexture":{"index":0}}}]}`
	sceneMeshOnly = `{"asset":{"version":"2.0"},"meshes":[{"primitives":[{"attributes":{"POSITION":0}}]}]}`
)

func pack(scene string) []byte { return glb.Pack([]byte(scene), []byte{1, 2, 3, 4}) }

// pngBytes is enough of a PNG to pass format sniffing.
var pngBytes = append([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, make([]byte, 32)...)

// gate blocks codec calls until opened. The fakes ignore ctx while blocked,
// like a native encoder that cannot be interrupted.
type gate struct {
	ch   chan struct{}
	once sync.Once
}

func newGate() *gate { return &gate{ch: make(chan struct{})} }

func (g *gate) wait() {
	if g != nil {
		<-g.ch
	}
}

func (g *gate) open() {
	if g != nil {
		g.once.Do(func() { close(g.ch) })
	}
}

// fakeMesh appends a marker instead of running Draco.
type fakeMesh struct {
	gate  *gate
	calls atomic.Int32
}

func (f *fakeMesh) CompressMesh(ctx context.Context, data []byte) ([]byte, error) {
	f.calls.Add(1)
	f.gate.wait()
	return append(append([]byte{}, data...), "+draco"...), nil
}

func (f *fakeMesh) Close() error { return nil }

// fakeTexture records the peak number of concurrent calls.
type fakeTexture struct {
	gate   *gate
	err    error
	active atomic.Int32
	peak   atomic.Int32
}

func (f *fakeTexture) enter() func() {
	n := f.active.Add(1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	return func() { f.active.Add(-1) }
}

func (f *fakeTexture) CompressTexture(ctx context.Context, image []byte, s codec.TextureSettings) (codec.TextureResult, error) {
	defer f.enter()()
	f.gate.wait()
	time.Sleep(5 * time.Millisecond)
	if f.err != nil {
		return codec.TextureResult{}, f.err
	}
	return codec.TextureResult{Data: []byte("KTX2"), Format: s.Format, OriginalSize: len(image), CompressedSize: 4}, nil
}

func (f *fakeTexture) CompressContainerTextures(ctx context.Context, data []byte, s codec.TextureSettings) (codec.ContainerResult, error) {
	defer f.enter()()
	f.gate.wait()
	if f.err != nil {
		return codec.ContainerResult{}, f.err
	}
	return codec.ContainerResult{Data: append(append([]byte{}, data...), "+ktx"...), TexturesProcessed: 1}, nil
}

func (f *fakeTexture) Close() error { return nil }

type harness struct {
	srv  *httptest.Server
	mgr  *manager.Manager
	ctrl *admission.Controller
}

// newHarness serves the full HTTP surface over a real manager and admission
// controller. Every endpoint starts with policy p unless overrides name it.
func newHarness(t *testing.T, cfg manager.ManagerConfig, p admission.Policy, overrides map[string]admission.Policy) *harness {
	t.Helper()
	policies := map[string]admission.Policy{}
	for _, ep := range []string{httpapi.EndpointOptimize, httpapi.EndpointMesh, httpapi.EndpointTexture, httpapi.EndpointTextures, httpapi.EndpointAnalyze} {
		policies[ep] = p
	}
	for k, v := range overrides {
		policies[k] = v
	}
	ctrl := admission.New(admission.Config{Default: p, Policies: policies})
	mgr := manager.NewWithConfig(cfg)
	srv := httptest.NewServer(httpapi.NewMux(mgr, ctrl))
	t.Cleanup(func() {
		srv.Close()
		_ = mgr.Close()
	})
	return &harness{srv: srv, mgr: mgr, ctrl: ctrl}
}

func meshLoader(m codec.MeshModule) func(context.Context) (codec.MeshModule, error) {
	return func(context.Context) (codec.MeshModule, error) { return m, nil }
}

func textureLoader(m codec.TextureModule) func(context.Context) (codec.TextureModule, error) {
	return func(context.Context) (codec.TextureModule, error) { return m, nil }
}

func defaultPolicy() admission.Policy {
	return admission.Policy{MaxConcurrent: 1, MaxQueueSize: 5, QueueTimeout: 5 * time.Second}
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	return send(t, req)
}

func httpPost(t *testing.T, url string, payload []byte) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	return send(t, req)
}

func send(t *testing.T, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

func decodeError(t *testing.T, body []byte) types.ErrorResponse {
	t.Helper()
	var er types.ErrorResponse
	if err := json.Unmarshal(body, &er); err != nil {
		t.Fatalf("error json: %v body=%s", err, body)
	}
	return er
}

func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within %s", d)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type result struct {
	code int
	body []byte
}

// postAsync issues a POST in the background and delivers the outcome on the
// returned channel. It must not call t.Fatal off the test goroutine.
func postAsync(url string, payload []byte) <-chan result {
	ch := make(chan result, 1)
	go func() {
		resp, err := http.Post(url, "application/octet-stream", bytes.NewReader(payload))
		if err != nil {
			ch <- result{code: -1, body: []byte(err.Error())}
			return
		}
		b, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		ch <- result{code: resp.StatusCode, body: b}
	}()
	return ch
}
