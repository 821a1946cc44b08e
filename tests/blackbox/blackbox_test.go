package blackbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"testing"
	"time"
)

// findFreePort picks an available TCP port on localhost.
func findFreePort(t *testing.T) (int, func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	return port, func() { _ = ln.Close() }
}

func projectRootFromThisFile(t *testing.T) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	// this file: <root>/tests/blackbox/blackbox_test.go
	return filepath.Dir(filepath.Dir(filepath.Dir(thisFile)))
}

func buildBinary(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping binary build in -short mode")
	}
	root := projectRootFromThisFile(t)
	binPath := filepath.Join(t.TempDir(), "glbd")
	cmd := exec.Command("go", "build", "-o", binPath, "./cmd/glbd")
	cmd.Dir = root
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0")
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("go build failed: %v\n%s", err, string(out))
	}
	return binPath
}

// writeConfig points the codecs at binaries that do not exist so module
// initialization fails deterministically.
func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "glbd.yaml")
	cfg := fmt.Sprintf(`log_format: json
access_log: "off"
codecs:
  gltf_transform_bin: %q
  toktx_bin: %q
modules:
  mesh:
    max_init_failures: 1
    init_cooldown_ms: 600000
admission:
  endpoints:
    mesh:
      max_concurrent: 1
      max_queue_size: 2
      queue_timeout_ms: 1000
`, filepath.Join(dir, "missing-gltf-transform"), filepath.Join(dir, "missing-toktx"))
	if err := os.WriteFile(p, []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

type serverProc struct {
	cmd  *exec.Cmd
	base string // http base URL, e.g. http://127.0.0.1:18080
}

func startServer(t *testing.T, bin, configPath string, port int) *serverProc {
	t.Helper()
	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	cmd := exec.Command(bin, "serve", "--config", configPath, "--addr", fmt.Sprintf("127.0.0.1:%d", port))
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(base + "/healthz")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				break
			}
		}
		if time.Now().After(deadline) {
			_ = cmd.Process.Kill()
			t.Fatalf("server did not become healthy in time")
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Cleanup(func() { _ = cmd.Process.Kill() })
	return &serverProc{cmd: cmd, base: base}
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	return do(t, req)
}

func post(t *testing.T, url, contentType string, payload []byte) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Content-Type", contentType)
	return do(t, req)
}

func do(t *testing.T, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, b
}

// glbFile assembles a minimal binary glTF around a JSON scene.
func glbFile(scene string) []byte {
	js := []byte(scene)
	for len(js)%4 != 0 {
		js = append(js, ' ')
	}
	var buf bytes.Buffer
	le := func(v uint32) { buf.Write([]byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}) }
	buf.WriteString("glTF")
	le(2)
	le(uint32(12 + 8 + len(js)))
	le(uint32(len(js)))
	buf.WriteString("JSON")
	buf.Write(js)
	return buf.Bytes()
}

const meshScene = `{"asset":{"version":"2.0"},"meshes":[{"primitives":[{"attributes":{"POSITION":0}}]}]}`

func TestBlackbox_Flow(t *testing.T) {
	bin := buildBinary(t)
	port, release := findFreePort(t)
	release()
	sp := startServer(t, bin, writeConfig(t), port)

	resp, body := get(t, sp.base+"/healthz")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/healthz %d %s", resp.StatusCode, string(body))
	}

	// Modules load lazily, so the service starts ready.
	resp, body = get(t, sp.base+"/readyz")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/readyz initial %d %s", resp.StatusCode, string(body))
	}

	resp, body = post(t, sp.base+"/api/analyze", "model/gltf-binary", glbFile(meshScene))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/api/analyze %d %s", resp.StatusCode, string(body))
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("/api/analyze content-type=%s", ct)
	}
	var analyzeResp struct {
		Strategy struct {
			Route string `json:"route"`
		} `json:"strategy"`
	}
	if err := json.Unmarshal(body, &analyzeResp); err != nil {
		t.Fatalf("/api/analyze json: %v body=%s", err, string(body))
	}
	if analyzeResp.Strategy.Route != "mesh" {
		t.Fatalf("route=%q", analyzeResp.Strategy.Route)
	}

	// The encoder is missing: the first call fails init and opens the circuit.
	resp, body = post(t, sp.base+"/api/compress/mesh", "model/gltf-binary", glbFile(meshScene))
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("/api/compress/mesh %d %s", resp.StatusCode, string(body))
	}
	resp, _ = post(t, sp.base+"/api/compress/mesh", "model/gltf-binary", glbFile(meshScene))
	if resp.StatusCode != http.StatusServiceUnavailable || resp.Header.Get("Retry-After") == "" {
		t.Fatalf("circuit open: status=%d retry-after=%q", resp.StatusCode, resp.Header.Get("Retry-After"))
	}
	resp, _ = get(t, sp.base+"/readyz")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("/readyz after circuit open %d", resp.StatusCode)
	}

	resp, body = get(t, sp.base+"/status")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/status %d %s", resp.StatusCode, string(body))
	}
	var statusResp struct {
		State   string `json:"state"`
		Modules []struct {
			Name  string `json:"name"`
			State string `json:"state"`
		} `json:"modules"`
		Endpoints []struct {
			Endpoint     string `json:"endpoint"`
			MaxQueueSize int    `json:"max_queue_size"`
		} `json:"endpoints"`
	}
	if err := json.Unmarshal(body, &statusResp); err != nil {
		t.Fatalf("/status json: %v body=%s", err, string(body))
	}
	if statusResp.State != "degraded" || len(statusResp.Modules) != 2 || statusResp.Modules[0].State != "blocked" {
		t.Fatalf("status=%+v", statusResp)
	}
	if len(statusResp.Endpoints) != 5 {
		t.Fatalf("expected 5 endpoints, got %d", len(statusResp.Endpoints))
	}

	resp, body = get(t, sp.base+"/metrics")
	if resp.StatusCode != http.StatusOK || !bytes.Contains(body, []byte("glbd_module_state")) {
		t.Fatalf("/metrics %d", resp.StatusCode)
	}
}

func TestBlackbox_InvalidUpload_400(t *testing.T) {
	bin := buildBinary(t)
	port, release := findFreePort(t)
	release()
	sp := startServer(t, bin, writeConfig(t), port)

	resp, body := post(t, sp.base+"/api/optimize", "application/octet-stream", []byte("not a glb"))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d, body=%s", resp.StatusCode, string(body))
	}
}

func TestBlackbox_GracefulShutdown(t *testing.T) {
	bin := buildBinary(t)
	port, release := findFreePort(t)
	release()
	sp := startServer(t, bin, writeConfig(t), port)

	if err := sp.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		t.Fatalf("signal: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- sp.cmd.Wait() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("server exited with error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("server did not exit after SIGTERM")
	}
}
