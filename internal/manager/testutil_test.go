package manager

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"glbd/internal/codec"
	"glbd/internal/engine"
	"glbd/internal/glb"
)

const (
	sceneMeshAndTextures = `{"asset":{"version":"2.0"},
		"meshes":[{"primitives":[{"attributes":{"POSITION":0}}]}],
		"images":[{"uri":"albedo.png"}],"textures":[{"source":0}],
		"materials":[{"pbrMetallicRoughness":{"baseColorTexture":{"index":0}}}]}`
	sceneMeshOnly      = `{"asset":{"version":"2.0"},"meshes":[{"primitives":[{"attributes":{"POSITION":0}}]}]}`
	sceneDracoTextured = `{"asset":{"version":"2.0"},"extensionsUsed":["KHR_draco_mesh_compression"],
		"meshes":[{"primitives":[{"attributes":{"POSITION":0},"extensions":{"KHR_draco_mesh_compression":{"bufferView":0}}}]}],
		"images":[{"uri":"albedo.png"}],"textures":[{"source":0}]}`
)

func pack(scene string) []byte { return glb.Pack([]byte(scene), []byte{1, 2, 3, 4}) }

// fakeMesh appends a marker instead of compressing.
type fakeMesh struct {
	calls  atomic.Int32
	err    error
	closed atomic.Bool
}

func (f *fakeMesh) CompressMesh(ctx context.Context, data []byte) ([]byte, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return append(append([]byte{}, data...), "+draco"...), nil
}

func (f *fakeMesh) Close() error { f.closed.Store(true); return nil }

// fakeTexture appends a marker per call.
type fakeTexture struct {
	calls    atomic.Int32
	err      error
	settings codec.TextureSettings
}

func (f *fakeTexture) CompressTexture(ctx context.Context, image []byte, s codec.TextureSettings) (codec.TextureResult, error) {
	f.calls.Add(1)
	f.settings = s
	if f.err != nil {
		return codec.TextureResult{}, f.err
	}
	return codec.TextureResult{Data: []byte("KTX2"), Format: s.Format, OriginalSize: len(image), CompressedSize: 4}, nil
}

func (f *fakeTexture) CompressContainerTextures(ctx context.Context, data []byte, s codec.TextureSettings) (codec.ContainerResult, error) {
	f.calls.Add(1)
	f.settings = s
	if f.err != nil {
		return codec.ContainerResult{}, f.err
	}
	return codec.ContainerResult{Data: append(append([]byte{}, data...), "+ktx"...), TexturesProcessed: 1}, nil
}

func (f *fakeTexture) Close() error { return nil }

func newTestManager(t *testing.T, mesh *fakeMesh, tex *fakeTexture) *Manager {
	t.Helper()
	m := NewWithConfig(ManagerConfig{
		MeshLoader:    func(context.Context) (codec.MeshModule, error) { return mesh, nil },
		TextureLoader: func(context.Context) (codec.TextureModule, error) { return tex, nil },
	})
	t.Cleanup(func() { _ = m.Close() })
	return m
}

var errLoad = errors.New("gltf-transform not installed")

func failingMeshLoader(calls *atomic.Int32) engine.Loader[codec.MeshModule] {
	return func(context.Context) (codec.MeshModule, error) {
		calls.Add(1)
		return nil, errLoad
	}
}
