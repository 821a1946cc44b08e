package glb

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// Container constants for binary glTF 2.0.
const (
	Magic         uint32 = 0x46546C67 // "glTF"
	Version       uint32 = 2
	ChunkTypeJSON uint32 = 0x4E4F534A // "JSON"
	ChunkTypeBIN  uint32 = 0x004E4942 // "BIN\0"
)

const (
	HeaderSize      = 12
	ChunkHeaderSize = 8
)

const (
	// ExtDraco is the mesh compression extension the strategy is built around.
	ExtDraco = "KHR_draco_mesh_compression"
	// ExtBasisu marks textures already stored as KTX2/Basis Universal.
	ExtBasisu = "KHR_texture_basisu"
)

// Analysis describes what a GLB container already holds. It is derived from
// the header and JSON chunk only; mesh and image payloads are never decoded.
type Analysis struct {
	Valid bool `json:"is_valid"`
	// Reason is set when Valid is false and names the structural failure.
	Reason                string   `json:"reason,omitempty"`
	FileSize              int      `json:"file_size"`
	HasTextures           bool     `json:"has_textures"`
	TextureCount          int      `json:"texture_count"`
	ImageCount            int      `json:"image_count"`
	MaterialCount         int      `json:"material_count"`
	HasMeshes             bool     `json:"has_meshes"`
	MeshCount             int      `json:"mesh_count"`
	NodeCount             int      `json:"node_count"`
	HasAnimations         bool     `json:"has_animations"`
	AnimationCount        int      `json:"animation_count"`
	ExtensionsUsed        []string `json:"extensions_used"`
	ExtensionsRequired    []string `json:"extensions_required"`
	HasDracoCompression   bool     `json:"has_draco_compression"`
	HasTextureCompression bool     `json:"has_texture_compression"`
}

// document is the top-level glTF JSON object. Members stay raw and are
// decoded leniently, so a malformed detail never invalidates the container.
type document struct {
	ExtensionsUsed     json.RawMessage `json:"extensionsUsed"`
	ExtensionsRequired json.RawMessage `json:"extensionsRequired"`
	Extensions         json.RawMessage `json:"extensions"`
	Meshes             json.RawMessage `json:"meshes"`
	Textures           json.RawMessage `json:"textures"`
	Images             json.RawMessage `json:"images"`
	Materials          json.RawMessage `json:"materials"`
	Nodes              json.RawMessage `json:"nodes"`
	Animations         json.RawMessage `json:"animations"`
}

// invalid returns the degraded result used for every structural failure.
func invalid(reason string) Analysis {
	return Analysis{
		Reason:             reason,
		ExtensionsUsed:     []string{},
		ExtensionsRequired: []string{},
	}
}

// Analyze inspects a GLB buffer. It never panics and never returns an error:
// anything that fails structural validation yields Valid=false.
func Analyze(data []byte) Analysis {
	doc, reason := parseDocument(data)
	if reason != "" {
		return invalid(reason)
	}

	meshes := rawList(doc.Meshes)
	a := Analysis{
		Valid:              true,
		FileSize:           len(data),
		ExtensionsUsed:     stringList(doc.ExtensionsUsed),
		ExtensionsRequired: stringList(doc.ExtensionsRequired),
		TextureCount:       len(rawList(doc.Textures)),
		ImageCount:         len(rawList(doc.Images)),
		MaterialCount:      len(rawList(doc.Materials)),
		MeshCount:          len(meshes),
		NodeCount:          len(rawList(doc.Nodes)),
		AnimationCount:     len(rawList(doc.Animations)),
	}
	a.HasTextures = a.TextureCount > 0
	a.HasMeshes = a.MeshCount > 0
	a.HasAnimations = a.AnimationCount > 0
	a.HasDracoCompression = hasDraco(a, doc.Extensions, meshes)
	a.HasTextureCompression = contains(a.ExtensionsUsed, ExtBasisu) || contains(a.ExtensionsRequired, ExtBasisu)
	return a
}

// parseDocument validates the container header and decodes the JSON chunk.
// A non-empty reason means the buffer is not a usable GLB.
func parseDocument(data []byte) (doc document, reason string) {
	if len(data) < HeaderSize {
		return doc, "file shorter than GLB header"
	}
	if m := binary.LittleEndian.Uint32(data[0:4]); m != Magic {
		return doc, fmt.Sprintf("bad magic 0x%08x", m)
	}
	if v := binary.LittleEndian.Uint32(data[4:8]); v != Version {
		return doc, fmt.Sprintf("unsupported version %d", v)
	}
	if n := binary.LittleEndian.Uint32(data[8:12]); uint64(n) != uint64(len(data)) {
		return doc, fmt.Sprintf("declared length %d does not match actual length %d", n, len(data))
	}
	if len(data) < HeaderSize+ChunkHeaderSize {
		return doc, "missing JSON chunk header"
	}
	chunkLen := uint64(binary.LittleEndian.Uint32(data[12:16]))
	if t := binary.LittleEndian.Uint32(data[16:20]); t != ChunkTypeJSON {
		return doc, fmt.Sprintf("first chunk type 0x%08x is not JSON", t)
	}
	start := uint64(HeaderSize + ChunkHeaderSize)
	if start+chunkLen > uint64(len(data)) {
		return doc, "JSON chunk exceeds file length"
	}
	raw := data[start : start+chunkLen]
	if !utf8.Valid(raw) {
		return doc, "JSON chunk is not valid UTF-8"
	}
	if trimmed := bytes.TrimLeft(raw, " \t\r\n"); len(trimmed) == 0 || trimmed[0] != '{' {
		return doc, "JSON chunk is not an object"
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return doc, "JSON chunk does not parse: " + err.Error()
	}
	return doc, ""
}

// hasDraco does not trust extensionsUsed alone: some exporters compress
// primitives without declaring the extension.
func hasDraco(a Analysis, extensions json.RawMessage, meshes []json.RawMessage) bool {
	if contains(a.ExtensionsUsed, ExtDraco) || contains(a.ExtensionsRequired, ExtDraco) {
		return true
	}
	if _, ok := rawObject(extensions)[ExtDraco]; ok {
		return true
	}
	for _, m := range meshes {
		for _, p := range rawList(rawObject(m)["primitives"]) {
			if _, ok := rawObject(rawObject(p)["extensions"])[ExtDraco]; ok {
				return true
			}
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
