package codec

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"glbd/internal/glb"
)

func TestIsNormalMapName(t *testing.T) {
	cases := map[string]bool{
		"Helmet_Normal.png": true,
		"rock_nrm.jpg":      true,
		"brick_n.png":       true,
		"NORMALMAP":         true,
		"albedo.png":        false,
		"brick_diffuse.png": false,
		"":                  false,
	}
	for name, want := range cases {
		if got := IsNormalMapName(name); got != want {
			t.Errorf("IsNormalMapName(%q)=%v, want %v", name, got, want)
		}
	}
}

func TestSniffImage(t *testing.T) {
	png := append([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, 0, 0)
	if ext, err := SniffImage(png); err != nil || ext != ".png" {
		t.Fatalf("png: ext=%q err=%v", ext, err)
	}
	if ext, err := SniffImage([]byte{0xff, 0xd8, 0xff, 0xe0}); err != nil || ext != ".jpg" {
		t.Fatalf("jpeg: ext=%q err=%v", ext, err)
	}
	if _, err := SniffImage([]byte("GIF89a")); !errors.Is(err, ErrUnsupportedImage) {
		t.Fatalf("gif: err=%v", err)
	}
}

func TestTextureSettings_Validate(t *testing.T) {
	cases := []struct {
		name string
		s    TextureSettings
		ok   bool
	}{
		{"defaults", DefaultTextureSettings(), true},
		{"uastc", TextureSettings{Format: FormatUASTC, Quality: 4}, true},
		{"etc1s quality zero", TextureSettings{Format: FormatETC1S, Quality: 0}, false},
		{"etc1s clevel", TextureSettings{Format: FormatETC1S, Quality: 10, CompressionLevel: 9}, false},
		{"uastc level", TextureSettings{Format: FormatUASTC, Quality: 5}, false},
		{"unknown", TextureSettings{Format: "astc", Quality: 1}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.s.Validate()
			if (err == nil) != tc.ok {
				t.Fatalf("Validate()=%v", err)
			}
			if err != nil && !errors.Is(err, ErrInvalidSettings) {
				t.Fatalf("error should wrap ErrInvalidSettings: %v", err)
			}
		})
	}
}

const mixedScene = `{
  "asset": {"version": "2.0"},
  "meshes": [{"primitives": [{"attributes": {"POSITION": 0}}]}],
  "images": [{"uri": "albedo.png"}, {"uri": "surface.png"}, {"name": "rock_nrm"}],
  "textures": [{"source": 0}, {"source": 1}, {"source": 2}],
  "materials": [{"pbrMetallicRoughness": {"baseColorTexture": {"index": 0}}, "normalTexture": {"index": 1}, "occlusionTexture": {"index": 2}}]
}`

func TestPlanTextures_NormalUpgrade(t *testing.T) {
	infos := glb.Textures(glb.Pack([]byte(mixedScene), nil))
	if len(infos) != 3 {
		t.Fatalf("textures=%d", len(infos))
	}
	plans := PlanTextures(infos, DefaultTextureSettings())
	got := []Format{plans[0].Format, plans[1].Format, plans[2].Format}
	want := []Format{FormatETC1S, FormatUASTC, FormatUASTC}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("formats=%v, want %v", got, want)
	}
	if plans[0].Normal || !plans[1].Normal || !plans[2].Normal {
		t.Fatalf("normal detection: %+v", plans)
	}

	forced := DefaultTextureSettings()
	forced.ForceFormat = true
	for _, p := range PlanTextures(infos, forced) {
		if p.Format != FormatETC1S {
			t.Fatalf("ForceFormat should keep etc1s, got %s for %d", p.Format, p.Texture.Index)
		}
	}
}

func TestPlanPasses(t *testing.T) {
	s := DefaultTextureSettings()
	infos := glb.Textures(glb.Pack([]byte(mixedScene), nil))

	passes := planPasses(PlanTextures(infos, s), s)
	if len(passes) != 2 {
		t.Fatalf("passes=%d", len(passes))
	}
	hi, lo := passes[0], passes[1]
	if hi.settings.Format != FormatUASTC || hi.count != 2 || hi.filter != `^(surface\.png|rock_nrm)$` {
		t.Fatalf("uastc pass=%+v", hi)
	}
	if lo.settings.Format != FormatETC1S || lo.count != 1 || lo.filter != `^(albedo\.png)$` {
		t.Fatalf("etc1s pass=%+v", lo)
	}

	forced := s
	forced.ForceFormat = true
	if ps := planPasses(PlanTextures(infos, forced), forced); len(ps) != 1 || ps[0].filter != "" || ps[0].count != 3 {
		t.Fatalf("forced passes=%+v", ps)
	}
	if ps := planPasses(nil, s); ps != nil {
		t.Fatalf("no textures should need no pass")
	}
}

func TestPlanPasses_AnonymousTexturesFallBackToSlots(t *testing.T) {
	infos := []glb.TextureInfo{
		{Index: 0, Slots: []string{"baseColorTexture"}},
		{Index: 1, Slots: []string{"normalTexture"}},
		{Index: 2, Slots: []string{"emissiveTexture", "baseColorTexture"}},
	}
	s := DefaultTextureSettings()
	passes := planPasses(PlanTextures(infos, s), s)
	if len(passes) != 2 {
		t.Fatalf("passes=%d", len(passes))
	}
	if passes[0].slots != "normalTexture" {
		t.Fatalf("uastc slots=%q", passes[0].slots)
	}
	if passes[1].slots != "{baseColorTexture,emissiveTexture}" {
		t.Fatalf("etc1s slots=%q", passes[1].slots)
	}
}

func TestEncoderArgs(t *testing.T) {
	p := pass{settings: TextureSettings{Format: FormatETC1S, Quality: 128, CompressionLevel: 2}, slots: "baseColorTexture"}
	got := strings.Join(textureArgs("in.glb", "out.glb", p), " ")
	if got != "etc1s in.glb out.glb --quality 128 --compression 2 --slots baseColorTexture" {
		t.Fatalf("gltf-transform args=%q", got)
	}
	got = strings.Join(toktxArgs("in.png", "out.ktx2", TextureSettings{Format: FormatUASTC, Quality: 2, FlipY: true}), " ")
	if got != "--t2 --genmipmap --encode uastc --uastc_quality 2 --zcmp 18 --lower_left_maps_to_s0t0 out.ktx2 in.png" {
		t.Fatalf("toktx args=%q", got)
	}
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "gltf-transform")
	if err := os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	if got, err := discover(bin, "gltf-transform"); err != nil || got != bin {
		t.Fatalf("configured path: got=%q err=%v", got, err)
	}
	if _, err := discover(filepath.Join(dir, "missing"), "gltf-transform"); !errors.Is(err, ErrToolNotFound) {
		t.Fatalf("missing path: err=%v", err)
	}
}

func TestScratchTransform(t *testing.T) {
	s, err := newScratch(t.TempDir(), "glbd-test-*")
	if err != nil {
		t.Fatal(err)
	}
	out, err := s.transform([]byte("abc"), ".glb", ".glb", func(in, out string) error {
		b, err := os.ReadFile(in)
		if err != nil {
			return err
		}
		return os.WriteFile(out, append(b, 'd'), 0o600)
	})
	if err != nil || string(out) != "abcd" {
		t.Fatalf("out=%q err=%v", out, err)
	}
	if _, err := s.transform([]byte("abc"), ".glb", ".glb", func(in, out string) error {
		return os.WriteFile(out, nil, 0o600)
	}); err == nil {
		t.Fatalf("empty output should fail")
	}
	entries, _ := os.ReadDir(s.dir)
	if len(entries) != 0 {
		t.Fatalf("scratch files left behind: %d", len(entries))
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(s.dir); !os.IsNotExist(err) {
		t.Fatalf("scratch dir not removed")
	}
}

func TestToolError(t *testing.T) {
	e := &ToolError{Tool: "toktx", Args: []string{"--t2"}, Err: errors.New("exit status 1"), Stderr: "bad input"}
	if !strings.Contains(e.Error(), "bad input") || !strings.Contains(e.Error(), "toktx --t2") {
		t.Fatalf("error=%q", e.Error())
	}
	if long := tail(strings.Repeat("x", 10)+"END", 3); long != "END" {
		t.Fatalf("tail=%q", long)
	}
}

func TestPreflight(t *testing.T) {
	dir := t.TempDir()
	gltf := filepath.Join(dir, "gltf-transform")
	if err := os.WriteFile(gltf, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	missing := filepath.Join(dir, "toktx")
	got := Preflight(ToolConfig{GltfTransformBin: gltf, ToktxBin: missing})
	if len(got) != 2 {
		t.Fatalf("statuses=%+v", got)
	}
	if !got[0].Found || got[0].Path != gltf || got[0].Name != "gltf-transform" {
		t.Fatalf("gltf-transform=%+v", got[0])
	}
	if got[1].Found || got[1].Path != missing || got[1].Error == "" {
		t.Fatalf("toktx=%+v", got[1])
	}
}
