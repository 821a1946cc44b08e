package glb

import "encoding/json"

// TextureInfo describes one texture entry and the material slots that use it.
type TextureInfo struct {
	Index     int      `json:"index"`
	Name      string   `json:"name,omitempty"`
	ImageName string   `json:"image_name,omitempty"`
	URI       string   `json:"uri,omitempty"`
	MimeType  string   `json:"mime_type,omitempty"`
	Slots     []string `json:"slots,omitempty"`
}

// HasSlot reports whether the texture is bound to the named material slot.
func (t TextureInfo) HasSlot(slot string) bool {
	return contains(t.Slots, slot)
}

// materialSlots are the texture references of a glTF material outside
// pbrMetallicRoughness.
var materialSlots = []string{"normalTexture", "occlusionTexture", "emissiveTexture"}

// Textures lists the textures of a GLB. Invalid containers yield nil. Entries
// with malformed members keep whatever else could be read.
func Textures(data []byte) []TextureInfo {
	doc, reason := parseDocument(data)
	if reason != "" {
		return nil
	}
	images := rawList(doc.Images)
	textures := rawList(doc.Textures)
	out := make([]TextureInfo, len(textures))
	for i, raw := range textures {
		t := rawObject(raw)
		info := TextureInfo{Index: i}
		info.Name, _ = member[string](t, "name")
		if src, ok := member[int](t, "source"); ok && src >= 0 && src < len(images) {
			img := rawObject(images[src])
			info.ImageName, _ = member[string](img, "name")
			info.URI, _ = member[string](img, "uri")
			info.MimeType, _ = member[string](img, "mimeType")
		}
		out[i] = info
	}
	bind := func(ref json.RawMessage, slot string) {
		idx, ok := member[int](rawObject(ref), "index")
		if !ok || idx < 0 || idx >= len(out) {
			return
		}
		if !out[idx].HasSlot(slot) {
			out[idx].Slots = append(out[idx].Slots, slot)
		}
	}
	for _, raw := range rawList(doc.Materials) {
		m := rawObject(raw)
		pbr := rawObject(m["pbrMetallicRoughness"])
		bind(pbr["baseColorTexture"], "baseColorTexture")
		bind(pbr["metallicRoughnessTexture"], "metallicRoughnessTexture")
		for _, slot := range materialSlots {
			bind(m[slot], slot)
		}
	}
	return out
}
