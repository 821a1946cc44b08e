package codec

import (
	"regexp"
	"sort"
	"strings"

	"glbd/internal/glb"
)

// TexturePlan is the encoding decided for one texture of a container.
type TexturePlan struct {
	Texture glb.TextureInfo
	Format  Format
	Normal  bool
}

// PlanTextures assigns a format to every texture. Normal maps, detected by the
// normalTexture slot or by name, are upgraded to UASTC unless s.ForceFormat.
func PlanTextures(textures []glb.TextureInfo, s TextureSettings) []TexturePlan {
	out := make([]TexturePlan, 0, len(textures))
	for _, t := range textures {
		p := TexturePlan{Texture: t, Format: s.Format, Normal: isNormalTexture(t)}
		if p.Normal && !s.ForceFormat {
			p.Format = FormatUASTC
		}
		out = append(out, p)
	}
	return out
}

func isNormalTexture(t glb.TextureInfo) bool {
	return t.HasSlot("normalTexture") || IsNormalMapName(t.Name) || IsNormalMapName(t.ImageName) || IsNormalMapName(t.URI)
}

// pass is one encoder run over a subset of a container's textures.
type pass struct {
	settings TextureSettings
	slots    string
	filter   string
	count    int
}

// planPasses groups plans into encoder runs. A single format needs one
// unrestricted run; mixed formats run the UASTC group first, each selected by
// texture name where possible and by material slot otherwise.
func planPasses(plans []TexturePlan, s TextureSettings) []pass {
	var hi, rest []TexturePlan
	for _, p := range plans {
		if p.Format == FormatUASTC && s.Format != FormatUASTC {
			hi = append(hi, p)
		} else {
			rest = append(rest, p)
		}
	}
	switch {
	case len(plans) == 0:
		return nil
	case len(hi) == 0:
		return []pass{{settings: s, count: len(rest)}}
	case len(rest) == 0:
		return []pass{{settings: s.highFidelity(), count: len(hi)}}
	}
	a := selectPass(hi, s.highFidelity())
	b := selectPass(rest, s)
	return []pass{a, b}
}

func selectPass(group []TexturePlan, s TextureSettings) pass {
	p := pass{settings: s, count: len(group)}
	if f, ok := nameFilter(group); ok {
		p.filter = f
		return p
	}
	p.slots = slotGlob(group)
	return p
}

func identity(t glb.TextureInfo) string {
	switch {
	case t.URI != "":
		return t.URI
	case t.ImageName != "":
		return t.ImageName
	default:
		return t.Name
	}
}

// nameFilter builds an anchored alternation of texture identities; it fails
// when any texture in the group is anonymous.
func nameFilter(group []TexturePlan) (string, bool) {
	names := make([]string, 0, len(group))
	for _, p := range group {
		id := identity(p.Texture)
		if id == "" {
			return "", false
		}
		names = append(names, regexp.QuoteMeta(id))
	}
	return "^(" + strings.Join(names, "|") + ")$", true
}

func slotGlob(group []TexturePlan) string {
	seen := map[string]bool{}
	for _, p := range group {
		for _, s := range p.Texture.Slots {
			seen[s] = true
		}
	}
	slots := make([]string, 0, len(seen))
	for s := range seen {
		slots = append(slots, s)
	}
	sort.Strings(slots)
	switch len(slots) {
	case 0:
		return "*"
	case 1:
		return slots[0]
	default:
		return "{" + strings.Join(slots, ",") + "}"
	}
}
