package glb

// Route names the processing path a strategy recommends.
type Route string

const (
	RouteFull     Route = "full"
	RouteMesh     Route = "mesh"
	RouteTextures Route = "textures"
	RouteNone     Route = "none"
)

// Strategy is the compression plan derived from an Analysis.
type Strategy struct {
	CompressMesh     bool   `json:"compress_mesh"`
	CompressTextures bool   `json:"compress_textures"`
	Reason           string `json:"reason"`
	Route            Route  `json:"route"`
}

// Select maps an analysis to a plan. With ignoreDraco set, existing Draco
// compression is disregarded and the plan depends only on what the file holds.
func Select(a Analysis, ignoreDraco bool) Strategy {
	if !a.Valid {
		return Strategy{Reason: "invalid file", Route: RouteNone}
	}
	if a.HasDracoCompression && !ignoreDraco {
		if a.HasTextures {
			return Strategy{
				CompressTextures: true,
				Reason:           "mesh already Draco-compressed; compressing textures only",
				Route:            RouteTextures,
			}
		}
		return Strategy{Reason: "mesh already Draco-compressed and no textures; already optimal", Route: RouteNone}
	}
	switch {
	case a.HasMeshes && a.HasTextures:
		return Strategy{CompressMesh: true, CompressTextures: true, Reason: "meshes and textures present", Route: RouteFull}
	case a.HasMeshes:
		return Strategy{CompressMesh: true, Reason: "meshes only", Route: RouteMesh}
	case a.HasTextures:
		return Strategy{CompressTextures: true, Reason: "textures only", Route: RouteTextures}
	default:
		return Strategy{Reason: "no meshes or textures", Route: RouteNone}
	}
}
