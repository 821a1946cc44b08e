package codec

// Encoder binary names searched for when no path is configured.
const (
	binGltfTransform = "gltf-transform"
	binToktx         = "toktx"
)

// ToolStatus describes whether one external encoder can be located.
type ToolStatus struct {
	Name  string `json:"name"`
	Found bool   `json:"found"`
	Path  string `json:"path,omitempty"`
	Error string `json:"error,omitempty"`
}

// Preflight locates the encoders without running them. It does not mutate
// state and is safe to call at any time.
func Preflight(cfg ToolConfig) []ToolStatus {
	return []ToolStatus{
		locate(binGltfTransform, cfg.GltfTransformBin),
		locate(binToktx, cfg.ToktxBin),
	}
}

func locate(name, configured string) ToolStatus {
	st := ToolStatus{Name: name}
	p, err := discover(configured, name)
	if err != nil {
		st.Path = configured
		st.Error = err.Error()
		return st
	}
	st.Found = true
	st.Path = p
	return st
}
