package main

import (
	"encoding/json"
	"fmt"
	"io"

	"glbd/internal/codec"
	"glbd/internal/config"
)

// runCheck reports whether the configured encoders can be located. It fails
// when any is missing so it can gate deployments.
func runCheck(w io.Writer, cfg config.Config) error {
	report := codec.Preflight(codec.ToolConfig{
		GltfTransformBin: cfg.Codecs.GltfTransformBin,
		ToktxBin:         cfg.Codecs.ToktxBin,
	})
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}
	var missing []string
	for _, st := range report {
		if !st.Found {
			missing = append(missing, st.Name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("encoders not found: %v", missing)
	}
	return nil
}
