package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"glbd/internal/glb"
	"glbd/internal/manager"
	"glbd/pkg/types"
)

// runAnalyze prints the analysis of a local GLB as indented JSON.
func runAnalyze(w io.Writer, path string, ignoreDraco bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	a := glb.Analyze(data)
	if !a.Valid {
		return fmt.Errorf("%s: %w: %s", path, manager.ErrInvalidContainer, a.Reason)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(types.AnalyzeResponse{
		Analysis: a,
		Strategy: glb.Select(a, ignoreDraco),
		Textures: glb.Textures(data),
	})
}
