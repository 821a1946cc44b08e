// Package manager orchestrates GLB compression: it analyses input, selects a
// strategy and drives the mesh and texture codecs through their single-flight
// executors. It is structured into small files by concern:
//
//   - manager.go: core Manager type, readiness, warmup, reset, close.
//   - config.go: ManagerConfig, ModuleConfig; NewWithConfig wires lifecycles and executors.
//   - ops.go: Optimize, CompressMesh, CompressTexture, CompressContainerTextures.
//   - helpers.go: Result and its size arithmetic.
//   - errors.go: error helpers (IsInvalidInput, IsModuleUnavailable, IsCodecTimeout).
//   - status_report.go: Status and health projections for /status and metrics.
//
// Codec modules are loaded lazily by their engine.Lifecycle and only ever
// invoked from their engine.Executor drain goroutine. External packages
// should use public methods only; internal types are subject to change.
package manager
