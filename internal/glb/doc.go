// Package glb inspects binary glTF 2.0 containers: Analyze reports what a
// file holds, Select turns that into a compression strategy and Textures
// lists texture bindings for the codec planner.
//
// Pack assembles containers and exists for tests and fixtures; the service
// itself never writes GLB framing.
package glb
