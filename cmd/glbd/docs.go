package main

// General API documentation for swaggo. Run `swag init -g cmd/glbd/docs.go` to regenerate docs.
//
// @title           glbd API
// @version         1.0
// @description     HTTP API for GLB mesh and texture compression.
//
// @contact.name   glbd maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
