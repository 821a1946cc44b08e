// Package docs registers the glbd OpenAPI document with swag. Regenerate with
// `swag init -g cmd/glbd/docs.go` after changing handler annotations.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {"name": "glbd maintainers"},
        "license": {"name": "MIT", "url": "https://opensource.org/licenses/MIT"},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/api/optimize": {
            "post": {
                "description": "Analyses the upload, picks a strategy and applies Draco mesh and KTX2 texture compression as needed.",
                "consumes": ["application/octet-stream", "multipart/form-data"],
                "produces": ["model/gltf-binary"],
                "tags": ["compression"],
                "summary": "Optimize a GLB",
                "parameters": [
                    {"type": "file", "description": "GLB file (or send the raw body)", "name": "file", "in": "formData"},
                    {"type": "boolean", "description": "Plan as if no Draco compression were present", "name": "ignore_draco", "in": "query"},
                    {"type": "boolean", "description": "Skip the mesh pass", "name": "skip_mesh", "in": "query"},
                    {"type": "boolean", "description": "Skip the texture pass", "name": "skip_textures", "in": "query"},
                    {"type": "string", "description": "Texture format: etc1s or uastc", "name": "format", "in": "query"},
                    {"type": "integer", "description": "Texture quality", "name": "quality", "in": "query"},
                    {"type": "integer", "description": "Texture compression level", "name": "compression_level", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "file"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "504": {"description": "Gateway Timeout", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/api/compress/mesh": {
            "post": {
                "consumes": ["application/octet-stream", "multipart/form-data"],
                "produces": ["model/gltf-binary"],
                "tags": ["compression"],
                "summary": "Draco-compress the meshes of a GLB",
                "parameters": [
                    {"type": "boolean", "description": "Recompress even if already Draco-compressed", "name": "force", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "file"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/api/compress/texture": {
            "post": {
                "consumes": ["application/octet-stream", "multipart/form-data"],
                "produces": ["image/ktx2"],
                "tags": ["compression"],
                "summary": "Encode one PNG or JPEG image to KTX2",
                "parameters": [
                    {"type": "string", "description": "etc1s or uastc", "name": "format", "in": "query"},
                    {"type": "boolean", "description": "Flip the image vertically", "name": "flip_y", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "file"}},
                    "415": {"description": "Unsupported Media Type", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/api/compress/textures": {
            "post": {
                "consumes": ["application/octet-stream", "multipart/form-data"],
                "produces": ["model/gltf-binary"],
                "tags": ["compression"],
                "summary": "Re-encode the textures embedded in a GLB",
                "parameters": [
                    {"type": "string", "description": "etc1s or uastc", "name": "format", "in": "query"},
                    {"type": "boolean", "description": "Do not upgrade normal maps to uastc", "name": "force_format", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "file"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/api/analyze": {
            "post": {
                "consumes": ["application/octet-stream", "multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["analysis"],
                "summary": "Analyse a GLB and report the recommended strategy",
                "parameters": [
                    {"type": "boolean", "description": "Plan as if no Draco compression were present", "name": "ignore_draco", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.AnalyzeResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/api/queue/status": {
            "get": {
                "produces": ["application/json"],
                "tags": ["status"],
                "summary": "Admission queue status per endpoint",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.QueueStatusResponse"}}
                }
            }
        },
        "/api/queue/{endpoint}/policy": {
            "put": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Replace the admission policy of an endpoint",
                "parameters": [
                    {"type": "string", "description": "Endpoint key", "name": "endpoint", "in": "path", "required": true},
                    {"description": "New policy", "name": "policy", "in": "body", "required": true, "schema": {"$ref": "#/definitions/types.QueuePolicy"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.QueuePolicy"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/api/queue/{endpoint}/purge": {
            "post": {
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Reject every request waiting on an endpoint",
                "parameters": [
                    {"type": "string", "description": "Endpoint key", "name": "endpoint", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.QueuePurgeResponse"}}
                }
            }
        },
        "/api/modules/{name}/reset": {
            "post": {
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Reset a codec module and its circuit breaker",
                "parameters": [
                    {"type": "string", "description": "mesh or texture", "name": "name", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.ModuleResetResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/status": {
            "get": {
                "produces": ["application/json"],
                "tags": ["status"],
                "summary": "Service status",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.StatusResponse"}}
                }
            }
        }
    },
    "definitions": {
        "types.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string", "example": "queue_full"},
                "message": {"type": "string"},
                "code": {"type": "integer", "example": 503},
                "queue": {"$ref": "#/definitions/types.EndpointStatus"},
                "retry_after_seconds": {"type": "integer", "example": 4}
            }
        },
        "types.EndpointStatus": {
            "type": "object",
            "properties": {
                "endpoint": {"type": "string", "example": "optimize"},
                "active": {"type": "integer"},
                "queued": {"type": "integer"},
                "max_concurrent": {"type": "integer"},
                "max_queue_size": {"type": "integer"},
                "queue_timeout_ms": {"type": "integer"},
                "request_timeout_ms": {"type": "integer"},
                "completed": {"type": "integer"},
                "failed": {"type": "integer"},
                "rejected": {"type": "integer"},
                "queue_timeouts": {"type": "integer"},
                "request_timeouts": {"type": "integer"},
                "cancelled": {"type": "integer"},
                "avg_processing_ms": {"type": "integer"},
                "max_processing_ms": {"type": "integer"},
                "max_queued": {"type": "integer"}
            }
        },
        "types.QueueStatusResponse": {
            "type": "object",
            "properties": {
                "endpoints": {"type": "array", "items": {"$ref": "#/definitions/types.EndpointStatus"}},
                "server_time_unix": {"type": "integer"}
            }
        },
        "types.QueuePolicy": {
            "type": "object",
            "properties": {
                "max_concurrent": {"type": "integer", "example": 1},
                "max_queue_size": {"type": "integer", "example": 10},
                "queue_timeout_ms": {"type": "integer", "example": 60000},
                "request_timeout_ms": {"type": "integer", "example": 120000}
            }
        },
        "types.QueuePurgeResponse": {
            "type": "object",
            "properties": {
                "endpoint": {"type": "string"},
                "purged": {"type": "integer"}
            }
        },
        "types.ModuleStatus": {
            "type": "object",
            "properties": {
                "name": {"type": "string", "example": "mesh"},
                "state": {"type": "string", "example": "ready"},
                "consecutive_errors": {"type": "integer"},
                "init_failures": {"type": "integer"},
                "last_init_error": {"type": "string"},
                "cooldown_remaining_ms": {"type": "integer"},
                "inits": {"type": "integer"},
                "resets": {"type": "integer"},
                "queued": {"type": "integer"},
                "in_flight": {"type": "boolean"},
                "processed": {"type": "integer"},
                "failed": {"type": "integer"},
                "timed_out": {"type": "integer"},
                "abandoned": {"type": "integer"}
            }
        },
        "types.ModuleResetResponse": {
            "type": "object",
            "properties": {
                "module": {"type": "string"},
                "state": {"type": "string"}
            }
        },
        "types.StatusResponse": {
            "type": "object",
            "properties": {
                "state": {"type": "string", "example": "ready"},
                "modules": {"type": "array", "items": {"$ref": "#/definitions/types.ModuleStatus"}},
                "endpoints": {"type": "array", "items": {"$ref": "#/definitions/types.EndpointStatus"}},
                "last_error": {"type": "string"},
                "uptime_seconds": {"type": "integer"},
                "server_time_unix": {"type": "integer"},
                "optimizations_total": {"type": "integer"},
                "bytes_in_total": {"type": "integer"},
                "bytes_out_total": {"type": "integer"}
            }
        },
        "types.AnalyzeResponse": {
            "type": "object",
            "properties": {
                "analysis": {"type": "object"},
                "strategy": {"type": "object"},
                "textures": {"type": "array", "items": {"type": "object"}}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "glbd API",
	Description:      "HTTP API for GLB mesh and texture compression.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
