package httpapi

// maxBodyBytes caps uploads. GLB scenes are large, so the default is 100 MiB.
var maxBodyBytes int64 = defaultMaxBodyBytes

const defaultMaxBodyBytes = 100 << 20

// multipartMemory is how much of a multipart upload is held in memory before
// spilling to temporary files.
const multipartMemory = 32 << 20

// SetMaxBodyBytes configures the maximum request body size.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
		return
	}
	maxBodyBytes = n
}

// CORS configuration (opt-in). If disabled, no CORS middleware is added.
var (
	corsEnabled        bool
	corsAllowedOrigins []string
	corsAllowedMethods []string
	corsAllowedHeaders []string
)

// SetCORSOptions configures CORS behavior for the HTTP server.
func SetCORSOptions(enabled bool, origins, methods, headers []string) {
	corsEnabled = enabled
	corsAllowedOrigins = append([]string(nil), origins...)
	corsAllowedMethods = append([]string(nil), methods...)
	corsAllowedHeaders = append([]string(nil), headers...)
}

func corsOrDefault(v, def []string) []string {
	if len(v) == 0 {
		return def
	}
	return v
}
