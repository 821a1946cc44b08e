package codec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"glbd/internal/common/fsutil"
)

const (
	defaultProbeTimeout = 10 * time.Second
	stderrTailBytes     = 4096
	// waitDelay bounds how long a killed tool may hold its output pipes.
	waitDelay = 2 * time.Second
)

// ToolConfig locates the external encoders.
type ToolConfig struct {
	// GltfTransformBin is the gltf-transform CLI; empty means discovery.
	GltfTransformBin string
	// ToktxBin is the KTX-Software toktx CLI; empty means discovery.
	ToktxBin string
	// ScratchDir hosts per-module working directories; empty means os.TempDir().
	ScratchDir   string
	ProbeTimeout time.Duration
	Logger       zerolog.Logger
}

// ErrToolNotFound is wrapped when an encoder binary cannot be located.
var ErrToolNotFound = errors.New("encoder binary not found")

// ToolError reports a failed encoder run with the tail of its stderr.
type ToolError struct {
	Tool   string
	Args   []string
	Err    error
	Stderr string
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Tool, strings.Join(e.Args, " "), e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *ToolError) Unwrap() error { return e.Err }

// discover resolves a configured path or searches well-known locations and PATH.
func discover(configured, name string) (string, error) {
	if configured != "" {
		p, err := fsutil.ExpandHome(configured)
		if err != nil {
			return "", err
		}
		if fsutil.IsExecutable(p) {
			return p, nil
		}
		if lp, err := exec.LookPath(p); err == nil {
			return lp, nil
		}
		return "", fmt.Errorf("%w: %s", ErrToolNotFound, configured)
	}
	home, _ := os.UserHomeDir()
	candidates := []string{
		filepath.Join(home, ".local", "bin", name),
		filepath.Join(home, "node_modules", ".bin", name),
		"/usr/local/bin/" + name,
		"/opt/homebrew/bin/" + name,
	}
	for _, p := range candidates {
		if fsutil.IsExecutable(p) {
			return p, nil
		}
	}
	if lp, err := exec.LookPath(name); err == nil {
		return lp, nil
	}
	return "", fmt.Errorf("%w: %s", ErrToolNotFound, name)
}

// tool is one external binary bound to a scratch directory.
type tool struct {
	name    string
	bin     string
	version string
	log     zerolog.Logger
}

// probe runs `bin --version` to validate that the binary actually starts.
func probe(ctx context.Context, name, bin string, timeout time.Duration, log zerolog.Logger) (*tool, error) {
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	t := &tool{name: name, bin: bin, log: log.With().Str("tool", name).Logger()}
	out, err := t.output(pctx, "", "--version")
	if err != nil {
		return nil, err
	}
	t.version = strings.TrimSpace(firstLine(out))
	t.log.Info().Str("bin", bin).Str("version", t.version).Msg("encoder ready")
	return t, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// run executes the tool in dir. Cancelling ctx kills the process.
func (t *tool) run(ctx context.Context, dir string, args ...string) error {
	_, err := t.output(ctx, dir, args...)
	return err
}

func (t *tool) output(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, t.bin, args...)
	cmd.Dir = dir
	cmd.WaitDelay = waitDelay
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	start := time.Now()
	err := cmd.Run()
	t.log.Debug().Strs("args", args).Dur("dur", time.Since(start)).Err(err).Msg("exec")
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%s: %w", t.name, ctx.Err())
		}
		return "", &ToolError{Tool: t.name, Args: args, Err: err, Stderr: tail(stderr.String(), stderrTailBytes)}
	}
	return stdout.String(), nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) > n {
		s = s[len(s)-n:]
	}
	return s
}

// scratch is a private working directory for one module handle.
type scratch struct{ dir string }

func newScratch(parent, prefix string) (*scratch, error) {
	dir, err := os.MkdirTemp(parent, prefix)
	if err != nil {
		return nil, fmt.Errorf("scratch dir: %w", err)
	}
	return &scratch{dir: dir}, nil
}

// files returns fresh input and output paths with the given extensions.
func (s *scratch) files(inExt, outExt string) (in, out string) {
	id := uuid.NewString()
	return filepath.Join(s.dir, "in-"+id+inExt), filepath.Join(s.dir, "out-"+id+outExt)
}

// transform writes data to a fresh input file, lets fn produce the output
// file, and returns its contents. Both files are removed afterwards.
func (s *scratch) transform(data []byte, inExt, outExt string, fn func(in, out string) error) ([]byte, error) {
	in, out := s.files(inExt, outExt)
	defer os.Remove(in)
	defer os.Remove(out)
	if err := os.WriteFile(in, data, 0o600); err != nil {
		return nil, err
	}
	if err := fn(in, out); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("read encoder output: %w", err)
	}
	if len(b) == 0 {
		return nil, errors.New("encoder produced empty output")
	}
	return b, nil
}

func (s *scratch) Close() error { return os.RemoveAll(s.dir) }
