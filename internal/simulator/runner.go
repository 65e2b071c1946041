// Package simulator launches the external swarm simulation and scores the
// positions file it writes.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/GoSim-25-26J-441/paramsearch/pkg/config"
	"github.com/GoSim-25-26J-441/paramsearch/pkg/logger"
	"github.com/GoSim-25-26J-441/paramsearch/pkg/models"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

const stderrTail = 2048

// Options configure a Runner
type Options struct {
	RepoPath     string   // simulator working directory
	Binary       string   // relative to RepoPath unless absolute
	LibDir       string   // relative to RepoPath unless absolute; exported as LD_LIBRARY_PATH
	BaseArgs     []string // passed before the generated flags
	ArtifactFlag string   // flag name carrying the artifact path
	ParamOrder   []string // order of the --name=value flags

	LaunchRatePerSec   float64 // 0 = unlimited
	BreakerThreshold   int     // consecutive failures that open the breaker, 0 = no breaker
	BreakerOpenTimeout time.Duration
}

// OptionsFromConfig builds runner options from the simulator section
func OptionsFromConfig(sim *config.Simulator, params []string) (Options, error) {
	open, err := sim.Breaker.GetOpenTimeout()
	if err != nil {
		return Options{}, fmt.Errorf("invalid breaker open_timeout: %w", err)
	}
	return Options{
		RepoPath:           sim.RepoPath,
		Binary:             sim.Binary,
		LibDir:             sim.LibDir,
		BaseArgs:           sim.BaseArgs,
		ArtifactFlag:       sim.ArtifactFlag,
		ParamOrder:         params,
		LaunchRatePerSec:   sim.LaunchRatePerSec,
		BreakerThreshold:   sim.Breaker.FailureThreshold,
		BreakerOpenTimeout: open,
	}, nil
}

// Runner executes the simulator binary. It is safe for concurrent use.
type Runner struct {
	dir     string
	binary  string
	libDir  string
	opts    Options
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// NewRunner resolves paths and builds the launch guards
func NewRunner(opts Options) (*Runner, error) {
	if opts.Binary == "" {
		return nil, errors.New("simulator binary is required")
	}
	if opts.ArtifactFlag == "" {
		return nil, errors.New("artifact flag is required")
	}
	dir, err := filepath.Abs(opts.RepoPath)
	if err != nil {
		return nil, fmt.Errorf("resolve repo path %s: %w", opts.RepoPath, err)
	}
	r := &Runner{
		dir:    dir,
		binary: resolve(dir, opts.Binary),
		opts:   opts,
	}
	if opts.LibDir != "" {
		r.libDir = resolve(dir, opts.LibDir)
	}
	if opts.LaunchRatePerSec > 0 {
		burst := int(opts.LaunchRatePerSec)
		if burst < 1 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(opts.LaunchRatePerSec), burst)
	}
	if opts.BreakerThreshold > 0 {
		threshold := uint32(opts.BreakerThreshold)
		r.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "simulator",
			MaxRequests: 1,
			Timeout:     opts.BreakerOpenTimeout,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= threshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("simulator circuit breaker changed state", "breaker", name, "from", from.String(), "to", to.String())
			},
		})
	}
	return r, nil
}

func resolve(dir, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

// Binary returns the resolved simulator path
func (r *Runner) Binary() string {
	return r.binary
}

// Args builds the command line for one evaluation
func (r *Runner) Args(a models.Assignment, artifactPath string) []string {
	args := make([]string, 0, len(r.opts.BaseArgs)+1+len(a))
	args = append(args, r.opts.BaseArgs...)
	args = append(args, "--"+r.opts.ArtifactFlag+"="+artifactPath)

	seen := make(map[string]bool, len(r.opts.ParamOrder))
	for _, name := range r.opts.ParamOrder {
		if v, ok := a[name]; ok {
			args = append(args, paramFlag(name, v))
			seen[name] = true
		}
	}
	// parameters missing from ParamOrder go last in sorted order
	var rest []string
	for name := range a {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	for _, name := range rest {
		args = append(args, paramFlag(name, a[name]))
	}
	return args
}

func paramFlag(name string, v float64) string {
	return "--" + name + "=" + strconv.FormatFloat(v, 'f', -1, 64)
}

// Run launches one simulation writing to artifactPath. A non-zero exit is an error.
func (r *Runner) Run(ctx context.Context, a models.Assignment, artifactPath string) error {
	abs, err := filepath.Abs(artifactPath)
	if err != nil {
		return fmt.Errorf("resolve artifact path %s: %w", artifactPath, err)
	}
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("waiting for launch slot: %w", err)
		}
	}
	if r.breaker == nil {
		return r.exec(ctx, a, abs)
	}
	_, err = r.breaker.Execute(func() (interface{}, error) {
		return nil, r.exec(ctx, a, abs)
	})
	return err
}

func (r *Runner) exec(ctx context.Context, a models.Assignment, artifactPath string) error {
	cmd := exec.CommandContext(ctx, r.binary, r.Args(a, artifactPath)...)
	cmd.Dir = r.dir
	cmd.Env = os.Environ()
	if r.libDir != "" {
		cmd.Env = append(cmd.Env, "LD_LIBRARY_PATH="+r.libDir)
	}
	stderr := &tailWriter{max: stderrTail}
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("simulator %s: %w", filepath.Base(r.binary), ctx.Err())
		}
		if tail := strings.TrimSpace(stderr.String()); tail != "" {
			return fmt.Errorf("simulator %s: %w: %s", filepath.Base(r.binary), err, tail)
		}
		return fmt.Errorf("simulator %s: %w", filepath.Base(r.binary), err)
	}
	return nil
}

// tailWriter keeps the last max bytes written to it
type tailWriter struct {
	buf []byte
	max int
}

func (w *tailWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	if over := len(w.buf) - w.max; over > 0 {
		w.buf = append(w.buf[:0], w.buf[over:]...)
	}
	return len(p), nil
}

func (w *tailWriter) String() string {
	return string(w.buf)
}
