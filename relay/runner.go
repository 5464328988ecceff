package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/logging"
)

// ErrEmptyInstruction is returned by Start for empty or whitespace-only instructions.
var ErrEmptyInstruction = errors.New("instruction is required")

// PlaceholderCredential is the sample value shipped in configuration
// templates; it counts as unset.
const PlaceholderCredential = "YOUR_API_KEY_HERE"

// CredentialSource returns the provider credential. It is called once at the
// start of every run.
type CredentialSource func() string

// EnvCredential reads the credential from the environment variable key.
func EnvCredential(key string) CredentialSource {
	return func() string { return os.Getenv(key) }
}

// StaticCredential always returns value.
func StaticCredential(value string) CredentialSource {
	return func() string { return value }
}

// ArtifactPersister stores the image carried by a tool result.
type ArtifactPersister interface {
	Persist(result core.ToolResult, invocationID string) (*core.Artifact, error)
}

// Options holds dependency + configuration overrides passed to NewRunner().
type Options struct {
	// Persister stores tool result images. Nil ignores images.
	Persister ArtifactPersister
	// Credential is checked before the adapter runs. Nil skips the check.
	Credential CredentialSource
	// CredentialName names the credential in the diagnostic shown when it is
	// missing, e.g. "ANTHROPIC_API_KEY".
	CredentialName string
	// DetachOnDisconnect keeps runs alive after the caller's context is
	// cancelled (the client went away).
	DetachOnDisconnect bool
	// SurfaceArtifacts pushes an ArtifactEvent for every persisted image.
	SurfaceArtifacts bool
	// SurfaceToolOutput pushes the textual output of tool results.
	SurfaceToolOutput bool
	// Logger defaults to NoOpLogger.
	Logger logging.Logger
}

// Runner drives an Adapter on a dedicated goroutine per request and relays
// its callbacks onto a Channel. Public methods are safe for concurrent use.
type Runner struct {
	adapter core.Adapter
	opts    Options
	logger  logging.Logger

	activeRuns map[string]context.CancelFunc
	mu         sync.Mutex
	wg         sync.WaitGroup
}

// NewRunner constructs a Runner with optional overrides.
func NewRunner(adapter core.Adapter, optFns ...func(o *Options)) *Runner {
	opts := Options{
		CredentialName:   "the provider API key",
		SurfaceArtifacts: true,
		Logger:           logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Runner{
		adapter:    adapter,
		opts:       opts,
		logger:     logging.Component(opts.Logger, "relay"),
		activeRuns: make(map[string]context.CancelFunc),
	}
}

// Invocation is the per-request context object: it carries the instruction
// and the Channel the run pushes onto.
type Invocation struct {
	ID          string
	Instruction string
	StartedAt   time.Time

	channel *Channel
	done    chan struct{}
	err     error
}

// Channel returns the relay channel of this invocation.
func (inv *Invocation) Channel() *Channel { return inv.channel }

// Done is closed after the sentinel has been pushed.
func (inv *Invocation) Done() <-chan struct{} { return inv.done }

// Wait blocks until the run finished and returns the engine fault, if any.
// The fault has already been relayed as a diagnostic event.
func (inv *Invocation) Wait() error {
	<-inv.done
	return inv.err
}

// Start validates the instruction and starts the run on its own goroutine.
// It returns immediately; the sentinel is always pushed, whatever the outcome.
func (r *Runner) Start(ctx context.Context, instruction string) (*Invocation, error) {
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return nil, ErrEmptyInstruction
	}

	inv := &Invocation{
		ID:          core.NewID(),
		Instruction: instruction,
		StartedAt:   time.Now(),
		channel:     NewChannel(),
		done:        make(chan struct{}),
	}

	parent := ctx
	if r.opts.DetachOnDisconnect {
		parent = context.WithoutCancel(ctx)
	}
	runCtx, cancel := context.WithCancel(parent)
	r.mu.Lock()
	r.activeRuns[inv.ID] = cancel
	r.mu.Unlock()

	logger := logging.Invocation(r.logger, inv.ID)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			cancel()
			r.mu.Lock()
			delete(r.activeRuns, inv.ID)
			r.mu.Unlock()
		}()
		defer close(inv.done)
		defer func() {
			logging.LogRun(logger, inv.channel.Pushed(), time.Since(inv.StartedAt), inv.err)
		}()
		// Unified defer: the sentinel is pushed on return, error and panic.
		defer inv.channel.Close()
		defer func() {
			if rec := recover(); rec != nil {
				logging.LogPanic(logger, rec, "relay.run.panic")
				inv.err = fmt.Errorf("panic: %v", rec)
				r.push(inv, core.NewDiagnosticEvent("engine error: %v", inv.err))
			}
		}()

		inv.err = r.run(runCtx, inv, logger)
	}()

	return inv, nil
}

// Cancel cancels a running invocation by ID.
func (r *Runner) Cancel(id string) error {
	r.mu.Lock()
	cancel, exists := r.activeRuns[id]
	r.mu.Unlock()

	if !exists {
		return fmt.Errorf("invocation %s not found", id)
	}

	cancel()

	return nil
}

// CancelAll cancels every running invocation. Used on shutdown.
func (r *Runner) CancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cancel := range r.activeRuns {
		cancel()
	}
}

// Active returns the number of running invocations.
func (r *Runner) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.activeRuns)
}

// Wait blocks until every started run has pushed its sentinel.
func (r *Runner) Wait() { r.wg.Wait() }

func (r *Runner) run(ctx context.Context, inv *Invocation, logger logging.Logger) error {
	var credential string
	if r.opts.Credential != nil {
		credential = strings.TrimSpace(r.opts.Credential())
		if credential == "" || credential == PlaceholderCredential {
			logger.Warn("relay.run.missing_credential", "credential", r.opts.CredentialName)
			r.push(inv, core.NewDiagnosticEvent("Set %s in the environment to run the agent.", r.opts.CredentialName))
			return nil
		}
	}

	logger.Debug("relay.run.start", "instruction_len", len(inv.Instruction))

	cb := core.Callbacks{
		OnAssistant: func(ev core.Event) {
			r.push(inv, ev)
		},
		OnToolResult: func(result core.ToolResult, invocationID string) {
			r.handleToolResult(inv, logger, result, invocationID)
		},
		OnAPIResponse: func(body []byte) {
			r.push(inv, core.RawContentEvent{Body: bytes.Clone(body)})
		},
	}

	if _, err := r.adapter.Run(ctx, core.Request{Instruction: inv.Instruction, Credential: credential}, cb); err != nil {
		r.push(inv, core.NewDiagnosticEvent("engine error: %v", err))
		return err
	}
	return nil
}

func (r *Runner) handleToolResult(inv *Invocation, logger logging.Logger, result core.ToolResult, invocationID string) {
	if result.IsError() {
		r.push(inv, core.NewDiagnosticEvent("tool error: %s", result.Error))
	}
	if r.opts.SurfaceToolOutput && result.Output != "" {
		r.push(inv, core.NewTextEvent(result.Output))
	}
	if !result.HasImage() || r.opts.Persister == nil {
		return
	}

	a, err := r.opts.Persister.Persist(result, invocationID)
	if err != nil {
		logger.Error("relay.artifact.failed", "tool_use_id", invocationID, "error", err)
		r.push(inv, core.NewDiagnosticEvent("artifact error: %v", err))
		return
	}
	if a != nil && r.opts.SurfaceArtifacts {
		r.push(inv, core.ArtifactEvent{Artifact: *a})
	}
}

func (r *Runner) push(inv *Invocation, ev core.Event) {
	if err := inv.channel.Push(ev); err != nil {
		// Only possible when an adapter keeps calling back after Run returned.
		r.logger.Warn("relay.push.dropped", "invocation_id", inv.ID, "error", err)
	}
}
