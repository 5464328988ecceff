// Package agentrelay provides a high-level façade that wires an engine
// Adapter to a browser: a relay.Runner drives the adapter per request, an
// artifact.Persister stores screenshots, and a server.Server streams the
// rendered events back as HTML fragments. Most applications interact with
// this package by:
//  1. Building an Adapter (engine/anthropic, engine/openai or their own)
//  2. Creating a Bridge via New() (or NewFromConfig for the CLI defaults)
//  3. Serving the Bridge as an http.Handler and calling Shutdown on exit
package agentrelay

import (
	"context"
	"fmt"
	"net/http"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/hupe1980/agentrelay/artifact"
	"github.com/hupe1980/agentrelay/config"
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/engine"
	"github.com/hupe1980/agentrelay/engine/anthropic"
	"github.com/hupe1980/agentrelay/engine/openai"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/relay"
	"github.com/hupe1980/agentrelay/render"
	"github.com/hupe1980/agentrelay/server"
	"github.com/hupe1980/agentrelay/tool"
	openaioption "github.com/openai/openai-go/option"
)

// Version is reported by the CLI.
const Version = "0.1.0"

// Options configures the Bridge.
type Options struct {
	// ArtifactDir is where screenshots are written and served from when
	// ArtifactStore is nil. Defaults to "screenshots".
	ArtifactDir string
	// ArtifactStore overrides the default FileStore. Only a FileStore is
	// served over HTTP.
	ArtifactStore core.ArtifactStore

	// Credential is checked before every run. Nil skips the check.
	Credential relay.CredentialSource
	// CredentialName is shown when the credential is missing.
	CredentialName string

	DetachOnDisconnect bool
	SurfaceToolOutput  bool

	// Title is shown on the index page.
	Title string
	// Normalize defaults to render.Normalize.
	Normalize render.Func

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Bridge is the assembled HTTP bridge. It implements http.Handler.
type Bridge struct {
	opts   Options
	store  core.ArtifactStore
	runner *relay.Runner
	server *server.Server
}

// New creates a Bridge around adapter.
func New(adapter core.Adapter, optFns ...func(o *Options)) *Bridge {
	opts := Options{
		ArtifactDir: "screenshots",
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	store := opts.ArtifactStore
	if store == nil {
		store = artifact.NewFileStore(opts.ArtifactDir)
	}
	fileStore, served := store.(*artifact.FileStore)
	persister := artifact.NewPersister(store, func(o *artifact.PersisterOptions) {
		if served {
			o.URLPrefix = server.DefaultArtifactRoute
		}
		o.Logger = opts.Logger
	})

	runner := relay.NewRunner(adapter, func(o *relay.Options) {
		o.Persister = persister
		o.Credential = opts.Credential
		if opts.CredentialName != "" {
			o.CredentialName = opts.CredentialName
		}
		o.DetachOnDisconnect = opts.DetachOnDisconnect
		o.SurfaceToolOutput = opts.SurfaceToolOutput
		o.Logger = opts.Logger
	})

	srv := server.New(runner, func(o *server.Options) {
		if opts.Title != "" {
			o.Title = opts.Title
		}
		if served {
			o.ArtifactDir = fileStore.Dir()
		}
		if opts.Normalize != nil {
			o.Normalize = opts.Normalize
		}
		o.Logger = opts.Logger
	})

	return &Bridge{opts: opts, store: store, runner: runner, server: srv}
}

// ServeHTTP implements http.Handler.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) { b.server.ServeHTTP(w, r) }

// Runner exposes the underlying relay runner.
func (b *Bridge) Runner() *relay.Runner { return b.runner }

// ArtifactStore returns the store screenshots are written to.
func (b *Bridge) ArtifactStore() core.ArtifactStore { return b.store }

// Shutdown cancels every active run and waits for their goroutines to exit
// or for ctx to expire.
func (b *Bridge) Shutdown(ctx context.Context) error {
	b.runner.CancelAll()

	done := make(chan struct{})
	go func() {
		b.runner.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("agentrelay: shutdown: %w", ctx.Err())
	}
}

// NewAdapter builds the engine adapter selected by cfg.Provider.
func NewAdapter(cfg config.Config, tools *tool.Registry, logger logging.Logger) (core.Adapter, error) {
	base := func(o *engine.Options) {
		o.SystemPrompt = cfg.SystemPrompt
		o.Tools = tools
		o.MaxTokens = cfg.MaxTokens
		o.Temperature = cfg.Temperature
		o.MaxIterations = cfg.MaxIterations
		o.MaxImages = cfg.MaxImages
		o.Logger = logger
	}

	switch cfg.Provider {
	case config.ProviderAnthropic:
		return anthropic.New(func(o *anthropic.Options) {
			base(&o.Options)
			if cfg.Model != "" {
				o.Model = anthropicsdk.Model(cfg.Model)
			}
			o.ForwardRawResponses = cfg.ForwardRawResponses
			if cfg.BaseURL != "" {
				o.ClientOptions = append(o.ClientOptions, anthropicoption.WithBaseURL(cfg.BaseURL))
			}
		}), nil
	case config.ProviderOpenAI:
		return openai.New(func(o *openai.Options) {
			base(&o.Options)
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
			if cfg.BaseURL != "" {
				o.ClientOptions = append(o.ClientOptions, openaioption.WithBaseURL(cfg.BaseURL))
			}
		}), nil
	default:
		return nil, fmt.Errorf("agentrelay: unknown provider %q", cfg.Provider)
	}
}

// Tools returns the tool registry described by cfg.
func Tools(cfg config.Config) (*tool.Registry, error) {
	reg := tool.NewRegistry()
	if len(cfg.ScreenshotCommand) > 0 {
		if err := reg.Register(tool.NewScreenshotTool(tool.CommandCapture(cfg.ScreenshotCommand, 30*time.Second))); err != nil {
			return nil, fmt.Errorf("agentrelay: register tools: %w", err)
		}
	}
	return reg, nil
}

// NewFromConfig assembles a Bridge from cfg. The provider credential is read
// from the environment on every run.
func NewFromConfig(cfg config.Config, logger logging.Logger) (*Bridge, error) {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	tools, err := Tools(cfg)
	if err != nil {
		return nil, err
	}
	adapter, err := NewAdapter(cfg, tools, logger)
	if err != nil {
		return nil, err
	}

	credentialEnv := cfg.CredentialEnv()
	return New(adapter, func(o *Options) {
		o.ArtifactDir = cfg.ArtifactDir
		o.Credential = relay.EnvCredential(credentialEnv)
		o.CredentialName = credentialEnv
		o.DetachOnDisconnect = cfg.DetachOnDisconnect
		o.SurfaceToolOutput = cfg.SurfaceToolOutput
		o.Logger = logger
	}), nil
}
