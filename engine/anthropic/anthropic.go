// Package anthropic provides an Engine Adapter over the Anthropic Messages
// API: a non-streaming tool-use loop that reports every text block, tool call
// and tool result through core.Callbacks.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/engine"
	"github.com/hupe1980/agentrelay/internal/util"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/tool"
)

// DefaultModel is the model used when Options.Model is empty.
const DefaultModel = anthropic.ModelClaude3_5Sonnet20241022

// CredentialEnv is the environment variable holding the API key.
const CredentialEnv = "ANTHROPIC_API_KEY"

// Options configures the Anthropic adapter. Extend via functional options to
// preserve stability.
type Options struct {
	engine.Options

	Model anthropic.Model
	// ForwardRawResponses hands every raw Messages response to
	// Callbacks.OnAPIResponse instead of emitting one event per block.
	ForwardRawResponses bool
	// ClientOptions are applied to the SDK client (base URL, HTTP client, retries).
	ClientOptions []option.RequestOption
}

// Adapter implements core.Adapter.
type Adapter struct {
	opts   Options
	logger logging.Logger
}

var _ core.Adapter = (*Adapter)(nil)

// New creates an Anthropic adapter.
func New(optFns ...func(o *Options)) *Adapter {
	opts := Options{
		Options: engine.DefaultOptions(),
		Model:   DefaultModel,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = engine.DefaultMaxIterations
	}
	return &Adapter{opts: opts, logger: logging.Component(opts.Logger, "engine.anthropic")}
}

// Run drives the tool-use loop until the model stops calling tools.
func (a *Adapter) Run(ctx context.Context, req core.Request, cb core.Callbacks) (string, error) {
	clientOpts := append([]option.RequestOption{}, a.opts.ClientOptions...)
	if req.Credential != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(req.Credential))
	}
	client := anthropic.NewClient(clientOpts...)

	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(req.Instruction)),
	}
	tools := buildTools(a.opts.Tools)

	var transcript engine.Transcript
	for i := 0; i < a.opts.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return transcript.String(), err
		}

		params := anthropic.MessageNewParams{
			Model:     a.opts.Model,
			MaxTokens: a.opts.MaxTokens,
			Messages:  pruneImages(messages, a.opts.MaxImages),
			Tools:     tools,
		}
		if a.opts.SystemPrompt != "" {
			params.System = []anthropic.TextBlockParam{{Text: a.opts.SystemPrompt}}
		}
		if a.opts.Temperature != nil {
			params.Temperature = anthropic.Float(*a.opts.Temperature)
		}

		start := time.Now()
		resp, err := client.Messages.New(ctx, params)
		if err != nil {
			logging.LogLLMCall(a.logger, string(a.opts.Model), 0, time.Since(start), false, err)
			return transcript.String(), fmt.Errorf("anthropic api error: %w", err)
		}
		tokens := int(resp.Usage.InputTokens + resp.Usage.OutputTokens)
		logging.LogLLMCall(a.logger, string(a.opts.Model), tokens, time.Since(start), true, nil)

		if a.opts.ForwardRawResponses {
			cb.APIResponse([]byte(resp.RawJSON()))
		}
		calls := a.emitBlocks(resp, cb, &transcript)

		messages = append(messages, resp.ToParam())
		if len(calls) == 0 {
			return transcript.String(), nil
		}

		results := make([]anthropic.ContentBlockParamUnion, 0, len(calls))
		var images []anthropic.ContentBlockParamUnion
		for _, call := range calls {
			res := engine.Dispatch(ctx, a.opts.Tools, cb, call, a.logger)
			results = append(results, anthropic.NewToolResultBlock(call.ID, resultText(res), res.IsError()))
			if res.HasImage() {
				images = append(images, anthropic.NewImageBlockBase64("image/png", res.Base64Image))
			}
		}
		messages = append(messages, anthropic.NewUserMessage(append(results, images...)...))
	}

	return transcript.String(), engine.ErrMaxIterations
}

// emitBlocks reports the response content in order and returns its tool calls.
func (a *Adapter) emitBlocks(resp *anthropic.Message, cb core.Callbacks, transcript *engine.Transcript) []engine.Call {
	var calls []engine.Call
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text := block.AsText().Text
			if a.opts.ForwardRawResponses {
				transcript.Add(text)
				continue
			}
			engine.EmitText(cb, text, transcript)
		case "tool_use":
			toolBlock := block.AsToolUse()
			input, err := json.Marshal(toolBlock.Input)
			if err != nil {
				input = nil
			}
			if !a.opts.ForwardRawResponses {
				engine.EmitInvocation(cb, input)
			}
			calls = append(calls, engine.Call{ID: toolBlock.ID, Name: toolBlock.Name, Input: input})
		}
	}
	return calls
}

// resultText is the tool_result content; the API rejects empty text blocks.
func resultText(res core.ToolResult) string {
	if t := res.Text(); t != "" {
		return t
	}
	if res.HasImage() {
		return "screenshot attached"
	}
	return "(no output)"
}

// buildTools converts registry tools to the Anthropic tool format.
func buildTools(reg *tool.Registry) []anthropic.ToolUnionParam {
	list := reg.List()
	if len(list) == 0 {
		return nil
	}
	out := make([]anthropic.ToolUnionParam, len(list))
	for i, t := range list {
		inputSchema := anthropic.ToolInputSchemaParam{
			Type: constant.Object("object"),
		}
		if params := t.Parameters(); params != nil {
			if properties, exists := params["properties"]; exists {
				inputSchema.Properties = properties
			}
			inputSchema.Required = util.RequiredFields(params)
		}

		out[i] = anthropic.ToolUnionParamOfTool(inputSchema, t.Name())
		if d := t.Description(); d != "" && out[i].OfTool != nil {
			out[i].OfTool.Description = anthropic.String(d)
		}
	}
	return out
}

// pruneImages drops all but the max most recent image blocks from the
// history sent to the provider. The stored history is left untouched.
func pruneImages(messages []anthropic.MessageParam, max int) []anthropic.MessageParam {
	if max <= 0 {
		return messages
	}
	total := 0
	for _, m := range messages {
		for _, b := range m.Content {
			if b.OfImage != nil {
				total++
			}
		}
	}
	drop := total - max
	if drop <= 0 {
		return messages
	}

	out := make([]anthropic.MessageParam, len(messages))
	for i, m := range messages {
		out[i] = m
		if drop == 0 {
			continue
		}
		content := make([]anthropic.ContentBlockParamUnion, 0, len(m.Content))
		for _, b := range m.Content {
			if b.OfImage != nil && drop > 0 {
				drop--
				continue
			}
			content = append(content, b)
		}
		out[i].Content = content
	}
	return out
}
