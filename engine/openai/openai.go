// Package openai provides an Engine Adapter over the OpenAI Chat Completions
// API (function / tool calling). Responses are non-streaming; every assistant
// message is reported as text and tool-invocation events.
package openai

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/engine"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/tool"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// CredentialEnv is the environment variable holding the API key.
const CredentialEnv = "OPENAI_API_KEY"

// Options configure the OpenAI adapter.
type Options struct {
	engine.Options

	Model string
	// ClientOptions are applied to the SDK client (base URL, HTTP client, retries).
	ClientOptions []option.RequestOption
}

// Adapter implements core.Adapter.
type Adapter struct {
	opts   Options
	logger logging.Logger
}

var _ core.Adapter = (*Adapter)(nil)

// New creates an OpenAI adapter.
func New(optFns ...func(o *Options)) *Adapter {
	opts := Options{
		Options: engine.DefaultOptions(),
		Model:   openai.ChatModelGPT4oMini,
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
	return &Adapter{opts: opts, logger: logging.Component(opts.Logger, "engine.openai")}
}

// Run drives the tool-calling loop until the model answers without tools.
func (a *Adapter) Run(ctx context.Context, req core.Request, cb core.Callbacks) (string, error) {
	clientOpts := append([]option.RequestOption{}, a.opts.ClientOptions...)
	if req.Credential != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(req.Credential))
	}
	client := openai.NewClient(clientOpts...)

	var messages []openai.ChatCompletionMessageParamUnion
	if a.opts.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(a.opts.SystemPrompt))
	}
	messages = append(messages, openai.UserMessage(req.Instruction))

	var transcript engine.Transcript
	for i := 0; i < a.opts.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return transcript.String(), err
		}

		start := time.Now()
		resp, err := client.Chat.Completions.New(ctx, a.buildParams(messages))
		if err != nil {
			logging.LogLLMCall(a.logger, a.opts.Model, 0, time.Since(start), false, err)
			return transcript.String(), fmt.Errorf("openai api error: %w", err)
		}
		logging.LogLLMCall(a.logger, a.opts.Model, int(resp.Usage.TotalTokens), time.Since(start), true, nil)

		if len(resp.Choices) == 0 {
			return transcript.String(), fmt.Errorf("no choices returned")
		}
		msg := resp.Choices[0].Message

		engine.EmitText(cb, msg.Content, &transcript)
		calls := make([]engine.Call, 0, len(msg.ToolCalls))
		for _, tc := range msg.ToolCalls {
			engine.EmitInvocation(cb, []byte(tc.Function.Arguments))
			calls = append(calls, engine.Call{ID: tc.ID, Name: tc.Function.Name, Input: []byte(tc.Function.Arguments)})
		}

		messages = append(messages, msg.ToParam())
		if len(calls) == 0 {
			return transcript.String(), nil
		}

		var images []openai.ChatCompletionContentPartUnionParam
		for _, call := range calls {
			res := engine.Dispatch(ctx, a.opts.Tools, cb, call, a.logger)
			messages = append(messages, openai.ToolMessage(resultText(res), call.ID))
			if res.HasImage() {
				images = append(images, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: "data:image/png;base64," + res.Base64Image,
				}))
			}
		}
		// Tool messages carry text only; screenshots follow as a user message.
		if len(images) > 0 {
			messages = append(messages, openai.UserMessage(images))
		}
	}

	return transcript.String(), engine.ErrMaxIterations
}

// buildParams assembles the request parameters including tool definitions.
func (a *Adapter) buildParams(messages []openai.ChatCompletionMessageParamUnion) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               a.opts.Model,
		MaxCompletionTokens: openai.Int(a.opts.MaxTokens),
	}
	if a.opts.Temperature != nil {
		params.Temperature = openai.Float(*a.opts.Temperature)
	}
	params.Tools = buildTools(a.opts.Tools)
	return params
}

func buildTools(reg *tool.Registry) []openai.ChatCompletionToolParam {
	list := reg.List()
	if len(list) == 0 {
		return nil
	}
	tools := make([]openai.ChatCompletionToolParam, len(list))
	for i, t := range list {
		tools[i] = openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        t.Name(),
				Description: openai.String(t.Description()),
				Parameters:  t.Parameters(),
			},
		}
	}
	return tools
}

func resultText(res core.ToolResult) string {
	if t := res.Text(); t != "" {
		return t
	}
	return "(no output)"
}
