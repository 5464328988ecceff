package tool

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/hupe1980/agentrelay/core"
)

// ScreenshotToolName is the name the screenshot tool is registered under.
const ScreenshotToolName = "screenshot"

// CaptureFunc grabs the current screen as PNG bytes.
type CaptureFunc func(ctx context.Context) ([]byte, error)

// NewScreenshotTool wraps capture as a tool whose result carries the image,
// so the relay persists it as an artifact.
func NewScreenshotTool(capture CaptureFunc) *FunctionTool {
	return NewFunctionTool(
		ScreenshotToolName,
		"Take a screenshot of the current screen.",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(toolCtx *Context, _ map[string]any) (any, error) {
			png, err := capture(toolCtx.Context())
			if err != nil {
				return nil, fmt.Errorf("capture screen: %w", err)
			}
			return core.ToolResult{
				Output:      fmt.Sprintf("captured %d bytes", len(png)),
				Base64Image: base64.StdEncoding.EncodeToString(png),
			}, nil
		},
	)
}

// CommandCapture returns a CaptureFunc that runs an external program and
// reads the PNG from its stdout, e.g. []string{"import", "-window", "root", "png:-"}.
// A non-positive timeout defaults to 30 seconds.
func CommandCapture(argv []string, timeout time.Duration) CaptureFunc {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return func(ctx context.Context) ([]byte, error) {
		if len(argv) == 0 {
			return nil, errors.New("no capture command configured")
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		var stdout, stderr bytes.Buffer
		cmd := exec.CommandContext(ctx, argv[0], argv[1:]...) //nolint:gosec // operator-configured command
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			return nil, fmt.Errorf("%s: %w: %s", argv[0], err, strings.TrimSpace(stderr.String()))
		}
		if stdout.Len() == 0 {
			return nil, fmt.Errorf("%s: empty output", argv[0])
		}
		return stdout.Bytes(), nil
	}
}
