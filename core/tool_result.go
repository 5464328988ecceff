package core

// ToolResult is produced by the engine per tool invocation. All fields are
// optional; the bridge treats it as read-only.
type ToolResult struct {
	Output      string `json:"output,omitempty"`
	Error       string `json:"error,omitempty"`
	Base64Image string `json:"base64_image,omitempty"`
}

// HasImage reports whether the result carries an encoded image payload.
func (r ToolResult) HasImage() bool { return r.Base64Image != "" }

// IsError reports whether the tool reported a failure.
func (r ToolResult) IsError() bool { return r.Error != "" }

// Text returns the textual content handed back to the model: the error text
// for failed calls, the output otherwise.
func (r ToolResult) Text() string {
	if r.IsError() {
		return r.Error
	}
	return r.Output
}
