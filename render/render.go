// Package render reduces every core.Event variant to a flat, display-safe
// text fragment. The output is HTML-escaped with line breaks converted to
// <br>, so it can be embedded as the body of a single HTML block.
package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hupe1980/agentrelay/core"
	"github.com/tidwall/gjson"
)

// LineBreak is the display line-break representation.
const LineBreak = "<br>"

var newlines = strings.NewReplacer("\r\n", LineBreak, "\r", LineBreak, "\n", LineBreak)

// Func normalizes one event. Normalize is the default implementation.
type Func func(ev core.Event) string

// Normalize converts ev into display text. It never panics: internal faults
// are reported as "error normalizing event: <cause>".
func Normalize(ev core.Event) (out string) {
	defer func() {
		if r := recover(); r != nil {
			out = Text(fmt.Sprintf("error normalizing event: %v", r))
		}
	}()

	s, err := normalize(ev)
	if err != nil {
		return Text("error normalizing event: " + err.Error())
	}
	return s
}

func normalize(ev core.Event) (string, error) {
	switch e := ev.(type) {
	case core.TextEvent:
		return Text(e.Text), nil
	case core.StructuredEvent:
		return structured(e), nil
	case core.RawContentEvent:
		return rawContent(e.Body)
	case core.ArtifactEvent:
		return Text(artifactRef(e.Artifact)), nil
	case core.DiagnosticEvent:
		return Text(e.Message), nil
	case nil:
		return "", nil
	default:
		return Text(fmt.Sprintf("%v", e)), nil
	}
}

// Text escapes s and converts its line breaks.
func Text(s string) string {
	return newlines.Replace(html.EscapeString(s))
}

func structured(e core.StructuredEvent) string {
	switch e.Tag {
	case core.TagText:
		if s, ok := e.Payload.(string); ok {
			return Text(s)
		}
		return Text(plain(e.Payload))
	case core.TagToolInvocation:
		return Text(Payload(e.Payload))
	default:
		return Text(plain(e.Payload))
	}
}

// artifactRef is the client-facing reference of an artifact: its URL when the
// store is served, its bare name otherwise. Store paths stay server side.
func artifactRef(a core.Artifact) string {
	if a.URL != "" {
		return a.URL
	}
	if a.Name != "" || a.Path == "" {
		return a.Name
	}
	return path.Base(filepath.ToSlash(a.Path))
}

// rawContent walks the "content" array of a forwarded API response, or the
// body itself when it is a bare block array, and joins the non-empty
// contribution of each block.
func rawContent(body []byte) (string, error) {
	if !gjson.ValidBytes(body) {
		return "", fmt.Errorf("invalid JSON in API response")
	}

	blocks := gjson.ParseBytes(body)
	if !blocks.IsArray() {
		blocks = blocks.Get("content")
	}

	var parts []string
	blocks.ForEach(func(_, block gjson.Result) bool {
		if s := block.Get("text"); block.Get("type").String() == "text" && s.Exists() {
			if text := s.String(); text != "" {
				parts = append(parts, Text(text))
			}
			return true
		}
		if block.Get("type").String() == "tool_use" {
			if input := block.Get("input"); input.Exists() {
				if text := Payload(json.RawMessage(input.Raw)); text != "" {
					parts = append(parts, Text(text))
				}
			}
		}
		return true
	})
	return strings.Join(parts, LineBreak), nil
}

// Payload renders a tool invocation input deterministically: maps as
// "key: value" lines sorted by key, slices element by element, strings
// verbatim and everything else as compact JSON. The result is not escaped.
func Payload(v any) string {
	switch p := v.(type) {
	case nil:
		return ""
	case string:
		return p
	case map[string]any:
		keys := make([]string, 0, len(p))
		for k := range p {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		lines := make([]string, 0, len(keys))
		for _, k := range keys {
			lines = append(lines, k+": "+scalar(p[k]))
		}
		return strings.Join(lines, "\n")
	case []any:
		lines := make([]string, 0, len(p))
		for _, item := range p {
			if s := Payload(item); s != "" {
				lines = append(lines, s)
			}
		}
		if len(lines) == 0 && len(p) > 0 {
			return plain(p)
		}
		return strings.Join(lines, "\n")
	case json.RawMessage:
		dec := json.NewDecoder(bytes.NewReader(p))
		dec.UseNumber()
		var decoded any
		if err := dec.Decode(&decoded); err != nil {
			return string(p)
		}
		return Payload(decoded)
	default:
		return plain(p)
	}
}

// scalar renders a map value on one line.
func scalar(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return plain(v)
}

// plain renders v as compact JSON (maps with sorted keys), falling back to
// its fmt form for values JSON cannot encode.
func plain(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
