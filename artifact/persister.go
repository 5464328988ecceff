package artifact

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/logging"
)

// TimestampLayout is the second-resolution timestamp embedded in artifact names.
const TimestampLayout = "20060102_150405"

// PersisterOptions configures a Persister.
type PersisterOptions struct {
	// Prefix starts every artifact name. Defaults to "screenshot".
	Prefix string
	// Extension ends every artifact name. Defaults to ".png".
	Extension string
	// URLPrefix, when set, is joined with the artifact name to form
	// Artifact.URL, e.g. "/screenshots/".
	URLPrefix string
	// Clock returns the creation time. Defaults to time.Now.
	Clock func() time.Time
	// Logger defaults to NoOpLogger.
	Logger logging.Logger
}

// Persister decodes image payloads carried by tool results and stores them
// as artifacts named <prefix>_<timestamp>_<invocationID><ext>.
type Persister struct {
	store  core.ArtifactStore
	opts   PersisterOptions
	logger logging.Logger
}

// NewPersister creates a Persister writing to store.
func NewPersister(store core.ArtifactStore, optFns ...func(o *PersisterOptions)) *Persister {
	opts := PersisterOptions{
		Prefix:    "screenshot",
		Extension: ".png",
		Clock:     time.Now,
		Logger:    logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Persister{store: store, opts: opts, logger: logging.Component(opts.Logger, "artifact")}
}

// Persist stores the image of result, if any. It returns nil, nil for results
// without an image. Decode and write failures are returned unmasked.
func (p *Persister) Persist(result core.ToolResult, invocationID string) (*core.Artifact, error) {
	if !result.HasImage() {
		return nil, nil
	}

	data, err := decodeImage(result.Base64Image)
	if err != nil {
		return nil, fmt.Errorf("decode image for %s: %w", invocationID, err)
	}

	if invocationID == "" {
		invocationID = core.NewID()
	}
	now := p.opts.Clock()
	name := p.Name(now, invocationID)

	ref, err := p.store.Save(name, data)
	if err != nil {
		return nil, fmt.Errorf("persist %s: %w", name, err)
	}

	p.logger.Debug("artifact.persisted", "path", ref, "size", len(data), "tool_use_id", invocationID)

	a := &core.Artifact{
		Path:         ref,
		Name:         name,
		InvocationID: invocationID,
		CreatedAt:    now,
		Size:         len(data),
	}
	if p.opts.URLPrefix != "" {
		a.URL = p.opts.URLPrefix + url.PathEscape(name)
	}
	return a, nil
}

// Name builds the artifact name for an invocation at time t.
func (p *Persister) Name(t time.Time, invocationID string) string {
	return fmt.Sprintf("%s_%s_%s%s", p.opts.Prefix, t.Format(TimestampLayout), sanitizeID(invocationID), p.opts.Extension)
}

// decodeImage accepts padded or unpadded standard base64, optionally wrapped
// in a data URL.
func decodeImage(s string) ([]byte, error) {
	if i := strings.Index(s, ";base64,"); strings.HasPrefix(s, "data:") && i >= 0 {
		s = s[i+len(";base64,"):]
	}
	s = strings.TrimSpace(s)
	data, err := base64.StdEncoding.DecodeString(s)
	if err == nil {
		return data, nil
	}
	if raw, rawErr := base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "=")); rawErr == nil {
		return raw, nil
	}
	return nil, err
}

// sanitizeID keeps ids filesystem safe without changing well-formed provider
// ids such as "toolu_01AbC". An id that had to be rewritten gets a digest of
// the original appended after a '.', which never occurs in a kept id, so
// distinct ids always yield distinct names.
func sanitizeID(id string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, id)
	if safe == id {
		return id
	}
	sum := sha256.Sum256([]byte(id))
	return safe + "." + hex.EncodeToString(sum[:4])
}
