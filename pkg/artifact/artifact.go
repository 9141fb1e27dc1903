package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// Kind describes how Content should be interpreted.
type Kind string

const (
	KindText     Kind = "text"
	KindImageURL Kind = "image_url"
	KindImageB64 Kind = "image_b64"
	KindVideoURL Kind = "video_url"
)

// Artifact represents an immutable output produced by a provider.
type Artifact struct {
	ID        string            `json:"id"`
	Version   int               `json:"version"`
	Kind      Kind              `json:"kind"`
	Content   string            `json:"content"`
	Adapter   string            `json:"adapter"`
	Model     string            `json:"model"`
	Prompt    string            `json:"-"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	Hash      string            `json:"hash"`
}

// New creates a text Artifact with computed hash.
func New(content, adapter, model, prompt string) *Artifact {
	return NewOfKind(KindText, content, adapter, model, prompt)
}

// NewOfKind creates an Artifact of the given kind.
func NewOfKind(kind Kind, content, adapter, model, prompt string) *Artifact {
	a := &Artifact{
		ID:        uuid.NewString(),
		Version:   1,
		Kind:      kind,
		Content:   content,
		Adapter:   adapter,
		Model:     model,
		Prompt:    prompt,
		Metadata:  make(map[string]string),
		CreatedAt: time.Now().UTC(),
	}
	a.Hash = a.computeHash()
	return a
}

// Revise returns the next version of the artifact with replaced content.
// The original is left untouched.
func (a *Artifact) Revise(content string) *Artifact {
	next := a.clone()
	next.Version = a.Version + 1
	next.Content = content
	next.CreatedAt = time.Now().UTC()
	next.Hash = next.computeHash()
	return next
}

// WithMetadata returns a new artifact with additional metadata.
func (a *Artifact) WithMetadata(key, value string) *Artifact {
	next := a.clone()
	next.Metadata[key] = value
	return next
}

func (a *Artifact) clone() *Artifact {
	next := *a
	next.Metadata = make(map[string]string, len(a.Metadata))
	for k, v := range a.Metadata {
		next.Metadata[k] = v
	}
	return &next
}

func (a *Artifact) computeHash() string {
	h := sha256.New()
	h.Write([]byte(a.Kind))
	h.Write([]byte(a.Content))
	h.Write([]byte(a.Adapter))
	h.Write([]byte(a.Model))
	return hex.EncodeToString(h.Sum(nil))[:16]
}
