package artifact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReviseKeepsIdentity(t *testing.T) {
	a := New("<think>x</think>hello", "openai", "gpt-5.2-instant", "hi")
	b := a.Revise("hello")

	require.NotSame(t, a, b)
	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, 2, b.Version)
	assert.Equal(t, "hello", b.Content)
	assert.NotEqual(t, a.Hash, b.Hash)
	assert.Equal(t, "<think>x</think>hello", a.Content)
}

func TestWithMetadataCopies(t *testing.T) {
	a := New("hello", "mock", "mock-1", "hi")
	b := a.WithMetadata("provider", "mock-fast")

	assert.Equal(t, "mock-fast", b.Metadata["provider"])
	assert.Empty(t, a.Metadata)
	assert.Equal(t, a.Hash, b.Hash)
}

func TestNewOfKind(t *testing.T) {
	a := NewOfKind(KindImageURL, "https://img.example/1.png", "openai-image", "gpt-image-1", "a sunset")
	assert.Equal(t, KindImageURL, a.Kind)
	assert.Len(t, a.Hash, 16)
	assert.NotEmpty(t, a.ID)
}
