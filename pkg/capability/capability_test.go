package capability

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSetNormalizes(t *testing.T) {
	s := NewSet("Coding", " chat ", "coding", "")
	assert.Equal(t, Set{Chat, Coding}, s)
}

func TestSupersetOf(t *testing.T) {
	caps := NewSet(Coding, Accuracy, Chat)

	tests := []struct {
		name     string
		required Set
		want     bool
	}{
		{"empty requirement", nil, true},
		{"exact subset", NewSet(Coding, Accuracy), true},
		{"missing tag", NewSet(Coding, Vision), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, caps.SupersetOf(tt.required))
		})
	}
}

func TestIntersectAndUnion(t *testing.T) {
	a := NewSet(Coding, Chat)
	b := NewSet(Chat, Vision)

	assert.Equal(t, Set{Chat}, a.Intersect(b))
	assert.Equal(t, Set{Chat, Coding, Vision}, a.Union(b))
	assert.Equal(t, "{chat,coding}", a.String())
}
