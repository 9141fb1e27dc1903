package classifier

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zen-systems/routegate/pkg/capability"
)

func TestClassifyTaskTypes(t *testing.T) {
	c := New()

	tests := []struct {
		name     string
		req      Request
		wantType TaskType
		wantCaps capability.Set
	}{
		{
			name:     "coding request",
			req:      Request{Text: "write a function to reverse a string in Python"},
			wantType: Coding,
			wantCaps: capability.NewSet(capability.Coding, capability.Accuracy),
		},
		{
			name:     "image generation",
			req:      Request{Text: "generate an image of a sunset"},
			wantType: ImageGeneration,
			wantCaps: capability.NewSet(capability.ImageGeneration),
		},
		{
			name:     "video generation",
			req:      Request{Text: "make a video of waves crashing"},
			wantType: VideoGeneration,
			wantCaps: capability.NewSet(capability.VideoGeneration),
		},
		{
			name:     "summarization keyword",
			req:      Request{Text: "summarize the meeting notes"},
			wantType: DocumentAnalysis,
			wantCaps: capability.NewSet(capability.LongContext),
		},
		{
			name:     "creative writing",
			req:      Request{Text: "write a poem about autumn"},
			wantType: Creative,
			wantCaps: capability.NewSet(capability.Creative),
		},
		{
			name:     "small talk",
			req:      Request{Text: "hello there, how are you?"},
			wantType: Conversation,
			wantCaps: capability.NewSet(capability.Chat),
		},
		{
			name:     "document attachment outranks keywords",
			req:      Request{Text: "find the bug in this", Hints: Hints{Attachment: "report.pdf"}},
			wantType: DocumentAnalysis,
			wantCaps: capability.NewSet(capability.LongContext),
		},
		{
			name:     "generation outranks coding keywords",
			req:      Request{Text: "draw a logo for my python library"},
			wantType: ImageGeneration,
			wantCaps: capability.NewSet(capability.ImageGeneration),
		},
		{
			name:     "hint wins",
			req:      Request{Text: "hello", Hints: Hints{TaskType: Creative}},
			wantType: Creative,
			wantCaps: capability.NewSet(capability.Creative),
		},
		{
			name:     "unknown hint ignored",
			req:      Request{Text: "hello", Hints: Hints{TaskType: "astrology"}},
			wantType: Conversation,
			wantCaps: capability.NewSet(capability.Chat),
		},
		{
			name:     "image attachment adds vision",
			req:      Request{Text: "what is in this?", Hints: Hints{Attachment: "image/png"}},
			wantType: Conversation,
			wantCaps: capability.NewSet(capability.Chat, capability.Vision),
		},
		{
			name:     "code attachment",
			req:      Request{Text: "what does this do?", Hints: Hints{Attachment: "main.go"}},
			wantType: Coding,
			wantCaps: capability.NewSet(capability.Coding, capability.Accuracy),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc := c.Classify(tt.req)
			assert.Equal(t, tt.wantType, desc.TaskType)
			assert.Equal(t, tt.wantCaps, desc.Required)
		})
	}
}

func TestClassifyAmbiguousDefaults(t *testing.T) {
	c := New()

	for _, text := range []string{"", "ok", "hmm"} {
		desc := c.Classify(Request{Text: text})
		assert.Equal(t, Conversation, desc.TaskType)
		assert.Equal(t, DefaultComplexity, desc.Complexity)
		assert.False(t, desc.Sensitive)
	}
}

func TestClassifyRecoversFromPanickingRule(t *testing.T) {
	c := New(WithRules([]Rule{{
		Name:     "broken",
		TaskType: Coding,
		Match: func(Input) (string, bool) {
			panic("bad predicate")
		},
	}}))

	desc := c.Classify(Request{Text: "write a function"})
	assert.Equal(t, Default(Request{Text: "write a function"}), desc)
}

func TestClassifyIsIdempotent(t *testing.T) {
	c := New()
	req := Request{Text: "First parse the CSV, then compute totals in Go.\n1. read\n2. sum"}

	first := c.Classify(req)
	second := c.Classify(req)
	assert.Equal(t, first, second)
}

func TestComplexity(t *testing.T) {
	c := New()

	t.Run("floors by task type", func(t *testing.T) {
		assert.Equal(t, 0.4, c.Classify(Request{Text: "summarize"}).Complexity)
		assert.Equal(t, 0.3, c.Classify(Request{Text: "debug"}).Complexity)
	})

	t.Run("multi-step and length raise the score", func(t *testing.T) {
		short := c.Classify(Request{Text: "fix this bug"}).Complexity
		long := c.Classify(Request{Text: "First refactor the parser, then add unit tests, " +
			"after that optimize the hot loop and finally explain why in detail.\n" +
			"1. parser\n2. tests\n3. perf\n" + strings.Repeat("context ", 120)}).Complexity
		assert.Greater(t, long, short)
		assert.LessOrEqual(t, long, 1.0)
	})

	t.Run("hint overrides but keeps floor", func(t *testing.T) {
		high := 0.9
		low := 0.05
		assert.Equal(t, 0.9, c.Classify(Request{Text: "hello", Hints: Hints{Complexity: &high}}).Complexity)
		assert.Equal(t, 0.4, c.Classify(Request{Text: "summarize", Hints: Hints{Complexity: &low}}).Complexity)
	})

	t.Run("out of range hint is clamped", func(t *testing.T) {
		over := 7.0
		assert.Equal(t, 1.0, c.Classify(Request{Text: "hello", Hints: Hints{Complexity: &over}}).Complexity)
	})
}

func TestSensitivity(t *testing.T) {
	t.Run("generic text becomes sensitive_content", func(t *testing.T) {
		desc := New().Classify(Request{Text: "tell me an nsfw joke"})
		assert.True(t, desc.Sensitive)
		assert.Equal(t, SensitiveContent, desc.TaskType)
		assert.Equal(t, capability.NewSet(capability.Chat), desc.Required)
	})

	t.Run("specific task keeps its type", func(t *testing.T) {
		desc := New().Classify(Request{Text: "write an uncensored python script"})
		assert.True(t, desc.Sensitive)
		assert.Equal(t, Coding, desc.TaskType)
	})

	t.Run("configurable indicators", func(t *testing.T) {
		c := New(WithSensitivityIndicators([]string{" Spicy "}))
		assert.True(t, c.Classify(Request{Text: "something spicy please"}).Sensitive)
		assert.False(t, c.Classify(Request{Text: "nsfw"}).Sensitive)
	})
}

func TestEstimatedTokens(t *testing.T) {
	desc := New().Classify(Request{
		Text:  strings.Repeat("a", 40),
		Hints: Hints{Attachment: "paper.pdf", AttachmentTokens: 90000},
	})
	assert.Equal(t, 90010, desc.EstimatedTokens)
}

func TestContainsTrigger(t *testing.T) {
	tests := []struct {
		name     string
		prompt   string
		trigger  string
		expected bool
	}{
		{"exact match at start", "research this topic", "research", true},
		{"exact match at end", "do some research", "research", true},
		{"partial word prefix", "preresearch the topic", "research", false},
		{"partial word suffix", "researching the topic", "research", false},
		{"later bounded occurrence", "the debugger helps you debug", "debug", true},
		{"multi-word trigger", "write a function to parse json", "write a function", true},
		{"punctuation after", "fix, the bug", "fix", true},
		{"symbol trigger", "is c++ fast?", "c++", true},
		{"no match", "hello world", "research", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, containsTrigger(tt.prompt, tt.trigger))
		})
	}
}

func TestClassifyAttachment(t *testing.T) {
	assert.Equal(t, AttachmentDocument, ClassifyAttachment("application/pdf"))
	assert.Equal(t, AttachmentDocument, ClassifyAttachment("Notes.DOCX"))
	assert.Equal(t, AttachmentImage, ClassifyAttachment("image/jpeg"))
	assert.Equal(t, AttachmentImage, ClassifyAttachment("png"))
	assert.Equal(t, AttachmentCode, ClassifyAttachment("handler.go"))
	assert.Equal(t, AttachmentNone, ClassifyAttachment("archive.zip"))
	assert.Equal(t, AttachmentNone, ClassifyAttachment(""))
}
