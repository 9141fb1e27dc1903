package classifier

import (
	"github.com/zen-systems/routegate/pkg/capability"
)

// TaskType is the closed set of task categories the router understands.
type TaskType string

const (
	Conversation     TaskType = "conversation"
	Coding           TaskType = "coding"
	DocumentAnalysis TaskType = "document_analysis"
	Creative         TaskType = "creative"
	ImageGeneration  TaskType = "image_generation"
	VideoGeneration  TaskType = "video_generation"
	SensitiveContent TaskType = "sensitive_content"
)

// TaskTypes lists every task type in a stable order.
var TaskTypes = []TaskType{
	Conversation,
	Coding,
	DocumentAnalysis,
	Creative,
	ImageGeneration,
	VideoGeneration,
	SensitiveContent,
}

// Valid reports whether t is a known task type.
func (t TaskType) Valid() bool {
	for _, known := range TaskTypes {
		if t == known {
			return true
		}
	}
	return false
}

// requiredCapabilities maps each task type to the tags a provider must carry.
var requiredCapabilities = map[TaskType]capability.Set{
	Conversation:     capability.NewSet(capability.Chat),
	Coding:           capability.NewSet(capability.Coding, capability.Accuracy),
	DocumentAnalysis: capability.NewSet(capability.LongContext),
	Creative:         capability.NewSet(capability.Creative),
	ImageGeneration:  capability.NewSet(capability.ImageGeneration),
	VideoGeneration:  capability.NewSet(capability.VideoGeneration),
	SensitiveContent: capability.NewSet(capability.Chat),
}

// complexityFloors raise the estimate for tasks that need a capable model
// even when the request is short.
var complexityFloors = map[TaskType]float64{
	Conversation:     DefaultComplexity,
	Coding:           0.3,
	DocumentAnalysis: 0.4,
	Creative:         0.3,
	ImageGeneration:  0.2,
	VideoGeneration:  0.2,
}

// RequiredCapabilities returns the capability set for a task type.
func RequiredCapabilities(t TaskType) capability.Set {
	if caps, ok := requiredCapabilities[t]; ok {
		return caps
	}
	return requiredCapabilities[Conversation]
}

// Hints are optional caller-supplied facts about a request.
type Hints struct {
	// TaskType forces the task type when set to a known value.
	TaskType TaskType `json:"task_type,omitempty"`
	// Attachment is the attached file's extension or MIME type, e.g. "pdf" or "image/png".
	Attachment string `json:"attachment,omitempty"`
	// AttachmentTokens is the estimated token size of the attachment.
	AttachmentTokens int `json:"attachment_tokens,omitempty"`
	// Complexity overrides the computed estimate.
	Complexity *float64 `json:"complexity,omitempty"`
}

// Request is the raw input to classification.
type Request struct {
	Text  string `json:"text"`
	Hints Hints  `json:"hints,omitempty"`
}

// Descriptor is the classified form of a request.
type Descriptor struct {
	TaskType        TaskType       `json:"task_type"`
	Complexity      float64        `json:"complexity"`
	Required        capability.Set `json:"required_capabilities"`
	Sensitive       bool           `json:"sensitive"`
	EstimatedTokens int            `json:"estimated_tokens"`
	Signals         []string       `json:"signals,omitempty"`
}
