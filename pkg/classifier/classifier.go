// Package classifier turns raw requests into task descriptors.
package classifier

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/zen-systems/routegate/pkg/capability"
)

// DefaultComplexity is used when nothing better is known.
const DefaultComplexity = 0.3

// DefaultSensitivityIndicators are matched on word boundaries.
var DefaultSensitivityIndicators = []string{
	"nsfw",
	"18+",
	"adult content",
	"erotic",
	"explicit content",
	"uncensored",
	"unfiltered",
	"gore",
	"graphic violence",
}

const (
	lengthWeight = 0.55
	stepsWeight  = 0.30
	depthWeight  = 0.15

	// Requests this long score the full length weight.
	saturationWords = 400
)

var (
	numberedLine = regexp.MustCompile(`(?m)^\s*\d+[.)]\s`)
	bulletLine   = regexp.MustCompile(`(?m)^\s*[-*•]\s`)

	stepMarkers = []string{
		"step by step", "then", "after that", "afterwards", "next", "finally",
		"followed by", "and also", "as well as",
	}
	depthMarkers = []string{
		"in detail", "detailed", "comprehensive", "thorough", "thoroughly",
		"explain why", "analyze", "analyse", "compare", "trade-offs", "tradeoffs",
		"optimize", "prove", "derive", "architecture", "edge cases", "production",
	}
)

// Classifier maps requests to descriptors with an ordered rule table.
type Classifier struct {
	rules      []Rule
	indicators []string
	logger     *zap.Logger
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithRules replaces the rule table.
func WithRules(rules []Rule) Option {
	return func(c *Classifier) { c.rules = rules }
}

// WithSensitivityIndicators replaces the sensitivity indicator list.
func WithSensitivityIndicators(indicators []string) Option {
	return func(c *Classifier) {
		c.indicators = make([]string, 0, len(indicators))
		for _, ind := range indicators {
			if ind = strings.ToLower(strings.TrimSpace(ind)); ind != "" {
				c.indicators = append(c.indicators, ind)
			}
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Classifier) { c.logger = logger }
}

// New creates a Classifier with the default rules and indicators.
func New(opts ...Option) *Classifier {
	c := &Classifier{
		rules:      DefaultRules(),
		indicators: DefaultSensitivityIndicators,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify never fails. Input that matches no rule, or a rule that panics,
// yields a conversation descriptor.
func (c *Classifier) Classify(req Request) (desc Descriptor) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("classification failed, using default",
				zap.Any("panic", r),
			)
			desc = Default(req)
		}
	}()

	in := Input{
		Text:       req.Text,
		Lower:      strings.ToLower(req.Text),
		Hints:      req.Hints,
		Attachment: ClassifyAttachment(req.Hints.Attachment),
	}

	taskType := Conversation
	var signals []string
	matched := false
	for _, rule := range c.rules {
		signal, ok := rule.Match(in)
		if !ok {
			continue
		}
		signals = append(signals, fmt.Sprintf("%s:%s", rule.Name, signal))
		if !matched {
			matched = true
			taskType = rule.TaskType
			if taskType == "" {
				taskType = req.Hints.TaskType
			}
		}
	}

	if !taskType.Valid() {
		taskType = Conversation
	}

	sensitive := c.isSensitive(in.Lower)
	if sensitive {
		signals = append(signals, "sensitive")
		if taskType == Conversation || taskType == Creative {
			taskType = SensitiveContent
		}
	}

	required := RequiredCapabilities(taskType)
	if in.Attachment == AttachmentImage {
		required = required.Union(capability.NewSet(capability.Vision))
		signals = append(signals, "attachment:vision")
	}

	desc = Descriptor{
		TaskType:        taskType,
		Complexity:      c.complexity(in, taskType),
		Required:        required,
		Sensitive:       sensitive,
		EstimatedTokens: estimateTokens(req),
		Signals:         signals,
	}

	c.logger.Debug("classified request",
		zap.String("task_type", string(desc.TaskType)),
		zap.Float64("complexity", desc.Complexity),
		zap.Bool("sensitive", desc.Sensitive),
		zap.Strings("signals", desc.Signals),
	)
	return desc
}

// Default returns the safe fallback descriptor for a request.
func Default(req Request) Descriptor {
	return Descriptor{
		TaskType:        Conversation,
		Complexity:      DefaultComplexity,
		Required:        RequiredCapabilities(Conversation),
		EstimatedTokens: estimateTokens(req),
	}
}

func (c *Classifier) isSensitive(lower string) bool {
	for _, ind := range c.indicators {
		if containsTrigger(lower, ind) {
			return true
		}
	}
	return false
}

// complexity blends length, multi-step structure and depth language, then
// applies the task type's floor.
func (c *Classifier) complexity(in Input, taskType TaskType) float64 {
	var score float64
	if in.Hints.Complexity != nil {
		score = *in.Hints.Complexity
	} else {
		words := len(strings.Fields(in.Text))
		length := math.Log1p(float64(words)) / math.Log1p(saturationWords)

		steps := float64(countTriggers(in.Lower, stepMarkers))
		steps += float64(len(numberedLine.FindAllString(in.Text, -1)))
		steps += float64(len(bulletLine.FindAllString(in.Text, -1)))
		if containsTrigger(in.Lower, "first") && containsTrigger(in.Lower, "then") {
			steps += 2
		}

		depth := float64(countTriggers(in.Lower, depthMarkers))

		score = lengthWeight*clamp(length) + stepsWeight*clamp(steps/4) + depthWeight*clamp(depth/3)
	}

	floorType := taskType
	if floorType == SensitiveContent {
		floorType = Conversation
	}
	if floor, ok := complexityFloors[floorType]; ok && score < floor {
		score = floor
	}
	return roundScore(clamp(score))
}

func estimateTokens(req Request) int {
	tokens := (len(req.Text) + 3) / 4
	if req.Hints.AttachmentTokens > 0 {
		tokens += req.Hints.AttachmentTokens
	}
	return tokens
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// roundScore keeps descriptors stable across platforms.
func roundScore(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
