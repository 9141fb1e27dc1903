package adapter

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/zen-systems/routegate/pkg/artifact"
)

var deliberationTags = []string{"think", "thinking", "reasoning"}

type tagPatterns struct {
	block *regexp.Regexp
	open  *regexp.Regexp
	close *regexp.Regexp
}

var deliberationPatterns = func() []tagPatterns {
	out := make([]tagPatterns, 0, len(deliberationTags))
	for _, tag := range deliberationTags {
		out = append(out, tagPatterns{
			block: regexp.MustCompile(`(?is)<` + tag + `>.*?</` + tag + `>`),
			open:  regexp.MustCompile(`(?i)<` + tag + `>`),
			close: regexp.MustCompile(`(?i)</` + tag + `>`),
		})
	}
	return out
}()

// ErrEmptyOutput is returned when a provider produced nothing usable.
var ErrEmptyOutput = errors.New("empty output")

// StripDeliberation removes internal deliberation markers from model output.
// A closing tag with no opener drops everything before it; an opener with no
// closing tag drops everything after it.
func StripDeliberation(text string) string {
	for _, p := range deliberationPatterns {
		text = p.block.ReplaceAllString(text, "")
	}
	// Offsets always index the text they were matched against.
	for _, p := range deliberationPatterns {
		if locs := p.close.FindAllStringIndex(text, -1); len(locs) > 0 {
			text = text[locs[len(locs)-1][1]:]
		}
		if loc := p.open.FindStringIndex(text); loc != nil {
			text = text[:loc[0]]
		}
	}
	return strings.TrimSpace(text)
}

// Clean wraps p so every successful invocation returns stripped, non-empty output.
func Clean(p Provider) Provider {
	if _, ok := p.(*cleanProvider); ok {
		return p
	}
	return &cleanProvider{inner: p}
}

// AsPinger returns the health-check interface of p, looking through Clean.
func AsPinger(p Provider) (Pinger, bool) {
	if c, ok := p.(*cleanProvider); ok {
		p = c.inner
	}
	pinger, ok := p.(Pinger)
	return pinger, ok
}

type cleanProvider struct {
	inner Provider
}

func (c *cleanProvider) Describe() Info {
	return c.inner.Describe()
}

func (c *cleanProvider) Invoke(ctx context.Context, prompt string, params Params) (*artifact.Artifact, error) {
	name := c.inner.Describe().Name
	art, err := c.inner.Invoke(ctx, prompt, params)
	if err != nil {
		return nil, Classify(name, err)
	}
	if art == nil {
		return nil, NewError(name, KindInvalidResponse, ErrEmptyOutput)
	}
	content := art.Content
	if art.Kind == artifact.KindText || art.Kind == "" {
		content = StripDeliberation(content)
	} else {
		content = strings.TrimSpace(content)
	}
	if content == "" {
		return nil, NewError(name, KindInvalidResponse, ErrEmptyOutput)
	}
	if content != art.Content {
		art = art.Revise(content)
	}
	return art, nil
}
