package classifier

import (
	"path"
	"strings"
)

// AttachmentKind groups attachment types by how they affect routing.
type AttachmentKind string

const (
	AttachmentNone     AttachmentKind = ""
	AttachmentDocument AttachmentKind = "document"
	AttachmentImage    AttachmentKind = "image"
	AttachmentCode     AttachmentKind = "code"
)

var documentExtensions = map[string]bool{
	"pdf": true, "doc": true, "docx": true, "txt": true, "md": true, "rtf": true,
	"odt": true, "csv": true, "xlsx": true, "pptx": true, "html": true, "epub": true,
}

var imageExtensions = map[string]bool{
	"png": true, "jpg": true, "jpeg": true, "gif": true, "webp": true, "bmp": true, "heic": true,
}

var codeExtensions = map[string]bool{
	"go": true, "py": true, "js": true, "ts": true, "rs": true, "java": true, "c": true,
	"cpp": true, "h": true, "rb": true, "php": true, "cs": true, "kt": true, "swift": true,
	"sh": true, "sql": true,
}

// ClassifyAttachment maps a file extension or MIME type to an AttachmentKind.
func ClassifyAttachment(attachment string) AttachmentKind {
	a := strings.ToLower(strings.TrimSpace(attachment))
	if a == "" {
		return AttachmentNone
	}
	if strings.HasPrefix(a, "image/") {
		return AttachmentImage
	}
	if strings.HasPrefix(a, "text/x-") {
		return AttachmentCode
	}
	switch a {
	case "application/pdf", "application/msword", "text/plain", "text/markdown", "text/csv", "text/html":
		return AttachmentDocument
	}
	if strings.HasPrefix(a, "application/vnd.openxmlformats") {
		return AttachmentDocument
	}

	ext := strings.TrimPrefix(path.Ext(a), ".")
	if ext == "" {
		ext = a
	}
	switch {
	case documentExtensions[ext]:
		return AttachmentDocument
	case imageExtensions[ext]:
		return AttachmentImage
	case codeExtensions[ext]:
		return AttachmentCode
	}
	return AttachmentNone
}

// Input is what rule predicates inspect.
type Input struct {
	Text       string
	Lower      string
	Hints      Hints
	Attachment AttachmentKind
}

// Predicate reports whether a rule applies, and the signal that triggered it.
type Predicate func(in Input) (signal string, ok bool)

// Rule maps a predicate to a task type. Rules are evaluated in order; the
// first match decides the task type.
type Rule struct {
	Name     string
	TaskType TaskType
	Match    Predicate
}

// Keywords builds a predicate that matches any of the triggers on word boundaries.
func Keywords(triggers ...string) Predicate {
	lowered := make([]string, len(triggers))
	for i, t := range triggers {
		lowered[i] = strings.ToLower(t)
	}
	return func(in Input) (string, bool) {
		return firstTrigger(in.Lower, lowered)
	}
}

// Attached builds a predicate that matches an attachment kind.
func Attached(kind AttachmentKind) Predicate {
	return func(in Input) (string, bool) {
		if in.Attachment == kind {
			return "attachment:" + in.Hints.Attachment, true
		}
		return "", false
	}
}

// HintedTaskType matches an explicit, known task type hint.
func HintedTaskType(in Input) (string, bool) {
	if in.Hints.TaskType.Valid() {
		return "hint:" + string(in.Hints.TaskType), true
	}
	return "", false
}

// DefaultRules returns the built-in rule table in priority order: explicit
// hints, then file context, then generation intents, then keyword guesses.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "hint", Match: HintedTaskType},
		{Name: "document_attachment", TaskType: DocumentAnalysis, Match: Attached(AttachmentDocument)},
		{Name: "image_generation", TaskType: ImageGeneration, Match: Keywords(
			"generate an image", "generate image", "create an image", "make an image",
			"image of", "picture of", "photo of", "draw", "paint", "illustrate",
			"illustration", "sketch", "logo",
		)},
		{Name: "video_generation", TaskType: VideoGeneration, Match: Keywords(
			"generate a video", "make a video", "create a video", "video of",
			"video clip", "animate", "animation",
		)},
		{Name: "code_attachment", TaskType: Coding, Match: Attached(AttachmentCode)},
		{Name: "document_keywords", TaskType: DocumentAnalysis, Match: Keywords(
			"summarize", "summarise", "summary", "tldr", "key points", "document",
			"pdf", "this report", "the report", "whitepaper", "transcript", "extract from",
		)},
		{Name: "coding", TaskType: Coding, Match: Keywords(
			"write a function", "stack trace", "unit test", "function", "debug",
			"bug", "code", "compile", "compiler", "refactor", "implement", "regex",
			"algorithm", "script", "sql", "api", "python", "golang", "javascript",
			"typescript", "rust", "java", "c++", "kotlin", "bash", "html", "css",
		)},
		{Name: "creative", TaskType: Creative, Match: Keywords(
			"write a story", "short story", "story", "poem", "haiku", "lyrics",
			"song", "novel", "fiction", "screenplay", "creative", "brainstorm",
		)},
	}
}
