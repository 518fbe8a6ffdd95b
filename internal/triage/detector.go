package triage

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultSparseTextChars is the text length below which a page is assumed
// to be mostly graphics.
const DefaultSparseTextChars = 200

// sheetNumberPattern matches architectural sheet tags like "AV2.04".
var sheetNumberPattern = regexp.MustCompile(`\b[A-Z]{1,3}\d+\.\d{2}\b`)

// DefaultForcePhrases send a page to vision regardless of text length.
func DefaultForcePhrases() []string {
	return []string{"key plan", "keynotes", "detail", "elevation", "nts", "scale:"}
}

// DrawingReason names the rule that flagged a page as a drawing.
type DrawingReason string

const (
	ReasonNone          DrawingReason = ""
	ReasonSparseText    DrawingReason = "sparse_text"
	ReasonEmbeddedImage DrawingReason = "embedded_image"
	ReasonSheetNumber   DrawingReason = "sheet_number"
	ReasonForcePhrase   DrawingReason = "force_phrase"
)

// Page is one page of source text as extracted from the document.
type Page struct {
	Number           int
	Text             string
	HasEmbeddedImage bool
}

// TextLength is the page's length in characters.
func (p Page) TextLength() int {
	return utf8.RuneCountInString(p.Text)
}

// Detector decides whether a page is a drawing.
type Detector struct {
	sparseChars int
	phrases     []*regexp.Regexp
}

// NewDetector returns a detector. Zero or negative sparseChars uses the
// default and a nil phrase list uses DefaultForcePhrases.
func NewDetector(sparseChars int, phrases []string) *Detector {
	if sparseChars <= 0 {
		sparseChars = DefaultSparseTextChars
	}
	if phrases == nil {
		phrases = DefaultForcePhrases()
	}
	compiled := make([]*regexp.Regexp, 0, len(phrases))
	for _, p := range phrases {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			compiled = append(compiled, phrasePattern(p))
		}
	}
	return &Detector{sparseChars: sparseChars, phrases: compiled}
}

// phrasePattern matches phrase as whole words, so "nts" does not fire on
// "requirements". A boundary is only asserted next to a word character;
// "scale:" ends in punctuation and matches before any following text.
// RE2's \b is ASCII only, so only ASCII word characters get one.
func phrasePattern(phrase string) *regexp.Regexp {
	expr := regexp.QuoteMeta(phrase)
	first, _ := utf8.DecodeRuneInString(phrase)
	last, _ := utf8.DecodeLastRuneInString(phrase)
	if isWordRune(first) {
		expr = `\b` + expr
	}
	if isWordRune(last) {
		expr += `\b`
	}
	return regexp.MustCompile(expr)
}

func isWordRune(r rune) bool {
	return r < utf8.RuneSelf && (r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r))
}

// IsDrawing reports whether the page is a drawing.
func (d *Detector) IsDrawing(p Page) bool {
	return d.Detect(p) != ReasonNone
}

// Detect returns the first rule that marks p as a drawing, or ReasonNone.
func (d *Detector) Detect(p Page) DrawingReason {
	if p.TextLength() < d.sparseChars {
		return ReasonSparseText
	}
	if p.HasEmbeddedImage {
		return ReasonEmbeddedImage
	}
	if sheetNumberPattern.MatchString(p.Text) {
		return ReasonSheetNumber
	}
	lower := strings.ToLower(p.Text)
	for _, re := range d.phrases {
		if re.MatchString(lower) {
			return ReasonForcePhrase
		}
	}
	return ReasonNone
}
