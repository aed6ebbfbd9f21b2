// Package preprocess implements the deterministic, I/O-free text
// preprocessing stage: Unicode normalization, quality flagging, language
// detection, and scoring.
//
// The pipeline never panics on malformed input: every failure mode surfaces
// as a quality flag, never an error return, mirroring the teacher's
// Reducer[S] idiom (graph/state.go) of a pure function with no error path.
package preprocess

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Quality flags.
const (
	FlagOK            = "ok"
	FlagTooShort      = "too_short"
	FlagTooLong       = "too_long"
	FlagGarbageInput  = "garbage_input"
	FlagOnlySymbols   = "only_symbols"
	FlagHighEntropy   = "high_entropy"
	FlagRepeatedChars = "repeated_chars"
	FlagSpamLike      = "spam_like"
	FlagContainsCode  = "contains_code"
	FlagContainsURL   = "contains_url"
)

var qualityPenalty = map[string]float64{
	FlagTooShort:      0.2,
	FlagTooLong:       0.1,
	FlagGarbageInput:  0.8,
	FlagOnlySymbols:   0.7,
	FlagHighEntropy:   0.4,
	FlagRepeatedChars: 0.15,
	FlagSpamLike:      0.5,
	FlagContainsURL:   0.05,
	FlagContainsCode:  0,
}

// Result is the output of one preprocessing pass.
type Result struct {
	NormalizedText      string
	OriginalText        string
	Language            string
	LanguageConfidence  float64
	QualityFlags        []string
	QualityScore        float64
	WordCount           int
	CharCount           int
	ContainsCode        bool
	ContainsURL         bool
	PreprocessingTimeMs int64
}

var (
	urlRe           = regexp.MustCompile(`(?i)(https?://\S+|www\.\S+)`)
	codeFenceRe     = regexp.MustCompile("```")
	inlineCodeRe    = regexp.MustCompile("`[^`\n]+`")
	codeDeclRe      = regexp.MustCompile(`(?m)\b(function|def|class|import|const|let|var|public|private static)\b\s+\w+`)
	zeroWidthRe     = regexp.MustCompile(`[\x{200B}-\x{200D}\x{FEFF}]`)
	controlRe       = regexp.MustCompile(`[\x00-\x08\x0B-\x1F]`)
	whitespaceRunRe = regexp.MustCompile(`\s{3,}`)
	spamBangRe      = regexp.MustCompile(`!{3,}`)
)

// Preprocess runs the full deterministic pipeline over raw input.
func Preprocess(input string) Result {
	start := time.Now()

	original := input
	normalized := normalize(input)
	normalized, repeated := collapseRepeatedChars(normalized)

	flags := make([]string, 0, 4)
	if repeated {
		flags = append(flags, FlagRepeatedChars)
	}

	charCount := len([]rune(normalized))
	wordCount := len(strings.Fields(normalized))

	if charCount < 2 {
		flags = append(flags, FlagTooShort)
	}
	if charCount > 10000 {
		flags = append(flags, FlagTooLong)
	}

	containsURL := urlRe.MatchString(normalized)
	if containsURL {
		flags = append(flags, FlagContainsURL)
	}
	containsCode := codeFenceRe.MatchString(normalized) || inlineCodeRe.MatchString(normalized) || codeDeclRe.MatchString(normalized)
	if containsCode {
		flags = append(flags, FlagContainsCode)
	}

	onlySymbols := isOnlySymbols(normalized)
	if onlySymbols {
		flags = append(flags, FlagOnlySymbols)
	}

	highEntropy := isHighEntropy(normalized)
	if highEntropy {
		flags = append(flags, FlagHighEntropy)
	}

	alnumRatio := alphanumericRatio(normalized)
	length := charCount
	garbage := onlySymbols || (highEntropy && length > 50) || (alnumRatio < 0.3 && length > 10)
	if garbage {
		flags = append(flags, FlagGarbageInput)
	}

	if isSpamLike(normalized) {
		flags = append(flags, FlagSpamLike)
	}

	if len(flags) == 0 {
		flags = append(flags, FlagOK)
	}

	lang, langConf := detectLanguage(stripURLsAndEmails(normalized))

	score := qualityScore(flags)

	return Result{
		NormalizedText:      normalized,
		OriginalText:        original,
		Language:            lang,
		LanguageConfidence:  langConf,
		QualityFlags:        flags,
		QualityScore:        score,
		WordCount:           wordCount,
		CharCount:           charCount,
		ContainsCode:        containsCode,
		ContainsURL:         containsURL,
		PreprocessingTimeMs: time.Since(start).Milliseconds(),
	}
}

// normalize applies Unicode NFKC, strips C0 control characters (keeping tab
// and newline) and zero-width marks, then collapses runs of 3+ whitespace
// characters to a single space.
func normalize(s string) string {
	s = norm.NFKC.String(s)
	s = controlRe.ReplaceAllString(s, "")
	s = zeroWidthRe.ReplaceAllString(s, "")
	s = whitespaceRunRe.ReplaceAllString(s, " ")
	return s
}

// collapseRepeatedChars reduces any rune repeated 5+ times consecutively to
// two copies, operating rune-by-rune so multi-byte characters are never
// split mid-sequence.
func collapseRepeatedChars(s string) (string, bool) {
	runes := []rune(s)
	if len(runes) == 0 {
		return s, false
	}
	var b strings.Builder
	b.Grow(len(s))
	collapsed := false

	i := 0
	for i < len(runes) {
		j := i + 1
		for j < len(runes) && runes[j] == runes[i] {
			j++
		}
		runLen := j - i
		if runLen >= 5 {
			b.WriteRune(runes[i])
			b.WriteRune(runes[i])
			collapsed = true
		} else {
			for k := 0; k < runLen; k++ {
				b.WriteRune(runes[i])
			}
		}
		i = j
	}
	return b.String(), collapsed
}

// isOnlySymbols reports whether s, once whitespace is removed, is non-empty
// and contains no letters or digits.
func isOnlySymbols(s string) bool {
	hasAny := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		hasAny = true
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	return hasAny
}

func isHighEntropy(s string) bool {
	runes := []rune(s)
	if len(runes) <= 20 {
		return false
	}
	seen := make(map[rune]struct{}, len(runes))
	for _, r := range runes {
		seen[r] = struct{}{}
	}
	ratio := float64(len(seen)) / float64(len(runes))
	return ratio > 0.9
}

func alphanumericRatio(s string) float64 {
	runes := []rune(s)
	if len(runes) == 0 {
		return 1
	}
	count := 0
	for _, r := range runes {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			count++
		}
	}
	return float64(count) / float64(len(runes))
}

// isSpamLike is a conservative heuristic not given an exact algorithm by the
// specification: excessive "!" runs or a long, mostly-uppercase message.
func isSpamLike(s string) bool {
	if spamBangRe.MatchString(s) {
		return true
	}
	runes := []rune(s)
	if len(runes) < 12 {
		return false
	}
	upper, letters := 0, 0
	for _, r := range runes {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	return letters > 10 && float64(upper)/float64(letters) > 0.8
}

func qualityScore(flags []string) float64 {
	score := 1.0
	for _, f := range flags {
		score -= qualityPenalty[f]
	}
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}

var emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

func stripURLsAndEmails(s string) string {
	s = urlRe.ReplaceAllString(s, " ")
	s = emailRe.ReplaceAllString(s, " ")
	return s
}
