package preprocess

import (
	"strings"
	"testing"
)

func TestPreprocessRoundTripIsIdempotent(t *testing.T) {
	inputs := []string{
		"Hello, how are you today?",
		"Hola, ¿cómo estás?",
		"aaaaaaaaaaaaaaaaaaaa!!!!!!",
		"   lots     of     space   ",
		"",
	}
	for _, in := range inputs {
		first := Preprocess(in)
		second := Preprocess(first.NormalizedText)
		if first.NormalizedText != second.NormalizedText {
			t.Errorf("round trip not stable for %q: %q vs %q", in, first.NormalizedText, second.NormalizedText)
		}
	}
}

func TestQualityScoreMonotonicWithFlags(t *testing.T) {
	clean := Preprocess("Hello there, this is a perfectly normal sentence.")
	if !contains(clean.QualityFlags, FlagOK) {
		t.Fatalf("expected clean input to be flagged ok, got %v", clean.QualityFlags)
	}

	garbage := Preprocess("$#@%^&*()!@#$%^&*()")
	if garbage.QualityScore >= clean.QualityScore {
		t.Errorf("expected garbage input to score lower than clean input: %v vs %v", garbage.QualityScore, clean.QualityScore)
	}
}

func TestTooShortFlag(t *testing.T) {
	res := Preprocess("h")
	if !contains(res.QualityFlags, FlagTooShort) {
		t.Errorf("expected too_short flag, got %v", res.QualityFlags)
	}
}

func TestTooLongFlag(t *testing.T) {
	res := Preprocess(strings.Repeat("a", 10001))
	if !contains(res.QualityFlags, FlagTooLong) {
		t.Errorf("expected too_long flag, got %v", res.QualityFlags)
	}
}

func TestRepeatedCharsCollapsed(t *testing.T) {
	res := Preprocess("soooooo good")
	if !contains(res.QualityFlags, FlagRepeatedChars) {
		t.Errorf("expected repeated_chars flag, got %v", res.QualityFlags)
	}
	if strings.Contains(res.NormalizedText, "ooooo") {
		t.Errorf("expected repeated run collapsed, got %q", res.NormalizedText)
	}
}

func TestContainsURLFlag(t *testing.T) {
	res := Preprocess("check out https://example.com/page for more")
	if !res.ContainsURL || !contains(res.QualityFlags, FlagContainsURL) {
		t.Errorf("expected contains_url, got %+v", res)
	}
}

func TestContainsCodeFlag(t *testing.T) {
	res := Preprocess("run `go test ./...` to check")
	if !res.ContainsCode || !contains(res.QualityFlags, FlagContainsCode) {
		t.Errorf("expected contains_code, got %+v", res)
	}
}

func TestOnlySymbolsFlag(t *testing.T) {
	res := Preprocess("!!!???###")
	if !contains(res.QualityFlags, FlagOnlySymbols) {
		t.Errorf("expected only_symbols flag, got %v", res.QualityFlags)
	}
	if !contains(res.QualityFlags, FlagGarbageInput) {
		t.Errorf("expected only_symbols to also imply garbage_input, got %v", res.QualityFlags)
	}
}

func TestHighEntropyFlag(t *testing.T) {
	res := Preprocess("qwertyuiopasdfghjklzxcvbnm")
	if !contains(res.QualityFlags, FlagHighEntropy) {
		t.Errorf("expected high_entropy flag, got %v", res.QualityFlags)
	}
}

func TestLanguageDetectionSpanish(t *testing.T) {
	res := Preprocess("Hola, ¿cómo estás? Necesito ayuda con mi pedido.")
	if res.Language != "es" {
		t.Errorf("expected es, got %s (confidence %v)", res.Language, res.LanguageConfidence)
	}
}

func TestLanguageDetectionEnglish(t *testing.T) {
	res := Preprocess("Hello, I need help with my order please.")
	if res.Language != "en" {
		t.Errorf("expected en, got %s (confidence %v)", res.Language, res.LanguageConfidence)
	}
}

func TestLanguageDetectionUnknownWhenNoMatches(t *testing.T) {
	res := Preprocess("42 99 100 7")
	if res.Language != "unknown" {
		t.Errorf("expected unknown, got %s", res.Language)
	}
	if res.LanguageConfidence != 0.5 {
		t.Errorf("expected confidence 0.5, got %v", res.LanguageConfidence)
	}
}

func TestNFKCNormalization(t *testing.T) {
	// U+FF21-style fullwidth Latin letters should normalize to ASCII form.
	res := Preprocess("ＡＢＣ")
	if res.NormalizedText == "ＡＢＣ" {
		t.Errorf("expected NFKC normalization to change fullwidth forms, got %q", res.NormalizedText)
	}
}

func TestZeroWidthAndControlCharsStripped(t *testing.T) {
	res := Preprocess("hello​world\x01")
	if strings.ContainsRune(res.NormalizedText, '​') {
		t.Errorf("expected zero-width space stripped, got %q", res.NormalizedText)
	}
	if strings.ContainsRune(res.NormalizedText, '\x01') {
		t.Errorf("expected control char stripped, got %q", res.NormalizedText)
	}
}

func contains(flags []string, f string) bool {
	for _, x := range flags {
		if x == f {
			return true
		}
	}
	return false
}
