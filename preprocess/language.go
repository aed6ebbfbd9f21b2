package preprocess

import "strings"

var esWords = []string{
	"el", "la", "los", "las", "de", "que", "y", "en", "un", "una",
	"es", "por", "con", "para", "no", "se", "su", "al", "lo", "como",
}

var enWords = []string{
	"the", "a", "an", "is", "are", "was", "were", "and", "or", "of",
	"in", "on", "for", "to", "with", "that", "this", "it", "you", "i",
}

const accentedChars = "áéíóúñÁÉÍÓÚÑ¿¡"

// detectLanguage scores normalized text against small Spanish and English
// word banks and returns the winning language with a confidence derived from
// how decisive the match was.
func detectLanguage(s string) (string, float64) {
	words := strings.Fields(strings.ToLower(s))
	if len(words) == 0 {
		return "unknown", 0.5
	}

	esSet := wordSet(esWords)
	enSet := wordSet(enWords)

	esScore, enScore := 0, 0
	for _, w := range words {
		w = strings.Trim(w, ".,!?;:\"'()[]{}")
		if _, ok := esSet[w]; ok {
			esScore++
		}
		if _, ok := enSet[w]; ok {
			enScore++
		}
	}

	if strings.ContainsAny(s, accentedChars) {
		esScore += 2
	}

	total := esScore + enScore
	if total == 0 {
		return "unknown", 0.5
	}
	if esScore == enScore {
		return "auto", 0.5
	}

	winner := "en"
	matches := enScore
	if esScore > enScore {
		winner = "es"
		matches = esScore
	}

	confidence := 0.5 + float64(matches)/(2*float64(total))
	if confidence > 0.95 {
		confidence = 0.95
	}
	return winner, confidence
}

func wordSet(words []string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
