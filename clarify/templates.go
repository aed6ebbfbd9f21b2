package clarify

// defaultTemplates holds the static per-kind template sets, generalizing
// graph/cost.go's defaultModelPricing map-as-table idiom into a
// clarification-kind lookup. Placeholders: {intent_a}, {intent_b}, {slot},
// {term}.
var defaultTemplates = map[Kind][]string{
	KindContextUnclear: {
		"No estoy seguro de haber entendido. ¿Podrías darme más detalles?",
		"¿Podrías reformular tu pregunta? No logro identificar el tema.",
		"Necesito un poco más de contexto para ayudarte bien.",
	},
	KindIntentAmbiguous: {
		"¿Te refieres a {intent_a} o a {intent_b}?",
		"No estoy seguro si quieres {intent_a} o {intent_b}. ¿Cuál de los dos?",
	},
	KindEntityAmbiguous: {
		"Cuando dices \"{term}\", ¿a qué te refieres exactamente?",
		"\"{term}\" puede significar varias cosas. ¿Puedes ser más específico?",
	},
	KindEntityMissing: {
		"Para continuar, necesito saber {slot}.",
		"¿Podrías indicarme {slot}?",
	},
}

// defaultIntentLabels maps internal intent tags to human-readable Spanish
// phrasing, e.g. for use inside KindIntentAmbiguous templates.
var defaultIntentLabels = map[string]string{
	"research":           "investigar información",
	"summarize":          "resumir un texto",
	"translate":          "traducir algo",
	"write":              "redactar un texto",
	"code":               "escribir código",
	"explain":            "explicar un concepto",
	"compare":            "comparar opciones",
	"schedule":           "agendar algo",
	"troubleshoot":       "resolver un problema",
	"document_analysis":  "analizar un documento",
	"data_analysis":      "analizar datos",
	"multi_step_task":    "completar una tarea de varios pasos",
}

// defaultSlotLabels maps internal slot names to human-readable Spanish
// phrasing, e.g. for use inside KindEntityMissing templates.
var defaultSlotLabels = map[string]string{
	"topic":     "el tema",
	"date":      "la fecha",
	"location":  "el lugar",
	"language":  "el idioma",
	"format":    "el formato deseado",
	"length":    "la extensión deseada",
	"recipient": "el destinatario",
}
