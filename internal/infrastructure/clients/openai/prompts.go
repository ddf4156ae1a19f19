package openai

import "fmt"

const extractionSystemPrompt = `You convert a nurse's spoken shift note into a structured handoff report.
Return ONLY valid JSON with this schema:
{
  "summary": string (2-4 sentences, clinical tone),
  "pain_score": integer 0-10 or null when not mentioned,
  "consciousness": one of "Alert", "Confused", "Drowsy", "Responds to Voice", "Responds to Pain", "Unresponsive", "Unknown",
  "risk_factors": string[],
  "access_lines": string[] (IV lines, catheters, drains),
  "pending_labs": string[] (labs or rechecks still outstanding, with timing),
  "action_items": string[] (what the next shift must do),
  "tasks": [{"title": string, "description": string, "priority": "low"|"medium"|"high", "category": string}]
}
Use categories such as "Medication", "Lab Work", "Vitals", "Wound Care", "Mobility", "Nutrition", "Communication".
Only record what the note says. Do not invent findings. If consciousness is not described and the patient is reported stable, use "Alert".`

const strictExtractionSystemPrompt = `Return ONLY a JSON object, no prose and no code fences, with exactly these keys:
summary (string, required, non-empty), pain_score (integer 0-10 or null), consciousness (string),
risk_factors (string array), access_lines (string array), pending_labs (string array),
action_items (string array), tasks (array of objects with title, description, priority, category).
Use empty arrays when nothing applies.`

const translationSystemPrompt = `You translate clinical shift notes. Preserve every number, medication name, dose, unit and time exactly.
Do not summarise, add or omit information. Return only the translated text.`

func buildExtractionUserPrompt(text, language string) string {
	if language == "" {
		language = "the same language as the note"
	}
	return fmt.Sprintf("Write every text field in %s.\n\nShift note:\n%s", language, text)
}

func buildTranslationUserPrompt(text, target string) string {
	return fmt.Sprintf("Translate into %s:\n\n%s", target, text)
}

func buildAnswerUserPrompt(contextText, question string) string {
	return fmt.Sprintf("Context from the patient's reports:\n\n%s\n\nQuestion: %s", contextText, question)
}
