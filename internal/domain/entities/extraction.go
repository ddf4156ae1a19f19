package entities

// Transcription is the output of speech-to-text.
type Transcription struct {
	Text       string
	Language   string
	Confidence float64
}

// ExtractionRequest is the input handed to the extraction adapter.
type ExtractionRequest struct {
	Text string
	// Language the report fields must be written in.
	Language string
	// Strict asks the adapter for a minimal, schema-only prompt after a malformed reply.
	Strict bool
}

// ExtractedTask is an action item as returned by the extractor.
type ExtractedTask struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
	Category    string `json:"category"`
}

// Extraction is the typed result of structured extraction.
type Extraction struct {
	Summary       string          `json:"summary"`
	PainScore     *int            `json:"pain_score"`
	Consciousness string          `json:"consciousness"`
	RiskFactors   []string        `json:"risk_factors"`
	AccessLines   []string        `json:"access_lines"`
	PendingLabs   []string        `json:"pending_labs"`
	ActionItems   []string        `json:"action_items"`
	Tasks         []ExtractedTask `json:"tasks"`
}

// EmbeddingMode distinguishes stored documents from search queries.
type EmbeddingMode string

const (
	EmbeddingModeDocument EmbeddingMode = "document"
	EmbeddingModeQuery    EmbeddingMode = "query"
)
