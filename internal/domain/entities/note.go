package entities

import "time"

// NoteState is the pipeline position of a voice note.
type NoteState string

const (
	NoteStateUploaded            NoteState = "uploaded"
	NoteStateTranscribing        NoteState = "transcribing"
	NoteStateTranslating         NoteState = "translating"
	NoteStateExtracting          NoteState = "extracting"
	NoteStateEmbedding           NoteState = "embedding"
	NoteStateProcessed           NoteState = "processed"
	NoteStateFailedTranscription NoteState = "failed:transcription"
	NoteStateFailedExtraction    NoteState = "failed:extraction"
)

// noteTransitions is the directed graph of allowed state changes.
// Edges out of failed states are only taken by an explicit retry.
var noteTransitions = map[NoteState][]NoteState{
	NoteStateUploaded:            {NoteStateTranscribing},
	NoteStateTranscribing:        {NoteStateTranslating, NoteStateExtracting, NoteStateFailedTranscription},
	NoteStateTranslating:         {NoteStateExtracting},
	NoteStateExtracting:          {NoteStateEmbedding, NoteStateFailedExtraction},
	NoteStateEmbedding:           {NoteStateProcessed},
	NoteStateFailedTranscription: {NoteStateTranscribing},
	NoteStateFailedExtraction:    {NoteStateExtracting},
}

// CanTransition reports whether a note may move from one state to another.
func CanTransition(from, to NoteState) bool {
	for _, next := range noteTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsFailed reports whether the state is a failed:<stage> state.
func (s NoteState) IsFailed() bool {
	return s == NoteStateFailedTranscription || s == NoteStateFailedExtraction
}

// IsTerminal reports whether the orchestrator has nothing left to do without a retry.
func (s NoteState) IsTerminal() bool {
	return s == NoteStateProcessed || s.IsFailed()
}

// RetryState is the stage a failed note resumes from.
func (s NoteState) RetryState() (NoteState, bool) {
	switch s {
	case NoteStateFailedTranscription:
		return NoteStateTranscribing, true
	case NoteStateFailedExtraction:
		return NoteStateExtracting, true
	}
	return "", false
}

// Valid reports whether s is a known state.
func (s NoteState) Valid() bool {
	if s == NoteStateProcessed {
		return true
	}
	_, ok := noteTransitions[s]
	return ok
}

// Note is one uploaded voice recording about a patient.
type Note struct {
	ID                   string     `json:"id" db:"id"`
	PatientID            string     `json:"patient_id" db:"patient_id"`
	AuthorID             string     `json:"author_id" db:"author_id"`
	BlobPath             string     `json:"blob_path" db:"blob_path"`
	DurationSeconds      float64    `json:"duration_seconds" db:"duration_seconds"`
	Transcript           *string    `json:"transcript,omitempty" db:"transcript"`
	DetectedLanguage     *string    `json:"detected_language,omitempty" db:"detected_language"`
	TranscriptConfidence *float64   `json:"transcript_confidence,omitempty" db:"transcript_confidence"`
	TranslatedTranscript *string    `json:"translated_transcript,omitempty" db:"translated_transcript"`
	State                NoteState  `json:"state" db:"state"`
	FailureReason        *string    `json:"failure_reason,omitempty" db:"failure_reason"`
	Unrecoverable        bool       `json:"unrecoverable" db:"unrecoverable"`
	Attempts             int        `json:"attempts" db:"attempts"`
	CreatedAt            time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at" db:"updated_at"`
	ProcessedAt          *time.Time `json:"processed_at,omitempty" db:"processed_at"`
}

// ExtractionInput returns the text handed to extraction and its language.
// A translation, when present, takes precedence over the original transcript.
func (n *Note) ExtractionInput(translationTarget string) (text, language string) {
	if n.TranslatedTranscript != nil && *n.TranslatedTranscript != "" {
		return *n.TranslatedTranscript, translationTarget
	}
	if n.Transcript != nil {
		text = *n.Transcript
	}
	if n.DetectedLanguage != nil {
		language = *n.DetectedLanguage
	}
	return text, language
}

// StateUpdate is a conditional state change; fields left nil are not written.
type StateUpdate struct {
	From                 NoteState
	To                   NoteState
	Transcript           *string
	DetectedLanguage     *string
	TranscriptConfidence *float64
	TranslatedTranscript *string
	FailureReason        *string
	ClearFailure         bool
	Unrecoverable        bool
}
