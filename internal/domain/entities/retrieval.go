package entities

import "time"

// RetrievalEntry is a searchable vector scoped to one patient.
type RetrievalEntry struct {
	ReportID  string
	PatientID string
	Vector    []float32
	CreatedAt time.Time
}

// RetrievalQuery asks for the closest entries of a single patient.
type RetrievalQuery struct {
	PatientID     string
	Vector        []float32
	TopK          int
	MinSimilarity float64
}

// RetrievalMatch is one hit, with cosine similarity in [0,1].
type RetrievalMatch struct {
	ReportID   string  `json:"report_id"`
	PatientID  string  `json:"patient_id"`
	Similarity float64 `json:"similarity"`
}

// AnswerSource links an answer back to the report it drew on.
type AnswerSource struct {
	ReportID   string    `json:"report_id"`
	ShiftType  ShiftType `json:"shift_type"`
	CreatedAt  time.Time `json:"created_at"`
	Similarity float64   `json:"similarity"`
}

// Answer is the response to a patient question.
type Answer struct {
	Text    string         `json:"answer"`
	Found   bool           `json:"found"`
	Sources []AnswerSource `json:"sources"`
}
