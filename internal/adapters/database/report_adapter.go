package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/zatekoja/handoff/backend/internal/domain/entities"
	"github.com/zatekoja/handoff/backend/internal/domain/repositories"
	"github.com/zatekoja/handoff/backend/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/handoff/backend/pkg/errors"
)

var reportColumns = []interface{}{
	"id", "patient_id", "note_id", "author_id", "shift_type", "summary",
	"pain_score", "consciousness", "risk_factors", "access_lines", "pending_labs",
	"action_items", "language", "embedding", "embedding_model", "embedded_at", "created_at",
}

var taskColumns = []interface{}{
	"id", "title", "description", "priority", "category", "status", "note_id", "patient_id", "created_at",
}

// reportRow is the scan target for the reports table
type reportRow struct {
	ID             string           `db:"id"`
	PatientID      string           `db:"patient_id"`
	NoteID         string           `db:"note_id"`
	AuthorID       string           `db:"author_id"`
	ShiftType      string           `db:"shift_type"`
	Summary        string           `db:"summary"`
	PainScore      sql.NullInt64    `db:"pain_score"`
	Consciousness  string           `db:"consciousness"`
	RiskFactors    pq.StringArray   `db:"risk_factors"`
	AccessLines    pq.StringArray   `db:"access_lines"`
	PendingLabs    pq.StringArray   `db:"pending_labs"`
	ActionItems    pq.StringArray   `db:"action_items"`
	Language       string           `db:"language"`
	Embedding      *pgvector.Vector `db:"embedding"`
	EmbeddingModel sql.NullString   `db:"embedding_model"`
	EmbeddedAt     sql.NullTime     `db:"embedded_at"`
	CreatedAt      time.Time        `db:"created_at"`
}

func (r *reportRow) toEntity() *entities.Report {
	report := &entities.Report{
		ID:            r.ID,
		PatientID:     r.PatientID,
		NoteID:        r.NoteID,
		AuthorID:      r.AuthorID,
		ShiftType:     entities.ShiftType(r.ShiftType),
		Summary:       r.Summary,
		Consciousness: entities.ConsciousnessLevel(r.Consciousness),
		RiskFactors:   []string(r.RiskFactors),
		AccessLines:   []string(r.AccessLines),
		PendingLabs:   []string(r.PendingLabs),
		ActionItems:   []string(r.ActionItems),
		Language:      r.Language,
		CreatedAt:     r.CreatedAt,
	}
	if r.PainScore.Valid {
		pain := int(r.PainScore.Int64)
		report.PainScore = &pain
	}
	if r.Embedding != nil {
		report.Embedding = r.Embedding.Slice()
	}
	if r.EmbeddingModel.Valid {
		report.EmbeddingModel = &r.EmbeddingModel.String
	}
	if r.EmbeddedAt.Valid {
		report.EmbeddedAt = &r.EmbeddedAt.Time
	}
	return report
}

// ReportAdapter implements the ReportRepository interface
type ReportAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewReportAdapter creates a new report adapter
func NewReportAdapter(client *postgres.Client) repositories.ReportRepository {
	return &ReportAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// CreateWithTasks inserts the report and its tasks in one transaction
func (a *ReportAdapter) CreateWithTasks(ctx context.Context, report *entities.Report, tasks []*entities.Task) (err error) {
	var pain interface{}
	if report.PainScore != nil {
		pain = *report.PainScore
	}

	reportQuery, reportArgs, err := a.db.Insert("reports").Prepared(true).Rows(goqu.Record{
		"id":            report.ID,
		"patient_id":    report.PatientID,
		"note_id":       report.NoteID,
		"author_id":     report.AuthorID,
		"shift_type":    string(report.ShiftType),
		"summary":       report.Summary,
		"pain_score":    pain,
		"consciousness": string(report.Consciousness),
		"risk_factors":  pq.Array(nonNil(report.RiskFactors)),
		"access_lines":  pq.Array(nonNil(report.AccessLines)),
		"pending_labs":  pq.Array(nonNil(report.PendingLabs)),
		"action_items":  pq.Array(nonNil(report.ActionItems)),
		"language":      report.Language,
		"created_at":    report.CreatedAt,
	}).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build report insert", err)
	}

	tx, err := a.client.BeginTx(ctx)
	if err != nil {
		return apperrors.NewInternalError("failed to begin transaction", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, reportQuery, reportArgs...); err != nil {
		if isUniqueViolation(err) {
			return apperrors.NewConflictError(fmt.Sprintf("report for note %s already exists", report.NoteID))
		}
		return apperrors.NewInternalError("failed to insert report", err)
	}

	if len(tasks) > 0 {
		rows := make([]interface{}, 0, len(tasks))
		for _, task := range tasks {
			rows = append(rows, goqu.Record{
				"id":          task.ID,
				"title":       task.Title,
				"description": task.Description,
				"priority":    string(task.Priority),
				"category":    task.Category,
				"status":      string(task.Status),
				"note_id":     task.NoteID,
				"patient_id":  task.PatientID,
				"created_at":  task.CreatedAt,
			})
		}
		taskQuery, taskArgs, buildErr := a.db.Insert("tasks").Prepared(true).Rows(rows...).ToSQL()
		if buildErr != nil {
			err = buildErr
			return apperrors.NewInternalError("failed to build task insert", buildErr)
		}
		if _, err = tx.ExecContext(ctx, taskQuery, taskArgs...); err != nil {
			return apperrors.NewInternalError("failed to insert tasks", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return apperrors.NewInternalError("failed to commit report", err)
	}
	return nil
}

// GetByID retrieves a report by ID
func (a *ReportAdapter) GetByID(ctx context.Context, id string) (*entities.Report, error) {
	return a.getOne(ctx, goqu.Ex{"id": id}, fmt.Sprintf("report with id %s not found", id))
}

// GetByNoteID retrieves the report extracted from a note
func (a *ReportAdapter) GetByNoteID(ctx context.Context, noteID string) (*entities.Report, error) {
	return a.getOne(ctx, goqu.Ex{"note_id": noteID}, fmt.Sprintf("report for note %s not found", noteID))
}

func (a *ReportAdapter) getOne(ctx context.Context, where goqu.Ex, notFound string) (*entities.Report, error) {
	query, args, err := a.db.Select(reportColumns...).From("reports").Where(where).ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	var row reportRow
	err = a.client.DB().GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError(notFound)
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get report", err)
	}
	return row.toEntity(), nil
}

// GetByIDs loads a patient's reports by id
func (a *ReportAdapter) GetByIDs(ctx context.Context, patientID string, ids []string) ([]*entities.Report, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query, args, err := a.db.Select(reportColumns...).
		From("reports").
		Where(goqu.Ex{"patient_id": patientID, "id": ids}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	return a.selectReports(ctx, query, args)
}

// ListTasksByNoteID returns the tasks created with a note's report
func (a *ReportAdapter) ListTasksByNoteID(ctx context.Context, noteID string) ([]*entities.Task, error) {
	query, args, err := a.db.Select(taskColumns...).
		From("tasks").
		Where(goqu.Ex{"note_id": noteID}).
		Order(goqu.C("created_at").Asc()).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	var tasks []*entities.Task
	if err := a.client.DB().SelectContext(ctx, &tasks, query, args...); err != nil {
		return nil, apperrors.NewInternalError("failed to list tasks", err)
	}
	return tasks, nil
}

// ListMissingEmbedding returns reports waiting for a vector, oldest first
func (a *ReportAdapter) ListMissingEmbedding(ctx context.Context, limit int) ([]*entities.Report, error) {
	query, args, err := a.db.Select(reportColumns...).
		From("reports").
		Where(goqu.C("embedding").IsNull()).
		Order(goqu.C("created_at").Asc()).
		Limit(uint(limit)).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	return a.selectReports(ctx, query, args)
}

// ListEmbedded returns the next page of vectorised reports by id
func (a *ReportAdapter) ListEmbedded(ctx context.Context, afterID string, limit int) ([]*entities.Report, error) {
	query, args, err := a.db.Select(reportColumns...).
		From("reports").
		Where(
			goqu.C("embedding").IsNotNull(),
			goqu.C("id").Gt(afterID),
		).
		Order(goqu.C("id").Asc()).
		Limit(uint(limit)).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	return a.selectReports(ctx, query, args)
}

// SetEmbedding stores the report vector
func (a *ReportAdapter) SetEmbedding(ctx context.Context, reportID string, vector []float32, model string, at time.Time) error {
	query, args, err := a.db.Update("reports").Prepared(true).
		Set(goqu.Record{
			"embedding":       pgvector.NewVector(vector),
			"embedding_model": model,
			"embedded_at":     at,
		}).
		Where(goqu.Ex{"id": reportID}).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build update query", err)
	}

	result, err := a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.NewInternalError("failed to store embedding", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return apperrors.NewNotFoundError(fmt.Sprintf("report with id %s not found", reportID))
	}
	return nil
}

func (a *ReportAdapter) selectReports(ctx context.Context, query string, args []interface{}) ([]*entities.Report, error) {
	var rows []reportRow
	if err := a.client.DB().SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, apperrors.NewInternalError("failed to list reports", err)
	}
	reports := make([]*entities.Report, 0, len(rows))
	for i := range rows {
		reports = append(reports, rows[i].toEntity())
	}
	return reports, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
