package database

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/handoff/backend/internal/domain/entities"
	apperrors "github.com/zatekoja/handoff/backend/pkg/errors"
)

var reportColumnNames = []string{
	"id", "patient_id", "note_id", "author_id", "shift_type", "summary",
	"pain_score", "consciousness", "risk_factors", "access_lines", "pending_labs",
	"action_items", "language", "embedding", "embedding_model", "embedded_at", "created_at",
}

func sampleReport() (*entities.Report, []*entities.Task) {
	pain := 3
	now := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	report := &entities.Report{
		ID: "r1", PatientID: "p1", NoteID: "note-1", AuthorID: "nurse-1",
		ShiftType: entities.ShiftDay, Summary: "Patient stable.", PainScore: &pain,
		Consciousness: entities.ConsciousnessAlert, PendingLabs: []string{"recheck in 2 hours"},
		Language: "en", CreatedAt: now,
	}
	tasks := []*entities.Task{{
		ID: "t1", Title: "Recheck labs", Priority: entities.TaskPriorityMedium, Category: "Lab Work",
		Status: entities.TaskStatusPending, NoteID: "note-1", PatientID: "p1", CreatedAt: now,
	}}
	return report, tasks
}

func TestReportAdapter_CreateWithTasks_SingleTransaction(t *testing.T) {
	client, mock := setupMockDB(t)
	adapter := NewReportAdapter(client)
	report, tasks := sampleReport()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "reports"`)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "tasks"`)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, adapter.CreateWithTasks(context.Background(), report, tasks))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReportAdapter_CreateWithTasks_NoTasks(t *testing.T) {
	client, mock := setupMockDB(t)
	adapter := NewReportAdapter(client)
	report, _ := sampleReport()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "reports"`)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, adapter.CreateWithTasks(context.Background(), report, nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReportAdapter_CreateWithTasks_DuplicateNoteIsConflict(t *testing.T) {
	client, mock := setupMockDB(t)
	adapter := NewReportAdapter(client)
	report, tasks := sampleReport()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "reports"`)).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "reports_note_id_key"})
	mock.ExpectRollback()

	err := adapter.CreateWithTasks(context.Background(), report, tasks)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReportAdapter_CreateWithTasks_TaskFailureRollsBack(t *testing.T) {
	client, mock := setupMockDB(t)
	adapter := NewReportAdapter(client)
	report, tasks := sampleReport()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "reports"`)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "tasks"`)).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := adapter.CreateWithTasks(context.Background(), report, tasks)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeInternal))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReportAdapter_GetByIDs_ScopedToPatient(t *testing.T) {
	client, mock := setupMockDB(t)
	adapter := NewReportAdapter(client)
	now := time.Now()

	rows := sqlmock.NewRows(reportColumnNames).AddRow(
		"r1", "p1", "note-1", "nurse-1", "day", "Patient stable.",
		int64(3), "Alert", []byte("{}"), []byte("{}"), []byte(`{"recheck in 2 hours"}`),
		[]byte(`{"Recheck labs"}`), "en", []byte("[0.1,0.2,0.3]"), "text-embedding-3-small", now, now,
	)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM "reports" WHERE (("id" IN ('r1', 'r9')) AND ("patient_id" = 'p1'))`)).
		WillReturnRows(rows)

	reports, err := adapter.GetByIDs(context.Background(), "p1", []string{"r1", "r9"})
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "p1", reports[0].PatientID)
	assert.Equal(t, []string{"recheck in 2 hours"}, reports[0].PendingLabs)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, reports[0].Embedding)
	require.NotNil(t, reports[0].PainScore)
	assert.Equal(t, 3, *reports[0].PainScore)
}

func TestReportAdapter_GetByIDs_Empty(t *testing.T) {
	client, _ := setupMockDB(t)
	adapter := NewReportAdapter(client)

	reports, err := adapter.GetByIDs(context.Background(), "p1", nil)
	assert.NoError(t, err)
	assert.Empty(t, reports)
}

func TestReportAdapter_GetByNoteID_NotFound(t *testing.T) {
	client, mock := setupMockDB(t)
	adapter := NewReportAdapter(client)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM "reports" WHERE ("note_id" = 'note-1')`)).
		WillReturnRows(sqlmock.NewRows(reportColumnNames))

	_, err := adapter.GetByNoteID(context.Background(), "note-1")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestReportAdapter_ListMissingEmbedding(t *testing.T) {
	client, mock := setupMockDB(t)
	adapter := NewReportAdapter(client)
	now := time.Now()

	rows := sqlmock.NewRows(reportColumnNames).AddRow(
		"r2", "p1", "note-2", "nurse-1", "night", "Restless night.",
		nil, "Drowsy", []byte("{fall risk}"), []byte("{}"), []byte("{}"),
		[]byte("{}"), "en", nil, nil, nil, now,
	)
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE ("embedding" IS NULL) ORDER BY "created_at" ASC LIMIT 100`)).
		WillReturnRows(rows)

	reports, err := adapter.ListMissingEmbedding(context.Background(), 100)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.False(t, reports[0].HasEmbedding())
	assert.Nil(t, reports[0].PainScore)
	assert.Equal(t, []string{"fall risk"}, reports[0].RiskFactors)
}

func TestReportAdapter_ListEmbedded(t *testing.T) {
	client, mock := setupMockDB(t)
	adapter := NewReportAdapter(client)

	rows := sqlmock.NewRows(reportColumnNames).AddRow(
		"r3", "p1", "note-3", "nurse-1", "day", "Stable.",
		nil, "Alert", []byte("{}"), []byte("{}"), []byte("{}"),
		[]byte("{}"), "en", []byte("[0.1,0.2]"), "text-embedding-3-small", time.Now(), time.Now(),
	)
	mock.ExpectQuery(regexp.QuoteMeta(`("embedding" IS NOT NULL)`) + `.*` +
		regexp.QuoteMeta(`("id" > 'r2')`) + `.*` +
		regexp.QuoteMeta(`ORDER BY "id" ASC LIMIT 50`)).
		WillReturnRows(rows)

	reports, err := adapter.ListEmbedded(context.Background(), "r2", 50)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "r3", reports[0].ID)
	assert.True(t, reports[0].HasEmbedding())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReportAdapter_SetEmbedding(t *testing.T) {
	client, mock := setupMockDB(t)
	adapter := NewReportAdapter(client)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "reports" SET "embedded_at"=$1,"embedding"=$2,"embedding_model"=$3 WHERE ("id" = $4)`)).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "text-embedding-3-small", "r1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := adapter.SetEmbedding(context.Background(), "r1", []float32{0.1, 0.2}, "text-embedding-3-small", time.Now())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReportAdapter_SetEmbedding_Missing(t *testing.T) {
	client, mock := setupMockDB(t)
	adapter := NewReportAdapter(client)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "reports"`)).WillReturnResult(sqlmock.NewResult(0, 0))

	err := adapter.SetEmbedding(context.Background(), "gone", []float32{0.1}, "m", time.Now())
	assert.True(t, apperrors.IsNotFound(err))
}

func TestReportAdapter_ListTasksByNoteID(t *testing.T) {
	client, mock := setupMockDB(t)
	adapter := NewReportAdapter(client)
	now := time.Now()

	rows := sqlmock.NewRows([]string{"id", "title", "description", "priority", "category", "status", "note_id", "patient_id", "created_at"}).
		AddRow("t1", "Recheck labs", "", "medium", "Lab Work", "pending", "note-1", "p1", now)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM "tasks" WHERE ("note_id" = 'note-1')`)).WillReturnRows(rows)

	tasks, err := adapter.ListTasksByNoteID(context.Background(), "note-1")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, entities.TaskPriorityMedium, tasks[0].Priority)
	assert.Equal(t, entities.TaskStatusPending, tasks[0].Status)
}
