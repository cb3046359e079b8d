package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"docqa/internal/model"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

func q(sql string) string {
	return regexp.QuoteMeta(sql)
}

func TestDocumentRepository_TryStart(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDocumentRepository(db)

	mock.ExpectExec(q("UPDATE `documents` SET `status`=?")).
		WithArgs(model.DocumentStatusRunning, sqlmock.AnyArg(), 9, model.DocumentStatusQueued).
		WillReturnResult(sqlmock.NewResult(0, 1))
	started, err := repo.TryStart(context.Background(), 9)
	require.NoError(t, err)
	assert.True(t, started)

	mock.ExpectExec(q("UPDATE `documents` SET `status`=?")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	started, err = repo.TryStart(context.Background(), 9)
	require.NoError(t, err)
	assert.False(t, started, "a second claim must lose")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepository_FailQueued(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDocumentRepository(db)

	mock.ExpectExec(q("UPDATE `documents` SET `error_message`=?,`status`=?,`updated_at`=? WHERE (id = ? AND status = ?)")).
		WithArgs("start ingestion failed: boom", model.DocumentStatusError, sqlmock.AnyArg(), 9, model.DocumentStatusQueued).
		WillReturnResult(sqlmock.NewResult(0, 1))
	failed, err := repo.FailQueued(context.Background(), 9, "start ingestion failed: boom")
	require.NoError(t, err)
	assert.True(t, failed)

	mock.ExpectExec(q("UPDATE `documents` SET")).WillReturnResult(sqlmock.NewResult(0, 0))
	failed, err = repo.FailQueued(context.Background(), 9, "again")
	require.NoError(t, err)
	assert.False(t, failed, "a running document is left alone")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepository_ResetForRetry(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDocumentRepository(db)

	mock.ExpectExec(q("UPDATE `documents` SET")).WillReturnResult(sqlmock.NewResult(0, 0))
	reset, err := repo.ResetForRetry(context.Background(), 4, 1)
	require.NoError(t, err)
	assert.False(t, reset)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepository_GetByIDNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDocumentRepository(db)

	mock.ExpectQuery(q("SELECT * FROM `documents`")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	_, err := repo.GetByID(context.Background(), 3)
	assert.ErrorIs(t, err, ErrNotFound)

	mock.ExpectQuery(q("SELECT * FROM `documents`")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	doc, err := repo.GetByIDAndUserID(context.Background(), 3, 1)
	assert.NoError(t, err)
	assert.Nil(t, doc)
}

func TestDocumentRepository_DeleteCascades(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDocumentRepository(db)

	mock.ExpectBegin()
	for _, table := range []string{"citations", "messages", "chats", "chunks", "pages", "documents"} {
		mock.ExpectExec(q("DELETE FROM `" + table + "`")).WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	require.NoError(t, repo.Delete(context.Background(), 5))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChunkRepository_GetByVectorIDs(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewChunkRepository(db)

	rows := sqlmock.NewRows([]string{"id", "document_id", "page_id", "page_number", "text", "char_start", "char_end", "vector_id"}).
		AddRow(1, 7, 2, 1, "alpha", 0, 5, 0).
		AddRow(3, 7, 3, 2, "gamma", 10, 15, 2)
	mock.ExpectQuery(q("SELECT * FROM `chunks` WHERE document_id = ? AND vector_id IN (?,?)")).
		WithArgs(7, 0, 2).
		WillReturnRows(rows)

	got, err := repo.GetByVectorIDs(context.Background(), 7, []int{0, 2})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "gamma", got[1].Text)
	assert.Equal(t, 2, got[1].VectorID)
	assert.NoError(t, mock.ExpectationsWereMet())

	got, err = repo.GetByVectorIDs(context.Background(), 7, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMessageRepository_SaveAnswerIsOneTransaction(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMessageRepository(db)

	start, end := 0, 30
	mock.ExpectBegin()
	mock.ExpectExec(q("INSERT INTO `messages`")).WillReturnResult(sqlmock.NewResult(10, 1))
	mock.ExpectExec(q("INSERT INTO `messages`")).WillReturnResult(sqlmock.NewResult(11, 1))
	mock.ExpectExec(q("INSERT INTO `citations`")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(q("UPDATE `chats` SET `updated_at`=?")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	id, err := repo.SaveAnswer(context.Background(), 3, "q?", "a [p. 2]", []model.Citation{
		{PageNumber: 2, CharStart: &start, CharEnd: &end},
	})
	require.NoError(t, err)
	assert.Equal(t, uint(11), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepository_SaveAnswerRollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMessageRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(q("INSERT INTO `messages`")).WillReturnResult(sqlmock.NewResult(10, 1))
	mock.ExpectExec(q("INSERT INTO `messages`")).WillReturnError(errors.New("lock wait timeout"))
	mock.ExpectRollback()

	_, err := repo.SaveAnswer(context.Background(), 3, "q?", "a", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save answer failed")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepository_ListPreloadsCitations(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMessageRepository(db)
	now := time.Now()

	mock.ExpectQuery(q("SELECT * FROM `messages` WHERE chat_id = ? ORDER BY created_at DESC, id DESC LIMIT ?")).
		WithArgs(3, 100).
		WillReturnRows(sqlmock.NewRows([]string{"id", "chat_id", "role", "content", "created_at"}).
			AddRow(2, 3, model.RoleAssistant, "a [p. 2]", now).
			AddRow(1, 3, model.RoleUser, "q?", now))
	mock.ExpectQuery(q("SELECT * FROM `citations` WHERE `citations`.`message_id` IN (?,?)")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "message_id", "page_number", "char_start", "char_end", "created_at"}).
			AddRow(5, 2, 2, 0, 30, now))

	msgs, err := repo.ListByChatID(context.Background(), 3, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, uint(1), msgs[0].ID, "latest page comes back oldest first")
	assert.Equal(t, uint(2), msgs[1].ID)
	assert.Empty(t, msgs[0].Citations)
	require.Len(t, msgs[1].Citations, 1)
	assert.Equal(t, 2, msgs[1].Citations[0].PageNumber)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_Taken(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery(q("SELECT `username`,`email` FROM `users`")).
		WillReturnRows(sqlmock.NewRows([]string{"username", "email"}).AddRow("other", "a@b.c"))
	nameTaken, emailTaken, err := repo.Taken(context.Background(), "alice", "a@b.c")
	require.NoError(t, err)
	assert.False(t, nameTaken)
	assert.True(t, emailTaken)
}
