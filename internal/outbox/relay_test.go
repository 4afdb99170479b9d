package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakePublisher struct {
	fail      bool
	published []string
}

func (p *fakePublisher) PublishMessage(_ context.Context, exchange, routingKey string, body []byte, _ bool) error {
	if p.fail {
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, exchange+"/"+routingKey+":"+string(body))
	return nil
}

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{Conn: conn, SkipInitializeWithVersion: true}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

var outboxColumns = []string{"id", "aggregate_id", "event_type", "payload", "target_exchange", "target_routing_key", "status", "retry_count", "created_at", "processed_at", "error_message"}

func TestProcessPending_Empty(t *testing.T) {
	db, mock := newMockDB(t)
	relay := NewMessageRelay(db, &fakePublisher{}, zerolog.Nop(), 0)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM `outbox_messages` WHERE status = \\?.*FOR UPDATE SKIP LOCKED").
		WillReturnRows(sqlmock.NewRows(outboxColumns))
	mock.ExpectCommit()

	sent, err := relay.ProcessPending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessPending_PublishesAndMarksSent(t *testing.T) {
	db, mock := newMockDB(t)
	pub := &fakePublisher{}
	relay := NewMessageRelay(db, pub, zerolog.Nop(), time.Second)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM `outbox_messages`").WillReturnRows(
		sqlmock.NewRows(outboxColumns).
			AddRow(1, "req-1", "analysis.completed", `{"request_id":"req-1"}`, "ex", "analysis.completed", "PENDING", 0, time.Now(), nil, ""),
	)
	mock.ExpectExec("UPDATE `outbox_messages` SET").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	sent, err := relay.ProcessPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, []string{`ex/analysis.completed:{"request_id":"req-1"}`}, pub.published)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessPending_PublishFailureKeepsPending(t *testing.T) {
	db, mock := newMockDB(t)
	relay := NewMessageRelay(db, &fakePublisher{fail: true}, zerolog.Nop(), time.Second)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM `outbox_messages`").WillReturnRows(
		sqlmock.NewRows(outboxColumns).
			AddRow(7, "req-7", "analysis.failed", `{}`, "ex", "analysis.failed", "PENDING", 1, time.Now(), nil, ""),
	)
	mock.ExpectExec("UPDATE `outbox_messages` SET").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	sent, err := relay.ProcessPending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessPending_UpdateErrorRollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	relay := NewMessageRelay(db, &fakePublisher{}, zerolog.Nop(), time.Second)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM `outbox_messages`").WillReturnRows(
		sqlmock.NewRows(outboxColumns).
			AddRow(3, "req-3", "analysis.completed", `{}`, "ex", "rk", "PENDING", 0, time.Now(), nil, ""),
	)
	mock.ExpectExec("UPDATE `outbox_messages` SET").WillReturnError(errors.New("deadlock"))
	mock.ExpectRollback()

	_, err := relay.ProcessPending(context.Background())
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStartStop(t *testing.T) {
	db, _ := newMockDB(t)
	relay := NewMessageRelay(db, &fakePublisher{}, zerolog.Nop(), time.Hour)
	relay.Start(context.Background())
	relay.Stop()
	relay.Stop()
}
