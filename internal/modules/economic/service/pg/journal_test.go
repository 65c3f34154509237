package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentinel_bot/internal/models"
	"sentinel_bot/internal/modules/economic/service"
	"sentinel_bot/pkg/db"
)

type execCall struct {
	sql  string
	args []any
}

type fakeTx struct {
	calls   []execCall
	failOn  int
	execErr error
}

func (f *fakeTx) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, execCall{sql: sql, args: args})
	if f.execErr != nil && len(f.calls) == f.failOn {
		return pgconn.CommandTag{}, f.execErr
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeTx) Query(context.Context, string, ...interface{}) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeTx) QueryRow(context.Context, string, ...interface{}) pgx.Row { return nil }

type fakeTxManager struct {
	tx   *fakeTx
	runs int
}

func (m *fakeTxManager) RunMaster(ctx context.Context, fn func(ctxTx context.Context, tx db.Transaction) error) error {
	m.runs++
	return fn(ctx, m.tx)
}

func (m *fakeTxManager) RunRepeatableRead(ctx context.Context, fn func(ctxTx context.Context, tx db.Transaction) error) error {
	return fn(ctx, m.tx)
}

func TestJournalRecord(t *testing.T) {
	tm := &fakeTxManager{tx: &fakeTx{}}
	j := NewJournal(tm)

	ev := models.EconomicEvent{ID: "E1", Country: "US", Importance: 2, Time: time.Date(2026, 1, 2, 13, 30, 0, 0, time.UTC)}
	deliveries := []service.Delivery{
		{Event: ev, Subscriber: service.SubscriberRef{Country: "US", Importance: 3, ID: "a"}},
		{Event: ev, Subscriber: service.SubscriberRef{Country: "US", Importance: 3, ID: "b"}, Err: errors.New("boom")},
	}

	require.NoError(t, j.Record(context.Background(), deliveries))
	assert.Equal(t, 1, tm.runs)
	require.Len(t, tm.tx.calls, 2)

	first := tm.tx.calls[0].args
	assert.Equal(t, "E1", first[0])
	assert.Equal(t, "a", first[1])
	assert.Equal(t, true, first[5])
	assert.Nil(t, first[6])
	assert.Contains(t, string(first[7].([]byte)), `"event_id":"E1"`)

	second := tm.tx.calls[1].args
	assert.Equal(t, false, second[5])
	require.NotNil(t, second[6])
	assert.Equal(t, "boom", *(second[6].(*string)))
}

func TestJournalRecordEmpty(t *testing.T) {
	tm := &fakeTxManager{tx: &fakeTx{}}
	require.NoError(t, NewJournal(tm).Record(context.Background(), nil))
	assert.Zero(t, tm.runs)
}

func TestJournalRecordError(t *testing.T) {
	tm := &fakeTxManager{tx: &fakeTx{failOn: 1, execErr: errors.New("conn reset")}}
	err := NewJournal(tm).Record(context.Background(), []service.Delivery{{Event: models.EconomicEvent{ID: "E1"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pg.Record")
	assert.Contains(t, err.Error(), "conn reset")
}

func TestEnsureSchema(t *testing.T) {
	tm := &fakeTxManager{tx: &fakeTx{}}
	require.NoError(t, NewJournal(tm).EnsureSchema(context.Background()))
	require.Len(t, tm.tx.calls, 1)
	assert.Contains(t, tm.tx.calls[0].sql, "CREATE TABLE IF NOT EXISTS economic_deliveries")
}
