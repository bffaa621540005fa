package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sleepalarm/internal/config"
	"sleepalarm/internal/model"
	"sleepalarm/internal/sleep"
)

func sampleSnapshot() *Snapshot {
	s := &Snapshot{
		Sounds: map[string]string{"1": "bell.caf"},
		Records: sleep.Records{
			WakeDates: []string{"2025-01-01"},
			WakeTimes: []string{"07:15:00 AM"},
		},
	}
	s.SetAlarmTimes([]model.WallTime{
		model.MustWallTime(8, 0, 0, model.AM),
		model.MustWallTime(8, 5, 0, model.AM),
	})
	return s
}

func sampleLog() model.TriggerLogState {
	return model.TriggerLogState{Keys: []string{"8:0:0", "8:5:0"}, LastResetDay: "2025-01-01"}
}

// exercise runs the same contract against every backend.
func exercise(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	snap, err := s.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.True(t, snap.Empty())

	st, err := s.LoadTriggerLog(ctx)
	require.NoError(t, err)
	assert.Empty(t, st.Keys)
	assert.Empty(t, st.LastResetDay)

	require.NoError(t, s.SaveSnapshot(ctx, sampleSnapshot()))
	require.NoError(t, s.SaveTriggerLog(ctx, sampleLog()))

	snap, err = s.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"08:00:00 AM", "08:05:00 AM"}, snap.Alarms)
	assert.Equal(t, "bell.caf", snap.Sounds["1"])
	assert.Equal(t, []string{"07:15:00 AM"}, snap.WakeTimes)

	times, err := snap.AlarmTimes()
	require.NoError(t, err)
	assert.Equal(t, model.MustWallTime(8, 5, 0, model.AM), times[1])

	st, err = s.LoadTriggerLog(ctx)
	require.NoError(t, err)
	assert.Equal(t, sampleLog(), st)

	// Overwrite: only the latest snapshot survives.
	require.NoError(t, s.SaveSnapshot(ctx, &Snapshot{}))
	require.NoError(t, s.SaveTriggerLog(ctx, model.TriggerLogState{LastResetDay: "2025-01-02"}))
	snap, err = s.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.True(t, snap.Empty())
	st, err = s.LoadTriggerLog(ctx)
	require.NoError(t, err)
	assert.Empty(t, st.Keys)
	assert.Equal(t, "2025-01-02", st.LastResetDay)
}

func TestMemoryStore(t *testing.T) {
	m := NewMemory()
	exercise(t, m)
	assert.Equal(t, 4, m.Saves())

	m.SaveErr = errors.New("boom")
	assert.Error(t, m.SaveSnapshot(context.Background(), sampleSnapshot()))
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	snap := sampleSnapshot()
	require.NoError(t, m.SaveSnapshot(ctx, snap))
	snap.Alarms[0] = "changed"

	got, err := m.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "08:00:00 AM", got.Alarms[0])
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, zap.NewNop())
	require.NoError(t, err)
	exercise(t, s)

	_, err = os.Stat(filepath.Join(dir, snapshotFile))
	assert.NoError(t, err)
}

func TestFileStoreCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, snapshotFile), []byte("alarms: [\n"), 0o600))
	s, err := NewFileStore(dir, nil)
	require.NoError(t, err)

	_, err = s.LoadSnapshot(context.Background())
	assert.ErrorContains(t, err, "decode")
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStoreWithClient(client, "test:", zap.NewNop())
	t.Cleanup(func() { _ = s.Close() })

	exercise(t, s)

	require.NoError(t, s.SaveTriggerLog(context.Background(), sampleLog()))
	members, err := mr.Members("test:triggered")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"8:0:0", "8:5:0"}, members)
	day, err := mr.Get("test:triggered:last_reset_day")
	require.NoError(t, err)
	assert.Equal(t, "2025-01-01", day)
}

func TestNewRedisStorePingFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisStore(context.Background(), config.RedisConfig{Addr: addr}, nil)
	assert.ErrorContains(t, err, "redis ping")
}

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *PostgresStore) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock, NewPostgresStoreWithDB(db, zap.NewNop())
}

func TestPostgresLoadSnapshotEmpty(t *testing.T) {
	db, mock, s := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT payload FROM sleepalarm_state`).
		WithArgs(rowSnapshot).
		WillReturnError(sql.ErrNoRows)

	snap, err := s.LoadSnapshot(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.Empty())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLoadSnapshot(t *testing.T) {
	db, mock, s := setupMockDB(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"payload"}).
		AddRow([]byte(`{"alarms":["08:00:00 AM"],"sounds":{"1":"bell.caf"},"sleep_dates":["2025-01-01"],"sleep_times":["07:20:00 AM"]}`))
	mock.ExpectQuery(`SELECT payload FROM sleepalarm_state`).
		WithArgs(rowSnapshot).
		WillReturnRows(rows)

	snap, err := s.LoadSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"08:00:00 AM"}, snap.Alarms)
	assert.Equal(t, []string{"07:20:00 AM"}, snap.SleepTimes)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSaveTriggerLog(t *testing.T) {
	db, mock, s := setupMockDB(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO sleepalarm_state`).
		WithArgs(rowTriggerLog, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.SaveTriggerLog(context.Background(), sampleLog()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSaveError(t *testing.T) {
	db, mock, s := setupMockDB(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO sleepalarm_state`).
		WithArgs(rowSnapshot, sqlmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))

	err := s.SaveSnapshot(context.Background(), sampleSnapshot())
	assert.ErrorContains(t, err, "connection reset")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresEnsureSchema(t *testing.T) {
	db, mock, s := setupMockDB(t)
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS sleepalarm_state`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLoadTriggerLog(t *testing.T) {
	db, mock, s := setupMockDB(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"payload"}).
		AddRow([]byte(`{"keys":["9:5:3"],"last_reset_day":"2025-01-01"}`))
	mock.ExpectQuery(`SELECT payload FROM sleepalarm_state`).
		WithArgs(rowTriggerLog).
		WillReturnRows(rows)

	st, err := s.LoadTriggerLog(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"9:5:3"}, st.Keys)
	assert.Equal(t, "2025-01-01", st.LastResetDay)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewSelectsBackend(t *testing.T) {
	s, err := New(context.Background(), config.StoreConfig{Backend: config.BackendMemory}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	s, err = New(context.Background(), config.StoreConfig{Backend: config.BackendFile, Dir: t.TempDir()}, nil)
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	_, err = New(context.Background(), config.StoreConfig{Backend: "etcd"}, nil)
	assert.Error(t, err)
}

func TestSnapshotAlarmTimesSkipsGarbage(t *testing.T) {
	s := &Snapshot{Alarms: []string{"08:00:00 AM", "lunch"}}
	times, err := s.AlarmTimes()
	assert.Error(t, err)
	assert.Len(t, times, 1)
}
