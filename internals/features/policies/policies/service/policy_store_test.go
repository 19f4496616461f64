package service

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"vulcan_backend/internals/helpers/dbtime"
)

func newMockPolicyStore(t *testing.T, clock *dbtime.FakeClock) (*GormPolicyStore, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	s := NewGormPolicyStore(db, time.Minute)
	s.Clock = clock.Clock()
	return s, mock
}

func TestGormPolicyStore_CachesHitsAndMisses(t *testing.T) {
	ctx := context.Background()
	clock := dbtime.NewFakeClock(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	s, mock := newMockPolicyStore(t, clock)

	mock.ExpectQuery(`SELECT \* FROM "policies" WHERE policy_key = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"policy_key", "policy_value"}).AddRow("proof_submission_rate_limit_web", 5))
	mock.ExpectQuery(`SELECT \* FROM "policies" WHERE policy_key = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"policy_key", "policy_value"}))

	v, ok, err := s.Get(ctx, "proof_submission_rate_limit_web")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 5, v)

	_, ok, err = s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	// served from cache, no further queries expected
	v, ok, _ = s.Get(ctx, "proof_submission_rate_limit_web")
	assert.True(t, ok)
	assert.Equal(t, 5, v)
	_, ok, _ = s.Get(ctx, "missing")
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())

	clock.Advance(2 * time.Minute)
	mock.ExpectQuery(`SELECT \* FROM "policies" WHERE policy_key = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"policy_key", "policy_value"}).AddRow("missing", 9))
	v, ok, err = s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 9, v)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIntOr(t *testing.T) {
	ctx := context.Background()
	s := NewStaticStore(map[string]int{"voucher_initial_value": 500})

	assert.Equal(t, 500, IntOr(ctx, s, "voucher_initial_value", 1))
	assert.Equal(t, 24, IntOr(ctx, s, "unknown", 24))
	assert.Equal(t, 7, IntOr(ctx, nil, "anything", 7))

	s.Set("unknown", 3)
	assert.Equal(t, 3, IntOr(ctx, s, "unknown", 24))
}
