package store

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/subtrack/internal/period"
	"github.com/smallbiznis/subtrack/internal/reminder/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.AutoMigrate(&domain.Job{}))
	return conn
}

func TestSQLStoreKeepsOneJobPerCustomer(t *testing.T) {
	s := NewSQLStore(setupTestDB(t))
	ctx := context.Background()
	fire := time.Date(2025, time.October, 9, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Save(ctx, domain.Job{ID: 1, CustomerNo: "C1", Recipient: "@a", FireAt: fire, EndDate: period.NewDate(2025, time.October, 10), CreatedAt: fire}))
	require.NoError(t, s.Save(ctx, domain.Job{ID: 2, CustomerNo: "C1", Recipient: "@b", FireAt: fire.AddDate(0, 1, 0), EndDate: period.NewDate(2025, time.November, 10), CreatedAt: fire}))
	require.NoError(t, s.Save(ctx, domain.Job{ID: 3, CustomerNo: "C2", Recipient: "@c", FireAt: fire.AddDate(0, 0, 1), EndDate: period.NewDate(2025, time.October, 11), CreatedAt: fire}))

	jobs, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "C2", jobs[0].CustomerNo)
	assert.Equal(t, "C1", jobs[1].CustomerNo)
	assert.Equal(t, "@b", jobs[1].Recipient)
	assert.Equal(t, "2025-11-10", jobs[1].EndDate.String())

	job, err := s.Get(ctx, "C1")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.EqualValues(t, 2, job.ID)

	require.NoError(t, s.Delete(ctx, "C1"))
	job, err = s.Get(ctx, "C1")
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestSQLStoreRejectsIncompleteJob(t *testing.T) {
	s := NewSQLStore(setupTestDB(t))
	err := s.Save(context.Background(), domain.Job{CustomerNo: "C1"})
	assert.ErrorIs(t, err, domain.ErrInvalidJob)
}
