package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/subtrack/internal/clock"
	"github.com/smallbiznis/subtrack/internal/customcmd/domain"
	"github.com/smallbiznis/subtrack/internal/customcmd/repository"
	subdomain "github.com/smallbiznis/subtrack/internal/subscriber/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newService(t *testing.T) (domain.Service, *clock.FakeClock) {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.AutoMigrate(&domain.Command{}))

	node, err := snowflake.NewNode(5)
	require.NoError(t, err)
	fc := clock.NewFakeClock(time.Date(2025, time.October, 5, 12, 0, 0, 0, time.UTC))
	return New(Params{DB: conn, Log: zap.NewNop(), GenID: node, Repo: repository.Provide(), Clock: fc}), fc
}

func TestSetUpsertsByName(t *testing.T) {
	svc, fc := newService(t)
	ctx := context.Background()

	first, err := svc.Set(ctx, "/Prices", "Basic 5000")
	require.NoError(t, err)
	assert.Equal(t, "prices", first.Cmd)

	fc.Advance(time.Hour)
	second, err := svc.Set(ctx, "prices", "  Basic 6000 ")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Basic 6000", second.Reply)
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt))

	got, err := svc.Get(ctx, "/PRICES")
	require.NoError(t, err)
	assert.Equal(t, "Basic 6000", got.Reply)

	cmds, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, cmds, 1)
}

func TestSetValidates(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Set(ctx, "two words", "x")
	assert.ErrorIs(t, err, domain.ErrInvalidCommand)
	assert.ErrorIs(t, err, subdomain.ErrValidation)

	_, err = svc.Set(ctx, "/", "x")
	assert.ErrorIs(t, err, domain.ErrInvalidCommand)

	_, err = svc.Set(ctx, "ok", " ")
	assert.ErrorIs(t, err, domain.ErrInvalidReply)

	_, err = svc.Set(ctx, "ok", strings.Repeat("x", domain.MaxReplyLen+1))
	assert.ErrorIs(t, err, domain.ErrInvalidReply)
}

func TestSetFoldsNames(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	cmd, err := svc.Set(ctx, "/Café-Menu", "menu")
	require.NoError(t, err)
	assert.Equal(t, "cafe_menu", cmd.Cmd)

	got, err := svc.Get(ctx, "cafe_menu")
	require.NoError(t, err)
	assert.Equal(t, "menu", got.Reply)

	_, err = svc.Set(ctx, "!!!", "x")
	assert.ErrorIs(t, err, domain.ErrInvalidCommand)
}

func TestListIsSortedAndDeleteRemoves(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		_, err := svc.Set(ctx, name, "reply "+name)
		require.NoError(t, err)
	}

	cmds, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, cmds, 3)
	assert.Equal(t, "alpha", cmds[0].Cmd)
	assert.Equal(t, "zeta", cmds[2].Cmd)

	require.NoError(t, svc.Delete(ctx, "/mid"))
	assert.ErrorIs(t, svc.Delete(ctx, "mid"), domain.ErrNotFound)
	_, err = svc.Get(ctx, "mid")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
