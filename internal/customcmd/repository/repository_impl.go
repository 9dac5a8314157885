package repository

import (
	"context"

	"github.com/smallbiznis/subtrack/internal/customcmd/domain"
	"github.com/smallbiznis/subtrack/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Upsert(ctx context.Context, conn *gorm.DB, cmd *domain.Command) error {
	_, err := db.Upsert(conn.WithContext(ctx), cmd, []string{"cmd"}, []string{"reply", "updated_at"})
	return err
}

func (r *repo) FindByName(ctx context.Context, conn *gorm.DB, name string) (*domain.Command, error) {
	var cmd domain.Command
	err := conn.WithContext(ctx).Raw(
		`SELECT id, cmd, reply, updated_at FROM custom_cmds WHERE cmd = ?`,
		name,
	).Scan(&cmd).Error
	if err != nil {
		return nil, err
	}
	if cmd.ID == 0 {
		return nil, nil
	}
	return &cmd, nil
}

func (r *repo) List(ctx context.Context, conn *gorm.DB) ([]domain.Command, error) {
	var out []domain.Command
	err := conn.WithContext(ctx).Raw(
		`SELECT id, cmd, reply, updated_at FROM custom_cmds ORDER BY cmd ASC`,
	).Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repo) Delete(ctx context.Context, conn *gorm.DB, name string) (int64, error) {
	res := conn.WithContext(ctx).Exec(`DELETE FROM custom_cmds WHERE cmd = ?`, name)
	return res.RowsAffected, res.Error
}
