package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/subtrack/internal/clock"
	"github.com/smallbiznis/subtrack/internal/customcmd/domain"
	subdomain "github.com/smallbiznis/subtrack/internal/subscriber/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
	clock clock.Clock
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("customcmd.service"),
		genID: p.GenID,
		repo:  p.Repo,
		clock: p.Clock,
	}
}

func (s *Service) Set(ctx context.Context, name, reply string) (domain.Command, error) {
	name, err := domain.NormalizeName(name)
	if err != nil {
		return domain.Command{}, invalid("cmd", "must be 1-32 characters without spaces", err)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" || utf8.RuneCountInString(reply) > domain.MaxReplyLen {
		return domain.Command{}, invalid("reply", "must be 1-4096 characters", domain.ErrInvalidReply)
	}

	cmd := domain.Command{
		ID:        s.genID.Generate(),
		Cmd:       name,
		Reply:     reply,
		UpdatedAt: s.clock.Now(),
	}
	var stored *domain.Command
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Upsert(ctx, tx, &cmd); err != nil {
			return err
		}
		stored, err = s.repo.FindByName(ctx, tx, name)
		return err
	})
	if err != nil {
		return domain.Command{}, storageErr("set_command", err)
	}
	if stored == nil {
		return domain.Command{}, storageErr("set_command", fmt.Errorf("command %s not readable", name))
	}
	s.log.Info("custom command saved", zap.String("cmd", name))
	return *stored, nil
}

func (s *Service) Get(ctx context.Context, name string) (domain.Command, error) {
	name, err := domain.NormalizeName(name)
	if err != nil {
		return domain.Command{}, domain.ErrNotFound
	}
	cmd, err := s.repo.FindByName(ctx, s.db, name)
	if err != nil {
		return domain.Command{}, storageErr("get_command", err)
	}
	if cmd == nil {
		return domain.Command{}, domain.ErrNotFound
	}
	return *cmd, nil
}

func (s *Service) List(ctx context.Context) ([]domain.Command, error) {
	cmds, err := s.repo.List(ctx, s.db)
	if err != nil {
		return nil, storageErr("list_commands", err)
	}
	return cmds, nil
}

func (s *Service) Delete(ctx context.Context, name string) error {
	name, err := domain.NormalizeName(name)
	if err != nil {
		return domain.ErrNotFound
	}
	n, err := s.repo.Delete(ctx, s.db, name)
	if err != nil {
		return storageErr("delete_command", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	s.log.Info("custom command deleted", zap.String("cmd", name))
	return nil
}

func invalid(field, message string, cause error) error {
	return &subdomain.ValidationError{Field: field, Message: message, Cause: cause}
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", subdomain.ErrStorageUnavailable, op, err)
}
