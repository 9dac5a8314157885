package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

var (
	ErrNotFound       = errors.New("not_found")
	ErrInvalidCommand = errors.New("invalid_command")
	ErrInvalidReply   = errors.New("invalid_reply")
)

const (
	MaxCommandLen = 32
	MaxReplyLen   = 4096
)

// Command is an operator-defined canned reply keyed by its command name.
type Command struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Cmd       string       `gorm:"column:cmd;not null;uniqueIndex;size:32" json:"cmd"`
	Reply     string       `gorm:"column:reply;not null" json:"reply"`
	UpdatedAt time.Time    `gorm:"column:updated_at;not null" json:"updated_at"`
}

func (Command) TableName() string { return "custom_cmds" }

// NormalizeName strips a leading slash and folds the name to the
// [a-z0-9_] alphabet chat clients accept for commands.
func NormalizeName(raw string) (string, error) {
	name := strings.TrimPrefix(strings.TrimSpace(raw), "/")
	if name == "" || strings.ContainsAny(name, " \t\r\n/") {
		return "", ErrInvalidCommand
	}
	name = strings.ReplaceAll(slug.Make(name), "-", "_")
	if name == "" || len(name) > MaxCommandLen {
		return "", ErrInvalidCommand
	}
	return name, nil
}

type Repository interface {
	Upsert(ctx context.Context, db *gorm.DB, cmd *Command) error
	FindByName(ctx context.Context, db *gorm.DB, name string) (*Command, error)
	List(ctx context.Context, db *gorm.DB) ([]Command, error)
	Delete(ctx context.Context, db *gorm.DB, name string) (int64, error)
}

type Service interface {
	Set(ctx context.Context, name, reply string) (Command, error)
	Get(ctx context.Context, name string) (Command, error)
	List(ctx context.Context) ([]Command, error)
	Delete(ctx context.Context, name string) error
}
