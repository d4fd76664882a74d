package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Shopify/sarama"
	"github.com/jmoiron/sqlx"

	"github.com/wetty-chat/member-service/internal/models"
)

type AtomicFunc func(Registry) error

// Registry hands out stores bound to the registry's current scope.
// Inside Atomic all stores share one transaction, so an authorization
// read and the mutation it guards see the same state.
type Registry interface {
	Atomic(ctx context.Context, fn AtomicFunc) error
	GetMembersStore() MembersStore
	GetUpdatesStore() UpdatesStore
}

type MembersStore interface {
	CreateChat(ctx context.Context, chat *models.Chat) error
	ChatExists(ctx context.Context, chatID int64) (bool, error)
	UserExists(ctx context.Context, uid int64) (bool, error)
	GetMember(ctx context.Context, chatID, uid int64) (*models.ChatMember, error)
	GetMemberWithUser(ctx context.Context, chatID, uid int64) (*models.MemberWithUser, error)
	ListMembers(ctx context.Context, chatID int64) ([]models.MemberWithUser, error)
	AddMember(ctx context.Context, member *models.ChatMember) error
	DeleteMember(ctx context.Context, chatID, uid int64) error
	UpdateMemberRole(ctx context.Context, chatID, uid int64, role string) error
}

type UpdatesStore interface {
	ChatCreated(update *models.ChatCreated) error
	MemberAdded(update *models.MemberAdded) error
	MemberRemoved(update *models.MemberRemoved) error
	MemberRoleChanged(update *models.MemberRoleChanged) error
}

type DefaultRegistry struct {
	db       *sqlx.DB
	scope    Scope
	producer sarama.SyncProducer
	cfg      *UpdatesStoreConfig
}

type Scope interface {
	sqlx.QueryerContext
	sqlx.ExecerContext
	sqlx.Execer
	sqlx.Queryer
	Get(dest interface{}, query string, args ...interface{}) error
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	Select(dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	NamedExec(query string, arg interface{}) (sql.Result, error)
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
	NamedQuery(query string, arg interface{}) (*sqlx.Rows, error)
}

func NewRegistry(db *sqlx.DB, p sarama.SyncProducer, cfg *UpdatesStoreConfig) *DefaultRegistry {
	return &DefaultRegistry{
		db:       db,
		scope:    db,
		producer: p,
		cfg:      cfg,
	}
}

func (r *DefaultRegistry) Atomic(ctx context.Context, fn AtomicFunc) (err error) {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = fmt.Errorf("rollback caused by error: \"%v\" failed: %v", err, rbErr)
			}
		} else {
			err = tx.Commit()
		}
	}()

	registry := DefaultRegistry{
		db:       r.db,
		scope:    tx,
		producer: r.producer,
		cfg:      r.cfg,
	}
	err = fn(&registry)
	return err
}

func (r *DefaultRegistry) GetMembersStore() MembersStore {
	return NewMembersStorage(r.scope)
}

func (r *DefaultRegistry) GetUpdatesStore() UpdatesStore {
	return NewUpdatesStore(r.producer, r.cfg)
}
