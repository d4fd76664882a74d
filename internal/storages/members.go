package storage

import (
	"context"
	"database/sql"
	"errors"

	sq "github.com/Masterminds/squirrel"

	"github.com/wetty-chat/member-service/internal/models"
)

var (
	ErrChatAlreadyExists = errors.New("chat with provided chat_id already exists")
	ErrChatNotFound      = errors.New("chat with provided chat_id does not exist")
	ErrUserNotFound      = errors.New("user with provided uid does not exist")
	ErrMemberNotFound    = errors.New("user is not a member of provided chat")
	ErrAlreadyMember     = errors.New("user is already a member of provided chat")
)

const (
	ChatsPrimaryKey            = "chats_pkey"
	GroupMembersPrimaryKey     = "group_members_pkey"
	GroupMembersChatForeignKey = "group_members_chat_id_fkey"
	GroupMembersUserForeignKey = "group_members_uid_fkey"
)

type MembersStorage struct {
	db Scope
}

func NewMembersStorage(db Scope) *MembersStorage {
	return &MembersStorage{
		db: db,
	}
}

func (s *MembersStorage) CreateChat(ctx context.Context, chat *models.Chat) error {
	query, args, err := sq.Insert("chats").
		Columns("chat_id", "created_at").
		Values(chat.ChatID, chat.CreatedAt).
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, query, args...)

	if GetPgxConstraintName(err) == ChatsPrimaryKey {
		return ErrChatAlreadyExists
	}
	return err
}

func (s *MembersStorage) ChatExists(ctx context.Context, chatID int64) (bool, error) {
	return s.exists(ctx, "chats", sq.Eq{"chat_id": chatID})
}

func (s *MembersStorage) UserExists(ctx context.Context, uid int64) (bool, error) {
	return s.exists(ctx, "users", sq.Eq{"uid": uid})
}

func (s *MembersStorage) exists(ctx context.Context, table string, pred sq.Eq) (bool, error) {
	query, args, err := sq.Select("1").
		From(table).
		Where(pred).
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return false, err
	}

	one := 0
	err = s.db.QueryRowxContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return true, nil
}

func (s *MembersStorage) GetMember(ctx context.Context, chatID, uid int64) (*models.ChatMember, error) {
	query, args, err := sq.Select("chat_id", "uid", "role", "joined_at").
		From("group_members").
		Where(sq.Eq{"chat_id": chatID, "uid": uid}).
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return nil, err
	}

	member := models.ChatMember{}
	err = s.db.GetContext(ctx, &member, query, args...)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMemberNotFound
	} else if err != nil {
		return nil, err
	}
	return &member, nil
}

func (s *MembersStorage) GetMemberWithUser(ctx context.Context, chatID, uid int64) (*models.MemberWithUser, error) {
	query, args, err := sq.Select("uid", "role", "joined_at", "username").
		From("group_members").
		Join("users USING(uid)").
		Where(sq.Eq{"chat_id": chatID, "uid": uid}).
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return nil, err
	}

	member := models.MemberWithUser{}
	err = s.db.GetContext(ctx, &member, query, args...)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMemberNotFound
	} else if err != nil {
		return nil, err
	}
	return &member, nil
}

func (s *MembersStorage) ListMembers(ctx context.Context, chatID int64) ([]models.MemberWithUser, error) {
	query, args, err := sq.Select("uid", "role", "joined_at", "username").
		From("group_members").
		Join("users USING(uid)").
		Where(sq.Eq{"chat_id": chatID}).
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return nil, err
	}

	members := make([]models.MemberWithUser, 0)
	err = s.db.SelectContext(ctx, &members, query, args...)
	if err != nil {
		return nil, err
	}
	return members, nil
}

func (s *MembersStorage) AddMember(ctx context.Context, member *models.ChatMember) error {
	query, args, err := sq.Insert("group_members").
		Columns("chat_id", "uid", "role", "joined_at").
		Values(member.ChatID, member.UID, member.Role, member.JoinedAt).
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, query, args...)

	switch GetPgxConstraintName(err) {
	case GroupMembersPrimaryKey:
		return ErrAlreadyMember
	case GroupMembersChatForeignKey:
		return ErrChatNotFound
	case GroupMembersUserForeignKey:
		return ErrUserNotFound
	}
	return err
}

func (s *MembersStorage) DeleteMember(ctx context.Context, chatID, uid int64) error {
	query, args, err := sq.Delete("group_members").
		Where(sq.Eq{"chat_id": chatID, "uid": uid}).
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	count, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if count == 0 {
		return ErrMemberNotFound
	}
	return nil
}

func (s *MembersStorage) UpdateMemberRole(ctx context.Context, chatID, uid int64, role string) error {
	query, args, err := sq.Update("group_members").
		Set("role", role).
		Where(sq.Eq{"chat_id": chatID, "uid": uid}).
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	count, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if count == 0 {
		return ErrMemberNotFound
	}
	return nil
}
