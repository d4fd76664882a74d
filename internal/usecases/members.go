package usecases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wetty-chat/member-service/internal/models"
	"github.com/wetty-chat/member-service/internal/snowflake"
	storage "github.com/wetty-chat/member-service/internal/storages"
)

var (
	ErrPermissionDenied = errors.New("user is not authorized to this action")
	ErrNotAMember       = fmt.Errorf("%w: user is not a chat member", ErrPermissionDenied)
	ErrAdminRequired    = fmt.Errorf("%w: admin role required", ErrPermissionDenied)
	ErrInvalidRole      = errors.New("role must be one of: member, admin")
)

type MembersUsecase struct {
	registry storage.Registry
	ids      *snowflake.Generator
}

func NewMembersUsecase(r storage.Registry, ids *snowflake.Generator) *MembersUsecase {
	return &MembersUsecase{
		registry: r,
		ids:      ids,
	}
}

// requireMembership fails with ErrNotAMember unless uid has a
// membership row in chat, regardless of role. Read-only.
func (u *MembersUsecase) requireMembership(ctx context.Context, store storage.MembersStore, chatID, uid int64) error {
	_, err := store.GetMember(ctx, chatID, uid)
	if errors.Is(err, storage.ErrMemberNotFound) {
		return ErrNotAMember
	}
	return err
}

// requireAdmin fails with ErrNotAMember when uid is not in the chat at
// all and ErrAdminRequired when present with the member role.
func (u *MembersUsecase) requireAdmin(ctx context.Context, store storage.MembersStore, chatID, uid int64) error {
	member, err := store.GetMember(ctx, chatID, uid)
	if errors.Is(err, storage.ErrMemberNotFound) {
		return ErrNotAMember
	}
	if err != nil {
		return err
	}
	if member.Role != models.RoleAdmin {
		return ErrAdminRequired
	}
	return nil
}

// CreateChat mints a chat id, creates the chat and enrolls the caller
// as its first admin.
func (u *MembersUsecase) CreateChat(ctx context.Context, caller int64) (chat *models.Chat, err error) {
	chatID, err := u.ids.NextID()
	if err != nil {
		return nil, err
	}

	chat = &models.Chat{
		ChatID:    chatID,
		CreatedAt: time.Now().UTC(),
	}

	err = u.registry.Atomic(ctx, func(r storage.Registry) error {
		store := r.GetMembersStore()

		if err := store.CreateChat(ctx, chat); err != nil {
			return err
		}

		err := store.AddMember(ctx, &models.ChatMember{
			ChatID:   chat.ChatID,
			UID:      caller,
			Role:     models.RoleAdmin,
			JoinedAt: chat.CreatedAt,
		})
		if err != nil {
			return err
		}

		meta, err := u.updateMeta([]int64{caller})
		if err != nil {
			return err
		}
		return r.GetUpdatesStore().ChatCreated(&models.ChatCreated{
			UpdateMeta: meta,
			ChatID:     chat.ChatID,
			CreatedBy:  caller,
		})
	})

	if err != nil {
		return nil, err
	}
	return chat, nil
}

// ListMembers returns all memberships of the chat joined with
// usernames. Visible to any member, not just admins. Order is
// unspecified.
func (u *MembersUsecase) ListMembers(ctx context.Context, caller, chatID int64) (members []models.MemberWithUser, err error) {
	err = u.registry.Atomic(ctx, func(r storage.Registry) error {
		store := r.GetMembersStore()

		if err := u.requireMembership(ctx, store, chatID, caller); err != nil {
			return err
		}

		members, err = store.ListMembers(ctx, chatID)
		return err
	})
	return
}

// AddMember adds target to the chat. Caller must be an admin. Checks
// run in fixed order: authorization, user and chat existence, conflict,
// role validation. An absent role defaults to member.
func (u *MembersUsecase) AddMember(ctx context.Context, caller, chatID int64, add models.MemberAdd) (member *models.MemberWithUser, err error) {
	err = u.registry.Atomic(ctx, func(r storage.Registry) error {
		store := r.GetMembersStore()

		if err := u.requireAdmin(ctx, store, chatID, caller); err != nil {
			return err
		}

		exists, err := store.UserExists(ctx, add.UID)
		if err != nil {
			return err
		}
		if !exists {
			return storage.ErrUserNotFound
		}

		exists, err = store.ChatExists(ctx, chatID)
		if err != nil {
			return err
		}
		if !exists {
			return storage.ErrChatNotFound
		}

		_, err = store.GetMember(ctx, chatID, add.UID)
		if err == nil {
			return storage.ErrAlreadyMember
		}
		if !errors.Is(err, storage.ErrMemberNotFound) {
			return err
		}

		role := models.RoleMember
		if add.Role != nil {
			role = *add.Role
		}
		if !models.ValidRole(role) {
			return ErrInvalidRole
		}

		err = store.AddMember(ctx, &models.ChatMember{
			ChatID:   chatID,
			UID:      add.UID,
			Role:     role,
			JoinedAt: time.Now().UTC(),
		})
		if err != nil {
			return err
		}

		member, err = store.GetMemberWithUser(ctx, chatID, add.UID)
		if err != nil {
			return err
		}

		audience, err := u.chatAudience(ctx, store, chatID)
		if err != nil {
			return err
		}

		meta, err := u.updateMeta(audience)
		if err != nil {
			return err
		}
		return r.GetUpdatesStore().MemberAdded(&models.MemberAdded{
			UpdateMeta: meta,
			ChatID:     chatID,
			UID:        add.UID,
			Role:       role,
		})
	})
	return
}

// RemoveMember deletes target's membership. A member may always remove
// themself; removing anyone else requires the admin role.
func (u *MembersUsecase) RemoveMember(ctx context.Context, caller, chatID, targetUID int64) error {
	return u.registry.Atomic(ctx, func(r storage.Registry) error {
		store := r.GetMembersStore()

		if caller == targetUID {
			if err := u.requireMembership(ctx, store, chatID, caller); err != nil {
				return err
			}
		} else {
			if err := u.requireAdmin(ctx, store, chatID, caller); err != nil {
				return err
			}
		}

		if _, err := store.GetMember(ctx, chatID, targetUID); err != nil {
			return err
		}

		// Audience is captured before the delete so the removed member
		// still receives the update.
		audience, err := u.chatAudience(ctx, store, chatID)
		if err != nil {
			return err
		}

		if err := store.DeleteMember(ctx, chatID, targetUID); err != nil {
			return err
		}

		meta, err := u.updateMeta(audience)
		if err != nil {
			return err
		}
		return r.GetUpdatesStore().MemberRemoved(&models.MemberRemoved{
			UpdateMeta: meta,
			ChatID:     chatID,
			UID:        targetUID,
		})
	})
}

// UpdateMemberRole changes target's role in place, leaving joined_at
// untouched. Caller must be an admin.
func (u *MembersUsecase) UpdateMemberRole(ctx context.Context, caller, chatID, targetUID int64, role string) (member *models.MemberWithUser, err error) {
	err = u.registry.Atomic(ctx, func(r storage.Registry) error {
		store := r.GetMembersStore()

		if err := u.requireAdmin(ctx, store, chatID, caller); err != nil {
			return err
		}

		if !models.ValidRole(role) {
			return ErrInvalidRole
		}

		if err := store.UpdateMemberRole(ctx, chatID, targetUID, role); err != nil {
			return err
		}

		member, err = store.GetMemberWithUser(ctx, chatID, targetUID)
		if err != nil {
			return err
		}

		audience, err := u.chatAudience(ctx, store, chatID)
		if err != nil {
			return err
		}

		meta, err := u.updateMeta(audience)
		if err != nil {
			return err
		}
		return r.GetUpdatesStore().MemberRoleChanged(&models.MemberRoleChanged{
			UpdateMeta: meta,
			ChatID:     chatID,
			UID:        targetUID,
			Role:       role,
		})
	})
	return
}

func (u *MembersUsecase) chatAudience(ctx context.Context, store storage.MembersStore, chatID int64) ([]int64, error) {
	members, err := store.ListMembers(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("can't get chat members: %w", err)
	}
	audience := make([]int64, len(members))
	for i, member := range members {
		audience[i] = member.UID
	}
	return audience, nil
}

func (u *MembersUsecase) updateMeta(audience []int64) (models.UpdateMeta, error) {
	id, err := u.ids.NextID()
	if err != nil {
		return models.UpdateMeta{}, err
	}
	return models.UpdateMeta{
		UpdateID:  id,
		Timestamp: time.Now().UTC(),
		Audience:  audience,
	}, nil
}
