package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wetty-chat/member-service/internal/auth"
	"github.com/wetty-chat/member-service/internal/models"
	"github.com/wetty-chat/member-service/internal/snowflake"
	storage "github.com/wetty-chat/member-service/internal/storages"
	usecase "github.com/wetty-chat/member-service/internal/usecases"
)

type memberKey struct {
	chatID int64
	uid    int64
}

type memoryStore struct {
	chats   map[int64]models.Chat
	users   map[int64]string
	members map[memberKey]models.ChatMember
}

func (s *memoryStore) CreateChat(_ context.Context, chat *models.Chat) error {
	if _, ok := s.chats[chat.ChatID]; ok {
		return storage.ErrChatAlreadyExists
	}
	s.chats[chat.ChatID] = *chat
	return nil
}

func (s *memoryStore) ChatExists(_ context.Context, chatID int64) (bool, error) {
	_, ok := s.chats[chatID]
	return ok, nil
}

func (s *memoryStore) UserExists(_ context.Context, uid int64) (bool, error) {
	_, ok := s.users[uid]
	return ok, nil
}

func (s *memoryStore) GetMember(_ context.Context, chatID, uid int64) (*models.ChatMember, error) {
	member, ok := s.members[memberKey{chatID, uid}]
	if !ok {
		return nil, storage.ErrMemberNotFound
	}
	return &member, nil
}

func (s *memoryStore) GetMemberWithUser(_ context.Context, chatID, uid int64) (*models.MemberWithUser, error) {
	member, ok := s.members[memberKey{chatID, uid}]
	if !ok {
		return nil, storage.ErrMemberNotFound
	}
	return &models.MemberWithUser{
		UID:      member.UID,
		Role:     member.Role,
		JoinedAt: member.JoinedAt,
		Username: s.users[uid],
	}, nil
}

func (s *memoryStore) ListMembers(_ context.Context, chatID int64) ([]models.MemberWithUser, error) {
	members := make([]models.MemberWithUser, 0)
	for key, member := range s.members {
		if key.chatID != chatID {
			continue
		}
		members = append(members, models.MemberWithUser{
			UID:      member.UID,
			Role:     member.Role,
			JoinedAt: member.JoinedAt,
			Username: s.users[member.UID],
		})
	}
	return members, nil
}

func (s *memoryStore) AddMember(_ context.Context, member *models.ChatMember) error {
	if _, ok := s.chats[member.ChatID]; !ok {
		return storage.ErrChatNotFound
	}
	if _, ok := s.users[member.UID]; !ok {
		return storage.ErrUserNotFound
	}
	key := memberKey{member.ChatID, member.UID}
	if _, ok := s.members[key]; ok {
		return storage.ErrAlreadyMember
	}
	s.members[key] = *member
	return nil
}

func (s *memoryStore) DeleteMember(_ context.Context, chatID, uid int64) error {
	key := memberKey{chatID, uid}
	if _, ok := s.members[key]; !ok {
		return storage.ErrMemberNotFound
	}
	delete(s.members, key)
	return nil
}

func (s *memoryStore) UpdateMemberRole(_ context.Context, chatID, uid int64, role string) error {
	key := memberKey{chatID, uid}
	member, ok := s.members[key]
	if !ok {
		return storage.ErrMemberNotFound
	}
	member.Role = role
	s.members[key] = member
	return nil
}

type noopUpdates struct{}

func (noopUpdates) ChatCreated(*models.ChatCreated) error             { return nil }
func (noopUpdates) MemberAdded(*models.MemberAdded) error             { return nil }
func (noopUpdates) MemberRemoved(*models.MemberRemoved) error         { return nil }
func (noopUpdates) MemberRoleChanged(*models.MemberRoleChanged) error { return nil }

type fakeRegistry struct {
	store *memoryStore
}

func (f *fakeRegistry) Atomic(_ context.Context, fn storage.AtomicFunc) error {
	return fn(f)
}

func (f *fakeRegistry) GetMembersStore() storage.MembersStore {
	return f.store
}

func (f *fakeRegistry) GetUpdatesStore() storage.UpdatesStore {
	return noopUpdates{}
}

func newTestRouter(t *testing.T) (*gin.Engine, *memoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gen, err := snowflake.NewGenerator(0)
	require.NoError(t, err, "failed to create generator")

	store := &memoryStore{
		chats:   map[int64]models.Chat{},
		users:   map[int64]string{},
		members: map[memberKey]models.ChatMember{},
	}

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	members := usecase.NewMembersUsecase(&fakeRegistry{store: store}, gen)
	srv := NewMemberServer(members, validator.New(), logger)
	return NewRouter(srv, auth.HeaderResolver{}, logger), store
}

func seedChat(store *memoryStore, chatID int64, admins, members []int64) {
	store.chats[chatID] = models.Chat{ChatID: chatID, CreatedAt: time.Now().UTC()}
	for _, uid := range admins {
		store.members[memberKey{chatID, uid}] = models.ChatMember{
			ChatID: chatID, UID: uid, Role: models.RoleAdmin, JoinedAt: time.Now().UTC(),
		}
	}
	for _, uid := range members {
		store.members[memberKey{chatID, uid}] = models.ChatMember{
			ChatID: chatID, UID: uid, Role: models.RoleMember, JoinedAt: time.Now().UTC(),
		}
	}
}

func doRequest(router *gin.Engine, method, path, caller, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, path, reader)
	if caller != "" {
		req.Header.Set(auth.HeaderUserID, caller)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestMissingIdentity_Unauthorized(t *testing.T) {
	router, store := newTestRouter(t)
	store.users[1] = "alice"
	seedChat(store, 1, []int64{1}, nil)

	w := doRequest(router, http.MethodGet, "/chats/1/members", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(router, http.MethodGet, "/chats/1/members", "not-a-number", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestListMembers_Statuses(t *testing.T) {
	router, store := newTestRouter(t)
	store.users[1] = "alice"
	store.users[2] = "bob"
	seedChat(store, 1, []int64{1}, []int64{2})

	w := doRequest(router, http.MethodGet, "/chats/1/members", "1", "")
	assert.Equal(t, http.StatusOK, w.Code)

	var members []models.MemberWithUser
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &members))
	assert.Len(t, members, 2)

	// Plain member may list too.
	w = doRequest(router, http.MethodGet, "/chats/1/members", "2", "")
	assert.Equal(t, http.StatusOK, w.Code)

	// Non-member is forbidden.
	w = doRequest(router, http.MethodGet, "/chats/1/members", "3", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAddMember_Statuses(t *testing.T) {
	router, store := newTestRouter(t)
	store.users[1] = "alice"
	store.users[2] = "bob"
	store.users[3] = "carol"
	seedChat(store, 1, []int64{1}, []int64{2})

	// Non-admin caller.
	w := doRequest(router, http.MethodPost, "/chats/1/members", "2", `{"uid": 3}`)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Unknown target user.
	w = doRequest(router, http.MethodPost, "/chats/1/members", "1", `{"uid": 404}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Already a member.
	w = doRequest(router, http.MethodPost, "/chats/1/members", "1", `{"uid": 2}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	// Invalid role.
	w = doRequest(router, http.MethodPost, "/chats/1/members", "1", `{"uid": 3, "role": "owner"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Success.
	w = doRequest(router, http.MethodPost, "/chats/1/members", "1", `{"uid": 3}`)
	assert.Equal(t, http.StatusCreated, w.Code)

	var member models.MemberWithUser
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &member))
	assert.Equal(t, int64(3), member.UID)
	assert.Equal(t, models.RoleMember, member.Role)
	assert.Equal(t, "carol", member.Username)
}

func TestRemoveMember_Statuses(t *testing.T) {
	router, store := newTestRouter(t)
	store.users[1] = "alice"
	store.users[2] = "bob"
	store.users[3] = "carol"
	seedChat(store, 1, []int64{1}, []int64{2, 3})

	// Member removing someone else.
	w := doRequest(router, http.MethodDelete, "/chats/1/members/3", "2", "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Self-removal.
	w = doRequest(router, http.MethodDelete, "/chats/1/members/2", "2", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	// Admin removing a non-member.
	w = doRequest(router, http.MethodDelete, "/chats/1/members/404", "1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Admin removing a member.
	w = doRequest(router, http.MethodDelete, "/chats/1/members/3", "1", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestUpdateMemberRole_Statuses(t *testing.T) {
	router, store := newTestRouter(t)
	store.users[1] = "alice"
	store.users[2] = "bob"
	seedChat(store, 1, []int64{1}, []int64{2})

	// Non-admin caller.
	w := doRequest(router, http.MethodPatch, "/chats/1/members/1", "2", `{"role": "admin"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Invalid role.
	w = doRequest(router, http.MethodPatch, "/chats/1/members/2", "1", `{"role": "owner"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Unknown target.
	w = doRequest(router, http.MethodPatch, "/chats/1/members/404", "1", `{"role": "admin"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Success.
	w = doRequest(router, http.MethodPatch, "/chats/1/members/2", "1", `{"role": "admin"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	var member models.MemberWithUser
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &member))
	assert.Equal(t, models.RoleAdmin, member.Role)
}

func TestCreateChat(t *testing.T) {
	router, store := newTestRouter(t)
	store.users[1] = "alice"

	w := doRequest(router, http.MethodPost, "/chats", "1", "")
	assert.Equal(t, http.StatusCreated, w.Code)

	var chat models.Chat
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &chat))
	assert.NotZero(t, chat.ChatID)

	member, ok := store.members[memberKey{chat.ChatID, 1}]
	require.True(t, ok, "creator should be enrolled")
	assert.Equal(t, models.RoleAdmin, member.Role)
}

func TestBadPathParameters(t *testing.T) {
	router, store := newTestRouter(t)
	store.users[1] = "alice"
	seedChat(store, 1, []int64{1}, nil)

	w := doRequest(router, http.MethodGet, "/chats/abc/members", "1", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(router, http.MethodDelete, "/chats/1/members/abc", "1", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// Full scenario over HTTP: admin adds bob, bob lists, bob fails to
// promote, admin promotes bob, bob removes himself.
func TestScenario_AdminAndMemberFlow(t *testing.T) {
	router, store := newTestRouter(t)
	store.users[1] = "alice"
	store.users[2] = "bob"
	seedChat(store, 1, []int64{1}, nil)

	w := doRequest(router, http.MethodPost, "/chats/1/members", "1", `{"uid": 2}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var added models.MemberWithUser
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &added))
	assert.Equal(t, models.RoleMember, added.Role)

	w = doRequest(router, http.MethodGet, "/chats/1/members", "2", "")
	require.Equal(t, http.StatusOK, w.Code)
	var members []models.MemberWithUser
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &members))
	assert.Len(t, members, 2)

	w = doRequest(router, http.MethodPatch, "/chats/1/members/1", "2", `{"role": "admin"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doRequest(router, http.MethodPatch, "/chats/1/members/2", "1", `{"role": "admin"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var updated models.MemberWithUser
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	assert.Equal(t, models.RoleAdmin, updated.Role)

	w = doRequest(router, http.MethodDelete, "/chats/1/members/2", "2", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doRequest(router, http.MethodGet, "/chats/1/members", "1", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &members))
	assert.Len(t, members, 1)
}
