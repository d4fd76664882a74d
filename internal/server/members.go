package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/wetty-chat/member-service/internal/auth"
	"github.com/wetty-chat/member-service/internal/models"
	storage "github.com/wetty-chat/member-service/internal/storages"
	usecase "github.com/wetty-chat/member-service/internal/usecases"
)

type MemberServer struct {
	members  *usecase.MembersUsecase
	validate *validator.Validate
	logger   *logrus.Logger
}

func NewMemberServer(m *usecase.MembersUsecase, v *validator.Validate, logger *logrus.Logger) *MemberServer {
	return &MemberServer{
		members:  m,
		validate: v,
		logger:   logger,
	}
}

// NewRouter wires middleware and routes onto a fresh engine.
func NewRouter(s *MemberServer, resolver auth.Resolver, logger *logrus.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(Logging(logger))

	chats := r.Group("/chats")
	chats.Use(Identity(resolver))
	{
		chats.POST("", s.CreateChat)
		chats.GET("/:chat_id/members", s.ListMembers)
		chats.POST("/:chat_id/members", s.AddMember)
		chats.DELETE("/:chat_id/members/:uid", s.RemoveMember)
		chats.PATCH("/:chat_id/members/:uid", s.UpdateMemberRole)
	}

	return r
}

func (s *MemberServer) CreateChat(c *gin.Context) {
	chat, err := s.members.CreateChat(c.Request.Context(), callerUID(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, chat)
}

func (s *MemberServer) ListMembers(c *gin.Context) {
	chatID, ok := pathID(c, "chat_id")
	if !ok {
		return
	}

	members, err := s.members.ListMembers(c.Request.Context(), callerUID(c), chatID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, members)
}

func (s *MemberServer) AddMember(c *gin.Context) {
	chatID, ok := pathID(c, "chat_id")
	if !ok {
		return
	}

	var body models.MemberAdd
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := s.validate.Struct(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "uid is required"})
		return
	}

	member, err := s.members.AddMember(c.Request.Context(), callerUID(c), chatID, body)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, member)
}

func (s *MemberServer) RemoveMember(c *gin.Context) {
	chatID, ok := pathID(c, "chat_id")
	if !ok {
		return
	}
	targetUID, ok := pathID(c, "uid")
	if !ok {
		return
	}

	err := s.members.RemoveMember(c.Request.Context(), callerUID(c), chatID, targetUID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *MemberServer) UpdateMemberRole(c *gin.Context) {
	chatID, ok := pathID(c, "chat_id")
	if !ok {
		return
	}
	targetUID, ok := pathID(c, "uid")
	if !ok {
		return
	}

	var body models.MemberRoleUpdate
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	member, err := s.members.UpdateMemberRole(c.Request.Context(), callerUID(c), chatID, targetUID, body.Role)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, member)
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be an integer"})
		return 0, false
	}
	return id, true
}

// writeError maps usecase and storage failures onto HTTP statuses.
// Anything unmapped is a storage or infrastructure failure: logged
// with its cause, reported generically.
func (s *MemberServer) writeError(c *gin.Context, err error) {
	errorMapper := []struct {
		from    error
		status  int
		message string
	}{
		{usecase.ErrAdminRequired, http.StatusForbidden, "admin role required"},
		{usecase.ErrNotAMember, http.StatusForbidden, "not a member of this chat"},
		{usecase.ErrPermissionDenied, http.StatusForbidden, "permission denied"},
		{usecase.ErrInvalidRole, http.StatusBadRequest, "invalid role"},
		{storage.ErrUserNotFound, http.StatusNotFound, "user not found"},
		{storage.ErrChatNotFound, http.StatusNotFound, "chat not found"},
		{storage.ErrMemberNotFound, http.StatusNotFound, "member not found"},
		{storage.ErrAlreadyMember, http.StatusConflict, "user is already a member"},
	}

	for _, mapping := range errorMapper {
		if errors.Is(err, mapping.from) {
			c.JSON(mapping.status, gin.H{"error": mapping.message})
			return
		}
	}

	s.logger.WithFields(logrus.Fields{
		"request_id": c.GetString(ctxRequestID),
		"path":       c.FullPath(),
	}).WithError(err).Error("internal error")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
