package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suratdinas/backend/internal/users"
	"go.uber.org/zap"
)

type credentialsPayload struct {
	Username     string `json:"username" form:"username"`
	Password     string `json:"password" form:"password"`
	IsAdmin      bool   `json:"isAdmin" form:"isAdmin"`
	DepartmentID string `json:"departmentId" form:"departmentId"`
}

type loginResponsePayload struct {
	Token     string     `json:"token"`
	TokenType string     `json:"token_type"`
	ExpiresIn int64      `json:"expires_in"`
	User      users.User `json:"user"`
}

type verifyResponsePayload struct {
	Valid        bool   `json:"valid"`
	UserID       string `json:"userId"`
	IsAdmin      bool   `json:"isAdmin"`
	DepartmentID string `json:"departmentId,omitempty"`
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request credentialsPayload
	if err := bindPayload(c, &request); err != nil {
		respondBadRequest(c, "invalid_request", err)
		return
	}
	user, err := h.users.Authenticate(c.Request.Context(), request.Username, request.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}
	token, expiresIn, err := h.tokens.Issue(user.ID, user.IsAdmin, user.Department())
	if err != nil {
		h.logger.Error("failed to issue access token", zap.String("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorPayload{
			Error:   "token_issue_failed",
			Code:    "auth.token_issue_failed",
			Message: internalErrorMessage,
		})
		return
	}
	c.JSON(http.StatusOK, loginResponsePayload{
		Token:     token,
		TokenType: "Bearer",
		ExpiresIn: expiresIn,
		User:      user,
	})
}

func (h *httpHandler) handleRegister(c *gin.Context) {
	var request credentialsPayload
	if err := bindPayload(c, &request); err != nil {
		respondBadRequest(c, "invalid_request", err)
		return
	}
	user, err := h.users.Register(c.Request.Context(), users.RegisterInput{
		Username:     request.Username,
		Password:     request.Password,
		IsAdmin:      request.IsAdmin,
		DepartmentID: request.DepartmentID,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

// handleVerify answers for a token that already passed authorizeRequest.
func (h *httpHandler) handleVerify(c *gin.Context) {
	caller := callerFrom(c)
	c.JSON(http.StatusOK, verifyResponsePayload{
		Valid:        true,
		UserID:       caller.UserID,
		IsAdmin:      caller.IsAdmin,
		DepartmentID: caller.DepartmentID,
	})
}

func (h *httpHandler) handleListUsers(c *gin.Context) {
	accounts, err := h.users.List(c.Request.Context(), c.Query("name"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, accounts)
}

func (h *httpHandler) handleProfile(c *gin.Context) {
	user, err := h.users.Profile(c.Request.Context(), callerFrom(c).UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}
