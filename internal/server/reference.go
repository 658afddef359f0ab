package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suratdinas/backend/internal/reference"
)

type referencePayload struct {
	ID      string  `json:"id" form:"id"`
	Name    string  `json:"name" form:"name"`
	OldName *string `json:"oldName" form:"oldName"`
	NewName string  `json:"newName" form:"newName"`
	Active  *bool   `json:"active" form:"active"`
}

type referenceRoutes struct {
	*httpHandler
	kind reference.Kind
}

func (h *httpHandler) registerReferenceRoutes(group *gin.RouterGroup, kind reference.Kind) {
	routes := referenceRoutes{httpHandler: h, kind: kind}
	group.POST("", routes.handleCreate)
	group.GET("", routes.handleList)
	group.GET("/:id", routes.handleGet)
	group.PATCH("/:id", routes.handleUpdate)
	group.DELETE("/:id", h.requireAdmin, routes.handleDelete)
	group.DELETE("", h.requireAdmin, routes.handleTruncate)
}

func (r referenceRoutes) handleCreate(c *gin.Context) {
	var payload referencePayload
	if err := bindPayload(c, &payload); err != nil {
		respondBadRequest(c, "invalid_request", err)
		return
	}
	entry, err := r.reference.Create(c.Request.Context(), r.kind, reference.CreateInput{
		ID:     payload.ID,
		Name:   payload.Name,
		Active: payload.Active,
	})
	if err != nil {
		r.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (r referenceRoutes) handleList(c *gin.Context) {
	active, err := queryBool(c, "active")
	if err != nil {
		respondBadRequest(c, "invalid_query", err)
		return
	}
	entries, err := r.reference.List(c.Request.Context(), r.kind, reference.ListFilter{Active: active})
	if err != nil {
		r.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (r referenceRoutes) handleGet(c *gin.Context) {
	entry, err := r.reference.Get(c.Request.Context(), r.kind, c.Param("id"))
	if err != nil {
		r.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

// handleUpdate renames or toggles an entry. newName takes precedence over name.
func (r referenceRoutes) handleUpdate(c *gin.Context) {
	var payload referencePayload
	if err := bindPayload(c, &payload); err != nil {
		respondBadRequest(c, "invalid_request", err)
		return
	}
	name := payload.Name
	if payload.NewName != "" {
		name = payload.NewName
	}
	entry, err := r.reference.Update(c.Request.Context(), r.kind, c.Param("id"), reference.UpdateInput{
		Name:    name,
		OldName: payload.OldName,
		Active:  payload.Active,
	})
	if err != nil {
		r.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (r referenceRoutes) handleDelete(c *gin.Context) {
	if err := r.reference.Delete(c.Request.Context(), r.kind, c.Param("id")); err != nil {
		r.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": r.kind.Name + " deleted"})
}

// handleTruncate empties the table only when the request asks for it.
func (r referenceRoutes) handleTruncate(c *gin.Context) {
	truncate, err := truncateRequested(c)
	if err != nil {
		respondBadRequest(c, "invalid_request", err)
		return
	}
	if !truncate {
		c.JSON(http.StatusOK, gin.H{"deleted": 0, "truncated": false})
		return
	}
	deleted, err := r.reference.Truncate(c.Request.Context(), r.kind)
	if err != nil {
		r.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted, "truncated": true})
}
