package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/suratdinas/backend/internal/incoming"
)

const sequenceDisposition = "disposition"

type dispositionPayload struct {
	LetterInID string   `json:"letterIn_id" form:"letterIn_id"`
	Number     *int64   `json:"noDispo" form:"noDispo"`
	Date       *string  `json:"tglDispo" form:"tglDispo"`
	Recipients []string `json:"dispoKe" form:"dispoKe"`
	Content    *string  `json:"isiDispo" form:"isiDispo"`
}

func (h *httpHandler) dispositionInput(c *gin.Context) (incoming.DispositionInput, bool) {
	var payload dispositionPayload
	if err := bindPayload(c, &payload); err != nil {
		respondBadRequest(c, "invalid_request", err)
		return incoming.DispositionInput{}, false
	}
	date, err := h.parseDate(payload.Date)
	if err != nil {
		respondBadRequest(c, "invalid_date", err)
		return incoming.DispositionInput{}, false
	}
	return incoming.DispositionInput{
		LetterInID: payload.LetterInID,
		Number:     payload.Number,
		Date:       date,
		Recipients: payload.Recipients,
		Content:    payload.Content,
	}, true
}

func (h *httpHandler) registerDispositionRoutes(group *gin.RouterGroup) {
	group.GET("/next-number", h.handleNextDisposition)
	group.GET("/stats", h.handleDispositionStats)
	group.GET("/letter/:letterInId", h.handleDispositionStatus)
	group.POST("", h.handleCreateDisposition)
	group.GET("", h.handleListDispositions)
	group.GET("/:id", h.handleGetDisposition)
	group.PUT("/:id", h.handleUpdateDisposition)
	group.DELETE("/:id", h.handleDeleteDisposition)
}

func (h *httpHandler) handleCreateDisposition(c *gin.Context) {
	input, ok := h.dispositionInput(c)
	if !ok {
		return
	}
	disposition, err := h.incoming.CreateDisposition(c.Request.Context(), callerFrom(c), input)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.publish(EventNumberAssigned, sequenceDisposition, disposition.ID, disposition.Number, "", nil)
	c.JSON(http.StatusCreated, disposition)
}

func (h *httpHandler) handleListDispositions(c *gin.Context) {
	filter := incoming.DispositionFilter{LetterInID: c.Query("letterIn_id")}
	var err error
	if filter.Year, err = queryInt(c, "year"); err != nil {
		respondBadRequest(c, "invalid_query", err)
		return
	}
	if filter.Page, err = queryInt(c, "page"); err != nil {
		respondBadRequest(c, "invalid_query", err)
		return
	}
	if filter.Limit, err = queryInt(c, "limit"); err != nil {
		respondBadRequest(c, "invalid_query", err)
		return
	}
	page, err := h.incoming.ListDispositions(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *httpHandler) handleGetDisposition(c *gin.Context) {
	disposition, err := h.incoming.GetDisposition(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, disposition)
}

func (h *httpHandler) handleUpdateDisposition(c *gin.Context) {
	input, ok := h.dispositionInput(c)
	if !ok {
		return
	}
	disposition, err := h.incoming.UpdateDisposition(c.Request.Context(), callerFrom(c), c.Param("id"), input)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, disposition)
}

func (h *httpHandler) handleDeleteDisposition(c *gin.Context) {
	disposition, err := h.incoming.DeleteDisposition(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "disposition deleted", "letterIn_id": disposition.LetterInID})
}

func (h *httpHandler) handleNextDisposition(c *gin.Context) {
	next, err := h.incoming.PeekNextDisposition(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, nextNumberPayload{NextNumber: next})
}

func (h *httpHandler) handleDispositionStatus(c *gin.Context) {
	status, err := h.incoming.LetterStatus(c.Request.Context(), c.Param("letterInId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *httpHandler) handleDispositionStats(c *gin.Context) {
	year := 0
	if raw := c.Query("year"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			respondBadRequest(c, "invalid_query", nil)
			return
		}
		year = parsed
	}
	stats, err := h.incoming.Stats(c.Request.Context(), year)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
