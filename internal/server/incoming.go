package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suratdinas/backend/internal/incoming"
)

const sequenceLetterIn = "letter_in"

type letterInPayload struct {
	AgendaNumber     *int64  `json:"noAgenda" form:"noAgenda"`
	Year             *int    `json:"tahun" form:"tahun"`
	LetterNumber     *string `json:"noSurat" form:"noSurat"`
	Sender           *string `json:"suratDari" form:"suratDari"`
	Subject          *string `json:"perihal" form:"perihal"`
	LetterDate       *string `json:"tglSurat" form:"tglSurat"`
	ReceivedDate     *string `json:"diterimaTgl" form:"diterimaTgl"`
	Direct           *bool   `json:"langsungKe" form:"langsungKe"`
	AddressedTo      *string `json:"ditujukanKe" form:"ditujukanKe"`
	ClassificationID *string `json:"classificationId" form:"classificationId"`
	LetterTypeID     *string `json:"letterTypeId" form:"letterTypeId"`
	Agenda           *bool   `json:"agenda" form:"agenda"`
	StartDate        string  `json:"tglMulai" form:"tglMulai"`
	EndDate          string  `json:"tglSelesai" form:"tglSelesai"`
	StartTime        string  `json:"jamMulai" form:"jamMulai"`
	EndTime          string  `json:"jamSelesai" form:"jamSelesai"`
	Place            string  `json:"tempat" form:"tempat"`
	Event            string  `json:"acara" form:"acara"`
	Notes            *string `json:"catatan" form:"catatan"`
}

func (h *httpHandler) letterInput(c *gin.Context) (incoming.LetterInput, bool) {
	var payload letterInPayload
	if err := bindPayload(c, &payload); err != nil {
		respondBadRequest(c, "invalid_request", err)
		return incoming.LetterInput{}, false
	}
	letterDate, err := h.parseDate(payload.LetterDate)
	if err != nil {
		respondBadRequest(c, "invalid_date", err)
		return incoming.LetterInput{}, false
	}
	receivedDate, err := h.parseDate(payload.ReceivedDate)
	if err != nil {
		respondBadRequest(c, "invalid_date", err)
		return incoming.LetterInput{}, false
	}
	return incoming.LetterInput{
		AgendaNumber:     payload.AgendaNumber,
		Year:             payload.Year,
		LetterNumber:     payload.LetterNumber,
		Sender:           payload.Sender,
		Subject:          payload.Subject,
		LetterDate:       letterDate,
		ReceivedDate:     receivedDate,
		Direct:           payload.Direct,
		AddressedTo:      payload.AddressedTo,
		ClassificationID: payload.ClassificationID,
		LetterTypeID:     payload.LetterTypeID,
		Agenda:           payload.Agenda,
		AgendaDetails: incoming.AgendaInput{
			StartDate: payload.StartDate,
			EndDate:   payload.EndDate,
			StartTime: payload.StartTime,
			EndTime:   payload.EndTime,
			Place:     payload.Place,
			Event:     payload.Event,
			Notes:     payload.Notes,
		},
	}, true
}

type nextAgendaPayload struct {
	incoming.AgendaNumber
	Label string `json:"label"`
}

func (h *httpHandler) registerIncomingRoutes(group *gin.RouterGroup) {
	letters := group.Group("/letter-ins")
	letters.POST("", h.handleCreateLetterIn)
	letters.GET("", h.handleListLetterIns)
	letters.GET("/next-number", h.handleNextAgenda)
	letters.GET("/download/:id", h.handleDownloadLetterIn)
	letters.GET("/:id", h.handleGetLetterIn)
	letters.PATCH("/:id", h.handleUpdateLetterIn)
	letters.DELETE("/:id", h.handleDeleteLetterIn)
	letters.DELETE("", h.requireAdmin, h.handleDeleteAllLetterIns)

	agendas := group.Group("/agendas")
	agendas.GET("", h.handleListAgendas)
	agendas.GET("/:id", h.handleGetAgenda)
}

func (h *httpHandler) handleCreateLetterIn(c *gin.Context) {
	input, ok := h.letterInput(c)
	if !ok {
		return
	}
	upload, closeUpload, err := h.uploadFrom(c)
	if err != nil {
		respondUploadError(c, err)
		return
	}
	defer closeUpload()
	input.Attachment = upload

	letter, err := h.incoming.CreateLetter(c.Request.Context(), callerFrom(c), input)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.publish(EventNumberAssigned, sequenceLetterIn, letter.ID, letter.AgendaNumber, letter.AgendaLabel(), nil)
	c.JSON(http.StatusCreated, letter)
}

func (h *httpHandler) handleListLetterIns(c *gin.Context) {
	filter := incoming.LetterFilter{
		Subject: c.Query("perihal"),
		Sender:  c.Query("suratDari"),
	}
	var err error
	if filter.Year, err = queryInt(c, "tahun"); err != nil {
		respondBadRequest(c, "invalid_query", err)
		return
	}
	if filter.Disposed, err = queryBool(c, "disposed"); err != nil {
		respondBadRequest(c, "invalid_query", err)
		return
	}
	if filter.Agenda, err = queryBool(c, "agenda"); err != nil {
		respondBadRequest(c, "invalid_query", err)
		return
	}
	letters, err := h.incoming.ListLetters(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, letters)
}

func (h *httpHandler) handleNextAgenda(c *gin.Context) {
	next, err := h.incoming.PeekNextAgenda(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, nextAgendaPayload{AgendaNumber: next, Label: next.String()})
}

func (h *httpHandler) handleGetLetterIn(c *gin.Context) {
	letter, err := h.incoming.GetLetter(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, letter)
}

func (h *httpHandler) handleDownloadLetterIn(c *gin.Context) {
	download, err := h.incoming.OpenLetterAttachment(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	sendDownload(c, download)
}

func (h *httpHandler) handleUpdateLetterIn(c *gin.Context) {
	input, ok := h.letterInput(c)
	if !ok {
		return
	}
	upload, closeUpload, err := h.uploadFrom(c)
	if err != nil {
		respondUploadError(c, err)
		return
	}
	defer closeUpload()
	input.Attachment = upload

	letter, err := h.incoming.UpdateLetter(c.Request.Context(), callerFrom(c), c.Param("id"), input)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, letter)
}

func (h *httpHandler) handleDeleteLetterIn(c *gin.Context) {
	if err := h.incoming.DeleteLetter(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "letter deleted"})
}

func (h *httpHandler) handleDeleteAllLetterIns(c *gin.Context) {
	truncate, err := truncateRequested(c)
	if err != nil {
		respondBadRequest(c, "invalid_request", err)
		return
	}
	deleted, err := h.incoming.DeleteAllLetters(c.Request.Context(), callerFrom(c), truncate)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted, "truncated": truncate})
}

func (h *httpHandler) handleListAgendas(c *gin.Context) {
	agendas, err := h.incoming.ListAgendas(c.Request.Context(), incoming.AgendaFilter{
		From: c.Query("from"),
		To:   c.Query("to"),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, agendas)
}

func (h *httpHandler) handleGetAgenda(c *gin.Context) {
	agenda, err := h.incoming.GetAgenda(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, agenda)
}
