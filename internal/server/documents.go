package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suratdinas/backend/internal/documents"
)

type documentPayload struct {
	SpareCounts               *int    `json:"spareCounts" form:"spareCounts"`
	Date                      *string `json:"date" form:"date"`
	Subject                   *string `json:"subject" form:"subject"`
	To                        *string `json:"to" form:"to"`
	ClassificationID          *string `json:"classificationId" form:"classificationId"`
	LevelID                   *string `json:"levelId" form:"levelId"`
	AttachmentCount           *int    `json:"attachmentCount" form:"attachmentCount"`
	Description               *string `json:"description" form:"description"`
	DocumentIndexName         *string `json:"documentIndexName" form:"documentIndexName"`
	ActiveRetentionPeriodID   *string `json:"activeRetentionPeriodId" form:"activeRetentionPeriodId"`
	InactiveRetentionPeriodID *string `json:"inactiveRetentionPeriodId" form:"inactiveRetentionPeriodId"`
	JRADescriptionID          *string `json:"jraDescriptionId" form:"jraDescriptionId"`
	StorageLocationID         *string `json:"storageLocationId" form:"storageLocationId"`
	AccessID                  *string `json:"accessId" form:"accessId"`
	DepartmentID              *string `json:"departmentId" form:"departmentId"`
}

func (p documentPayload) content() documents.Content {
	return documents.Content{
		Subject:                   p.Subject,
		To:                        p.To,
		ClassificationID:          p.ClassificationID,
		LevelID:                   p.LevelID,
		AttachmentCount:           p.AttachmentCount,
		Description:               p.Description,
		DocumentIndexName:         p.DocumentIndexName,
		ActiveRetentionPeriodID:   p.ActiveRetentionPeriodID,
		InactiveRetentionPeriodID: p.InactiveRetentionPeriodID,
		JRADescriptionID:          p.JRADescriptionID,
		StorageLocationID:         p.StorageLocationID,
		AccessID:                  p.AccessID,
		DepartmentID:              p.DepartmentID,
	}
}

type nextNumberPayload struct {
	NextNumber int64 `json:"nextNumber"`
}

type documentRoutes struct {
	*httpHandler
	service *documents.Service
}

func (h *httpHandler) registerDocumentRoutes(group *gin.RouterGroup, kind documents.Kind) {
	routes := documentRoutes{httpHandler: h, service: h.documents[kind]}
	group.POST("", routes.handleCreate)
	group.GET("", routes.handleList)
	group.GET("/next-number", routes.handleNextNumber)
	group.GET("/download/:id", routes.handleDownload)
	group.GET("/:id", routes.handleGet)
	group.PATCH("/:id", routes.handleUpdate)
	group.DELETE("/:id", routes.handleRelease)
	group.DELETE("/:id/destroy", h.requireAdmin, routes.handleDestroy)
	group.DELETE("", h.requireAdmin, routes.handleTruncate)
}

// handleCreate numbers one reserved document, or a block of spare slots when
// spareCounts is present.
func (r documentRoutes) handleCreate(c *gin.Context) {
	var payload documentPayload
	if err := bindPayload(c, &payload); err != nil {
		respondBadRequest(c, "invalid_request", err)
		return
	}
	date, err := r.parseDate(payload.Date)
	if err != nil {
		respondBadRequest(c, "invalid_date", err)
		return
	}
	caller := callerFrom(c)
	sequence := string(r.service.Kind())

	if payload.SpareCounts != nil {
		spare := documents.SpareInput{Count: *payload.SpareCounts}
		if date != nil {
			spare.Date = *date
		} else {
			spare.Date = r.clock()
		}
		if payload.DepartmentID != nil {
			spare.DepartmentID = *payload.DepartmentID
		}
		spares, err := r.service.CreateSpares(c.Request.Context(), caller, spare)
		if err != nil {
			r.respondError(c, err)
			return
		}
		for _, document := range spares {
			r.publish(EventNumberAssigned, sequence, document.ID, document.Number, "", document.DepartmentID)
		}
		c.JSON(http.StatusCreated, spares)
		return
	}

	upload, closeUpload, err := r.uploadFrom(c)
	if err != nil {
		respondUploadError(c, err)
		return
	}
	defer closeUpload()

	document, err := r.service.Create(c.Request.Context(), caller, documents.CreateInput{
		Content:    payload.content(),
		Date:       date,
		Attachment: upload,
	})
	if err != nil {
		r.respondError(c, err)
		return
	}
	r.publish(EventNumberAssigned, sequence, document.ID, document.Number, "", document.DepartmentID)
	c.JSON(http.StatusCreated, document)
}

func (r documentRoutes) handleList(c *gin.Context) {
	filter := documents.ListFilter{
		Subject:    c.Query("subject"),
		To:         c.Query("to"),
		Descending: c.Query("order") == "desc",
	}
	var err error
	if filter.Start, err = r.parseDate(optionalQuery(c, "start")); err != nil {
		respondBadRequest(c, "invalid_date", err)
		return
	}
	if filter.End, err = r.parseDate(optionalQuery(c, "end")); err != nil {
		respondBadRequest(c, "invalid_date", err)
		return
	}
	if filter.Reserved, err = queryBool(c, "reserved"); err != nil {
		respondBadRequest(c, "invalid_query", err)
		return
	}
	if filter.RecentDays, err = queryInt(c, "recent"); err != nil {
		respondBadRequest(c, "invalid_query", err)
		return
	}

	items, err := r.service.List(c.Request.Context(), callerFrom(c), filter)
	if err != nil {
		r.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (r documentRoutes) handleNextNumber(c *gin.Context) {
	next, err := r.service.PeekNextNumber(c.Request.Context())
	if err != nil {
		r.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, nextNumberPayload{NextNumber: next})
}

func (r documentRoutes) handleGet(c *gin.Context) {
	document, err := r.service.Get(c.Request.Context(), callerFrom(c), c.Param("id"))
	if err != nil {
		r.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, document)
}

func (r documentRoutes) handleDownload(c *gin.Context) {
	download, err := r.service.OpenAttachment(c.Request.Context(), callerFrom(c), c.Param("id"))
	if err != nil {
		r.respondError(c, err)
		return
	}
	sendDownload(c, download)
}

// handleUpdate edits a reserved document or claims a spare or released slot.
func (r documentRoutes) handleUpdate(c *gin.Context) {
	var payload documentPayload
	if err := bindPayload(c, &payload); err != nil {
		respondBadRequest(c, "invalid_request", err)
		return
	}
	upload, closeUpload, err := r.uploadFrom(c)
	if err != nil {
		respondUploadError(c, err)
		return
	}
	defer closeUpload()

	caller := callerFrom(c)
	before, err := r.service.Get(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		r.respondError(c, err)
		return
	}
	document, err := r.service.Update(c.Request.Context(), caller, c.Param("id"), documents.UpdateInput{
		Content:    payload.content(),
		Attachment: upload,
	})
	if err != nil {
		r.respondError(c, err)
		return
	}
	if before.State.Claimable() {
		r.publish(EventNumberAssigned, string(r.service.Kind()), document.ID, document.Number, "", document.DepartmentID)
	}
	c.JSON(http.StatusOK, document)
}

func (r documentRoutes) handleRelease(c *gin.Context) {
	caller := callerFrom(c)
	before, err := r.service.Get(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		r.respondError(c, err)
		return
	}
	document, err := r.service.Release(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		r.respondError(c, err)
		return
	}
	r.publish(EventNumberReleased, string(r.service.Kind()), document.ID, document.Number, "", before.DepartmentID)
	c.JSON(http.StatusOK, document)
}

func (r documentRoutes) handleDestroy(c *gin.Context) {
	if err := r.service.Destroy(c.Request.Context(), callerFrom(c), c.Param("id")); err != nil {
		r.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "document deleted"})
}

// handleTruncate removes every document of the kind and restarts its
// numbering, but only when the request sets truncate.
func (r documentRoutes) handleTruncate(c *gin.Context) {
	truncate, err := truncateRequested(c)
	if err != nil {
		respondBadRequest(c, "invalid_request", err)
		return
	}
	if !truncate {
		c.JSON(http.StatusOK, gin.H{"deleted": 0, "truncated": false})
		return
	}
	deleted, err := r.service.Truncate(c.Request.Context(), callerFrom(c))
	if err != nil {
		r.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted, "truncated": true})
}

func optionalQuery(c *gin.Context, name string) *string {
	value, ok := c.GetQuery(name)
	if !ok {
		return nil
	}
	return &value
}
