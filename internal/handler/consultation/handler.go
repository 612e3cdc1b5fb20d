package consultation

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/mis-api/internal/middleware"
	"github.com/jwalitptl/mis-api/internal/model"
	"github.com/jwalitptl/mis-api/internal/permission"
	"github.com/jwalitptl/mis-api/internal/repository"
	"github.com/jwalitptl/mis-api/internal/service/consultation"
	apperrors "github.com/jwalitptl/mis-api/pkg/errors"
	"github.com/jwalitptl/mis-api/pkg/httputil"
)

type Handler struct {
	service *consultation.Service
}

func NewHandler(service *consultation.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	consultations := r.Group("/consultations")
	{
		consultations.GET("/", h.authorize(permission.ActionList), h.ListConsultations)
		consultations.POST("/", h.authorize(permission.ActionCreate), h.CreateConsultation)
		consultations.GET("/:id/", h.authorize(permission.ActionRetrieve), h.GetConsultation)
		consultations.PUT("/:id/", h.authorize(permission.ActionUpdate), h.UpdateConsultation)
		consultations.PATCH("/:id/", h.authorize(permission.ActionPartialUpdate), h.PartialUpdateConsultation)
		consultations.DELETE("/:id/", h.authorize(permission.ActionDestroy), h.DeleteConsultation)
		consultations.POST("/:id/change_status/", h.authorize(permission.ActionChangeStatus), h.ChangeStatus)
	}
}

// authorize rejects actors the collection rule excludes before the body
// is read.
func (h *Handler) authorize(action permission.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.service.Authorize(middleware.CurrentUser(c), action); err != nil {
			httputil.RespondWithError(c, err)
			c.Abort()
			return
		}
		c.Next()
	}
}

func (h *Handler) CreateConsultation(c *gin.Context) {
	var req model.CreateConsultationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, httputil.BindError(err))
		return
	}

	created, err := h.service.Create(c.Request.Context(), middleware.CurrentUser(c), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, model.NewConsultationResponse(created))
}

func (h *Handler) GetConsultation(c *gin.Context) {
	id, ok := consultationID(c)
	if !ok {
		return
	}

	found, err := h.service.Get(c.Request.Context(), middleware.CurrentUser(c), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.NewConsultationResponse(found))
}

func (h *Handler) ListConsultations(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	items, err := h.service.List(c.Request.Context(), middleware.CurrentUser(c), filter)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.NewConsultationListResponse(items))
}

func (h *Handler) UpdateConsultation(c *gin.Context) {
	id, ok := consultationID(c)
	if !ok {
		return
	}

	var req model.UpdateConsultationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, httputil.BindError(err))
		return
	}

	updated, err := h.service.Update(c.Request.Context(), middleware.CurrentUser(c), id, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.NewConsultationResponse(updated))
}

func (h *Handler) PartialUpdateConsultation(c *gin.Context) {
	id, ok := consultationID(c)
	if !ok {
		return
	}

	var req model.PatchConsultationRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		httputil.RespondWithError(c, httputil.BindError(err))
		return
	}

	updated, err := h.service.PartialUpdate(c.Request.Context(), middleware.CurrentUser(c), id, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.NewConsultationResponse(updated))
}

func (h *Handler) DeleteConsultation(c *gin.Context) {
	id, ok := consultationID(c)
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), middleware.CurrentUser(c), id); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) ChangeStatus(c *gin.Context) {
	id, ok := consultationID(c)
	if !ok {
		return
	}

	var req model.ChangeStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		httputil.RespondWithError(c, httputil.BindError(err))
		return
	}

	updated, err := h.service.ChangeStatus(c.Request.Context(), middleware.CurrentUser(c), id, req.Status)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.NewConsultationResponse(updated))
}

// consultationID parses the path id. Anything but a positive integer
// cannot name a row and is answered with 404.
func consultationID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		httputil.RespondWithError(c, apperrors.NotFound(err))
		return 0, false
	}
	return id, true
}

func parseFilter(c *gin.Context) (model.ConsultationFilter, error) {
	filter := model.ConsultationFilter{
		Search:   repository.SearchTerms(c.Query("search")),
		Ordering: repository.ParseOrdering(c.Query("ordering")),
	}
	fields := make(map[string][]string)

	if status := c.Query("status"); status != "" {
		if !model.ConsultationStatus(status).Valid() {
			fields["status"] = []string{fmt.Sprintf("Select a valid choice. %s is not one of the available choices.", status)}
		}
		filter.Status = status
	}

	for param, dst := range map[string]**int64{
		"clinic__id":  &filter.ClinicID,
		"doctor__id":  &filter.DoctorID,
		"patient__id": &filter.PatientID,
	} {
		raw := c.Query(param)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			fields[param] = []string{"Enter a number."}
			continue
		}
		*dst = &v
	}

	if len(fields) > 0 {
		return filter, apperrors.Validation(fields)
	}
	return filter, nil
}
