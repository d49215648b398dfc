package appointment

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicore/clinicore/internal/domain/identity"
	"github.com/clinicore/clinicore/internal/platform/apperr"
	"github.com/clinicore/clinicore/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	desk := auth.RequireRole(identity.RoleReceptionist, identity.RolePhysician)
	api.POST("/rendez-vous/", h.Create, desk)
	api.PUT("/rendez-vous/:id/statut/", h.SetStatus, desk)
	api.GET("/rendez-vous/:id/", h.Get)
	api.GET("/patients/:id/rendez-vous/", h.ListByPatient)
	api.GET("/medecins/:id/rendez-vous/", h.ListByPhysician)
}

func (h *Handler) Create(c echo.Context) error {
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return apperr.Validation("corps de requête invalide")
	}
	a, err := h.svc.Create(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation("identifiant de rendez-vous invalide")
	}
	a, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) SetStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation("identifiant de rendez-vous invalide")
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("corps de requête invalide")
	}
	a, err := h.svc.SetStatus(c.Request().Context(), id, req.Status)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ListByPatient(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation("identifiant de patient invalide")
	}
	list, err := h.svc.ListByPatient(c.Request().Context(), patientID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, list)
}

func (h *Handler) ListByPhysician(c echo.Context) error {
	physicianID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation("identifiant de médecin invalide")
	}
	list, err := h.svc.ListByPhysician(c.Request().Context(), physicianID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, list)
}
