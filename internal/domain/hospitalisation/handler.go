package hospitalisation

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
	clinicians := auth.RequireRole(identity.RolePhysician, identity.RoleNurse)
	api.POST("/hospitalisations/", h.Open, clinicians)
	api.POST("/hospitalisations/:id/terminer/", h.Close, clinicians)
	api.GET("/hospitalisations/:id/", h.Get)
	api.GET("/chambres/:id/hospitalisations/", h.ListByRoom)
}

func (h *Handler) Open(c echo.Context) error {
	physicianID, err := uuid.Parse(auth.PrincipalIDFromContext(c.Request().Context()))
	if err != nil {
		return apperr.Authentication("principal invalide")
	}
	var in OpenInput
	if err := c.Bind(&in); err != nil {
		return apperr.Validation("corps de requête invalide")
	}
	hosp, err := h.svc.Open(c.Request().Context(), physicianID, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, hosp)
}

func (h *Handler) Close(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation("identifiant d'hospitalisation invalide")
	}
	hosp, err := h.svc.Close(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, hosp)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation("identifiant d'hospitalisation invalide")
	}
	hosp, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, hosp)
}

func (h *Handler) ListByRoom(c echo.Context) error {
	roomID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation("identifiant de chambre invalide")
	}
	stays, err := h.svc.ListByRoom(c.Request().Context(), roomID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stays)
}
