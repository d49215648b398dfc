package material

import (
	"context"
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
	keepers := auth.RequireRole(identity.RoleMaterialAccountant, identity.RolePharmacist)
	api.GET("/materiels/", h.List)
	api.GET("/materiels/:id/", h.Get)
	api.GET("/materiels/:id/mouvements/", h.Movements, keepers)
	api.POST("/materiels/", h.Create, auth.RequireRole(identity.RoleMaterialAccountant))
	api.POST("/materiels/:id/entree-stock/", h.StockIn, keepers)
	api.POST("/materiels/:id/sortie-stock/", h.StockOut, keepers)
}

func (h *Handler) Create(c echo.Context) error {
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return apperr.Validation("corps de requête invalide")
	}
	m, err := h.svc.Create(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation("identifiant de matériel invalide")
	}
	m, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) List(c echo.Context) error {
	materials, err := h.svc.List(c.Request().Context(), c.QueryParam("famille"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, materials)
}

func (h *Handler) StockIn(c echo.Context) error {
	return h.move(c, h.svc.StockIn)
}

func (h *Handler) StockOut(c echo.Context) error {
	return h.move(c, h.svc.StockOut)
}

func (h *Handler) move(c echo.Context, fn func(ctx context.Context, actorID, id uuid.UUID, in MovementInput) (*Material, error)) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation("identifiant de matériel invalide")
	}
	actorID, err := uuid.Parse(auth.PrincipalIDFromContext(c.Request().Context()))
	if err != nil {
		return apperr.Authentication("principal invalide")
	}
	var in MovementInput
	if err := c.Bind(&in); err != nil {
		return apperr.Validation("corps de requête invalide")
	}
	m, err := fn(c.Request().Context(), actorID, id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) Movements(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation("identifiant de matériel invalide")
	}
	movements, err := h.svc.Movements(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, movements)
}
