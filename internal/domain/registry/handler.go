package registry

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicore/clinicore/internal/platform/apperr"
	"github.com/clinicore/clinicore/internal/platform/auth"
)

type Handler struct {
	registry *Registry
}

func NewHandler(registry *Registry) *Handler {
	return &Handler{registry: registry}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/services/", h.ListServices)
	api.GET("/services/:id/", h.GetService)
	api.GET("/chambres/", h.ListRooms)
	api.GET("/chambres/:id/", h.GetRoom)

	admin := api.Group("", auth.RequireAdmin())
	admin.POST("/services/", h.CreateService)
	admin.PUT("/services/:id/", h.UpdateService)
	admin.DELETE("/services/:id/", h.DeleteService)
	admin.POST("/chambres/", h.CreateRoom)
	admin.PUT("/chambres/:id/", h.UpdateRoom)
	admin.DELETE("/chambres/:id/", h.DeleteRoom)
}

type serviceRequest struct {
	Name          string     `json:"name"`
	HeadOfService *uuid.UUID `json:"head_of_service,omitempty"`
}

func (h *Handler) ListServices(c echo.Context) error {
	services, err := h.registry.ListServices(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, services)
}

func (h *Handler) GetService(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation("identifiant de service invalide")
	}
	svc, err := h.registry.GetService(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, svc)
}

func (h *Handler) CreateService(c echo.Context) error {
	var req serviceRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("corps de requête invalide")
	}
	svc, err := h.registry.CreateService(c.Request().Context(), req.Name, req.HeadOfService)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, svc)
}

func (h *Handler) UpdateService(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation("identifiant de service invalide")
	}
	var req serviceRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("corps de requête invalide")
	}
	svc, err := h.registry.UpdateService(c.Request().Context(), id, req.Name, req.HeadOfService)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, svc)
}

func (h *Handler) DeleteService(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation("identifiant de service invalide")
	}
	if err := h.registry.DeleteService(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListRooms(c echo.Context) error {
	var serviceID *uuid.UUID
	if raw := c.QueryParam("service_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return apperr.Validation("identifiant de service invalide")
		}
		serviceID = &id
	}
	rooms, err := h.registry.ListRooms(c.Request().Context(), serviceID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rooms)
}

func (h *Handler) GetRoom(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation("identifiant de chambre invalide")
	}
	room, err := h.registry.GetRoom(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, room)
}

func (h *Handler) CreateRoom(c echo.Context) error {
	var req RoomInput
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("corps de requête invalide")
	}
	room, err := h.registry.CreateRoom(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, room)
}

type roomUpdateRequest struct {
	TariffPerDay *float64 `json:"tariff_per_day"`
}

func (h *Handler) UpdateRoom(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation("identifiant de chambre invalide")
	}
	var req roomUpdateRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("corps de requête invalide")
	}
	room, err := h.registry.UpdateRoom(c.Request().Context(), id, req.TariffPerDay)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, room)
}

func (h *Handler) DeleteRoom(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation("identifiant de chambre invalide")
	}
	if err := h.registry.DeleteRoom(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
