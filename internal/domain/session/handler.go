package session

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicore/clinicore/internal/platform/apperr"
)

type Handler struct {
	coord *Coordinator
}

func NewHandler(coord *Coordinator) *Handler {
	return &Handler{coord: coord}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/patients/ouvrir-session/", h.Open)
	api.GET("/patients/:id/sessions/", h.History)

	api.GET("/sessions/patients-attente-infirmier/", h.NurseQueue)
	api.GET("/sessions/patients-attente-medecin/", h.DoctorQueue)
	api.GET("/sessions/:id/", h.Get)
	api.POST("/sessions/:id/selectionner/", h.Select)
	api.POST("/sessions/:id/rediriger/", h.Redirect)
	api.POST("/sessions/:id/terminer/", h.Terminate)
	api.POST("/sessions/:id/mettre-en-attente/", h.SetWaiting)

	api.POST("/medecin/redirect-to-cashier/", h.SendToCashier)
}

func (h *Handler) Open(c echo.Context) error {
	var in OpenInput
	if err := c.Bind(&in); err != nil {
		return apperr.Validation("corps de requête invalide")
	}
	ctx := c.Request().Context()
	s, err := h.coord.Open(ctx, ActorFromContext(ctx), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, s)
}

func (h *Handler) NurseQueue(c echo.Context) error {
	return h.queue(c, RoleNurse)
}

func (h *Handler) DoctorQueue(c echo.Context) error {
	return h.queue(c, RolePhysician)
}

func (h *Handler) queue(c echo.Context, role string) error {
	rows, err := h.coord.Queue(c.Request().Context(), c.QueryParam("service"), role)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rows)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	s, err := h.coord.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) History(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation("identifiant de patient invalide")
	}
	sessions, err := h.coord.History(c.Request().Context(), patientID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sessions)
}

func (h *Handler) Select(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	s, err := h.coord.Select(ctx, ActorFromContext(ctx), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s)
}

type redirectRequest struct {
	Type   string `json:"type"`
	Valeur string `json:"valeur"`
}

func (h *Handler) Redirect(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	var req redirectRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("corps de requête invalide")
	}

	ctx := c.Request().Context()
	actor := ActorFromContext(ctx)
	var s *Session
	switch req.Type {
	case "service":
		s, err = h.coord.RedirectToService(ctx, actor, id, req.Valeur)
	case "personnel":
		s, err = h.coord.RedirectToRole(ctx, actor, id, req.Valeur)
	default:
		return apperr.Validation("type de redirection invalide (service ou personnel)")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s)
}

type sendToCashierRequest struct {
	SessionID uuid.UUID `json:"session_id"`
}

func (h *Handler) SendToCashier(c echo.Context) error {
	var req sendToCashierRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("corps de requête invalide")
	}
	if req.SessionID == uuid.Nil {
		return apperr.Validation("session_id est requis")
	}
	ctx := c.Request().Context()
	s, err := h.coord.SendToCashier(ctx, ActorFromContext(ctx), req.SessionID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) Terminate(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	s, err := h.coord.Terminate(ctx, ActorFromContext(ctx), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) SetWaiting(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	s, err := h.coord.SetWaiting(ctx, ActorFromContext(ctx), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s)
}

func sessionID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperr.Validation("identifiant de session invalide")
	}
	return id, nil
}
