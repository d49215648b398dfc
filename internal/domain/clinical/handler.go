package clinical

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
	clinicians := auth.RequireRole(identity.RoleNurse, identity.RolePhysician)
	api.POST("/sessions/:id/observations/", h.AddObservation, clinicians)

	physicians := auth.RequireRole(identity.RolePhysician)
	api.POST("/sessions/:id/prescriptions/", h.PrescribeMedication, physicians)
	api.POST("/sessions/:id/examens/", h.PrescribeExam, physicians)

	api.POST("/examens/resultats/", h.RecordExamResult,
		auth.RequireRole(identity.RoleLabTech))

	api.GET("/sessions/:id/dossier/", h.SessionRecord)
	api.GET("/patients/:id/historique/", h.PatientHistory)
}

func (h *Handler) AddObservation(c echo.Context) error {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation("identifiant de session invalide")
	}
	var req struct {
		Content string `json:"content"`
	}
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("corps de requête invalide")
	}
	o, err := h.svc.AddObservation(c.Request().Context(), authorID(c), sessionID, req.Content)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, o)
}

func (h *Handler) PrescribeMedication(c echo.Context) error {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation("identifiant de session invalide")
	}
	var in MedicationInput
	if err := c.Bind(&in); err != nil {
		return apperr.Validation("corps de requête invalide")
	}
	p, err := h.svc.PrescribeMedication(c.Request().Context(), authorID(c), sessionID, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) PrescribeExam(c echo.Context) error {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation("identifiant de session invalide")
	}
	var req struct {
		ExamType string `json:"exam_type"`
		Notes    string `json:"notes"`
	}
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("corps de requête invalide")
	}
	p, err := h.svc.PrescribeExam(c.Request().Context(), authorID(c), sessionID, req.ExamType, req.Notes)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) RecordExamResult(c echo.Context) error {
	var in ExamResultInput
	if err := c.Bind(&in); err != nil {
		return apperr.Validation("corps de requête invalide")
	}
	res, err := h.svc.RecordExamResult(c.Request().Context(), authorID(c), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) SessionRecord(c echo.Context) error {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation("identifiant de session invalide")
	}
	record, err := h.svc.SessionRecord(c.Request().Context(), sessionID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, record)
}

func (h *Handler) PatientHistory(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation("identifiant de patient invalide")
	}
	history, err := h.svc.PatientHistory(c.Request().Context(), patientID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, history)
}

func authorID(c echo.Context) uuid.UUID {
	id, _ := uuid.Parse(auth.PrincipalIDFromContext(c.Request().Context()))
	return id
}
