package identity

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicore/clinicore/internal/platform/apperr"
	"github.com/clinicore/clinicore/internal/platform/auth"
	"github.com/clinicore/clinicore/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers identity endpoints. The public group carries no
// bearer requirement; everything else goes through the authenticated group.
func (h *Handler) RegisterRoutes(public, api *echo.Group) {
	public.POST("/login/", h.Login)

	api.POST("/logout/", h.Logout)
	api.POST("/personnel/change-password/", h.ChangePassword)

	admin := api.Group("", auth.RequireAdmin())
	admin.POST("/personnel/reset-password/", h.ResetPassword)
	admin.POST("/personnel/", h.CreateStaff)
	admin.PUT("/personnel/:id/", h.UpdateStaff)
	admin.DELETE("/personnel/:id/", h.DeleteStaff)

	api.GET("/personnel/", h.ListStaff)
	api.GET("/personnel/:id/", h.GetStaff)
	api.GET("/personnel/medecins/", h.ListPhysicians)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("corps de requête invalide")
	}

	res, err := h.svc.Authenticate(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"access":  res.Tokens.Access,
		"refresh": res.Tokens.Refresh,
		"user":    res.Principal,
	})
}

type logoutRequest struct {
	Refresh string `json:"refresh"`
}

func (h *Handler) Logout(c echo.Context) error {
	var req logoutRequest
	_ = c.Bind(&req) // body is optional

	ctx := c.Request().Context()
	id, err := uuid.Parse(auth.PrincipalIDFromContext(ctx))
	if err != nil {
		return apperr.Authentication("principal invalide")
	}
	if err := h.svc.Logout(ctx, id, auth.KindFromContext(ctx), req.Refresh); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

type changePasswordRequest struct {
	OldPassword     string `json:"old_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

func (h *Handler) ChangePassword(c echo.Context) error {
	var req changePasswordRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("corps de requête invalide")
	}

	ctx := c.Request().Context()
	id, err := uuid.Parse(auth.PrincipalIDFromContext(ctx))
	if err != nil {
		return apperr.Authentication("principal invalide")
	}
	if err := h.svc.ChangeOwnPassword(ctx, id, auth.KindFromContext(ctx),
		req.OldPassword, req.NewPassword, req.ConfirmPassword); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

type resetPasswordRequest struct {
	Email string `json:"email"`
}

func (h *Handler) ResetPassword(c echo.Context) error {
	var req resetPasswordRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("corps de requête invalide")
	}
	if err := h.svc.ResetPassword(c.Request().Context(), req.Email); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) CreateStaff(c echo.Context) error {
	var in CreateStaffInput
	if err := c.Bind(&in); err != nil {
		return apperr.Validation("corps de requête invalide")
	}
	staff, err := h.svc.CreateStaff(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, staff)
}

func (h *Handler) GetStaff(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation("identifiant invalide")
	}
	staff, err := h.svc.GetStaff(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, staff)
}

func (h *Handler) ListStaff(c echo.Context) error {
	pg := pagination.FromContext(c)
	staffs, total, err := h.svc.ListStaff(c.Request().Context(), c.QueryParam("role"), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(staffs, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListPhysicians(c echo.Context) error {
	physicians, err := h.svc.ListPhysicians(c.Request().Context(), c.QueryParam("specialite"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, physicians)
}

func (h *Handler) UpdateStaff(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation("identifiant invalide")
	}
	var in UpdateStaffInput
	if err := c.Bind(&in); err != nil {
		return apperr.Validation("corps de requête invalide")
	}
	staff, err := h.svc.UpdateStaff(c.Request().Context(), id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, staff)
}

func (h *Handler) DeleteStaff(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation("identifiant invalide")
	}
	if err := h.svc.DeleteStaff(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
