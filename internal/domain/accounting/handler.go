package accounting

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicore/clinicore/internal/domain/identity"
	"github.com/clinicore/clinicore/internal/platform/apperr"
	"github.com/clinicore/clinicore/internal/platform/auth"
)

type Handler struct {
	svc *Engine
}

func NewHandler(svc *Engine) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	accountants := auth.RequireRole(identity.RoleAccountant)
	cashiers := auth.RequireRole(identity.RoleCashier, identity.RoleAccountant)

	api.GET("/comptes/", h.ListAccounts)
	api.GET("/comptes/:id/", h.GetAccount)
	api.POST("/comptes/", h.CreateAccount, accountants)
	api.PUT("/comptes/:id/", h.UpdateAccount, accountants)

	api.GET("/journaux/", h.ListJournals)
	api.POST("/journaux/", h.CreateJournal, accountants)

	api.GET("/motifs-produits/", h.ListRevenueMappings, accountants)
	api.PUT("/motifs-produits/", h.MapRevenue, accountants)

	api.POST("/quittances/", h.PostReceipt, cashiers)
	api.GET("/quittances/", h.ListReceipts, cashiers)
	api.GET("/quittances/:id/", h.GetReceipt, cashiers)
	api.GET("/quittances/cheques-en-attente/", h.ListOutstandingCheques, cashiers)
	api.POST("/quittances/:id/encaisser/", h.EncashCheque, cashiers)

	api.POST("/ecritures/", h.CreateManualEntry, accountants)
	api.GET("/ecritures/", h.ListEntries, accountants)
	api.GET("/ecritures/:id/", h.GetEntry, accountants)
	api.POST("/ecritures/:id/valider/", h.PostEntry, accountants)
	api.POST("/ecritures/:id/annuler/", h.CancelEntry, accountants)
	api.GET("/ecritures/grand-livre/:compte_id/", h.GeneralLedger, accountants)
	api.GET("/ecritures/balance/", h.TrialBalance, accountants)
}

func (h *Handler) CreateAccount(c echo.Context) error {
	var in AccountInput
	if err := c.Bind(&in); err != nil {
		return apperr.Validation("corps de requête invalide")
	}
	a, err := h.svc.CreateAccount(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) UpdateAccount(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation("identifiant de compte invalide")
	}
	var in AccountUpdateInput
	if err := c.Bind(&in); err != nil {
		return apperr.Validation("corps de requête invalide")
	}
	a, err := h.svc.UpdateAccount(c.Request().Context(), id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) GetAccount(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation("identifiant de compte invalide")
	}
	a, err := h.svc.GetAccount(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ListAccounts(c echo.Context) error {
	var class *int
	if raw := c.QueryParam("classe"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 7 {
			return apperr.Validation("classe invalide")
		}
		class = &n
	}
	accounts, err := h.svc.ListAccounts(c.Request().Context(), class)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, accounts)
}

func (h *Handler) CreateJournal(c echo.Context) error {
	var in JournalInput
	if err := c.Bind(&in); err != nil {
		return apperr.Validation("corps de requête invalide")
	}
	j, err := h.svc.CreateJournal(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, j)
}

func (h *Handler) ListJournals(c echo.Context) error {
	journals, err := h.svc.ListJournals(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, journals)
}

type revenueMappingInput struct {
	Reason    string    `json:"reason"`
	AccountID uuid.UUID `json:"account_id"`
}

func (h *Handler) MapRevenue(c echo.Context) error {
	var in revenueMappingInput
	if err := c.Bind(&in); err != nil {
		return apperr.Validation("corps de requête invalide")
	}
	if err := h.svc.MapRevenue(c.Request().Context(), in.Reason, in.AccountID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListRevenueMappings(c echo.Context) error {
	mappings, err := h.svc.ListRevenueMappings(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, mappings)
}

func (h *Handler) PostReceipt(c echo.Context) error {
	var in ReceiptInput
	if err := c.Bind(&in); err != nil {
		return apperr.Validation("corps de requête invalide")
	}
	rc, err := h.svc.PostReceipt(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, rc)
}

func (h *Handler) GetReceipt(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation("identifiant de quittance invalide")
	}
	rc, err := h.svc.GetReceipt(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rc)
}

func (h *Handler) ListReceipts(c echo.Context) error {
	from, to, err := dateWindow(c)
	if err != nil {
		return err
	}
	receipts, err := h.svc.ListReceipts(c.Request().Context(), from, to)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, receipts)
}

func (h *Handler) ListOutstandingCheques(c echo.Context) error {
	cheques, err := h.svc.ListOutstandingCheques(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cheques)
}

type encashInput struct {
	At *time.Time `json:"encashment_at"`
}

func (h *Handler) EncashCheque(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation("identifiant de quittance invalide")
	}
	var in encashInput
	if err := c.Bind(&in); err != nil {
		return apperr.Validation("corps de requête invalide")
	}
	rc, err := h.svc.EncashCheque(c.Request().Context(), id, in.At)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rc)
}

func (h *Handler) CreateManualEntry(c echo.Context) error {
	var in ManualEntryInput
	if err := c.Bind(&in); err != nil {
		return apperr.Validation("corps de requête invalide")
	}
	entry, err := h.svc.CreateManualEntry(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, entry)
}

func (h *Handler) GetEntry(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation("identifiant d'écriture invalide")
	}
	entry, err := h.svc.GetEntry(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, entry)
}

func (h *Handler) ListEntries(c echo.Context) error {
	from, to, err := dateWindow(c)
	if err != nil {
		return err
	}
	entries, err := h.svc.ListEntries(c.Request().Context(), from, to)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, entries)
}

func (h *Handler) PostEntry(c echo.Context) error {
	return h.entryTransition(c, h.svc.PostEntry)
}

func (h *Handler) CancelEntry(c echo.Context) error {
	return h.entryTransition(c, h.svc.CancelEntry)
}

func (h *Handler) entryTransition(c echo.Context, fn func(ctx context.Context, id uuid.UUID) (*JournalEntry, error)) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation("identifiant d'écriture invalide")
	}
	entry, err := fn(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, entry)
}

func (h *Handler) GeneralLedger(c echo.Context) error {
	accountID, err := uuid.Parse(c.Param("compte_id"))
	if err != nil {
		return apperr.Validation("identifiant de compte invalide")
	}
	from, to, err := dateWindow(c)
	if err != nil {
		return err
	}
	ledger, err := h.svc.GeneralLedger(c.Request().Context(), accountID, from, to)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ledger)
}

func (h *Handler) TrialBalance(c echo.Context) error {
	from, to, err := dateWindow(c)
	if err != nil {
		return err
	}
	var class *int
	if raw := c.QueryParam("classe"); raw != "" {
		n, convErr := strconv.Atoi(raw)
		if convErr != nil || n < 1 || n > 7 {
			return apperr.Validation("classe invalide")
		}
		class = &n
	}
	tb, err := h.svc.TrialBalance(c.Request().Context(), from, to, class)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tb)
}

// dateWindow reads date_debut / date_fin, defaulting to the current
// calendar year. The end bound is exclusive.
func dateWindow(c echo.Context) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	from := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(1, 0, 0)
	if raw := c.QueryParam("date_debut"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return time.Time{}, time.Time{}, apperr.Validation("date_debut invalide, format attendu AAAA-MM-JJ")
		}
		from = t
	}
	if raw := c.QueryParam("date_fin"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return time.Time{}, time.Time{}, apperr.Validation("date_fin invalide, format attendu AAAA-MM-JJ")
		}
		to = t.AddDate(0, 0, 1)
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, apperr.Validation("date_fin doit suivre date_debut")
	}
	return from, to, nil
}
