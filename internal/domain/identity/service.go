package identity

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicore/clinicore/internal/platform/apperr"
	"github.com/clinicore/clinicore/internal/platform/auth"
	"github.com/clinicore/clinicore/internal/platform/broadcast"
	"github.com/clinicore/clinicore/internal/platform/db"
	"github.com/clinicore/clinicore/internal/platform/mailer"
)

// MatriculeAllocator hands out the next matricule for a prefix. Implemented
// by the registry service.
type MatriculeAllocator interface {
	NextMatricule(ctx context.Context, prefix string, width int) (string, error)
}

var phonePattern = regexp.MustCompile(`^6\d{8}$`)

type Service struct {
	staff      StaffRepository
	admins     AdminRepository
	tx         db.TxRunner
	tokens     *auth.TokenService
	matricules MatriculeAllocator
	notifier   CredentialNotifier
	publisher  broadcast.Publisher
	logger     zerolog.Logger

	passwordWindow time.Duration
	now            func() time.Time
	guards         []DeletionGuard
}

// DeletionGuard vetoes staff deletion while other records still reference
// the row, such as the patients a receptionist registered.
type DeletionGuard interface {
	StaffReferenced(ctx context.Context, staffID uuid.UUID) (bool, error)
}

// AddDeletionGuard registers a guard consulted before any staff delete.
func (s *Service) AddDeletionGuard(g DeletionGuard) {
	s.guards = append(s.guards, g)
}

func NewService(
	staff StaffRepository,
	admins AdminRepository,
	tx db.TxRunner,
	tokens *auth.TokenService,
	matricules MatriculeAllocator,
	notifier CredentialNotifier,
	publisher broadcast.Publisher,
	logger zerolog.Logger,
	passwordWindow time.Duration,
) *Service {
	if passwordWindow <= 0 {
		passwordWindow = 3 * 24 * time.Hour
	}
	return &Service{
		staff:          staff,
		admins:         admins,
		tx:             tx,
		tokens:         tokens,
		matricules:     matricules,
		notifier:       notifier,
		publisher:      publisher,
		logger:         logger.With().Str("component", "identity").Logger(),
		passwordWindow: passwordWindow,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the service clock. Test hook.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// AuthResult is what a successful login returns.
type AuthResult struct {
	Tokens    auth.TokenPair
	Principal Principal
}

// Authenticate resolves the principal (staff by email or matricule, then
// admin by login) and verifies the secret. Unknown principals still pay for
// one hash comparison so lookup misses are not observable through timing.
func (s *Service) Authenticate(ctx context.Context, principal, password string) (*AuthResult, error) {
	principal = strings.TrimSpace(principal)
	if principal == "" || password == "" {
		return nil, apperr.Authentication("identifiant et mot de passe requis")
	}

	staff, err := s.staff.GetByPrincipal(ctx, principal)
	if err == nil {
		return s.authenticateStaff(ctx, staff, password)
	}

	admin, err := s.admins.GetByLogin(ctx, principal)
	if err == nil {
		return s.authenticateAdmin(ctx, admin, password)
	}

	CheckPassword(dummyHash, password)
	return nil, apperr.Authentication("identifiant ou mot de passe incorrect")
}

func (s *Service) authenticateStaff(ctx context.Context, staff *Staff, password string) (*AuthResult, error) {
	now := s.now()

	// Window check comes before the hash comparison: an expired credential
	// must be locked even when the caller knows the right secret.
	if !staff.FirstLoginDone && staff.PasswordExpiry != nil && now.After(*staff.PasswordExpiry) {
		if err := s.lockCredential(ctx, staff); err != nil {
			return nil, err
		}
		return nil, apperr.CredentialExpired(
			"la période de validité de votre mot de passe initial est écoulée").
			WithSuggestion("contactez un administrateur pour réinitialiser votre mot de passe")
	}

	if CheckPassword(staff.PasswordHash, SentinelPassword) {
		return nil, apperr.CredentialExpired("votre compte est bloqué").
			WithSuggestion("contactez un administrateur pour réinitialiser votre mot de passe")
	}

	if !CheckPassword(staff.PasswordHash, password) {
		return nil, apperr.Authentication("identifiant ou mot de passe incorrect")
	}

	staff.ConnectionStatus = ConnectionActive
	if err := s.staff.Update(ctx, staff); err != nil {
		return nil, fmt.Errorf("update connection status: %w", err)
	}

	pair, err := s.tokens.Mint(staff.ID.String(), auth.KindStaff, staff.Role)
	if err != nil {
		return nil, fmt.Errorf("mint tokens: %w", err)
	}
	return &AuthResult{
		Tokens: pair,
		Principal: Principal{
			ID:        staff.ID,
			Kind:      auth.KindStaff,
			Role:      staff.Role,
			Matricule: staff.Matricule,
			FullName:  staff.FullName(),
			Email:     staff.Email,
		},
	}, nil
}

func (s *Service) authenticateAdmin(ctx context.Context, admin *Admin, password string) (*AuthResult, error) {
	if !CheckPassword(admin.PasswordHash, password) {
		return nil, apperr.Authentication("identifiant ou mot de passe incorrect")
	}
	pair, err := s.tokens.Mint(admin.ID.String(), auth.KindAdmin, "admin")
	if err != nil {
		return nil, fmt.Errorf("mint tokens: %w", err)
	}
	return &AuthResult{
		Tokens: pair,
		Principal: Principal{
			ID:       admin.ID,
			Kind:     auth.KindAdmin,
			Role:     "admin",
			FullName: admin.Login,
		},
	}, nil
}

// lockCredential replaces the stored hash with the sentinel so no natural
// secret can authenticate the account any more.
func (s *Service) lockCredential(ctx context.Context, staff *Staff) error {
	hash, err := HashPassword(SentinelPassword)
	if err != nil {
		return err
	}
	staff.PasswordHash = hash
	if err := s.staff.Update(ctx, staff); err != nil {
		return fmt.Errorf("lock expired credential: %w", err)
	}
	s.logger.Info().Str("staff_id", staff.ID.String()).Msg("credential locked after expired window")
	return nil
}

// ChangeOwnPassword rotates the caller's secret. The first successful change
// consumes the initial-password window.
func (s *Service) ChangeOwnPassword(ctx context.Context, principalID uuid.UUID, kind, old, newPassword, confirm string) error {
	if newPassword != confirm {
		return apperr.Validation("les deux mots de passe ne correspondent pas")
	}
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}

	if kind == auth.KindAdmin {
		admin, err := s.admins.Get(ctx)
		if err != nil || admin.ID != principalID {
			return apperr.NotFound("compte introuvable")
		}
		if !CheckPassword(admin.PasswordHash, old) {
			return apperr.Authentication("ancien mot de passe incorrect")
		}
		hash, err := HashPassword(newPassword)
		if err != nil {
			return err
		}
		admin.PasswordHash = hash
		return s.admins.Update(ctx, admin)
	}

	staff, err := s.staff.GetByID(ctx, principalID)
	if err != nil {
		return apperr.NotFound("compte introuvable")
	}
	if !CheckPassword(staff.PasswordHash, old) {
		return apperr.Authentication("ancien mot de passe incorrect")
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	staff.PasswordHash = hash
	staff.PasswordExpiry = nil
	staff.FirstLoginDone = true
	if err := s.staff.Update(ctx, staff); err != nil {
		return fmt.Errorf("change password: %w", err)
	}
	return nil
}

// ResetPassword regenerates a machine password for the staff with the given
// email, reopens the expiry window and dispatches the credential email.
// Admin only; the route enforces the role.
func (s *Service) ResetPassword(ctx context.Context, email string) error {
	staff, err := s.staff.GetByEmail(ctx, email)
	if err != nil {
		return apperr.NotFound("aucun personnel avec cet email")
	}

	plaintext, err := GeneratePassword()
	if err != nil {
		return err
	}
	hash, err := HashPassword(plaintext)
	if err != nil {
		return err
	}

	expiry := s.now().Add(s.passwordWindow)
	staff.PasswordHash = hash
	staff.PasswordExpiry = &expiry
	staff.FirstLoginDone = false
	if err := s.staff.Update(ctx, staff); err != nil {
		return fmt.Errorf("reset password: %w", err)
	}

	if err := s.notifier.NotifyCredentials(ctx, staff, plaintext, mailer.TemplatePasswordReset); err != nil {
		s.logger.Error().Err(err).Str("staff_id", staff.ID.String()).Msg("credential email enqueue failed")
	}
	return nil
}

// Logout marks the staff inactive and best-effort revokes the refresh token.
func (s *Service) Logout(ctx context.Context, principalID uuid.UUID, kind, refreshToken string) error {
	if refreshToken != "" {
		if err := s.tokens.RevokeRefresh(refreshToken); err != nil {
			s.logger.Warn().Err(err).Msg("refresh token revocation failed")
		}
	}
	if kind != auth.KindStaff {
		return nil
	}
	staff, err := s.staff.GetByID(ctx, principalID)
	if err != nil {
		return nil
	}
	staff.ConnectionStatus = ConnectionInactive
	if err := s.staff.Update(ctx, staff); err != nil {
		s.logger.Warn().Err(err).Str("staff_id", staff.ID.String()).Msg("connection status update failed")
	}
	return nil
}

// CreateStaffInput carries the admin-supplied fields for a new staff member.
type CreateStaffInput struct {
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	Email     string     `json:"email"`
	Phone     string     `json:"phone"`
	BirthDate *time.Time `json:"birth_date"`
	Role      string     `json:"role"`
	Specialty *string    `json:"specialty"`
	ServiceID *uuid.UUID `json:"service_id"`
}

func (in *CreateStaffInput) validate() error {
	fe := apperr.NewFieldErrors()
	if strings.TrimSpace(in.LastName) == "" {
		fe.Add("last_name", "le nom est requis")
	}
	if !strings.Contains(in.Email, "@") {
		fe.Add("email", "email invalide")
	}
	if !phonePattern.MatchString(in.Phone) {
		fe.Add("phone", "le téléphone doit compter 9 chiffres et commencer par 6")
	}
	if !ValidRole(in.Role) {
		fe.Add("role", "rôle inconnu")
	}
	if in.Role == RolePhysician && (in.Specialty == nil || *in.Specialty == "") {
		fe.Add("specialty", "la spécialité est requise pour un médecin")
	}
	return fe.Err()
}

// CreateStaff allocates a matricule, issues a provisional password and
// enqueues the credential email. A notifier failure never rolls back the
// created row.
func (s *Service) CreateStaff(ctx context.Context, in CreateStaffInput) (*Staff, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	plaintext, err := GeneratePassword()
	if err != nil {
		return nil, err
	}
	hash, err := HashPassword(plaintext)
	if err != nil {
		return nil, err
	}

	expiry := s.now().Add(s.passwordWindow)
	staff := &Staff{
		FirstName:        strings.TrimSpace(in.FirstName),
		LastName:         strings.TrimSpace(in.LastName),
		Email:            strings.ToLower(strings.TrimSpace(in.Email)),
		Phone:            in.Phone,
		BirthDate:        in.BirthDate,
		Role:             in.Role,
		Specialty:        in.Specialty,
		ServiceID:        in.ServiceID,
		EmploymentStatus: EmploymentActive,
		PasswordHash:     hash,
		PasswordExpiry:   &expiry,
		FirstLoginDone:   false,
		ConnectionStatus: ConnectionInactive,
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		matricule, err := s.matricules.NextMatricule(ctx, RolePrefix(in.Role), 4)
		if err != nil {
			return fmt.Errorf("allocate matricule: %w", err)
		}
		staff.Matricule = matricule
		return s.staff.Create(ctx, staff)
	})
	if err != nil {
		return nil, err
	}

	if err := s.notifier.NotifyCredentials(ctx, staff, plaintext, mailer.TemplateCredentialsCreated); err != nil {
		s.logger.Error().Err(err).Str("staff_id", staff.ID.String()).Msg("credential email enqueue failed")
	}
	s.publish(ctx, broadcast.ActionCreated, staff)
	return staff, nil
}

func (s *Service) GetStaff(ctx context.Context, id uuid.UUID) (*Staff, error) {
	staff, err := s.staff.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.NotFound("personnel introuvable")
	}
	return staff, nil
}

func (s *Service) ListStaff(ctx context.Context, role string, limit, offset int) ([]*Staff, int, error) {
	if role != "" {
		return s.staff.ListByRole(ctx, role, limit, offset)
	}
	return s.staff.List(ctx, limit, offset)
}

func (s *Service) ListPhysicians(ctx context.Context, specialty string) ([]*Staff, error) {
	return s.staff.ListPhysicians(ctx, specialty)
}

// UpdateStaffInput carries the mutable staff fields. Credentials rotate
// through the password operations, never here.
type UpdateStaffInput struct {
	FirstName        *string    `json:"first_name"`
	LastName         *string    `json:"last_name"`
	Phone            *string    `json:"phone"`
	Specialty        *string    `json:"specialty"`
	ServiceID        *uuid.UUID `json:"service_id"`
	EmploymentStatus *string    `json:"employment_status"`
}

func (s *Service) UpdateStaff(ctx context.Context, id uuid.UUID, in UpdateStaffInput) (*Staff, error) {
	staff, err := s.staff.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.NotFound("personnel introuvable")
	}

	if in.FirstName != nil {
		staff.FirstName = strings.TrimSpace(*in.FirstName)
	}
	if in.LastName != nil {
		staff.LastName = strings.TrimSpace(*in.LastName)
	}
	if in.Phone != nil {
		if !phonePattern.MatchString(*in.Phone) {
			return nil, apperr.Validation("le téléphone doit compter 9 chiffres et commencer par 6")
		}
		staff.Phone = *in.Phone
	}
	if in.Specialty != nil {
		staff.Specialty = in.Specialty
	}
	if in.ServiceID != nil {
		staff.ServiceID = in.ServiceID
	}
	if in.EmploymentStatus != nil {
		switch *in.EmploymentStatus {
		case EmploymentActive, EmploymentDismissed, EmploymentRetired:
			staff.EmploymentStatus = *in.EmploymentStatus
		default:
			return nil, apperr.Validation("statut d'emploi inconnu")
		}
	}

	if err := s.staff.Update(ctx, staff); err != nil {
		return nil, fmt.Errorf("update staff: %w", err)
	}
	s.publish(ctx, broadcast.ActionUpdated, staff)
	return staff, nil
}

func (s *Service) DeleteStaff(ctx context.Context, id uuid.UUID) error {
	staff, err := s.staff.GetByID(ctx, id)
	if err != nil {
		return apperr.NotFound("personnel introuvable")
	}
	for _, g := range s.guards {
		referenced, err := g.StaffReferenced(ctx, id)
		if err != nil {
			return fmt.Errorf("check staff references: %w", err)
		}
		if referenced {
			return apperr.Conflict("ce personnel est référencé par des dossiers existants").
				WithSuggestion("passez le personnel en statut licencié ou retraité au lieu de le supprimer")
		}
	}
	if err := s.staff.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete staff: %w", err)
	}
	s.publish(ctx, broadcast.ActionDeleted, staff)
	return nil
}

// CreateAdmin bootstraps the singleton admin. A second row is refused unless
// force replaces the existing one.
func (s *Service) CreateAdmin(ctx context.Context, login, password string, force bool) (*Admin, error) {
	if strings.TrimSpace(login) == "" {
		return nil, apperr.Validation("le login est requis")
	}
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	admin := &Admin{Login: login, PasswordHash: hash}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		n, err := s.admins.Count(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			if !force {
				return apperr.Conflict("un compte administrateur existe déjà").
					WithSuggestion("relancez avec --force pour le remplacer")
			}
			if err := s.admins.DeleteAll(ctx); err != nil {
				return err
			}
		}
		return s.admins.Create(ctx, admin)
	})
	if err != nil {
		return nil, err
	}
	return admin, nil
}

// LockExpiredCredentials is the credential sweep body: every staff whose
// window lapsed without a first login gets the sentinel hash. Returns the
// number of accounts locked.
func (s *Service) LockExpiredCredentials(ctx context.Context) (int, error) {
	expired, err := s.staff.ListExpiredCredentials(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("list expired credentials: %w", err)
	}

	locked := 0
	for _, staff := range expired {
		if CheckPassword(staff.PasswordHash, SentinelPassword) {
			continue // already locked, sweep is idempotent
		}
		if err := s.lockCredential(ctx, staff); err != nil {
			s.logger.Error().Err(err).Str("staff_id", staff.ID.String()).Msg("credential lock failed")
			continue
		}
		locked++
	}
	return locked, nil
}

func (s *Service) publish(ctx context.Context, action string, staff *Staff) {
	_ = s.publisher.Publish(ctx, broadcast.NewEvent("staff", action, staff.ID.String(), staff))
}
