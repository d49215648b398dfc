package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicore/clinicore/internal/platform/apperr"
	"github.com/clinicore/clinicore/internal/platform/auth"
	"github.com/clinicore/clinicore/internal/platform/broadcast"
	"github.com/clinicore/clinicore/internal/platform/db"
)

// IdleTimeout is how long a session may sit without any mutation before the
// sweep terminates it.
const IdleTimeout = 48 * time.Hour

// ServiceDirectory resolves service references against the registry.
type ServiceDirectory interface {
	ServiceNameByID(ctx context.Context, id uuid.UUID) (string, error)
	ResolveServiceName(ctx context.Context, name string) (string, error)
}

// HospitalisationCloser terminates any open hospitalisation of a session,
// giving the seats back. Called inside the terminate transaction.
type HospitalisationCloser interface {
	CloseForSession(ctx context.Context, sessionID uuid.UUID, closedAt time.Time) error
}

// Actor is the principal issuing a command. Admins bypass role authority.
type Actor struct {
	ID   uuid.UUID
	Kind string
	Role string
}

func (a Actor) admin() bool { return a.Kind == auth.KindAdmin }

// ActorFromContext rebuilds the actor from the auth middleware's context
// values.
func ActorFromContext(ctx context.Context) Actor {
	id, _ := uuid.Parse(auth.PrincipalIDFromContext(ctx))
	return Actor{
		ID:   id,
		Kind: auth.KindFromContext(ctx),
		Role: auth.RoleFromContext(ctx),
	}
}

// Coordinator runs the per-visit state machine and exposes the role queues.
type Coordinator struct {
	sessions         Repository
	services         ServiceDirectory
	hospitalisations HospitalisationCloser
	tx               db.TxRunner
	publisher        broadcast.Publisher
	logger           zerolog.Logger
	now              func() time.Time
}

func NewCoordinator(
	sessions Repository,
	services ServiceDirectory,
	hospitalisations HospitalisationCloser,
	tx db.TxRunner,
	publisher broadcast.Publisher,
	logger zerolog.Logger,
) *Coordinator {
	return &Coordinator{
		sessions:         sessions,
		services:         services,
		hospitalisations: hospitalisations,
		tx:               tx,
		publisher:        publisher,
		logger:           logger.With().Str("component", "session").Logger(),
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the coordinator clock. Test hook.
func (c *Coordinator) SetClock(now func() time.Time) { c.now = now }

type OpenInput struct {
	PatientID       uuid.UUID  `json:"id_patient"`
	ServiceID       uuid.UUID  `json:"id_service"`
	OpenedBy        *uuid.UUID `json:"id_personnel,omitempty"`
	ResponsibleRole string     `json:"responsible_role,omitempty"`
}

// Open starts a visit. A patient holds at most one session whose status is
// not terminated; a second open surfaces the offending session id.
func (c *Coordinator) Open(ctx context.Context, actor Actor, in OpenInput) (*Session, error) {
	if in.PatientID == uuid.Nil {
		return nil, apperr.Validation("id_patient est requis")
	}
	serviceName, err := c.services.ServiceNameByID(ctx, in.ServiceID)
	if err != nil {
		return nil, err
	}
	role := in.ResponsibleRole
	if role == "" {
		role = RoleNurse
	}
	if !ValidResponsibleRole(role) {
		return nil, apperr.New(apperr.KindValidation, apperr.TagInvalidRole,
			fmt.Sprintf("rôle responsable %q invalide", role))
	}
	openedBy := actor.ID
	if in.OpenedBy != nil && *in.OpenedBy != actor.ID {
		if !actor.admin() {
			return nil, apperr.Forbidden(
				"seul un administrateur peut ouvrir une session au nom d'un autre personnel")
		}
		openedBy = *in.OpenedBy
	}

	now := c.now()
	s := &Session{
		PatientID:        in.PatientID,
		OpenedBy:         openedBy,
		CurrentService:   serviceName,
		ResponsibleRole:  role,
		Status:           StatusInProgress,
		PatientSituation: SituationWaiting,
		OpenedAt:         now,
		LastActionAt:     now,
	}
	err = c.tx.WithTx(ctx, func(ctx context.Context) error {
		// The patient row lock serialises concurrent opens; without it two
		// transactions could both miss the active-session check and insert.
		if err := c.sessions.LockPatient(ctx, in.PatientID); err != nil {
			return err
		}
		active, err := c.sessions.FindActiveByPatient(ctx, in.PatientID)
		switch {
		case err == nil:
			return apperr.New(apperr.KindConflict, apperr.TagActiveSessionExists,
				"le patient a déjà une session active").
				WithMeta("session_id", active.ID.String())
		case apperr.IsKind(err, apperr.KindNotFound):
			return c.sessions.Create(ctx, s)
		default:
			return err
		}
	})
	if err != nil {
		return nil, err
	}

	c.publish(ctx, broadcast.ActionCreated, s)
	return s, nil
}

// Select moves a waiting patient to received for the calling role. Exactly
// one of two concurrent selects wins; the loser gets a Conflict.
func (c *Coordinator) Select(ctx context.Context, actor Actor, id uuid.UUID) (*Session, error) {
	s, err := c.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Terminated() {
		return nil, apperr.NotFound("aucun patient en attente pour cette session")
	}
	if s.PatientSituation != SituationWaiting {
		return nil, apperr.Conflict("le patient a déjà été pris en charge")
	}
	if err := c.requireRole(actor, s.ResponsibleRole); err != nil {
		return nil, err
	}

	won, err := c.sessions.MarkReceived(ctx, id, c.now())
	if err != nil {
		return nil, fmt.Errorf("mark received: %w", err)
	}
	if !won {
		current, getErr := c.get(ctx, id)
		if getErr == nil && current.PatientSituation == SituationReceived {
			return nil, apperr.Conflict("le patient a déjà été pris en charge")
		}
		return nil, apperr.NotFound("aucun patient en attente pour cette session")
	}

	s, err = c.get(ctx, id)
	if err != nil {
		return nil, err
	}
	c.publish(ctx, broadcast.ActionUpdated, s)
	return s, nil
}

// RedirectToService re-queues the session under another service.
func (c *Coordinator) RedirectToService(ctx context.Context, actor Actor, id uuid.UUID, serviceName string) (*Session, error) {
	canonical, err := c.services.ResolveServiceName(ctx, serviceName)
	if err != nil {
		return nil, err
	}
	return c.mutate(ctx, actor, id, true, func(s *Session) error {
		s.CurrentService = canonical
		s.PatientSituation = SituationWaiting
		return nil
	})
}

// RedirectToRole hands the session to another role.
func (c *Coordinator) RedirectToRole(ctx context.Context, actor Actor, id uuid.UUID, role string) (*Session, error) {
	if !ValidResponsibleRole(role) {
		return nil, apperr.New(apperr.KindValidation, apperr.TagInvalidRole,
			fmt.Sprintf("rôle %q invalide", role))
	}
	return c.mutate(ctx, actor, id, true, func(s *Session) error {
		s.ResponsibleRole = role
		s.PatientSituation = SituationWaiting
		return nil
	})
}

// SendToCashier parks the session on the cashier queue. The responsible role
// is kept so the session returns to the right queue after payment.
func (c *Coordinator) SendToCashier(ctx context.Context, actor Actor, id uuid.UUID) (*Session, error) {
	return c.mutate(ctx, actor, id, false, func(s *Session) error {
		s.CurrentService = ServiceCashier
		s.PatientSituation = SituationWaiting
		s.Status = StatusWaiting
		return nil
	})
}

// SetWaiting pauses an in-progress session. Already-waiting sessions are
// left alone.
func (c *Coordinator) SetWaiting(ctx context.Context, actor Actor, id uuid.UUID) (*Session, error) {
	return c.mutate(ctx, actor, id, false, func(s *Session) error {
		if s.Status == StatusInProgress {
			s.Status = StatusWaiting
		}
		return nil
	})
}

// Terminate closes the visit and cascades to any open hospitalisation.
// Terminating a terminated session is a no-op.
func (c *Coordinator) Terminate(ctx context.Context, actor Actor, id uuid.UUID) (*Session, error) {
	s, err := c.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Terminated() {
		return s, nil
	}
	if err := c.requireRole(actor, s.ResponsibleRole); err != nil {
		return nil, err
	}

	now := c.now()
	err = c.tx.WithTx(ctx, func(ctx context.Context) error {
		s, err = c.sessions.GetByIDForUpdate(ctx, id)
		if err != nil {
			return apperr.NotFound("session introuvable")
		}
		if s.Terminated() {
			return nil
		}
		s.Status = StatusTerminated
		s.ClosedAt = &now
		s.LastActionAt = now
		if err := c.sessions.Update(ctx, s); err != nil {
			return fmt.Errorf("terminate session: %w", err)
		}
		return c.hospitalisations.CloseForSession(ctx, id, now)
	})
	if err != nil {
		return nil, err
	}

	c.publish(ctx, broadcast.ActionUpdated, s)
	return s, nil
}

// SweepIdle terminates every open session untouched for IdleTimeout. The
// sweep is the one writer that leaves last_action_at alone, so repeated
// sweeps see the same picture. Returns the number of sessions closed.
func (c *Coordinator) SweepIdle(ctx context.Context) (int, error) {
	now := c.now()
	idle, err := c.sessions.ListIdle(ctx, now.Add(-IdleTimeout))
	if err != nil {
		return 0, fmt.Errorf("list idle sessions: %w", err)
	}

	swept := 0
	for _, stale := range idle {
		err := c.tx.WithTx(ctx, func(ctx context.Context) error {
			s, err := c.sessions.GetByIDForUpdate(ctx, stale.ID)
			if err != nil {
				return nil // raced with a delete, nothing to do
			}
			if s.Terminated() || s.LastActionAt.After(now.Add(-IdleTimeout)) {
				return nil
			}
			s.Status = StatusTerminated
			s.ClosedAt = &now
			if err := c.sessions.Update(ctx, s); err != nil {
				return fmt.Errorf("sweep session %s: %w", s.ID, err)
			}
			swept++
			return c.hospitalisations.CloseForSession(ctx, s.ID, now)
		})
		if err != nil {
			c.logger.Error().Err(err).Str("session_id", stale.ID.String()).Msg("idle sweep failed")
			continue
		}
		c.publish(ctx, broadcast.ActionUpdated, stale)
	}
	if swept > 0 {
		c.logger.Info().Int("count", swept).Msg("idle sessions terminated")
	}
	return swept, nil
}

// Queue returns the work queue for a (service, role) pair.
func (c *Coordinator) Queue(ctx context.Context, service, role string) ([]QueueRow, error) {
	if service == "" {
		return nil, apperr.Validation("le paramètre service est requis")
	}
	if !ValidResponsibleRole(role) {
		return nil, apperr.New(apperr.KindValidation, apperr.TagInvalidRole,
			fmt.Sprintf("rôle %q invalide", role))
	}
	rows, err := c.sessions.Queue(ctx, service, role)
	if err != nil {
		return nil, fmt.Errorf("load queue: %w", err)
	}
	return rows, nil
}

func (c *Coordinator) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	return c.get(ctx, id)
}

// History lists a patient's sessions, newest first.
func (c *Coordinator) History(ctx context.Context, patientID uuid.UUID) ([]*Session, error) {
	return c.sessions.ListByPatient(ctx, patientID)
}

// EnsureOpen is the write guard the clinical record and hospitalisation
// ledger consult before appending to a session.
func (c *Coordinator) EnsureOpen(ctx context.Context, id uuid.UUID) (*Session, error) {
	s, err := c.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Terminated() {
		return nil, apperr.SessionClosed("la session est terminée")
	}
	return s, nil
}

// Touch advances last_action_at; collaborators call it after appending
// clinical records so the idle sweep sees the activity.
func (c *Coordinator) Touch(ctx context.Context, id uuid.UUID) error {
	s, err := c.get(ctx, id)
	if err != nil {
		return err
	}
	s.LastActionAt = c.now()
	return c.sessions.Update(ctx, s)
}

func (c *Coordinator) get(ctx context.Context, id uuid.UUID) (*Session, error) {
	s, err := c.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.NotFound("session introuvable")
	}
	return s, nil
}

// mutate applies fn to an open session under the per-session lock.
// ownerOnly restricts the command to the role currently holding the session;
// otherwise any clinical role may issue it.
func (c *Coordinator) mutate(ctx context.Context, actor Actor, id uuid.UUID, ownerOnly bool, fn func(*Session) error) (*Session, error) {
	var s *Session
	err := c.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		s, err = c.sessions.GetByIDForUpdate(ctx, id)
		if err != nil {
			return apperr.NotFound("session introuvable")
		}
		if s.Terminated() {
			return apperr.SessionClosed("la session est terminée")
		}
		if ownerOnly {
			if err := c.requireRole(actor, s.ResponsibleRole); err != nil {
				return err
			}
		} else if err := c.requireClinical(actor); err != nil {
			return err
		}
		if err := fn(s); err != nil {
			return err
		}
		s.LastActionAt = c.now()
		return c.sessions.Update(ctx, s)
	})
	if err != nil {
		return nil, err
	}

	c.publish(ctx, broadcast.ActionUpdated, s)
	return s, nil
}

func (c *Coordinator) requireRole(actor Actor, role string) error {
	if actor.admin() || actor.Role == role {
		return nil
	}
	return apperr.Forbidden(
		fmt.Sprintf("cette commande est réservée au rôle %s", role))
}

func (c *Coordinator) requireClinical(actor Actor) error {
	if actor.admin() || ValidResponsibleRole(actor.Role) {
		return nil
	}
	return apperr.Forbidden("cette commande est réservée au personnel clinique")
}

func (c *Coordinator) publish(ctx context.Context, action string, s *Session) {
	_ = c.publisher.Publish(ctx, broadcast.NewEvent("session", action, s.ID.String(), s))
}
