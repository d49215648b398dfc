package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicore/clinicore/internal/platform/mailer"
	"github.com/clinicore/clinicore/internal/platform/worker"
)

// TaskKindCredentialEmail is the queue task that ships a provisional password
// to a staff member.
const TaskKindCredentialEmail = "credential-email"

type credentialEmailPayload struct {
	StaffID    uuid.UUID `json:"staff_id"`
	Password   string    `json:"password"`
	TemplateID string    `json:"template_id"`
}

// CredentialNotifier dispatches credential emails off the request path.
type CredentialNotifier interface {
	NotifyCredentials(ctx context.Context, staff *Staff, plaintext, templateID string) error
}

// QueueNotifier enqueues credential emails onto the task queue. Enqueue
// failures are reported to the caller, who logs and moves on: the staff row
// is already committed.
type QueueNotifier struct {
	queue worker.TaskQueue
}

func NewQueueNotifier(queue worker.TaskQueue) *QueueNotifier {
	return &QueueNotifier{queue: queue}
}

func (n *QueueNotifier) NotifyCredentials(ctx context.Context, staff *Staff, plaintext, templateID string) error {
	task, err := worker.NewTask(TaskKindCredentialEmail, credentialEmailPayload{
		StaffID:    staff.ID,
		Password:   plaintext,
		TemplateID: templateID,
	})
	if err != nil {
		return err
	}
	return n.queue.Enqueue(ctx, task)
}

// NopNotifier discards notifications. Used by the sweep command and tests.
type NopNotifier struct{}

func (NopNotifier) NotifyCredentials(context.Context, *Staff, string, string) error { return nil }

// NewCredentialEmailHandler returns the worker handler that renders and sends
// a credential email. The plaintext may only reach the log at Debug level
// with debug mode on; production validation refuses that combination.
func NewCredentialEmailHandler(repo StaffRepository, engine *mailer.TemplateEngine, sender mailer.EmailSender, logger zerolog.Logger, debug bool) worker.Handler {
	return func(ctx context.Context, task worker.Task) error {
		var p credentialEmailPayload
		if err := json.Unmarshal(task.Payload, &p); err != nil {
			return fmt.Errorf("decode credential email payload: %w", err)
		}

		staff, err := repo.GetByID(ctx, p.StaffID)
		if err != nil {
			return fmt.Errorf("load staff %s: %w", p.StaffID, err)
		}

		expiry := "—"
		if staff.PasswordExpiry != nil {
			expiry = mailer.ExpiryDate(*staff.PasswordExpiry)
		}

		subject, body, err := engine.Render(p.TemplateID, map[string]string{
			"nom":             staff.FullName(),
			"matricule":       staff.Matricule,
			"mot_de_passe":    p.Password,
			"date_expiration": expiry,
		})
		if err != nil {
			return err
		}

		sendCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := sender.SendEmail(sendCtx, staff.Email, subject, body); err != nil {
			return err
		}

		if debug {
			logger.Debug().
				Str("staff_id", staff.ID.String()).
				Str("password", p.Password).
				Msg("credential email sent")
		} else {
			logger.Info().
				Str("staff_id", staff.ID.String()).
				Msg("credential email sent")
		}
		return nil
	}
}
