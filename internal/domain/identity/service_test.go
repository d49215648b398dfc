package identity

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicore/clinicore/internal/platform/apperr"
	"github.com/clinicore/clinicore/internal/platform/auth"
	"github.com/clinicore/clinicore/internal/platform/broadcast"
	"github.com/clinicore/clinicore/internal/platform/db"
)

// -- Mock repositories --

type mockStaffRepo struct {
	staff map[uuid.UUID]*Staff
}

func newMockStaffRepo() *mockStaffRepo {
	return &mockStaffRepo{staff: make(map[uuid.UUID]*Staff)}
}

func (m *mockStaffRepo) Create(_ context.Context, s *Staff) error {
	s.ID = uuid.New()
	s.CreatedAt = time.Now()
	s.UpdatedAt = time.Now()
	m.staff[s.ID] = s
	return nil
}

func (m *mockStaffRepo) GetByID(_ context.Context, id uuid.UUID) (*Staff, error) {
	s, ok := m.staff[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return s, nil
}

func (m *mockStaffRepo) GetByPrincipal(_ context.Context, principal string) (*Staff, error) {
	p := strings.ToLower(principal)
	for _, s := range m.staff {
		if strings.ToLower(s.Email) == p || strings.ToLower(s.Matricule) == p {
			return s, nil
		}
	}
	return nil, fmt.Errorf("not found")
}

func (m *mockStaffRepo) GetByEmail(_ context.Context, email string) (*Staff, error) {
	e := strings.ToLower(email)
	for _, s := range m.staff {
		if strings.ToLower(s.Email) == e {
			return s, nil
		}
	}
	return nil, fmt.Errorf("not found")
}

func (m *mockStaffRepo) Update(_ context.Context, s *Staff) error {
	m.staff[s.ID] = s
	return nil
}

func (m *mockStaffRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.staff, id)
	return nil
}

func (m *mockStaffRepo) List(_ context.Context, limit, offset int) ([]*Staff, int, error) {
	var result []*Staff
	for _, s := range m.staff {
		result = append(result, s)
	}
	return result, len(result), nil
}

func (m *mockStaffRepo) ListByRole(_ context.Context, role string, limit, offset int) ([]*Staff, int, error) {
	var result []*Staff
	for _, s := range m.staff {
		if s.Role == role {
			result = append(result, s)
		}
	}
	return result, len(result), nil
}

func (m *mockStaffRepo) ListPhysicians(_ context.Context, specialty string) ([]*Staff, error) {
	var result []*Staff
	for _, s := range m.staff {
		if s.Role != RolePhysician {
			continue
		}
		if specialty != "" && (s.Specialty == nil || *s.Specialty != specialty) {
			continue
		}
		result = append(result, s)
	}
	return result, nil
}

func (m *mockStaffRepo) ListExpiredCredentials(_ context.Context, now time.Time) ([]*Staff, error) {
	var result []*Staff
	for _, s := range m.staff {
		if !s.FirstLoginDone && s.PasswordExpiry != nil && s.PasswordExpiry.Before(now) {
			result = append(result, s)
		}
	}
	return result, nil
}

func (m *mockStaffRepo) ClearService(_ context.Context, serviceID uuid.UUID) error {
	for _, s := range m.staff {
		if s.ServiceID != nil && *s.ServiceID == serviceID {
			s.ServiceID = nil
		}
	}
	return nil
}

type mockAdminRepo struct {
	admins map[uuid.UUID]*Admin
}

func newMockAdminRepo() *mockAdminRepo {
	return &mockAdminRepo{admins: make(map[uuid.UUID]*Admin)}
}

func (m *mockAdminRepo) Get(_ context.Context) (*Admin, error) {
	for _, a := range m.admins {
		return a, nil
	}
	return nil, fmt.Errorf("not found")
}

func (m *mockAdminRepo) GetByLogin(_ context.Context, login string) (*Admin, error) {
	l := strings.ToLower(login)
	for _, a := range m.admins {
		if strings.ToLower(a.Login) == l {
			return a, nil
		}
	}
	return nil, fmt.Errorf("not found")
}

func (m *mockAdminRepo) Count(_ context.Context) (int, error) {
	return len(m.admins), nil
}

func (m *mockAdminRepo) Create(_ context.Context, a *Admin) error {
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	m.admins[a.ID] = a
	return nil
}

func (m *mockAdminRepo) Update(_ context.Context, a *Admin) error {
	m.admins[a.ID] = a
	return nil
}

func (m *mockAdminRepo) DeleteAll(_ context.Context) error {
	m.admins = make(map[uuid.UUID]*Admin)
	return nil
}

type mockAllocator struct {
	seqs map[string]int
}

func (m *mockAllocator) NextMatricule(_ context.Context, prefix string, width int) (string, error) {
	if m.seqs == nil {
		m.seqs = make(map[string]int)
	}
	m.seqs[prefix]++
	return fmt.Sprintf("%02d%s%0*d", time.Now().Year()%100, prefix, width, m.seqs[prefix]), nil
}

type notifyCall struct {
	StaffID    uuid.UUID
	Password   string
	TemplateID string
}

type mockNotifier struct {
	calls []notifyCall
}

func (m *mockNotifier) NotifyCredentials(_ context.Context, staff *Staff, plaintext, templateID string) error {
	m.calls = append(m.calls, notifyCall{StaffID: staff.ID, Password: plaintext, TemplateID: templateID})
	return nil
}

// -- Fixture --

type fixture struct {
	svc      *Service
	staff    *mockStaffRepo
	admins   *mockAdminRepo
	notifier *mockNotifier
}

func newFixture() *fixture {
	staff := newMockStaffRepo()
	admins := newMockAdminRepo()
	notifier := &mockNotifier{}
	tokens := auth.NewTokenService("test-secret", 15*time.Minute, 24*time.Hour, nil)
	svc := NewService(staff, admins, db.NopRunner{}, tokens, &mockAllocator{}, notifier,
		broadcast.NopPublisher{}, zerolog.Nop(), 3*24*time.Hour)
	return &fixture{svc: svc, staff: staff, admins: admins, notifier: notifier}
}

func validInput() CreateStaffInput {
	return CreateStaffInput{
		FirstName: "Jean",
		LastName:  "Mbarga",
		Email:     "jean.mbarga@hopital.cm",
		Phone:     "677111222",
		Role:      RoleNurse,
	}
}

// -- Tests --

func TestCreateStaff(t *testing.T) {
	f := newFixture()
	before := time.Now().UTC()

	staff, err := f.svc.CreateStaff(context.Background(), validInput())
	if err != nil {
		t.Fatalf("create staff: %v", err)
	}

	if !strings.Contains(staff.Matricule, "INF") {
		t.Errorf("expected nurse prefix INF in matricule, got %s", staff.Matricule)
	}
	if staff.FirstLoginDone {
		t.Error("first_login_done should start false")
	}
	if staff.PasswordExpiry == nil {
		t.Fatal("expected password expiry to be set")
	}
	window := staff.PasswordExpiry.Sub(before)
	if window < 3*24*time.Hour-time.Minute || window > 3*24*time.Hour+time.Minute {
		t.Errorf("expected a 3-day window, got %s", window)
	}

	if len(f.notifier.calls) != 1 {
		t.Fatalf("expected exactly one credential notification, got %d", len(f.notifier.calls))
	}
	call := f.notifier.calls[0]
	if call.StaffID != staff.ID {
		t.Error("notification bound to wrong staff")
	}
	if err := ValidatePassword(call.Password); err != nil {
		t.Errorf("generated password violates policy: %v", err)
	}
	if !CheckPassword(staff.PasswordHash, call.Password) {
		t.Error("stored hash does not match the dispatched password")
	}
}

func TestCreateStaff_Validation(t *testing.T) {
	f := newFixture()

	tests := []struct {
		name   string
		mutate func(*CreateStaffInput)
	}{
		{"bad phone prefix", func(in *CreateStaffInput) { in.Phone = "777111222" }},
		{"short phone", func(in *CreateStaffInput) { in.Phone = "67711122" }},
		{"bad email", func(in *CreateStaffInput) { in.Email = "not-an-email" }},
		{"unknown role", func(in *CreateStaffInput) { in.Role = "janitor" }},
		{"missing name", func(in *CreateStaffInput) { in.LastName = " " }},
		{"physician without specialty", func(in *CreateStaffInput) { in.Role = RolePhysician }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.mutate(&in)
			if _, err := f.svc.CreateStaff(context.Background(), in); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestAuthenticate_Staff(t *testing.T) {
	f := newFixture()
	staff, _ := f.svc.CreateStaff(context.Background(), validInput())
	password := f.notifier.calls[0].Password

	res, err := f.svc.Authenticate(context.Background(), staff.Email, password)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if res.Principal.Kind != auth.KindStaff || res.Principal.Role != RoleNurse {
		t.Errorf("unexpected principal: %+v", res.Principal)
	}
	if res.Tokens.Access == "" || res.Tokens.Refresh == "" {
		t.Error("expected both tokens")
	}
	if f.staff.staff[staff.ID].ConnectionStatus != ConnectionActive {
		t.Error("expected connection status active after login")
	}

	// Matricule works too, case-insensitively.
	if _, err := f.svc.Authenticate(context.Background(), strings.ToLower(staff.Matricule), password); err != nil {
		t.Errorf("matricule login: %v", err)
	}
}

func TestAuthenticate_WrongPassword(t *testing.T) {
	f := newFixture()
	staff, _ := f.svc.CreateStaff(context.Background(), validInput())

	_, err := f.svc.Authenticate(context.Background(), staff.Email, "WrongPass1!")
	if !apperr.IsKind(err, apperr.KindAuthentication) {
		t.Errorf("expected authentication failure, got %v", err)
	}
}

func TestAuthenticate_UnknownPrincipal(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Authenticate(context.Background(), "nobody@hopital.cm", "Whatever1!")
	if !apperr.IsKind(err, apperr.KindAuthentication) {
		t.Errorf("expected authentication failure, got %v", err)
	}
}

func TestAuthenticate_Admin(t *testing.T) {
	f := newFixture()
	if _, err := f.svc.CreateAdmin(context.Background(), "direction", "Adm1n!Pass", false); err != nil {
		t.Fatalf("create admin: %v", err)
	}

	res, err := f.svc.Authenticate(context.Background(), "direction", "Adm1n!Pass")
	if err != nil {
		t.Fatalf("authenticate admin: %v", err)
	}
	if res.Principal.Kind != auth.KindAdmin {
		t.Errorf("expected admin principal, got %s", res.Principal.Kind)
	}
}

func TestAuthenticate_ExpiredWindowLocksAccount(t *testing.T) {
	f := newFixture()
	staff, _ := f.svc.CreateStaff(context.Background(), validInput())
	password := f.notifier.calls[0].Password

	// 3 days and one second later.
	f.svc.SetClock(func() time.Time { return time.Now().UTC().Add(3*24*time.Hour + time.Second) })

	_, err := f.svc.Authenticate(context.Background(), staff.Email, password)
	if !apperr.IsKind(err, apperr.KindCredentialExpired) {
		t.Fatalf("expected CredentialExpired, got %v", err)
	}

	// The stored hash is now the sentinel's.
	if !CheckPassword(f.staff.staff[staff.ID].PasswordHash, SentinelPassword) {
		t.Error("expected hash replaced with the sentinel")
	}

	// Even the correct original password fails from now on.
	_, err = f.svc.Authenticate(context.Background(), staff.Email, password)
	if !apperr.IsKind(err, apperr.KindCredentialExpired) {
		t.Errorf("expected blocked account, got %v", err)
	}
}

func TestChangeOwnPassword(t *testing.T) {
	f := newFixture()
	staff, _ := f.svc.CreateStaff(context.Background(), validInput())
	old := f.notifier.calls[0].Password

	err := f.svc.ChangeOwnPassword(context.Background(), staff.ID, auth.KindStaff, old, "NewPass1!", "NewPass1!")
	if err != nil {
		t.Fatalf("change password: %v", err)
	}

	updated := f.staff.staff[staff.ID]
	if updated.PasswordExpiry != nil {
		t.Error("expected expiry cleared after first change")
	}
	if !updated.FirstLoginDone {
		t.Error("expected first_login_done set")
	}
	if !CheckPassword(updated.PasswordHash, "NewPass1!") {
		t.Error("new password not stored")
	}
}

func TestChangeOwnPassword_Rejections(t *testing.T) {
	f := newFixture()
	staff, _ := f.svc.CreateStaff(context.Background(), validInput())
	old := f.notifier.calls[0].Password
	ctx := context.Background()

	if err := f.svc.ChangeOwnPassword(ctx, staff.ID, auth.KindStaff, old, "NewPass1!", "Different1!"); err == nil {
		t.Error("expected mismatched confirmation to fail")
	}
	if err := f.svc.ChangeOwnPassword(ctx, staff.ID, auth.KindStaff, old, "weak", "weak"); err == nil {
		t.Error("expected weak password to fail")
	}
	if err := f.svc.ChangeOwnPassword(ctx, staff.ID, auth.KindStaff, "WrongOld1!", "NewPass1!", "NewPass1!"); err == nil {
		t.Error("expected wrong old password to fail")
	}
}

func TestResetPassword(t *testing.T) {
	f := newFixture()
	staff, _ := f.svc.CreateStaff(context.Background(), validInput())

	// Consume the window first.
	old := f.notifier.calls[0].Password
	if err := f.svc.ChangeOwnPassword(context.Background(), staff.ID, auth.KindStaff, old, "NewPass1!", "NewPass1!"); err != nil {
		t.Fatalf("change password: %v", err)
	}

	if err := f.svc.ResetPassword(context.Background(), staff.Email); err != nil {
		t.Fatalf("reset password: %v", err)
	}

	updated := f.staff.staff[staff.ID]
	if updated.PasswordExpiry == nil {
		t.Error("expected a fresh expiry window")
	}
	if updated.FirstLoginDone {
		t.Error("expected first_login_done reset")
	}
	if len(f.notifier.calls) != 2 {
		t.Fatalf("expected a second notification, got %d", len(f.notifier.calls))
	}
	if !CheckPassword(updated.PasswordHash, f.notifier.calls[1].Password) {
		t.Error("stored hash does not match the dispatched password")
	}
}

func TestResetPassword_UnknownEmail(t *testing.T) {
	f := newFixture()
	err := f.svc.ResetPassword(context.Background(), "nobody@hopital.cm")
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("expected NotFound, got %v", err)
	}
}

func TestLogout(t *testing.T) {
	f := newFixture()
	staff, _ := f.svc.CreateStaff(context.Background(), validInput())
	password := f.notifier.calls[0].Password
	res, _ := f.svc.Authenticate(context.Background(), staff.Email, password)

	if err := f.svc.Logout(context.Background(), staff.ID, auth.KindStaff, res.Tokens.Refresh); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if f.staff.staff[staff.ID].ConnectionStatus != ConnectionInactive {
		t.Error("expected connection status inactive after logout")
	}
}

func TestCreateAdmin_Singleton(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	if _, err := f.svc.CreateAdmin(ctx, "direction", "Adm1n!Pass", false); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := f.svc.CreateAdmin(ctx, "autre", "Adm1n!Pass", false)
	if !apperr.IsKind(err, apperr.KindConflict) {
		t.Fatalf("expected Conflict on second admin, got %v", err)
	}

	// --force replaces the row instead of adding one.
	if _, err := f.svc.CreateAdmin(ctx, "autre", "Adm1n!Pass", true); err != nil {
		t.Fatalf("forced create: %v", err)
	}
	n, _ := f.admins.Count(ctx)
	if n != 1 {
		t.Errorf("expected exactly one admin row, got %d", n)
	}
	if _, err := f.admins.GetByLogin(ctx, "autre"); err != nil {
		t.Error("expected the forced admin to be the remaining row")
	}
}

func TestLockExpiredCredentials(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	expired, _ := f.svc.CreateStaff(ctx, validInput())
	fresh := validInput()
	fresh.Email = "autre@hopital.cm"
	fresh.Phone = "699000111"
	_, _ = f.svc.CreateStaff(ctx, fresh)

	past := time.Now().UTC().Add(-time.Hour)
	f.staff.staff[expired.ID].PasswordExpiry = &past

	locked, err := f.svc.LockExpiredCredentials(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if locked != 1 {
		t.Fatalf("expected 1 locked account, got %d", locked)
	}
	if !CheckPassword(f.staff.staff[expired.ID].PasswordHash, SentinelPassword) {
		t.Error("expected expired account locked with the sentinel")
	}

	// Second run is a no-op.
	locked, err = f.svc.LockExpiredCredentials(ctx)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if locked != 0 {
		t.Errorf("expected idempotent sweep, locked %d", locked)
	}
}

func TestUpdateStaff(t *testing.T) {
	f := newFixture()
	staff, _ := f.svc.CreateStaff(context.Background(), validInput())

	dismissed := EmploymentDismissed
	updated, err := f.svc.UpdateStaff(context.Background(), staff.ID, UpdateStaffInput{EmploymentStatus: &dismissed})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.EmploymentStatus != EmploymentDismissed {
		t.Errorf("unexpected status: %s", updated.EmploymentStatus)
	}

	badPhone := "777000111"
	if _, err := f.svc.UpdateStaff(context.Background(), staff.ID, UpdateStaffInput{Phone: &badPhone}); err == nil {
		t.Error("expected invalid phone to fail")
	}
}

type stubGuard struct {
	referenced bool
}

func (g stubGuard) StaffReferenced(ctx context.Context, staffID uuid.UUID) (bool, error) {
	return g.referenced, nil
}

func TestDeleteStaff_GuardedWhileReferenced(t *testing.T) {
	f := newFixture()
	staff, _ := f.svc.CreateStaff(context.Background(), validInput())
	f.svc.AddDeletionGuard(stubGuard{referenced: true})

	err := f.svc.DeleteStaff(context.Background(), staff.ID)
	if !apperr.IsKind(err, apperr.KindConflict) {
		t.Fatalf("err = %v, want KindConflict", err)
	}
	if _, err := f.staff.GetByID(context.Background(), staff.ID); err != nil {
		t.Fatal("staff row must survive a vetoed delete")
	}
}

func TestDeleteStaff_Unreferenced(t *testing.T) {
	f := newFixture()
	staff, _ := f.svc.CreateStaff(context.Background(), validInput())
	f.svc.AddDeletionGuard(stubGuard{referenced: false})

	if err := f.svc.DeleteStaff(context.Background(), staff.ID); err != nil {
		t.Fatalf("DeleteStaff: %v", err)
	}
	if _, err := f.staff.GetByID(context.Background(), staff.ID); err == nil {
		t.Fatal("staff row still present after delete")
	}
}
