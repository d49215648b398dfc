package mailer

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestRender_CredentialsCreated(t *testing.T) {
	engine := NewTemplateEngine()

	subject, body, err := engine.Render(TemplateCredentialsCreated, map[string]string{
		"nom":             "Mbarga Jean",
		"matricule":       "26MED0042",
		"mot_de_passe":    "xK9!mPq2Lw#a",
		"date_expiration": ExpiryDate(time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)),
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	if subject != "Vos identifiants de connexion" {
		t.Errorf("unexpected subject: %q", subject)
	}
	for _, want := range []string{"Mbarga Jean", "26MED0042", "xK9!mPq2Lw#a", "10/03/2026 à 14h30"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}
	if strings.Contains(body, "{{") {
		t.Errorf("unreplaced placeholder in body:\n%s", body)
	}
}

func TestRender_UnknownTemplate(t *testing.T) {
	engine := NewTemplateEngine()
	if _, _, err := engine.Render("no-such-template", nil); err == nil {
		t.Fatal("expected error for unknown template")
	}
}

func TestRender_MissingKeysLeftIntact(t *testing.T) {
	engine := NewTemplateEngine()
	_, body, err := engine.Render(TemplatePasswordReset, map[string]string{"nom": "Abena"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(body, "{{matricule}}") {
		t.Error("keys absent from data should be left as-is")
	}
}

func TestMockEmailSender_RecordsCalls(t *testing.T) {
	mock := &MockEmailSender{}

	if err := mock.SendEmail(context.Background(), "a@hopital.cm", "sujet", "corps"); err != nil {
		t.Fatalf("send: %v", err)
	}

	calls := mock.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].To != "a@hopital.cm" || calls[0].Subject != "sujet" {
		t.Errorf("unexpected call: %+v", calls[0])
	}
}
