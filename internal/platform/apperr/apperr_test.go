package apperr

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func TestFieldErrors_Err(t *testing.T) {
	fe := NewFieldErrors()
	if fe.Err() != nil {
		t.Fatalf("empty FieldErrors should yield nil, got %v", fe.Err())
	}

	fe.Add("nom", "le nom est requis")
	err := fe.Err()
	if err == nil {
		t.Fatal("expected an error once a field failed")
	}
	if !IsKind(err, KindValidation) {
		t.Fatalf("collected field errors must be KindValidation, got %v", err)
	}
	if AsError(err).Tag != TagValidation {
		t.Fatalf("tag = %s, want %s", AsError(err).Tag, TagValidation)
	}
}

func TestHTTPErrorHandler_FieldErrors(t *testing.T) {
	fe := NewFieldErrors()
	fe.Add("contact", "format de téléphone invalide")

	rec := render(t, fe.Err())
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var body Response
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Tag != TagValidation {
		t.Fatalf("tag = %s, want %s", body.Tag, TagValidation)
	}
	if body.Fields["contact"] == "" {
		t.Fatalf("field map lost: %+v", body)
	}
}

func TestHTTPErrorHandler_UnknownErrorStaysOpaque(t *testing.T) {
	rec := render(t, errors.New("pgx: connection reset"))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "pgx") {
		t.Fatalf("internal detail leaked: %s", rec.Body.String())
	}
}

func render(t *testing.T, err error) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	HTTPErrorHandler(zerolog.Nop())(err, c)
	return rec
}
