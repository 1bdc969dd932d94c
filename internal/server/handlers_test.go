package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/civicworks/lexgraph/backend/pkg/reason"
	"github.com/civicworks/lexgraph/backend/pkg/store/memory"

	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
)

func newTestHandler(t *testing.T) (*echo.Echo, *Handler) {
	t.Helper()
	e := echo.New()
	e.Validator = &CustomValidator{validator: validator.New()}

	s := memory.New()
	return e, &Handler{
		builder:  reason.NewBuilder(s),
		verifier: reason.NewVerifier(s),
		store:    s,
	}
}

func TestVerifyHandler(t *testing.T) {
	t.Parallel()

	post := func(t *testing.T, e *echo.Echo, h *Handler, body string) *httptest.ResponseRecorder {
		t.Helper()
		req := httptest.NewRequest(http.MethodPost, "/api/verify", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		if err := h.VerifyHandler(e.NewContext(req, rec)); err != nil {
			t.Fatalf("handler: %v", err)
		}
		return rec
	}

	t.Run("missing_chain_is_rejected", func(t *testing.T) {
		t.Parallel()
		e, h := newTestHandler(t)

		rec := post(t, e, h, `{"source_texts":{}}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("got status %d, want %d", rec.Code, http.StatusBadRequest)
		}
	})

	t.Run("well_formed_chain_is_verified", func(t *testing.T) {
		t.Parallel()
		e, h := newTestHandler(t)

		rec := post(t, e, h, `{"chain":{"issue":"issue-heat","elements":[]}}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("got status %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		if !strings.Contains(rec.Body.String(), `"verified":true`) {
			t.Fatalf("got body %s, want a verified result", rec.Body.String())
		}
	})
}
