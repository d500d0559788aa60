package httpapi

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/brennhill/browserctl-gateway/internal/session"
)

func newTestServer(t *testing.T) (*Server, *http.ServeMux) {
	t.Helper()
	mgr := session.New(nil, session.Config{MaxSessions: 5, MaxStepsPerSession: 10}, zerolog.Nop())
	t.Cleanup(mgr.Close)

	srv := New(mgr, zerolog.Nop())
	mux := http.NewServeMux()
	srv.Routes(mux)
	return srv, mux
}

func createSession(t *testing.T, mux *http.ServeMux) createSessionResponse {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/sessions", nil)
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("create session: expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var env struct {
		Data createSessionResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	return env.Data
}

func TestCreateAndGetSession(t *testing.T) {
	_, mux := newTestServer(t)
	created := createSession(t, mux)
	if created.SessionID == "" || created.Token == "" {
		t.Fatal("expected non-empty sessionId and token")
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/sessions/"+created.SessionID, nil)
	req.Header.Set("Authorization", "Bearer "+created.Token)
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
}

func TestGetSessionRejectsWrongToken(t *testing.T) {
	_, mux := newTestServer(t)
	created := createSession(t, mux)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/sessions/"+created.SessionID, nil)
	req.Header.Set("Authorization", "Bearer wrong-token")
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestGetUnknownSessionReturns404(t *testing.T) {
	_, mux := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/sessions/does-not-exist", nil)
	req.Header.Set("Authorization", "Bearer anything")
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestStepsLifecycle(t *testing.T) {
	srv, mux := newTestServer(t)
	created := createSession(t, mux)

	sess, err := srv.manager.Get(created.SessionID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	step := sess.Steps().Append(&session.Step{Action: session.ActionClick, X: 1, Y: 2, Button: "left", CreatedAt: time.Now()})

	// List
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/sessions/"+created.SessionID+"/steps", nil)
	req.Header.Set("Authorization", "Bearer "+created.Token)
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("list steps: expected 200, got %d: %s", rec.Code, rec.Body)
	}

	// Update caption
	body, _ := json.Marshal(updateStepRequest{Caption: strPtr("clicked the button")})
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPatch, "/api/sessions/"+created.SessionID+"/steps/"+step.ID, bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+created.Token)
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("update step: expected 200, got %d: %s", rec.Code, rec.Body)
	}

	// Delete
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodDelete, "/api/sessions/"+created.SessionID+"/steps/"+step.ID, nil)
	req.Header.Set("Authorization", "Bearer "+created.Token)
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete step: expected 200, got %d: %s", rec.Code, rec.Body)
	}

	if sess.Steps().Len() != 0 {
		t.Fatalf("expected step store empty after delete, got %d", sess.Steps().Len())
	}
}

func TestExportDownloadImportRoundTrip(t *testing.T) {
	srv, mux := newTestServer(t)
	created := createSession(t, mux)

	sess, _ := srv.manager.Get(created.SessionID)
	sess.Steps().Append(&session.Step{Action: session.ActionNavigate, ToURL: "https://example.com", Trigger: "user", CreatedAt: time.Now()})

	exportBody, _ := json.Marshal(exportRequest{Format: "stepwise", Title: "demo", Password: "pw"})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/export/"+created.SessionID, bytes.NewReader(exportBody))
	req.Header.Set("Authorization", "Bearer "+created.Token)
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("export: expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var exportEnv struct {
		Data exportResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &exportEnv); err != nil {
		t.Fatalf("decode export response: %v", err)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/export/"+created.SessionID+"/download/"+exportEnv.Data.Filename, nil)
	req.Header.Set("Authorization", "Bearer "+created.Token)
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("download: expected 200, got %d", rec.Code)
	}
	archiveBytes := rec.Body.Bytes()
	if len(archiveBytes) < 2 || archiveBytes[0] == 0x50 && archiveBytes[1] == 0x4B {
		t.Fatal("expected encrypted download to not start with ZIP magic bytes")
	}

	created2 := createSession(t, mux)

	// Preview without password reports encrypted:true
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", "export.stepwise")
	_, _ = fw.Write(archiveBytes)
	_ = mw.Close()

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/import/"+created2.SessionID+"/preview", bytes.NewReader(buf.Bytes()))
	req.Header.Set("Authorization", "Bearer "+created2.Token)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("preview: expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var previewEnv struct {
		Data struct {
			Encrypted bool `json:"encrypted"`
		} `json:"data"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &previewEnv)
	if !previewEnv.Data.Encrypted {
		t.Fatal("expected encrypted:true in preview without password")
	}

	// Import with the right password
	buf.Reset()
	mw = multipart.NewWriter(&buf)
	fw, _ = mw.CreateFormFile("file", "export.stepwise")
	_, _ = fw.Write(archiveBytes)
	_ = mw.WriteField("password", "pw")
	_ = mw.Close()

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/import/"+created2.SessionID, bytes.NewReader(buf.Bytes()))
	req.Header.Set("Authorization", "Bearer "+created2.Token)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("import: expected 200, got %d: %s", rec.Code, rec.Body)
	}

	sess2, _ := srv.manager.Get(created2.SessionID)
	if sess2.Steps().Len() != 1 {
		t.Fatalf("expected imported session to carry 1 step, got %d", sess2.Steps().Len())
	}
}

func strPtr(s string) *string { return &s }
