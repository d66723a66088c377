package atelier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"

	"lyra-atelier-server/modules/common/gemini"
	"lyra-atelier-server/modules/common/model"
	"lyra-atelier-server/modules/common/quota"
	"lyra-atelier-server/modules/common/utils"
	"lyra-atelier-server/modules/enhancer"
	"lyra-atelier-server/modules/session"
)

type fakeAssistant struct{}

func (fakeAssistant) OptimizePrompt(ctx context.Context, input string, mode model.AppMode) (string, error) {
	return "optimized " + input, nil
}

func (fakeAssistant) PromptSuggestions(ctx context.Context, mode model.AppMode) ([]string, error) {
	return []string{"rim light", "low angle"}, nil
}

func newTestRouter(t *testing.T, withReference bool) (*mux.Router, *fixture) {
	t.Helper()
	f := newFixture(t, withReference)
	h := NewHandler(f.manager, f.controller, enhancer.NewService(fakeAssistant{}), 1<<20)
	r := mux.NewRouter()
	h.RegisterRoutes(r)
	return r, f
}

func do(t *testing.T, r http.Handler, method, path, contentType string, body []byte) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var resp Response
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Invalid JSON response: %v (%s)", err, rec.Body.String())
		}
	}
	return rec, resp
}

func postJSON(t *testing.T, r http.Handler, path string, v interface{}) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	var body []byte
	if v != nil {
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("Marshal failed: %v", err)
		}
		body = b
	}
	return do(t, r, http.MethodPost, path, "application/json", body)
}

func sessionPath(f *fixture, suffix string) string {
	return "/api/sessions/" + f.session.ID() + suffix
}

func TestStartTrialEndpoint(t *testing.T) {
	r, _ := newTestRouter(t, false)

	rec, resp := postJSON(t, r, "/api/sessions", StartTrialRequest{Name: "Mei"})
	if rec.Code != http.StatusCreated || !resp.Success {
		t.Fatalf("Expected 201 success, got %d %+v", rec.Code, resp)
	}
	if resp.State.User.Name != "Mei" || resp.State.Mode != model.ModeDashboard {
		t.Errorf("Unexpected initial state: %+v", resp.State)
	}

	rec, resp = do(t, r, http.MethodPost, "/api/sessions", "", nil)
	if rec.Code != http.StatusCreated || resp.State.User.Name != session.DefaultTrialName {
		t.Errorf("Expected default trial name, got %+v", resp.State)
	}
	// httptest 기본 RemoteAddr는 192.0.2.1:1234
	if resp.State.User.TrialID != "ip:192.0.2.1" {
		t.Errorf("Expected IP based trial id, got %q", resp.State.User.TrialID)
	}
}

func TestStartTrialReusesTrialID(t *testing.T) {
	r, _ := newTestRouter(t, false)

	_, first := postJSON(t, r, "/api/sessions", StartTrialRequest{TrialID: "guest-7"})
	_, second := postJSON(t, r, "/api/sessions", StartTrialRequest{TrialID: "guest-7"})
	if first.State == nil || second.State == nil {
		t.Fatal("Expected states")
	}
	if first.State.SessionID == second.State.SessionID || second.State.User.TrialID != "guest-7" {
		t.Errorf("Expected new session with same trial id, got %+v / %+v", first.State.User, second.State.User)
	}

	rec, resp := postJSON(t, r, "/api/sessions", StartTrialRequest{TrialID: "../../etc"})
	if rec.Code != http.StatusBadRequest || resp.ErrorCode != CodeInvalidRequest {
		t.Errorf("Expected INVALID_REQUEST for malformed trial id, got %d %+v", rec.Code, resp)
	}
}

func TestClientIPPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/sessions", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := clientIP(req); got != "203.0.113.9" {
		t.Errorf("Expected forwarded client, got %q", got)
	}
}

func TestUnknownSession(t *testing.T) {
	r, _ := newTestRouter(t, false)

	rec, resp := do(t, r, http.MethodGet, "/api/sessions/missing", "", nil)
	if rec.Code != http.StatusNotFound || resp.ErrorCode != CodeNotFound || resp.Success {
		t.Errorf("Expected NOT_FOUND, got %d %+v", rec.Code, resp)
	}
}

func TestImportMultipartAndPreview(t *testing.T) {
	r, f := newTestRouter(t, false)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, _ := mw.CreateFormFile("file", "glasses.png")
	part.Write(pngFixture(t))
	mw.Close()

	rec, resp := do(t, r, http.MethodPost, sessionPath(f, "/reference"), mw.FormDataContentType(), body.Bytes())
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("Import failed: %d %+v", rec.Code, resp)
	}
	if !resp.State.HasReference || resp.State.Phase != session.PhasePreviewing || !resp.State.GenerationEnabled {
		t.Errorf("Expected previewing with generation enabled, got %+v", resp.State)
	}

	rec, _ = do(t, r, http.MethodGet, sessionPath(f, "/reference"), "", nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/jpeg" {
		t.Errorf("Expected JPEG preview, got %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}
}

func TestImportBase64AndInvalid(t *testing.T) {
	r, f := newTestRouter(t, false)

	rec, resp := postJSON(t, r, sessionPath(f, "/reference"), map[string]string{
		"image": utils.ToDataURL("image/png", pngFixture(t)),
	})
	if rec.Code != http.StatusOK || !resp.State.HasReference {
		t.Fatalf("Base64 import failed: %d %+v", rec.Code, resp)
	}

	rec, resp = do(t, r, http.MethodPost, sessionPath(f, "/reference"), "image/png", []byte("garbage"))
	if rec.Code != http.StatusBadRequest || resp.ErrorCode != CodeInvalidRequest {
		t.Errorf("Expected INVALID_REQUEST, got %d %+v", rec.Code, resp)
	}
}

func TestCameraEndpoints(t *testing.T) {
	r, f := newTestRouter(t, false)

	rec, resp := do(t, r, http.MethodPost, sessionPath(f, "/camera/capture"), "image/png", pngFixture(t))
	if rec.Code != http.StatusConflict || resp.ErrorCode != CodeConflict {
		t.Errorf("Capture without camera should conflict, got %d %+v", rec.Code, resp)
	}

	_, resp = postJSON(t, r, sessionPath(f, "/camera/open"), map[string]string{"facing": "user"})
	if !resp.State.Camera.Open || resp.State.Camera.Facing != model.FacingUser {
		t.Fatalf("Expected open front camera, got %+v", resp.State.Camera)
	}
	_, resp = postJSON(t, r, sessionPath(f, "/camera/flip"), nil)
	if resp.State.Camera.Facing != model.FacingEnvironment {
		t.Errorf("Expected flipped camera, got %+v", resp.State.Camera)
	}

	rec, resp = do(t, r, http.MethodPost, sessionPath(f, "/camera/capture"), "image/png", pngFixture(t))
	if rec.Code != http.StatusOK || resp.State.Camera.Open || !resp.State.HasReference {
		t.Errorf("Expected capture to close camera and load reference, got %d %+v", rec.Code, resp.State)
	}
}

func TestGenerateEndpoint(t *testing.T) {
	r, f := newTestRouter(t, true)

	rec, resp := postJSON(t, r, sessionPath(f, "/generate/model"), nil)
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("Generate failed: %d %+v", rec.Code, resp)
	}
	if resp.Image == nil || resp.Usage == nil || resp.Usage.UsedCount != 1 {
		t.Fatalf("Expected image and usage, got %+v", resp)
	}
	if resp.State.Mode != model.ModeResult {
		t.Errorf("Expected RESULT mode, got %s", resp.State.Mode)
	}

	rec, _ = do(t, r, http.MethodGet, resp.Image.URL, "", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "png" {
		t.Errorf("Expected image download, got %d %q", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Header().Get("Content-Disposition"), "lyra-"+resp.Image.ID+".png") {
		t.Errorf("Unexpected disposition: %s", rec.Header().Get("Content-Disposition"))
	}

	_, hist := do(t, r, http.MethodGet, sessionPath(f, "/history"), "", nil)
	if len(hist.History) != 1 || hist.History[0].ID != resp.Image.ID {
		t.Errorf("Unexpected history: %+v", hist.History)
	}

	rec, resp = postJSON(t, r, sessionPath(f, "/generate/video"), nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown kind, got %d", rec.Code)
	}
	rec, _ = postJSON(t, r, sessionPath(f, "/generate/concept"), nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for concept without index, got %d", rec.Code)
	}
}

func TestGenerateEndpointErrors(t *testing.T) {
	r, f := newTestRouter(t, false)

	rec, resp := postJSON(t, r, sessionPath(f, "/generate/poster"), nil)
	if rec.Code != http.StatusConflict || resp.ErrorCode != CodeConflict {
		t.Errorf("Expected CONFLICT without reference, got %d %+v", rec.Code, resp)
	}

	r, f = newTestRouter(t, true)
	f.studio.err = gemini.ErrCredentials
	rec, resp = postJSON(t, r, sessionPath(f, "/generate/creative"), nil)
	if rec.Code != http.StatusUnauthorized || resp.ErrorCode != CodeCredentialsRequired {
		t.Errorf("Expected CREDENTIALS_REQUIRED, got %d %+v", rec.Code, resp)
	}
	if resp.State == nil || !resp.State.CredentialsRequired || resp.State.Error == "" {
		t.Errorf("Expected error state in response, got %+v", resp.State)
	}

	rec, resp = postJSON(t, r, sessionPath(f, "/generate/cancel"), nil)
	if rec.Code != http.StatusConflict || resp.ErrorCode != CodeConflict {
		t.Errorf("Expected CONFLICT when nothing is generating, got %d %+v", rec.Code, resp)
	}
}

func TestPromptEndpoints(t *testing.T) {
	r, f := newTestRouter(t, false)

	_, resp := postJSON(t, r, sessionPath(f, "/prompt"), map[string]string{"prompt": "sunset"})
	if resp.State.Prompt != "sunset" {
		t.Fatalf("Expected prompt set, got %q", resp.State.Prompt)
	}

	_, resp = postJSON(t, r, sessionPath(f, "/prompt/optimize"), nil)
	if resp.Prompt == nil || *resp.Prompt != "optimized sunset" || resp.State.Prompt != "optimized sunset" {
		t.Errorf("Unexpected optimize response: %+v", resp)
	}

	_, resp = postJSON(t, r, sessionPath(f, "/prompt/suggestions"), nil)
	if len(resp.Suggestions) != 2 || len(resp.State.Suggestions) != 2 {
		t.Errorf("Expected suggestions, got %+v", resp)
	}

	_, resp = postJSON(t, r, sessionPath(f, "/prompt/suggestions/pick"), map[string]string{"suggestion": "rim light"})
	if resp.State.Prompt != "optimized sunset, rim light" || len(resp.State.Suggestions) != 0 {
		t.Errorf("Unexpected pick result: %+v", resp.State)
	}
}

func TestSettingsValidation(t *testing.T) {
	r, f := newTestRouter(t, false)

	rec, resp := postJSON(t, r, sessionPath(f, "/size"), map[string]string{"size": "8K"})
	if rec.Code != http.StatusBadRequest || resp.ErrorCode != CodeInvalidRequest {
		t.Errorf("Expected INVALID_REQUEST for size, got %d", rec.Code)
	}
	rec, _ = postJSON(t, r, sessionPath(f, "/tab"), map[string]string{"tab": "GALLERY"})
	if rec.Code != http.StatusOK {
		t.Errorf("Expected tab switch, got %d", rec.Code)
	}
	rec, _ = do(t, r, http.MethodPost, sessionPath(f, "/tab"), "application/json", []byte("{"))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed body, got %d", rec.Code)
	}
	rec, _ = postJSON(t, r, sessionPath(f, "/poster/recommendations/x/apply"), nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for non-numeric index, got %d", rec.Code)
	}
	rec, resp = postJSON(t, r, sessionPath(f, "/poster/recommendations/0/apply"), nil)
	if rec.Code != http.StatusNotFound || resp.ErrorCode != CodeNotFound {
		t.Errorf("Expected NOT_FOUND, got %d", rec.Code)
	}
}

func TestQuotaEndpoint(t *testing.T) {
	r, f := newTestRouter(t, true)
	_, _, _ = f.controller.Generate(context.Background(), f.session, KindModel, 0)

	_, resp := do(t, r, http.MethodGet, sessionPath(f, "/quota"), "", nil)
	if resp.Usage == nil || resp.Usage.UsedCount != 1 || resp.Usage.MaxCount != 2 {
		t.Errorf("Unexpected usage: %+v", resp.Usage)
	}
}

func TestPresetsEndpoint(t *testing.T) {
	r, _ := newTestRouter(t, false)

	req := httptest.NewRequest(http.MethodGet, "/api/presets", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var presets Presets
	if err := json.Unmarshal(rec.Body.Bytes(), &presets); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if len(presets.PosterStyles) != 5 || len(presets.ImageSizes) != 3 || presets.AspectRatio != "3:4" {
		t.Errorf("Unexpected presets: %+v", presets)
	}
}

func TestEndSessionEndpoint(t *testing.T) {
	r, f := newTestRouter(t, false)

	rec, _ := do(t, r, http.MethodDelete, sessionPath(f, ""), "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if _, err := f.manager.Get(f.session.ID()); !errors.Is(err, session.ErrSessionNotFound) {
		t.Error("Session should be removed")
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{session.ErrUnknownHistory, http.StatusNotFound, CodeNotFound},
		{session.ErrGenerationInFlight, http.StatusConflict, CodeConflict},
		{session.ErrNoGeneration, http.StatusConflict, CodeConflict},
		{fmt.Errorf("render: %w", context.Canceled), http.StatusConflict, CodeCanceled},
		{quota.ErrQuotaExceeded, http.StatusTooManyRequests, CodeQuotaExceeded},
		{errors.New("Requested entity was not found."), http.StatusUnauthorized, CodeCredentialsRequired},
		{enhancer.ErrEmptySuggestion, http.StatusBadRequest, CodeInvalidRequest},
		{errors.New("boom"), http.StatusInternalServerError, CodeInternal},
	}
	for _, c := range cases {
		status, code := classify(c.err)
		if status != c.status || code != c.code {
			t.Errorf("classify(%v) = %d %s, want %d %s", c.err, status, code, c.status, c.code)
		}
	}
}
