package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"lyra-atelier-server/modules/common/model"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestSession() *Session {
	clock := &fakeClock{t: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	return newSession("sess-1", "", "", clock.now)
}

type recordingNormalizer struct {
	mirrored []bool
	err      error
}

func (n *recordingNormalizer) normalize(data []byte, mirror bool) ([]byte, error) {
	n.mirrored = append(n.mirrored, mirror)
	if n.err != nil {
		return nil, n.err
	}
	return append([]byte("jpeg:"), data...), nil
}

func loadReference(t *testing.T, s *Session) {
	t.Helper()
	n := &recordingNormalizer{}
	if err := s.ImportFile([]byte("frame"), n.normalize); err != nil {
		t.Fatalf("ImportFile failed: %v", err)
	}
}

func TestNewSessionDefaults(t *testing.T) {
	s := newTestSession()
	st := s.Snapshot()

	if st.User.Name != DefaultTrialName {
		t.Errorf("Expected default trial name, got %q", st.User.Name)
	}
	if st.User.TrialID == "" {
		t.Error("Expected trial ID")
	}
	if st.Tab != model.TabCreate || st.Mode != model.ModeDashboard || st.Phase != PhaseIdle {
		t.Errorf("Unexpected initial screen: %s/%s/%s", st.Tab, st.Mode, st.Phase)
	}
	if st.ImageSize != model.Size1K {
		t.Errorf("Expected 1K default, got %s", st.ImageSize)
	}
	if st.Camera.Facing != model.FacingEnvironment || st.Camera.Open {
		t.Errorf("Unexpected camera state: %+v", st.Camera)
	}
	if st.GenerationEnabled {
		t.Error("Generation should be disabled without a reference")
	}
	if st.Poster.VisualPrompt == "" {
		t.Error("Expected default poster config")
	}
}

func TestCameraLifecycle(t *testing.T) {
	s := newTestSession()

	if err := s.FlipCamera(); !errors.Is(err, ErrCameraClosed) {
		t.Errorf("Expected ErrCameraClosed, got %v", err)
	}
	if err := s.OpenCamera("sideways"); !errors.Is(err, ErrInvalidFacing) {
		t.Errorf("Expected ErrInvalidFacing, got %v", err)
	}
	if err := s.OpenCamera(""); err != nil {
		t.Fatalf("OpenCamera failed: %v", err)
	}
	if err := s.FlipCamera(); err != nil {
		t.Fatalf("FlipCamera failed: %v", err)
	}
	if st := s.Snapshot(); !st.Camera.Open || st.Camera.Facing != model.FacingUser {
		t.Errorf("Expected open front camera, got %+v", st.Camera)
	}

	n := &recordingNormalizer{}
	if err := s.CaptureFrame([]byte("frame"), n.normalize); err != nil {
		t.Fatalf("CaptureFrame failed: %v", err)
	}
	if len(n.mirrored) != 1 || !n.mirrored[0] {
		t.Error("Front camera capture should be mirrored")
	}

	st := s.Snapshot()
	if st.Camera.Open {
		t.Error("Capture should release the camera")
	}
	if st.Phase != PhasePreviewing || !st.HasReference || !st.GenerationEnabled {
		t.Errorf("Expected previewing with reference, got %+v", st)
	}
	if !strings.HasPrefix(st.PreviewURL, "/api/sessions/sess-1/reference") {
		t.Errorf("Unexpected preview URL: %s", st.PreviewURL)
	}

	if err := s.CaptureFrame([]byte("frame"), n.normalize); !errors.Is(err, ErrCameraClosed) {
		t.Errorf("Capture without camera should fail, got %v", err)
	}
}

func TestCaptureBackCameraNotMirrored(t *testing.T) {
	s := newTestSession()
	_ = s.OpenCamera(model.FacingEnvironment)

	n := &recordingNormalizer{}
	if err := s.CaptureFrame([]byte("frame"), n.normalize); err != nil {
		t.Fatalf("CaptureFrame failed: %v", err)
	}
	if n.mirrored[0] {
		t.Error("Back camera capture should not be mirrored")
	}
}

func TestImportFailureKeepsState(t *testing.T) {
	s := newTestSession()
	n := &recordingNormalizer{err: errors.New("unsupported image")}

	if err := s.ImportFile([]byte("junk"), n.normalize); err == nil {
		t.Fatal("Expected import error")
	}
	st := s.Snapshot()
	if st.HasReference || st.Phase != PhaseIdle {
		t.Error("Failed import should not load a reference")
	}
	if st.Error != "unsupported image" {
		t.Errorf("Expected error message, got %q", st.Error)
	}
}

func TestSelectTabReleasesCamera(t *testing.T) {
	s := newTestSession()
	_ = s.OpenCamera("")

	if err := s.SelectTab(model.TabGallery); err != nil {
		t.Fatalf("SelectTab failed: %v", err)
	}
	if st := s.Snapshot(); st.Camera.Open || st.Tab != model.TabGallery {
		t.Errorf("Expected gallery tab with camera released, got %+v", st)
	}
	if err := s.SelectTab("settings"); !errors.Is(err, ErrInvalidTab) {
		t.Errorf("Expected ErrInvalidTab, got %v", err)
	}
}

func TestGenerationSuccess(t *testing.T) {
	s := newTestSession()
	loadReference(t, s)
	_ = s.SetPrompt("on a yacht")
	_ = s.SetImageSize(model.Size4K)

	ticket, err := s.BeginGeneration(context.Background(), model.ModeModelShot)
	if err != nil {
		t.Fatalf("BeginGeneration failed: %v", err)
	}
	if ticket.Prompt != "on a yacht" || ticket.Size != model.Size4K || string(ticket.Reference) != "jpeg:frame" {
		t.Errorf("Unexpected ticket: %+v", ticket)
	}

	st := s.Snapshot()
	if st.Phase != PhaseGenerating || st.Mode != model.ModeModelShot || st.GenerationEnabled {
		t.Errorf("Expected generating state, got %s/%s", st.Mode, st.Phase)
	}

	if _, err := s.BeginGeneration(context.Background(), model.ModeCreativeShot); !errors.Is(err, ErrGenerationInFlight) {
		t.Errorf("Expected ErrGenerationInFlight, got %v", err)
	}
	if err := s.ClearCanvas(); !errors.Is(err, ErrGenerationInFlight) {
		t.Errorf("Clear during generation should fail, got %v", err)
	}

	img, err := s.CompleteGeneration(ticket, model.TypeModelShot, []byte("png"), "image/png")
	if err != nil {
		t.Fatalf("CompleteGeneration failed: %v", err)
	}
	if len(img.ID) != 4 || strings.ToUpper(img.ID) != img.ID {
		t.Errorf("Expected 4 uppercase chars, got %q", img.ID)
	}
	if img.URL != "/api/sessions/sess-1/images/"+img.ID {
		t.Errorf("Unexpected URL: %s", img.URL)
	}

	st = s.Snapshot()
	if st.Mode != model.ModeResult || st.Phase != PhaseResult {
		t.Errorf("Expected result screen, got %s/%s", st.Mode, st.Phase)
	}
	if st.PreviewURL != img.URL {
		t.Errorf("Result screen should preview the result, got %s", st.PreviewURL)
	}
	if len(st.History) != 1 || st.History[0].Type != model.TypeModelShot {
		t.Errorf("Unexpected history: %+v", st.History)
	}

	if _, err := s.CompleteGeneration(ticket, model.TypeModelShot, nil, ""); !errors.Is(err, ErrStaleTicket) {
		t.Errorf("Expected ErrStaleTicket on reuse, got %v", err)
	}
}

func TestGenerationRequiresReference(t *testing.T) {
	s := newTestSession()
	if _, err := s.BeginGeneration(context.Background(), model.ModeModelShot); !errors.Is(err, ErrNoReference) {
		t.Errorf("Expected ErrNoReference, got %v", err)
	}
	if st := s.Snapshot(); st.Phase != PhaseIdle {
		t.Errorf("State should be unchanged, got %s", st.Phase)
	}
}

func TestGenerationFailureRestoresPreviousScreen(t *testing.T) {
	s := newTestSession()
	loadReference(t, s)
	if err := s.EnterPosterMode(); err != nil {
		t.Fatalf("EnterPosterMode failed: %v", err)
	}

	ticket, err := s.BeginGeneration(context.Background(), model.ModePosterGeneration)
	if err != nil {
		t.Fatalf("BeginGeneration failed: %v", err)
	}
	if err := s.FailGeneration(ticket, "No image generated.", false); err != nil {
		t.Fatalf("FailGeneration failed: %v", err)
	}

	st := s.Snapshot()
	if st.Mode != model.ModePosterGeneration || st.Phase != PhasePreviewing {
		t.Errorf("Expected poster previewing, got %s/%s", st.Mode, st.Phase)
	}
	if st.Error != "No image generated." || st.CredentialsRequired {
		t.Errorf("Unexpected error state: %q, %v", st.Error, st.CredentialsRequired)
	}
	if len(st.History) != 0 {
		t.Error("Failed generation must not add history")
	}
}

func TestCredentialFailureFlagsSession(t *testing.T) {
	s := newTestSession()
	loadReference(t, s)

	ticket, _ := s.BeginGeneration(context.Background(), model.ModeCreativeShot)
	_ = s.FailGeneration(ticket, "Requested entity was not found.", true)
	if !s.Snapshot().CredentialsRequired {
		t.Fatal("Expected credentials flag")
	}

	ticket, _ = s.BeginGeneration(context.Background(), model.ModeCreativeShot)
	if _, err := s.CompleteGeneration(ticket, model.TypeCreativeShot, []byte("png"), "image/png"); err != nil {
		t.Fatalf("CompleteGeneration failed: %v", err)
	}
	if s.Snapshot().CredentialsRequired {
		t.Error("Successful generation should clear credentials flag")
	}
}

func TestHistoryMostRecentFirstAndView(t *testing.T) {
	s := newTestSession()
	loadReference(t, s)

	var ids []string
	for _, label := range []string{model.TypeModelShot, model.TypePoster} {
		ticket, err := s.BeginGeneration(context.Background(), model.ModeModelShot)
		if err != nil {
			t.Fatalf("BeginGeneration failed: %v", err)
		}
		img, _ := s.CompleteGeneration(ticket, label, []byte(label), "image/png")
		ids = append(ids, img.ID)
		_ = s.ReturnToDashboard()
	}

	history := s.History()
	if len(history) != 2 || history[0].ID != ids[1] || history[1].ID != ids[0] {
		t.Fatalf("Expected most recent first, got %+v", history)
	}
	if ids[0] == ids[1] {
		t.Error("History IDs must be unique")
	}

	if err := s.ViewHistory(ids[0]); err != nil {
		t.Fatalf("ViewHistory failed: %v", err)
	}
	st := s.Snapshot()
	if st.Mode != model.ModeResult || st.CurrentResult == nil || st.CurrentResult.ID != ids[0] {
		t.Errorf("Expected older result displayed, got %+v", st.CurrentResult)
	}

	current, err := s.Image("current")
	if err != nil || string(current.Data) != model.TypeModelShot {
		t.Errorf("Unexpected current image: %v", err)
	}
	if err := s.ViewHistory("ZZZZ"); !errors.Is(err, ErrUnknownHistory) {
		t.Errorf("Expected ErrUnknownHistory, got %v", err)
	}
}

func TestReturnToDashboardAndClear(t *testing.T) {
	s := newTestSession()
	loadReference(t, s)
	ticket, _ := s.BeginGeneration(context.Background(), model.ModeModelShot)
	_, _ = s.CompleteGeneration(ticket, model.TypeModelShot, []byte("png"), "image/png")

	if err := s.ReturnToDashboard(); err != nil {
		t.Fatalf("ReturnToDashboard failed: %v", err)
	}
	st := s.Snapshot()
	if st.Mode != model.ModeDashboard || st.Phase != PhasePreviewing || !st.HasReference {
		t.Errorf("Expected dashboard with reference kept, got %s/%s", st.Mode, st.Phase)
	}

	if err := s.ClearCanvas(); err != nil {
		t.Fatalf("ClearCanvas failed: %v", err)
	}
	st = s.Snapshot()
	if st.HasReference || st.CurrentResult != nil || st.Phase != PhaseIdle {
		t.Errorf("Expected empty canvas, got %+v", st)
	}
	if len(st.History) != 1 {
		t.Error("Clearing the canvas keeps history")
	}
}

func TestPosterConfigAndRecommendations(t *testing.T) {
	s := newTestSession()

	if err := s.EnterPosterMode(); !errors.Is(err, ErrNoReference) {
		t.Errorf("Poster mode needs a reference, got %v", err)
	}
	if err := s.UpdatePosterConfig(model.PosterConfig{Title: "X", VisualPrompt: "  "}); !errors.Is(err, ErrInvalidPoster) {
		t.Errorf("Expected ErrInvalidPoster, got %v", err)
	}

	loadReference(t, s)
	recs := []model.PosterRecommendation{{
		Name:         "Noir",
		PosterConfig: model.PosterConfig{Title: "NOIR", Layout: "Bottom-Left Void", VisualPrompt: "rim light"},
	}}
	_ = s.SetRecommendations(recs)

	if err := s.ApplyRecommendation(3); !errors.Is(err, ErrUnknownRecommendation) {
		t.Errorf("Expected ErrUnknownRecommendation, got %v", err)
	}
	if err := s.ApplyRecommendation(0); err != nil {
		t.Fatalf("ApplyRecommendation failed: %v", err)
	}
	st := s.Snapshot()
	if st.Poster.Title != "NOIR" || st.Mode != model.ModePosterGeneration {
		t.Errorf("Expected applied poster config in poster mode, got %+v", st.Poster)
	}

	ticket, _ := s.BeginGeneration(context.Background(), model.ModePosterGeneration)
	if ticket.Poster.Layout != "Bottom-Left Void" {
		t.Errorf("Ticket should carry poster config, got %+v", ticket.Poster)
	}
}

func TestNewReferenceClearsAnalysis(t *testing.T) {
	s := newTestSession()
	loadReference(t, s)
	_ = s.SetConcepts([]model.CreativeConcept{{Title: "A", Prompt: "a"}})
	_ = s.SetRecommendations([]model.PosterRecommendation{{Name: "B"}})

	loadReference(t, s)
	st := s.Snapshot()
	if len(st.Concepts) != 0 || len(st.Recommendations) != 0 {
		t.Error("New reference should clear previous analysis")
	}
}

func TestSetImageSizeValidation(t *testing.T) {
	s := newTestSession()
	if err := s.SetImageSize("8K"); !errors.Is(err, ErrInvalidImageSize) {
		t.Errorf("Expected ErrInvalidImageSize, got %v", err)
	}
	if err := s.SetImageSize(model.Size2K); err != nil || s.Snapshot().ImageSize != model.Size2K {
		t.Errorf("Expected 2K, got %v", err)
	}
}

func TestMutationsNotify(t *testing.T) {
	s := newTestSession()
	var states []State
	s.onChange = func(st State) { states = append(states, st) }

	_ = s.SetPrompt("a")
	_ = s.SetImageSize("bad")

	if len(states) != 2 {
		t.Fatalf("Expected 2 notifications, got %d", len(states))
	}
	if states[0].Prompt != "a" {
		t.Errorf("Unexpected snapshot: %+v", states[0])
	}
}

func TestCancelGeneration(t *testing.T) {
	s := newTestSession()
	if err := s.CancelGeneration(); !errors.Is(err, ErrNoGeneration) {
		t.Errorf("Expected ErrNoGeneration, got %v", err)
	}

	loadReference(t, s)
	ticket, err := s.BeginGeneration(context.Background(), model.ModeModelShot)
	if err != nil {
		t.Fatalf("BeginGeneration failed: %v", err)
	}
	if err := s.CancelGeneration(); err != nil {
		t.Fatalf("CancelGeneration failed: %v", err)
	}
	if !errors.Is(ticket.Context().Err(), context.Canceled) {
		t.Error("Ticket context should be cancelled")
	}
	if !s.Generating() {
		t.Error("Session stays generating until the call returns")
	}

	_ = s.FailGeneration(ticket, "cancelled", false)
	if s.Generating() {
		t.Error("Expected generation to be finished")
	}
}

func TestHistoryIDWidensOnCollision(t *testing.T) {
	original := randomHistoryID
	t.Cleanup(func() { randomHistoryID = original })
	randomHistoryID = func(n int) string { return strings.Repeat("A", n) }

	s := newTestSession()
	loadReference(t, s)

	var ids []string
	for i := 0; i < 3; i++ {
		ticket, err := s.BeginGeneration(context.Background(), model.ModeModelShot)
		if err != nil {
			t.Fatalf("BeginGeneration %d failed: %v", i, err)
		}
		img, err := s.CompleteGeneration(ticket, model.TypeModelShot, []byte("png"), "image/png")
		if err != nil {
			t.Fatalf("CompleteGeneration %d failed: %v", i, err)
		}
		ids = append(ids, img.ID)
		_ = s.ReturnToDashboard()
	}

	want := []string{"AAAA", "AAAAA", "AAAAAA"}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("id %d = %q, want %q", i, ids[i], want[i])
		}
	}
}

func TestRandomHistoryIDIsBase36(t *testing.T) {
	for i := 0; i < 100; i++ {
		id := randomHistoryID(4)
		if len(id) != 4 {
			t.Fatalf("Expected 4 chars, got %q", id)
		}
		for _, c := range id {
			if !strings.ContainsRune(historyAlphabet, c) {
				t.Fatalf("Unexpected char %q in %q", c, id)
			}
		}
	}
}
