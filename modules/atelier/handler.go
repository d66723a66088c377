package atelier

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"lyra-atelier-server/modules/common/model"
	"lyra-atelier-server/modules/common/utils"
	"lyra-atelier-server/modules/enhancer"
	"lyra-atelier-server/modules/session"
	"lyra-atelier-server/modules/studio"
)

// webpQuality - 결과 이미지 WebP 다운로드 품질
const webpQuality = 90

// Handler - 세션 API
type Handler struct {
	sessions   *session.Manager
	controller *Controller
	enhancer   *enhancer.Service
	maxUpload  int64
}

// NewHandler - Handler 생성
func NewHandler(sessions *session.Manager, controller *Controller, enh *enhancer.Service, maxUploadBytes int64) *Handler {
	return &Handler{
		sessions:   sessions,
		controller: controller,
		enhancer:   enh,
		maxUpload:  maxUploadBytes,
	}
}

// RegisterRoutes - 라우트 등록
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/presets", h.HandlePresets).Methods("GET")
	r.HandleFunc("/api/sessions", h.HandleStartTrial).Methods("POST")

	s := r.PathPrefix("/api/sessions/{sid}").Subrouter()
	s.HandleFunc("", h.HandleGetState).Methods("GET")
	s.HandleFunc("", h.HandleEndSession).Methods("DELETE")
	s.HandleFunc("/tab", h.HandleSelectTab).Methods("POST")
	s.HandleFunc("/camera/open", h.HandleOpenCamera).Methods("POST")
	s.HandleFunc("/camera/flip", h.withSession(func(ss *session.Session, r *http.Request) error { return ss.FlipCamera() })).Methods("POST")
	s.HandleFunc("/camera/close", h.withSession(func(ss *session.Session, r *http.Request) error { return ss.CloseCamera() })).Methods("POST")
	s.HandleFunc("/camera/capture", h.HandleCapture).Methods("POST")
	s.HandleFunc("/reference", h.HandleImport).Methods("POST")
	s.HandleFunc("/reference", h.HandleGetReference).Methods("GET")
	s.HandleFunc("/clear", h.withSession(func(ss *session.Session, r *http.Request) error { return ss.ClearCanvas() })).Methods("POST")
	s.HandleFunc("/mode/poster", h.withSession(func(ss *session.Session, r *http.Request) error { return ss.EnterPosterMode() })).Methods("POST")
	s.HandleFunc("/mode/dashboard", h.withSession(func(ss *session.Session, r *http.Request) error { return ss.ReturnToDashboard() })).Methods("POST")
	s.HandleFunc("/error/clear", h.withSession(func(ss *session.Session, r *http.Request) error { return ss.ClearError() })).Methods("POST")
	s.HandleFunc("/prompt", h.HandleSetPrompt).Methods("POST")
	s.HandleFunc("/prompt/optimize", h.HandleOptimize).Methods("POST")
	s.HandleFunc("/prompt/suggestions", h.HandleSuggest).Methods("POST")
	s.HandleFunc("/prompt/suggestions/pick", h.HandlePick).Methods("POST")
	s.HandleFunc("/size", h.HandleSetSize).Methods("POST")
	s.HandleFunc("/poster/config", h.HandleUpdatePoster).Methods("POST")
	s.HandleFunc("/poster/recommendations", h.HandleSuggestPosters).Methods("POST")
	s.HandleFunc("/poster/recommendations/{index}/apply", h.HandleApplyRecommendation).Methods("POST")
	s.HandleFunc("/concepts", h.HandleAnalyzeConcepts).Methods("POST")
	s.HandleFunc("/generate/cancel", h.withSession(func(ss *session.Session, r *http.Request) error { return ss.CancelGeneration() })).Methods("POST")
	s.HandleFunc("/generate/concept/{index}", h.HandleGenerateConcept).Methods("POST")
	s.HandleFunc("/generate/{kind}", h.HandleGenerate).Methods("POST")
	s.HandleFunc("/history", h.HandleHistory).Methods("GET")
	s.HandleFunc("/history/{id}/view", h.HandleViewHistory).Methods("POST")
	s.HandleFunc("/images/{id}", h.HandleDownload).Methods("GET")
	s.HandleFunc("/quota", h.HandleQuota).Methods("GET")

	log.Println("✅ Atelier routes registered: /api/presets, /api/sessions/...")
}

func (h *Handler) session(r *http.Request) (*session.Session, error) {
	return h.sessions.Get(mux.Vars(r)["sid"])
}

func decodeBody(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

func pathIndex(r *http.Request) (int, error) {
	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		return 0, fmt.Errorf("%w: index must be a number", ErrInvalidRequest)
	}
	return index, nil
}

// respond - 에러면 에러 응답, 아니면 최신 상태 반환
func respond(w http.ResponseWriter, s *session.Session, err error, fill func(*Response)) {
	state := s.Snapshot()
	if err != nil {
		writeError(w, err, &state)
		return
	}
	resp := Response{Success: true, State: &state}
	if fill != nil {
		fill(&resp)
	}
	writeJSON(w, http.StatusOK, resp)
}

// withSession - 본문 없는 단순 상태 전이용
func (h *Handler) withSession(action func(*session.Session, *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := h.session(r)
		if err != nil {
			writeError(w, err, nil)
			return
		}
		respond(w, s, action(s, r), nil)
	}
}

// HandlePresets - GET /api/presets
func (h *Handler) HandlePresets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Presets{
		PosterStyles: model.PosterStyles,
		ImageSizes:   model.ImageSizes,
		Scenarios: map[string]string{
			model.TypeModelShot:    studio.ModelShotScenario,
			model.TypeCreativeShot: studio.CreativeShotScenario,
		},
		AspectRatio: studio.ImageAspectRatio,
	})
}

// StartTrialRequest - 체험 시작 요청
// TrialID는 클라이언트가 보관하는 체험 ID (새로고침 후 재사용)
type StartTrialRequest struct {
	Name    string `json:"name"`
	TrialID string `json:"trialId"`
}

const maxTrialIDLength = 64

// trialKey - 요청의 trialId, 없으면 클라이언트 IP 기반 키
func trialKey(r *http.Request, requested string) (string, error) {
	requested = strings.TrimSpace(requested)
	if requested == "" {
		return "ip:" + clientIP(r), nil
	}
	if len(requested) > maxTrialIDLength {
		return "", fmt.Errorf("%w: trialId too long", ErrInvalidRequest)
	}
	for _, c := range requested {
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '-' || c == '_') {
			return "", fmt.Errorf("%w: trialId may only contain letters, digits, '-' and '_'", ErrInvalidRequest)
		}
	}
	return requested, nil
}

// clientIP - 프록시 뒤에서는 X-Forwarded-For 첫 번째 값
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// HandleStartTrial - POST /api/sessions
func (h *Handler) HandleStartTrial(w http.ResponseWriter, r *http.Request) {
	var req StartTrialRequest
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			writeError(w, err, nil)
			return
		}
	}

	trialID, err := trialKey(r, req.TrialID)
	if err != nil {
		writeError(w, err, nil)
		return
	}

	s := h.sessions.StartTrial(req.Name, trialID)
	state := s.Snapshot()
	writeJSON(w, http.StatusCreated, Response{Success: true, State: &state})
}

// HandleGetState - GET /api/sessions/{sid}
func (h *Handler) HandleGetState(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	respond(w, s, nil, nil)
}

// HandleEndSession - DELETE /api/sessions/{sid}
func (h *Handler) HandleEndSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.End(mux.Vars(r)["sid"]); err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true})
}

// HandleSelectTab - POST /tab {"tab":"CREATE"}
func (h *Handler) HandleSelectTab(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	var req struct {
		Tab model.NavTab `json:"tab"`
	}
	if err := decodeBody(r, &req); err != nil {
		respond(w, s, err, nil)
		return
	}
	respond(w, s, s.SelectTab(req.Tab), nil)
}

// HandleOpenCamera - POST /camera/open {"facing":"user"} (본문 생략 시 현재 방향)
func (h *Handler) HandleOpenCamera(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	var req struct {
		Facing model.CameraFacingMode `json:"facing"`
	}
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			respond(w, s, err, nil)
			return
		}
	}
	respond(w, s, s.OpenCamera(req.Facing), nil)
}

// readImage - multipart(field) / image/* 원본 / JSON {"image": base64 또는 data URL}
func (h *Handler) readImage(w http.ResponseWriter, r *http.Request, field string) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	contentType := r.Header.Get("Content-Type")

	switch {
	case strings.HasPrefix(contentType, "multipart/form-data"):
		if err := r.ParseMultipartForm(h.maxUpload); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		file, _, err := r.FormFile(field)
		if err != nil {
			return nil, fmt.Errorf("%w: missing %q file", ErrInvalidRequest, field)
		}
		defer file.Close()
		return readAll(file)

	case strings.HasPrefix(contentType, "image/"):
		return readAll(r.Body)
	}

	var req struct {
		Image string `json:"image"`
	}
	if err := decodeBody(r, &req); err != nil {
		return nil, err
	}
	return utils.DecodeBase64Image(req.Image)
}

func readAll(rd io.Reader) ([]byte, error) {
	data, err := io.ReadAll(rd)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if len(data) == 0 {
		return nil, utils.ErrEmptyImage
	}
	return data, nil
}

// HandleCapture - POST /camera/capture
func (h *Handler) HandleCapture(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	frame, err := h.readImage(w, r, "frame")
	if err != nil {
		respond(w, s, err, nil)
		return
	}
	respond(w, s, h.controller.CaptureFrame(s, frame), nil)
}

// HandleImport - POST /reference
func (h *Handler) HandleImport(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	data, err := h.readImage(w, r, "file")
	if err != nil {
		respond(w, s, err, nil)
		return
	}
	respond(w, s, h.controller.ImportFile(s, data), nil)
}

// HandleGetReference - GET /reference (미리보기 JPEG)
func (h *Handler) HandleGetReference(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	data, ok := s.ReferenceImage()
	if !ok {
		writeError(w, session.ErrNoReference, nil)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(data)
}

// HandleSetPrompt - POST /prompt {"prompt":"..."}
func (h *Handler) HandleSetPrompt(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	var req struct {
		Prompt string `json:"prompt"`
	}
	if err := decodeBody(r, &req); err != nil {
		respond(w, s, err, nil)
		return
	}
	respond(w, s, s.SetPrompt(req.Prompt), nil)
}

// HandleSetSize - POST /size {"size":"2K"}
func (h *Handler) HandleSetSize(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	var req struct {
		Size model.ImageSize `json:"size"`
	}
	if err := decodeBody(r, &req); err != nil {
		respond(w, s, err, nil)
		return
	}
	respond(w, s, s.SetImageSize(req.Size), nil)
}

// HandleUpdatePoster - POST /poster/config
func (h *Handler) HandleUpdatePoster(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	var cfg model.PosterConfig
	if err := decodeBody(r, &cfg); err != nil {
		respond(w, s, err, nil)
		return
	}
	respond(w, s, s.UpdatePosterConfig(cfg), nil)
}

// HandleApplyRecommendation - POST /poster/recommendations/{index}/apply
func (h *Handler) HandleApplyRecommendation(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	index, err := pathIndex(r)
	if err != nil {
		respond(w, s, err, nil)
		return
	}
	respond(w, s, s.ApplyRecommendation(index), nil)
}

// HandleSuggestPosters - POST /poster/recommendations
func (h *Handler) HandleSuggestPosters(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	recs, err := h.controller.SuggestPosters(r.Context(), s)
	respond(w, s, err, func(resp *Response) { resp.Recommendations = recs })
}

// HandleAnalyzeConcepts - POST /concepts
func (h *Handler) HandleAnalyzeConcepts(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	concepts, err := h.controller.AnalyzeConcepts(r.Context(), s)
	respond(w, s, err, func(resp *Response) { resp.Concepts = concepts })
}

// HandleGenerate - POST /generate/{kind} (model | creative | poster)
func (h *Handler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	kind := Kind(mux.Vars(r)["kind"])
	if kind == KindConcept {
		writeError(w, fmt.Errorf("%w: concept requires an index", ErrInvalidRequest), nil)
		return
	}
	h.generate(w, r, kind, 0)
}

// HandleGenerateConcept - POST /generate/concept/{index}
func (h *Handler) HandleGenerateConcept(w http.ResponseWriter, r *http.Request) {
	index, err := pathIndex(r)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	h.generate(w, r, KindConcept, index)
}

func (h *Handler) generate(w http.ResponseWriter, r *http.Request, kind Kind, index int) {
	s, err := h.session(r)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	log.Printf("🎨 [Atelier] Generate request: session=%s, kind=%s", s.ID(), kind)
	img, usage, err := h.controller.Generate(r.Context(), s, kind, index)
	respond(w, s, err, func(resp *Response) {
		resp.Image = img
		resp.Usage = usage
	})
}

// HandleOptimize - POST /prompt/optimize
func (h *Handler) HandleOptimize(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	prompt, err := h.enhancer.Optimize(r.Context(), s)
	respond(w, s, err, func(resp *Response) { resp.Prompt = &prompt })
}

// HandleSuggest - POST /prompt/suggestions
func (h *Handler) HandleSuggest(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	suggestions, err := h.enhancer.Suggest(r.Context(), s)
	respond(w, s, err, func(resp *Response) { resp.Suggestions = suggestions })
}

// HandlePick - POST /prompt/suggestions/pick {"suggestion":"..."}
func (h *Handler) HandlePick(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	var req struct {
		Suggestion string `json:"suggestion"`
	}
	if err := decodeBody(r, &req); err != nil {
		respond(w, s, err, nil)
		return
	}
	respond(w, s, h.enhancer.Pick(s, req.Suggestion), nil)
}

// HandleHistory - GET /history
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, History: s.History()})
}

// HandleViewHistory - POST /history/{id}/view
func (h *Handler) HandleViewHistory(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	respond(w, s, s.ViewHistory(mux.Vars(r)["id"]), nil)
}

// HandleDownload - GET /images/{id}?format=png|webp|dataurl
func (h *Handler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	img, err := s.Image(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err, nil)
		return
	}

	data, mimeType, ext := img.Data, img.MIMEType, "png"
	if mimeType == "image/jpeg" {
		ext = "jpg"
	}
	switch r.URL.Query().Get("format") {
	case "", "png":
	case "webp":
		converted, err := utils.ConvertToWebP(img.Data, webpQuality)
		if err != nil {
			writeError(w, err, nil)
			return
		}
		data, mimeType, ext = converted, "image/webp", "webp"
	case "dataurl":
		writeJSON(w, http.StatusOK, Response{Success: true, Image: &img.GeneratedImage, DataURL: utils.ToDataURL(img.MIMEType, img.Data)})
		return
	default:
		writeError(w, fmt.Errorf("%w: unsupported format", ErrInvalidRequest), nil)
		return
	}

	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="lyra-%s.%s"`, img.ID, ext))
	w.Write(data)
}

// HandleQuota - GET /quota
func (h *Handler) HandleQuota(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	usage, err := h.controller.Usage(r.Context(), s)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Usage: usage})
}
