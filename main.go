package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"

	"lyra-atelier-server/modules/atelier"
	"lyra-atelier-server/modules/common/config"
	"lyra-atelier-server/modules/common/gemini"
	"lyra-atelier-server/modules/common/quota"
	redisClient "lyra-atelier-server/modules/common/redis"
	"lyra-atelier-server/modules/enhancer"
	"lyra-atelier-server/modules/session"
	"lyra-atelier-server/modules/studio"
)

var (
	sessionManager *session.Manager
	rdb            *redis.Client
)

// CORS 헤더 추가
func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// 헬스 체크 엔드포인트
func healthCheck(w http.ResponseWriter, r *http.Request) {
	redisStatus := "connected"
	if err := redisClient.Ping(r.Context(), rdb); errors.Is(err, redisClient.ErrDisabled) {
		redisStatus = "disabled"
	} else if err != nil {
		redisStatus = "unreachable"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "lyra-atelier",
		"redis":   redisStatus,
	})
}

// 서버 메트릭 조회 엔드포인트
func getMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"server":   sessionManager.Metrics(),
		"sessions": sessionManager.Summaries(),
	})
}

// 세션 강제 정리 (관리자용)
func forceCleanupSessions(w http.ResponseWriter, r *http.Request) {
	empty := sessionManager.CleanupEmptySessions()
	expired := sessionManager.CleanupExpiredSessions()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "Cleanup completed",
		"empty":   empty,
		"expired": expired,
	})
}

func main() {
	// 환경변수 로드
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 세션 매니저 + 정리 루틴
	sessionManager = session.NewManager(cfg.SessionInactive, cfg.SessionExpire)
	sessionManager.StartCleanupRoutine(ctx)

	// Gemini 클라이언트 (키 순환 + 429 재시도)
	geminiClient := gemini.NewClient(cfg)
	studioService := studio.NewService(geminiClient, cfg.GeminiImageModel, cfg.GeminiTextModel)

	// 체험 한도 (Redis 없으면 in-memory)
	rdb, err = redisClient.Connect(ctx, cfg)
	if err != nil {
		log.Printf("⚠️  [Redis] %v, falling back to in-memory trial quota", err)
		rdb = nil
	} else {
		defer rdb.Close()
	}
	limiter := quota.New(rdb, cfg.TrialMaxGenerations, cfg.TrialWindow)

	controller := atelier.NewController(sessionManager, studioService, limiter)
	handler := atelier.NewHandler(sessionManager, controller, enhancer.NewService(studioService), cfg.MaxUploadBytes)

	// 라우터 설정
	r := mux.NewRouter()

	// CORS 미들웨어 적용
	r.Use(enableCORS)

	// 라우트 설정
	r.HandleFunc("/", healthCheck).Methods("GET")
	r.HandleFunc("/health", healthCheck).Methods("GET")
	r.HandleFunc("/ws", sessionManager.HandleWebSocket)
	r.HandleFunc("/metrics", getMetrics).Methods("GET")
	r.HandleFunc("/admin/cleanup", forceCleanupSessions).Methods("POST")
	handler.RegisterRoutes(r)

	port := cfg.Port
	log.Printf("🚀 Lyra Atelier Server starting on port %s", port)
	log.Printf("📡 WebSocket endpoint: ws://localhost:%s/ws?session={id}", port)
	log.Printf("❤️  Health check: http://localhost:%s/health", port)
	log.Printf("📊 Metrics: http://localhost:%s/metrics", port)
	log.Printf("🧹 Admin cleanup: http://localhost:%s/admin/cleanup", port)

	// 서버 시작
	if err := http.ListenAndServe(":"+port, r); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
