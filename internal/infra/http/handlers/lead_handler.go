package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/goldtouch/leadwire/internal/entity"
	"github.com/goldtouch/leadwire/internal/usecase"
)

type LeadHandler struct {
	CreateLeadUC *usecase.CreateLeadUseCase
	SendLeadUC   *usecase.SendLeadUseCase
	LeadRepo     entity.LeadRepositoryInterface
	rateLimiter  *RateLimiter
}

func NewLeadHandler(
	createUC *usecase.CreateLeadUseCase,
	sendUC *usecase.SendLeadUseCase,
	leadRepo entity.LeadRepositoryInterface,
) *LeadHandler {
	return &LeadHandler{
		CreateLeadUC: createUC,
		SendLeadUC:   sendUC,
		LeadRepo:     leadRepo,
		rateLimiter:  NewRateLimiter(30, time.Minute), // 30 req/min per IP
	}
}

// Create (POST /api/leads) registers a lead and fans the teaser out to the
// listed providers. Contact details go in locked, never echoed back.
func (h *LeadHandler) Create(w http.ResponseWriter, r *http.Request) {
	clientIP := getClientIP(r)
	if !h.rateLimiter.Allow(clientIP) {
		writeJSON(w, http.StatusTooManyRequests, map[string]string{
			"error": "Too many requests. Please try again later.",
		})
		return
	}

	var input usecase.CreateLeadInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	output, err := h.CreateLeadUC.Execute(r.Context(), input)
	if err != nil {
		writeUseCaseError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, output)
}

// Send (POST /api/leads/{leadID}/send) offers an existing lead to more
// providers.
func (h *LeadHandler) Send(w http.ResponseWriter, r *http.Request) {
	leadID := chi.URLParam(r, "leadID")
	if leadID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "leadID is required"})
		return
	}

	var input usecase.SendLeadInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	output, err := h.SendLeadUC.Execute(r.Context(), leadID, input)
	if err != nil {
		writeUseCaseError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, output)
}

// Get (GET /api/leads/{leadID}) returns the masked view. The locked fields
// come back as ***LOCKED*** regardless of who asks.
func (h *LeadHandler) Get(w http.ResponseWriter, r *http.Request) {
	leadID := chi.URLParam(r, "leadID")
	if leadID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "leadID is required"})
		return
	}

	lead, err := h.LeadRepo.FindByID(r.Context(), leadID)
	if errors.Is(err, entity.ErrLeadNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "lead not found"})
		return
	}
	if err != nil {
		log.Printf("❌ [LEADS] find %s: %v", leadID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load lead"})
		return
	}

	writeJSON(w, http.StatusOK, lead.PublicView())
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeUseCaseError(w http.ResponseWriter, err error) {
	var de *usecase.DomainError
	if errors.As(err, &de) {
		status := http.StatusBadRequest
		if de.Code == usecase.CodeLeadNotFound {
			status = http.StatusNotFound
		}
		writeJSON(w, status, map[string]string{"error": de.Message, "code": de.Code})
		return
	}
	log.Printf("❌ [LEADS] use case error: %v", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}

type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    int
	window   time.Duration
}

type visitor struct {
	count     int
	lastReset time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		limit:    limit,
		window:   window,
	}

	go rl.cleanup()
	return rl
}

func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.visitors[ip]
	now := time.Now()

	if !exists {
		rl.visitors[ip] = &visitor{count: 1, lastReset: now}
		return true
	}

	if now.Sub(v.lastReset) > rl.window {
		v.count = 1
		v.lastReset = now
		return true
	}

	v.count++
	return v.count <= rl.limit
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		rl.mu.Lock()
		now := time.Now()
		for ip, v := range rl.visitors {
			if now.Sub(v.lastReset) > rl.window*2 {
				delete(rl.visitors, ip)
			}
		}
		rl.mu.Unlock()
	}
}
