package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"math/rand/v2"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/diogoX451/agentnet/pkg/types"
)

// Agente de exemplo que fala o contrato de fio do AgentNet:
// GET /health e POST /{action} -> {"success", "data", "error"}.
// MOCK_AGENT_FAIL_RATE (0..1) e MOCK_AGENT_DELAY simulam instabilidade.

type actionRequest struct {
	Parameters map[string]any `json:"parameters"`
	UserID     string         `json:"user_id"`
	RequestID  string         `json:"request_id"`
}

type actionResponse struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
}

func main() {
	addr := types.Getenv("MOCK_AGENT_ADDR", ":9000")
	name := types.Getenv("MOCK_AGENT_NAME", "mock")
	rawRate := types.Getenv("MOCK_AGENT_FAIL_RATE", "0")
	failRate, err := strconv.ParseFloat(rawRate, 64)
	if err != nil || failRate < 0 || failRate > 1 {
		log.Fatalf("invalid MOCK_AGENT_FAIL_RATE %q: want a number in [0,1]", rawRate)
	}
	rawDelay := types.Getenv("MOCK_AGENT_DELAY", "0s")
	delay, err := time.ParseDuration(rawDelay)
	if err != nil || delay < 0 {
		log.Fatalf("invalid MOCK_AGENT_DELAY %q: want a non-negative duration", rawDelay)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Post("/{action}", func(w http.ResponseWriter, r *http.Request) {
		var req actionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}

		resp := actionResponse{Success: true, Data: map[string]any{
			"agent":      name,
			"action":     chi.URLParam(r, "action"),
			"request_id": req.RequestID,
			"parameters": req.Parameters,
		}}
		if failRate > 0 && rand.Float64() < failRate {
			resp = actionResponse{Success: false, Error: "simulated failure"}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})

	srv := &http.Server{Addr: addr, Handler: r, ReadTimeout: 15 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		log.Println("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("Mock agent %s listening on %s", name, addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}
