// Package gateway exposes the safety pipeline over HTTP for sidecar
// deployments: agents POST candidate actions and operators resolve held
// approvals.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MEKXH/aegis/internal/approval"
	"github.com/MEKXH/aegis/internal/config"
	"github.com/MEKXH/aegis/internal/guard"
	"github.com/MEKXH/aegis/internal/intervention"
	"github.com/MEKXH/aegis/internal/metrics"
	"github.com/MEKXH/aegis/internal/principles"
	"github.com/MEKXH/aegis/internal/safety"
	"github.com/MEKXH/aegis/internal/trace"
	"github.com/MEKXH/aegis/internal/version"
)

// SafetyService is the pipeline surface the gateway serves. *guard.Guard
// satisfies it.
type SafetyService interface {
	CheckAndIntervene(ctx context.Context, action safety.ActionContext) (safety.CheckResult, intervention.Result, error)
	GetPendingApprovals() ([]approval.Request, error)
	ApproveAction(id, approver string) (approval.Request, error)
	DenyAction(id, denier, reason string) (approval.Request, error)
	CurrentLevel() (principles.SafetyLevel, error)
	Metrics() metrics.Snapshot
}

type Server struct {
	cfg        config.GatewayConfig
	service    SafetyService
	httpServer *http.Server
}

func New(cfg config.GatewayConfig, service SafetyService) *Server {
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		host = "0.0.0.0"
	}
	port := cfg.Port
	if port <= 0 {
		port = 18890
	}

	cfg.Host = host
	cfg.Port = port
	return &Server{
		cfg:     cfg,
		service: service,
	}
}

func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
}

func (s *Server) Start() error {
	mux := NewHandler(s.cfg.Token, s.service)
	s.httpServer = &http.Server{
		Addr:              s.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	slog.Info("gateway listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func NewHandler(token string, service SafetyService) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		requestID := getRequestID(r)
		levelName := ""
		if level, err := service.CurrentLevel(); err == nil {
			levelName = level.Name
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":       "ok",
			"safety_level": levelName,
			"metrics":      service.Metrics(),
			"request_id":   requestID,
		})
	})

	mux.HandleFunc("GET /version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"version":    version.Version,
			"request_id": getRequestID(r),
		})
	})

	mux.HandleFunc("POST /v1/check", func(w http.ResponseWriter, r *http.Request) {
		requestID := getRequestID(r)
		if !authorize(w, r, token, requestID) {
			return
		}

		var action safety.ActionContext
		if err := json.NewDecoder(r.Body).Decode(&action); err != nil {
			writeError(w, requestID, http.StatusBadRequest, "bad_request", "invalid json request")
			return
		}
		if strings.TrimSpace(action.Action) == "" {
			writeError(w, requestID, http.StatusBadRequest, "bad_request", "action is required")
			return
		}

		ctx := trace.WithRequestID(r.Context(), requestID)
		result, res, err := service.CheckAndIntervene(ctx, action)
		if err != nil {
			slog.Error("gateway check failed", "request_id", requestID, "action", action.Action, "error", err)
			writeError(w, requestID, http.StatusServiceUnavailable, "not_ready", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"result":       result,
			"intervention": res,
			"request_id":   requestID,
		})
	})

	mux.HandleFunc("GET /v1/approvals", func(w http.ResponseWriter, r *http.Request) {
		requestID := getRequestID(r)
		if !authorize(w, r, token, requestID) {
			return
		}

		pending, err := service.GetPendingApprovals()
		if err != nil {
			writeError(w, requestID, http.StatusServiceUnavailable, "not_ready", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"approvals":  pending,
			"count":      len(pending),
			"request_id": requestID,
		})
	})

	mux.HandleFunc("POST /v1/approvals/{id}/approve", func(w http.ResponseWriter, r *http.Request) {
		requestID := getRequestID(r)
		if !authorize(w, r, token, requestID) {
			return
		}

		var body struct {
			Approver string `json:"approver"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, requestID, http.StatusBadRequest, "bad_request", "invalid json request")
			return
		}
		if strings.TrimSpace(body.Approver) == "" {
			writeError(w, requestID, http.StatusBadRequest, "bad_request", "approver is required")
			return
		}

		req, err := service.ApproveAction(r.PathValue("id"), body.Approver)
		if err != nil {
			writeResolutionError(w, requestID, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"approval":   req,
			"request_id": requestID,
		})
	})

	mux.HandleFunc("POST /v1/approvals/{id}/deny", func(w http.ResponseWriter, r *http.Request) {
		requestID := getRequestID(r)
		if !authorize(w, r, token, requestID) {
			return
		}

		var body struct {
			Denier string `json:"denier"`
			Reason string `json:"reason"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, requestID, http.StatusBadRequest, "bad_request", "invalid json request")
			return
		}
		if strings.TrimSpace(body.Denier) == "" {
			writeError(w, requestID, http.StatusBadRequest, "bad_request", "denier is required")
			return
		}

		req, err := service.DenyAction(r.PathValue("id"), body.Denier, body.Reason)
		if err != nil {
			writeResolutionError(w, requestID, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"approval":   req,
			"request_id": requestID,
		})
	})

	return mux
}

func authorize(w http.ResponseWriter, r *http.Request, token, requestID string) bool {
	if strings.TrimSpace(token) == "" {
		return true
	}
	if !isAuthorized(r, token) {
		writeError(w, requestID, http.StatusUnauthorized, "unauthorized", "missing or invalid bearer token")
		return false
	}
	return true
}

func isAuthorized(r *http.Request, expected string) bool {
	got := strings.TrimSpace(r.Header.Get("Authorization"))
	if got == "" {
		return false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(got, prefix) {
		return false
	}
	token := strings.TrimSpace(strings.TrimPrefix(got, prefix))
	return token == expected
}

func getRequestID(r *http.Request) string {
	rid := strings.TrimSpace(r.Header.Get("X-Request-ID"))
	if rid != "" {
		return rid
	}
	return trace.NewRequestID()
}

func writeResolutionError(w http.ResponseWriter, requestID string, err error) {
	var re *guard.ResolutionError
	if errors.As(err, &re) {
		status := http.StatusConflict
		if re.Code == approval.OutcomeNotFound {
			status = http.StatusNotFound
		}
		writeError(w, requestID, status, re.Code, re.Message)
		return
	}
	writeError(w, requestID, http.StatusServiceUnavailable, "not_ready", err.Error())
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"code":       code,
		"message":    message,
		"request_id": requestID,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
