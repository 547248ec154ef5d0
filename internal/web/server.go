// Package web serves the operator HTTP endpoints.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"referral-bot/internal/conversation"
	"referral-bot/internal/ledger"
	"referral-bot/internal/models"
	"referral-bot/internal/referral"
	"referral-bot/internal/utils"
)

type Ledger interface {
	FindByCode(ctx context.Context, code string) (*models.User, error)
	Ping(ctx context.Context) error
}

type StatsReader interface {
	GetStats(ctx context.Context, userID int64) (referral.Stats, error)
	GetBalance(ctx context.Context, userID int64) (decimal.Decimal, error)
}

// Check is a named dependency check used by /healthz.
type Check struct {
	Name  string
	Ping func(ctx context.Context) error
}

type Server struct {
	ledger      Ledger
	stats       StatsReader
	botUsername string
	allowed     []*net.IPNet
	checks      []Check
	logger      *zap.Logger
}

func NewServer(l Ledger, stats StatsReader, botUsername string, allowed []*net.IPNet, logger *zap.Logger, checks ...Check) *Server {
	return &Server{
		ledger:      l,
		stats:       stats,
		botUsername: botUsername,
		allowed:     allowed,
		checks:      append([]Check{{Name: "database", Ping: l.Ping}}, checks...),
		logger:      logger.Named("http"),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.health)
	r.Get("/qr/{code}.png", s.qr)

	r.Group(func(admin chi.Router) {
		admin.Use(s.requireAllowedIP)
		admin.Get("/users/{id}/stats", s.userStats)
	})
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := map[string]string{}
	code := http.StatusOK
	for _, c := range s.checks {
		if err := c.Ping(ctx); err != nil {
			s.logger.Warn("Health check failed", zap.String("check", c.Name), zap.Error(err))
			status[c.Name] = "down"
			code = http.StatusServiceUnavailable
			continue
		}
		status[c.Name] = "ok"
	}
	writeJSON(w, code, status)
}

type statsResponse struct {
	UserID         int64  `json:"user_id"`
	ReferralCode   string `json:"referral_code"`
	TotalReferrals int64  `json:"total_referrals"`
	TotalEarnings  string `json:"total_earnings"`
	Balance        string `json:"balance"`
}

func (s *Server) userStats(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}

	stats, err := s.stats.GetStats(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	balance, err := s.stats.GetBalance(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, statsResponse{
		UserID:         id,
		ReferralCode:   stats.ReferralCode,
		TotalReferrals: stats.TotalReferrals,
		TotalEarnings:  stats.TotalEarnings.StringFixed(2),
		Balance:        balance.StringFixed(2),
	})
}

func (s *Server) qr(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "code")))
	if code == "" {
		http.NotFound(w, r)
		return
	}
	if _, err := s.ledger.FindByCode(r.Context(), code); err != nil {
		s.fail(w, r, err)
		return
	}

	png, err := qrcode.Encode(conversation.ReferralLink(s.botUsername, code), qrcode.Medium, 256)
	if err != nil {
		s.logger.Error("Failed to generate QR", zap.String("code", code), zap.Error(err))
		http.Error(w, "failed to generate qr", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ledger.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	s.logger.Error("Request failed", zap.String("path", r.URL.Path), zap.Error(err))
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func (s *Server) requireAllowedIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !utils.IsAllowedIP(r.RemoteAddr, s.allowed) {
			s.logger.Warn("Rejected request from disallowed address",
				zap.String("remote_addr", r.RemoteAddr),
				zap.String("path", r.URL.Path))
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("Request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
