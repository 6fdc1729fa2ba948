package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/fentz26/shiftwatch/internal/models"
	"github.com/fentz26/shiftwatch/internal/schedule"
)

// Version is reported by /health.
var Version = "0.3.0"

// RateLimit bounds mutating requests. A non-positive PerSecond disables it.
type RateLimit struct {
	PerSecond float64
	Burst     int
}

// Server provides the HTTP API for shiftwatch.
type Server struct {
	service *Service
	addr    string
	log     zerolog.Logger
	limiter *rate.Limiter
	server  *http.Server
	sweeper StatsSource
}

// StatsSource reports background job statistics for /health.
type StatsSource interface {
	Stats() map[string]interface{}
}

// SetSweeper adds the sweeper's statistics to the health response.
func (s *Server) SetSweeper(src StatsSource) {
	s.sweeper = src
}

// NewServer creates a new HTTP server.
func NewServer(service *Service, addr string, limit RateLimit, log zerolog.Logger) *Server {
	s := &Server{
		service: service,
		addr:    addr,
		log:     log,
	}
	if limit.PerSecond > 0 {
		burst := limit.Burst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(limit.PerSecond), burst)
	}
	return s
}

// Handler returns the routed handler wrapped in logging and rate limiting.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/now", s.handleNow)
	mux.HandleFunc("/blocks", s.handleBlocks)

	// Member endpoints
	mux.HandleFunc("/members", s.handleMembers)
	mux.HandleFunc("/members/", s.handleMemberByMail)

	// Shift endpoints
	mux.HandleFunc("/shifts", s.handleShifts)
	mux.HandleFunc("/shifts/week", s.handleWeek)
	mux.HandleFunc("/shifts/excuse", s.handleExcuse)

	mux.HandleFunc("/audit", s.handleAudit)

	return s.logRequests(s.limit(mux))
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	s.log.Info().Str("addr", s.addr).Msg("starting shiftwatch daemon")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// --- Middleware ---

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		ev := s.log.Debug()
		if rec.status >= http.StatusInternalServerError {
			ev = s.log.Error()
		}
		ev.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mutating := r.Method != http.MethodGet && r.Method != http.MethodHead
		if mutating && s.limiter != nil && !s.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- Helpers ---

type errorResponse struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	var vErr *schedule.ValidationError
	switch {
	case errors.As(err, &vErr), errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrMemberNotFound), errors.Is(err, ErrShiftNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrNotOnShift),
		errors.Is(err, ErrCheckinDayOver),
		errors.Is(err, ErrShiftAlreadyClosed),
		errors.Is(err, ErrAlreadyExcused),
		errors.Is(err, ErrBlockOutOfRange):
		return http.StatusForbidden
	case errors.Is(err, ErrShiftAlreadyOpen), errors.Is(err, ErrMemberExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("request failed")
	}
	writeError(w, status, err.Error())
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

func parseDay(v string) (time.Time, error) {
	t, err := time.ParseInLocation(dayLayout, v, time.Local)
	if err != nil {
		return time.Time{}, errors.Join(ErrInvalidRequest, err)
	}
	return t, nil
}

// --- Status Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	resp := HealthResponse{OK: true, DB: "ok", Version: Version, Time: time.Now().Format(time.RFC3339)}
	if s.sweeper != nil {
		resp.Sweeper = s.sweeper.Stats()
	}
	status := http.StatusOK
	if err := s.service.Ping(r.Context()); err != nil {
		resp.OK = false
		resp.DB = err.Error()
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleNow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	now, err := s.service.Now(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, now)
}

func (s *Server) handleBlocks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.service.Blocks())
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	records, err := s.service.ListAudit(r.Context(), limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// --- Member Handlers ---

// handleMembers handles GET /members and POST /members
func (s *Server) handleMembers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		members, err := s.service.ListMembers(r.Context())
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, members)
	case http.MethodPost:
		s.createMember(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type createMemberRequest struct {
	Rol      int64  `json:"rol"`
	Mail     string `json:"mail"`
	Name     string `json:"name"`
	Nick     string `json:"nick"`
	Schedule string `json:"schedule"`
}

func (s *Server) createMember(w http.ResponseWriter, r *http.Request) {
	var req createMemberRequest
	if !decode(w, r, &req) {
		return
	}

	m, err := s.service.CreateMember(r.Context(), models.Member{
		Rol:      req.Rol,
		Mail:     req.Mail,
		Name:     req.Name,
		Nick:     req.Nick,
		Schedule: req.Schedule,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// handleMemberByMail handles /members/{mail}/*
func (s *Server) handleMemberByMail(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/members/")
	parts := strings.Split(path, "/")

	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusBadRequest, "member mail required")
		return
	}

	mail := parts[0]
	action := ""
	if len(parts) > 1 {
		action = parts[1]
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		s.getMember(w, r, mail)
	case action == "" && r.Method == http.MethodDelete:
		if err := s.service.DeleteMember(r.Context(), mail); err != nil {
			s.fail(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case action == "schedule" && r.Method == http.MethodGet:
		s.getSchedule(w, r, mail)
	case action == "schedule" && r.Method == http.MethodPut:
		s.updateSchedule(w, r, mail)
	case action == "calendar.ics" && r.Method == http.MethodGet:
		s.getCalendar(w, r, mail)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) getMember(w http.ResponseWriter, r *http.Request, mail string) {
	st, err := s.service.MemberStatus(r.Context(), mail)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) getSchedule(w http.ResponseWriter, r *http.Request, mail string) {
	list, err := s.service.MemberSchedule(r.Context(), mail)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type updateScheduleRequest struct {
	Schedule string `json:"schedule"`
}

func (s *Server) updateSchedule(w http.ResponseWriter, r *http.Request, mail string) {
	var req updateScheduleRequest
	if !decode(w, r, &req) {
		return
	}
	m, err := s.service.UpdateSchedule(r.Context(), mail, req.Schedule)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) getCalendar(w http.ResponseWriter, r *http.Request, mail string) {
	feed, err := s.service.Calendar(r.Context(), mail)
	if err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(feed))
}

// --- Shift Handlers ---

// handleShifts handles GET (report), POST (check-in) and PUT (check-out)
// on /shifts.
func (s *Server) handleShifts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.getReport(w, r)
	case http.MethodPost:
		s.checkIn(w, r)
	case http.MethodPut:
		s.checkOut(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mail := q.Get("mail")
	if mail == "" || q.Get("start") == "" {
		writeError(w, http.StatusBadRequest, "mail and start are required")
		return
	}
	start, err := parseDay(q.Get("start"))
	if err != nil {
		s.fail(w, err)
		return
	}
	var end time.Time
	if v := q.Get("end"); v != "" {
		if end, err = parseDay(v); err != nil {
			s.fail(w, err)
			return
		}
	}

	rep, err := s.service.Report(r.Context(), mail, start, end)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

type checkInRequest struct {
	Mail string `json:"mail"`
}

func (s *Server) checkIn(w http.ResponseWriter, r *http.Request) {
	var req checkInRequest
	if !decode(w, r, &req) {
		return
	}
	sh, err := s.service.CheckIn(r.Context(), req.Mail)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sh)
}

type checkOutRequest struct {
	ID string `json:"id"`
}

func (s *Server) checkOut(w http.ResponseWriter, r *http.Request) {
	var req checkOutRequest
	if !decode(w, r, &req) {
		return
	}
	sh, err := s.service.CheckOut(r.Context(), req.ID)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sh)
}

func (s *Server) handleWeek(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	week, err := s.service.Week(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, week)
}

type excuseRequest struct {
	Date   string `json:"date"`
	Block  int    `json:"block"`
	Reason string `json:"reason"`
}

// handleExcuse handles GET /shifts/excuse and POST /shifts/excuse
func (s *Server) handleExcuse(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		list, err := s.service.ListExcused(r.Context())
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	case http.MethodPost:
		var req excuseRequest
		if !decode(w, r, &req) {
			return
		}
		date, err := parseDay(req.Date)
		if err != nil {
			s.fail(w, err)
			return
		}
		occ, err := s.service.Excuse(r.Context(), date, req.Block, req.Reason)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, occ)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}
