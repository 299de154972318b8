// Package health отдаёт HTTP-пробы состояния сервиса.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

const defaultCheckTimeout = 2 * time.Second

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// Check описывает результат одной проверки.
type Check struct {
	Name       string `json:"name"`
	Status     Status `json:"status"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Response: тело ответа /healthz.
type Response struct {
	Status        Status           `json:"status"`
	Timestamp     time.Time        `json:"timestamp"`
	Checks        map[string]Check `json:"checks,omitempty"`
	Version       string           `json:"version,omitempty"`
	UptimeSeconds int64            `json:"uptime_seconds"`
}

// Checker проверяет один компонент.
type Checker interface {
	Check(ctx context.Context) Check
}

// Pinger: компонент с проверкой доступности (хранилище, брокер).
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler собирает проверки и обслуживает пробы.
type Handler struct {
	mu        sync.RWMutex
	checkers  map[string]Checker
	version   string
	startTime time.Time
	timeout   time.Duration
}

// NewHandler создаёт handler с версией сборки в ответе.
func NewHandler(version string) *Handler {
	return &Handler{
		checkers:  make(map[string]Checker),
		version:   version,
		startTime: time.Now(),
		timeout:   defaultCheckTimeout,
	}
}

// RegisterChecker добавляет проверку под именем name.
func (h *Handler) RegisterChecker(name string, checker Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers[name] = checker
}

// Mount регистрирует /healthz, /livez и /readyz.
func (h *Handler) Mount(mux *http.ServeMux) {
	mux.Handle("/healthz", h)
	mux.HandleFunc("/livez", LivenessHandler)
	mux.HandleFunc("/readyz", h.ReadinessHandler)
}

// ServeHTTP возвращает подробный JSON по всем проверкам.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := h.runChecks(r.Context())

	overall := StatusHealthy
	for _, check := range checks {
		switch check.Status {
		case StatusUnhealthy:
			overall = StatusUnhealthy
		case StatusDegraded:
			if overall == StatusHealthy {
				overall = StatusDegraded
			}
		}
	}

	code := http.StatusOK
	if overall == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(Response{
		Status:        overall,
		Timestamp:     time.Now().UTC(),
		Checks:        checks,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
	})
}

// LivenessHandler всегда отвечает 200: процесс жив.
func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// ReadinessHandler отвечает 503, если хотя бы одна проверка не прошла.
func (h *Handler) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	for _, check := range h.runChecks(r.Context()) {
		if check.Status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready: " + check.Name))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// runChecks выполняет проверки параллельно, каждую со своим таймаутом.
func (h *Handler) runChecks(ctx context.Context) map[string]Check {
	h.mu.RLock()
	names := make([]string, 0, len(h.checkers))
	for name := range h.checkers {
		names = append(names, name)
	}
	checkers := make([]Checker, len(names))
	sort.Strings(names)
	for i, name := range names {
		checkers[i] = h.checkers[name]
	}
	h.mu.RUnlock()

	results := make([]Check, len(names))
	var wg sync.WaitGroup
	for i := range checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, h.timeout)
			defer cancel()
			results[i] = checkers[i].Check(cctx)
		}()
	}
	wg.Wait()

	out := make(map[string]Check, len(names))
	for i, name := range names {
		out[name] = results[i]
	}
	return out
}

// FuncChecker выполняет проверку функцией.
type FuncChecker struct {
	name    string
	checkFn func(ctx context.Context) error
}

// NewFuncChecker создаёт проверку из функции.
func NewFuncChecker(name string, checkFn func(ctx context.Context) error) *FuncChecker {
	return &FuncChecker{name: name, checkFn: checkFn}
}

// NewPingChecker проверяет компонент через Ping.
func NewPingChecker(name string, pinger Pinger) *FuncChecker {
	return NewFuncChecker(name, pinger.Ping)
}

// Check выполняет проверку.
func (c *FuncChecker) Check(ctx context.Context) Check {
	start := time.Now()
	err := c.checkFn(ctx)
	check := Check{Name: c.name, Status: StatusHealthy, DurationMs: time.Since(start).Milliseconds()}
	if err != nil {
		check.Status = StatusUnhealthy
		check.Message = err.Error()
	}
	return check
}
