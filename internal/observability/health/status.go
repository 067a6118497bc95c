// Package health runs on-demand readiness checks for the API.
package health

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// HealthStatus represents the health status
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusDegraded  HealthStatus = "degraded"
	StatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck defines a health check function
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) HealthResult
	Critical() bool
	Timeout() time.Duration
}

// HealthResult represents the result of a health check
type HealthResult struct {
	Status    HealthStatus      `json:"status"`
	Message   string            `json:"message"`
	Duration  time.Duration     `json:"duration"`
	Timestamp time.Time         `json:"timestamp"`
	Details   map[string]string `json:"details,omitempty"`
}

// SystemStatus represents overall system health
type SystemStatus struct {
	OverallStatus  HealthStatus            `json:"status"`
	CheckResults   map[string]HealthResult `json:"checks"`
	CriticalIssues []string                `json:"critical_issues,omitempty"`
	Uptime         string                  `json:"uptime"`
	Version        string                  `json:"version"`
}

// HealthMonitor runs registered checks concurrently on request.
type HealthMonitor struct {
	logger         *logrus.Logger
	version        string
	defaultTimeout time.Duration
	startTime      time.Time

	mu     sync.RWMutex
	checks map[string]HealthCheck
}

// NewHealthMonitor creates a new health monitor
func NewHealthMonitor(version string, logger *logrus.Logger) *HealthMonitor {
	if logger == nil {
		logger = logrus.New()
	}
	return &HealthMonitor{
		logger:         logger,
		version:        version,
		defaultTimeout: 5 * time.Second,
		startTime:      time.Now(),
		checks:         make(map[string]HealthCheck),
	}
}

// RegisterCheck registers a new health check
func (hm *HealthMonitor) RegisterCheck(check HealthCheck) {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	hm.checks[check.Name()] = check
	hm.logger.WithField("check", check.Name()).Debug("Registered health check")
}

// Run executes every check and derives the overall status. Any failing
// critical check makes the system unhealthy; other failures degrade it.
func (hm *HealthMonitor) Run(ctx context.Context) *SystemStatus {
	hm.mu.RLock()
	checks := make([]HealthCheck, 0, len(hm.checks))
	for _, c := range hm.checks {
		checks = append(checks, c)
	}
	hm.mu.RUnlock()

	results := make([]HealthResult, len(checks))
	var wg sync.WaitGroup
	for i, check := range checks {
		wg.Add(1)
		go func(i int, c HealthCheck) {
			defer wg.Done()
			results[i] = hm.executeCheck(ctx, c)
		}(i, check)
	}
	wg.Wait()

	status := &SystemStatus{
		OverallStatus: StatusHealthy,
		CheckResults:  make(map[string]HealthResult, len(checks)),
		Uptime:        time.Since(hm.startTime).Round(time.Second).String(),
		Version:       hm.version,
	}
	for i, check := range checks {
		result := results[i]
		status.CheckResults[check.Name()] = result
		if result.Status == StatusHealthy {
			continue
		}
		if check.Critical() && result.Status == StatusUnhealthy {
			status.CriticalIssues = append(status.CriticalIssues, check.Name())
		} else if status.OverallStatus == StatusHealthy {
			status.OverallStatus = StatusDegraded
		}
	}
	if len(status.CriticalIssues) > 0 {
		sort.Strings(status.CriticalIssues)
		status.OverallStatus = StatusUnhealthy
	}
	return status
}

// executeCheck executes a single health check
func (hm *HealthMonitor) executeCheck(ctx context.Context, check HealthCheck) HealthResult {
	start := time.Now()

	timeout := check.Timeout()
	if timeout == 0 {
		timeout = hm.defaultTimeout
	}
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := check.Check(checkCtx)
	result.Duration = time.Since(start)
	result.Timestamp = time.Now()

	if result.Status != StatusHealthy {
		hm.logger.WithFields(logrus.Fields{
			"check":    check.Name(),
			"status":   result.Status,
			"duration": result.Duration,
			"message":  result.Message,
		}).Warn("Health check failed")
	}
	return result
}

// BasicHealthCheck adapts a function to HealthCheck. A non-nil error is
// unhealthy unless it wraps ErrDegraded.
type BasicHealthCheck struct {
	name      string
	checkFunc func(ctx context.Context) error
	critical  bool
	timeout   time.Duration
}

// ErrDegraded marks a check failure that leaves the system usable.
var ErrDegraded = errors.New("degraded")

// NewBasicHealthCheck creates a new basic health check
func NewBasicHealthCheck(name string, checkFunc func(ctx context.Context) error, critical bool, timeout time.Duration) *BasicHealthCheck {
	return &BasicHealthCheck{
		name:      name,
		checkFunc: checkFunc,
		critical:  critical,
		timeout:   timeout,
	}
}

// Name returns the check name
func (bhc *BasicHealthCheck) Name() string {
	return bhc.name
}

// Check executes the health check
func (bhc *BasicHealthCheck) Check(ctx context.Context) HealthResult {
	result := HealthResult{
		Status:  StatusHealthy,
		Message: "OK",
		Details: map[string]string{"critical": fmt.Sprintf("%t", bhc.critical)},
	}

	if err := bhc.checkFunc(ctx); err != nil {
		result.Status = StatusUnhealthy
		if errors.Is(err, ErrDegraded) {
			result.Status = StatusDegraded
		}
		result.Message = err.Error()
	}
	return result
}

// Critical returns whether this check is critical
func (bhc *BasicHealthCheck) Critical() bool {
	return bhc.critical
}

// Timeout returns the check timeout
func (bhc *BasicHealthCheck) Timeout() time.Duration {
	return bhc.timeout
}
