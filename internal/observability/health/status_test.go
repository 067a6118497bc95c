package health

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/inferloop/salesforecast/internal/testutil"
)

func check(name string, critical bool, err error) *BasicHealthCheck {
	return NewBasicHealthCheck(name, func(ctx context.Context) error { return err }, critical, time.Second)
}

func TestRunAllHealthy(t *testing.T) {
	hm := NewHealthMonitor("1.0.0", testutil.GetTestLogger(t))
	hm.RegisterCheck(check("dataset", true, nil))
	hm.RegisterCheck(check("artifacts", true, nil))

	status := hm.Run(context.Background())
	assert.Equal(t, StatusHealthy, status.OverallStatus)
	assert.Len(t, status.CheckResults, 2)
	assert.Equal(t, "1.0.0", status.Version)
}

func TestRunDegradedAndUnhealthy(t *testing.T) {
	hm := NewHealthMonitor("1.0.0", testutil.GetTestLogger(t))
	hm.RegisterCheck(check("dataset", true, nil))
	hm.RegisterCheck(check("kpi_cache", false, fmt.Errorf("redis down")))

	status := hm.Run(context.Background())
	assert.Equal(t, StatusDegraded, status.OverallStatus)
	assert.Equal(t, StatusUnhealthy, status.CheckResults["kpi_cache"].Status)
	assert.Empty(t, status.CriticalIssues)

	hm.RegisterCheck(check("artifacts", true, fmt.Errorf("not loaded yet: %w", ErrDegraded)))
	status = hm.Run(context.Background())
	assert.Equal(t, StatusDegraded, status.OverallStatus)
	assert.Equal(t, StatusDegraded, status.CheckResults["artifacts"].Status)

	hm.RegisterCheck(check("dataset", true, fmt.Errorf("no rows")))
	status = hm.Run(context.Background())
	assert.Equal(t, StatusUnhealthy, status.OverallStatus)
	assert.Equal(t, []string{"dataset"}, status.CriticalIssues)
}

func TestCheckHonoursTimeout(t *testing.T) {
	hm := NewHealthMonitor("1.0.0", testutil.GetTestLogger(t))
	hm.RegisterCheck(NewBasicHealthCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, true, 20*time.Millisecond))

	status := hm.Run(context.Background())
	assert.Equal(t, StatusUnhealthy, status.OverallStatus)
}
