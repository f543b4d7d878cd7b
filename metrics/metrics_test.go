package metrics

import (
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// NewRegistry registers every collector against the process-wide default
// Prometheus registerer, which panics on a second registration of the same
// metric name; every test in this file shares one Registry instance.
var (
	testRegistryOnce sync.Once
	testReg          *Registry
)

func testRegistry() *Registry {
	testRegistryOnce.Do(func() { testReg = NewRegistry() })
	return testReg
}

func TestNewRegistryWiresEveryCollector(t *testing.T) {
	reg := testRegistry()

	require.NotNil(t, reg.QueueDepth)
	require.NotNil(t, reg.QueueDropped)
	require.NotNil(t, reg.SessionsTerminated)
	require.NotNil(t, reg.ScalerRatio)
	require.NotNil(t, reg.FECRecovered)
	require.NotNil(t, reg.FECLost)
	require.NotNil(t, reg.LiveSessions)
	require.NotNil(t, reg.SessionsDropped)
	require.NotNil(t, reg.TickDuration)

	reg.LiveSessions.Set(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(reg.LiveSessions))
}

func TestRegistryHandlerServesScrapeFormat(t *testing.T) {
	reg := testRegistry()
	reg.LiveSessions.Set(1)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	reg.Handler().ServeHTTP(rr, req)

	assert.Equal(t, 200, rr.Code)
	assert.Contains(t, rr.Body.String(), "audioreceiver_live_sessions")
}
