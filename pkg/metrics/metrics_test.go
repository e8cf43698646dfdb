package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"churn-metrics/pkg/models"
)

func report() *models.Report {
	return &models.Report{
		GeneratedAt: time.Unix(1700000000, 0).UTC(),
		Overview:    models.Overview{TotalCustomers: 100, ChurnedCustomers: 25, ChurnRate: 25},
		Segments: map[string][]models.Segment{
			"contract": {{Key: "month-to-month", ChurnRate: 42.71}, {Key: "two-year", ChurnRate: 2.83}},
		},
		Cohorts: models.CohortTable{Rows: []models.CohortRow{{Label: "1-6 months", ChurnRate: 50}}},
		RiskSummary: []models.RiskTierSummary{
			{Tier: models.TierCritical, Customers: 4},
			{Tier: models.TierLow, Customers: 60},
		},
		CLV: models.CLVSummary{MonthlyRevenueLoss: 1234.5},
	}
}

func TestObserve(t *testing.T) {
	m := New()
	m.Observe(report())

	assert.Equal(t, 100.0, testutil.ToFloat64(m.Customers))
	assert.Equal(t, 25.0, testutil.ToFloat64(m.ChurnRate))
	assert.Equal(t, 1234.5, testutil.ToFloat64(m.RevenueLoss))
	assert.Equal(t, 1700000000.0, testutil.ToFloat64(m.LastRun))
	assert.Equal(t, 42.71, testutil.ToFloat64(m.SegmentChurnRate.WithLabelValues("contract", "month-to-month")))
	assert.Equal(t, 50.0, testutil.ToFloat64(m.CohortChurnRate.WithLabelValues("1-6 months")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.RiskTierCount.WithLabelValues("Critical")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.SegmentChurnRate))
}

func TestObserve_ResetsVectors(t *testing.T) {
	m := New()
	m.Observe(report())

	next := report()
	next.Segments = map[string][]models.Segment{"contract": {{Key: "one-year", ChurnRate: 11.27}}}
	m.Observe(next)
	assert.Equal(t, 1, testutil.CollectAndCount(m.SegmentChurnRate))
}

func TestPush(t *testing.T) {
	var (
		method, path string
		body         string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := New()
	m.Observe(report())
	require.NoError(t, m.Push(context.Background(), srv.URL, "telco"))

	assert.Equal(t, http.MethodPut, method)
	assert.True(t, strings.HasPrefix(path, "/metrics/job/"+Job), path)
	assert.Contains(t, path, "/source/telco")
	assert.NotEmpty(t, body)
}

func TestPush_GatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := New().Push(context.Background(), srv.URL, "telco")
	assert.ErrorContains(t, err, "push metrics")
}
