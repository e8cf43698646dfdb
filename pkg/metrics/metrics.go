package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"churn-metrics/pkg/models"
)

// Job is the Pushgateway job name.
const Job = "churn_metrics"

// Metrics holds the gauges describing one analysis run.
type Metrics struct {
	Registry *prometheus.Registry

	Customers        prometheus.Gauge
	ChurnedCustomers prometheus.Gauge
	ChurnRate        prometheus.Gauge
	RevenueLoss      prometheus.Gauge
	SegmentChurnRate *prometheus.GaugeVec
	CohortChurnRate  *prometheus.GaugeVec
	RiskTierCount    *prometheus.GaugeVec
	LastRun          prometheus.Gauge
}

// New registers every gauge on a private registry.
func New() *Metrics {
	m := &Metrics{
		Customers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "churn_customers",
			Help: "Customers in the analysed dataset",
		}),
		ChurnedCustomers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "churn_customers_churned",
			Help: "Customers flagged as churned",
		}),
		ChurnRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "churn_rate_percent",
			Help: "Overall churn rate in percent",
		}),
		RevenueLoss: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "churn_monthly_revenue_loss",
			Help: "Monthly charges of churned customers",
		}),
		SegmentChurnRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "churn_segment_rate_percent",
			Help: "Churn rate per segment",
		}, []string{"segmentation", "segment"}),
		CohortChurnRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "churn_cohort_rate_percent",
			Help: "Churn rate per tenure cohort",
		}, []string{"cohort"}),
		RiskTierCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "churn_risk_tier_customers",
			Help: "Active customers per risk tier",
		}, []string{"tier"}),
		LastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "churn_last_run_timestamp_seconds",
			Help: "Generation time of the last report",
		}),
	}
	m.Registry = prometheus.NewRegistry()
	m.Registry.MustRegister(
		m.Customers,
		m.ChurnedCustomers,
		m.ChurnRate,
		m.RevenueLoss,
		m.SegmentChurnRate,
		m.CohortChurnRate,
		m.RiskTierCount,
		m.LastRun,
	)
	return m
}

// Observe sets every gauge from r. Vectors are reset first so stale
// segments from an earlier run do not linger.
func (m *Metrics) Observe(r *models.Report) {
	m.Customers.Set(float64(r.Overview.TotalCustomers))
	m.ChurnedCustomers.Set(float64(r.Overview.ChurnedCustomers))
	m.ChurnRate.Set(r.Overview.ChurnRate)
	m.RevenueLoss.Set(r.CLV.MonthlyRevenueLoss)
	m.LastRun.Set(float64(r.GeneratedAt.Unix()))

	m.SegmentChurnRate.Reset()
	for name, segs := range r.Segments {
		for _, s := range segs {
			m.SegmentChurnRate.WithLabelValues(name, s.Key).Set(s.ChurnRate)
		}
	}
	m.CohortChurnRate.Reset()
	for _, c := range r.Cohorts.Rows {
		m.CohortChurnRate.WithLabelValues(c.Label).Set(c.ChurnRate)
	}
	m.RiskTierCount.Reset()
	for _, t := range r.RiskSummary {
		m.RiskTierCount.WithLabelValues(string(t.Tier)).Set(float64(t.Customers))
	}
}

// Push sends the registry to a Pushgateway, replacing the job's previous metrics.
func (m *Metrics) Push(ctx context.Context, gatewayURL, source string) error {
	err := push.New(gatewayURL, Job).
		Gatherer(m.Registry).
		Grouping("source", source).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
