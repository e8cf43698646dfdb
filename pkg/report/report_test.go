package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"churn-metrics/pkg/models"
)

func sampleReport() *models.Report {
	hot := models.CustomerRecord{
		CustomerID:      "9237-HQITU",
		TenureMonths:    2,
		ContractType:    models.ContractMonthToMonth,
		MonthlyCharges:  85,
		PaymentMethod:   models.PaymentElectronicCheck,
		TechSupport:     models.ServiceNo,
		InternetService: models.InternetFiber,
	}
	warm := hot
	warm.CustomerID = "5575-GNVDE"
	warm.InternetService = models.InternetDSL

	return &models.Report{
		RunID:       "run-1",
		GeneratedAt: time.Date(2025, 3, 1, 14, 5, 9, 0, time.UTC),
		Source:      "telco.csv",
		Overview: models.Overview{
			TotalCustomers: 7043, ChurnedCustomers: 1869, ChurnRate: 26.54,
			TotalMonthly: 456116.6, AvgMonthly: 64.76, AvgTenure: 32.37,
		},
		Segments: map[string][]models.Segment{
			"contract": {
				{Key: "month-to-month", Total: 3875, Churned: 1655, ChurnRate: 42.71},
				{Key: "two-year", Total: 1695, Churned: 48, ChurnRate: 2.83},
			},
		},
		Cohorts: models.CohortTable{
			Rows:             []models.CohortRow{{Label: "1-6 months", Total: 10, ChurnRate: 50, RetentionRate: 50}},
			ExcludedNoTenure: 11,
		},
		RiskSummary: []models.RiskTierSummary{
			{Tier: models.TierCritical, Customers: 1, MonthlyRevenue: 85, AvgScore: 15, AnnualRevenueAtRisk: 1020},
			{Tier: models.TierHigh, Customers: 1, MonthlyRevenue: 85, AvgScore: 13, AnnualRevenueAtRisk: 1020},
			{Tier: models.TierLow, Customers: 5, MonthlyRevenue: 100, AnnualRevenueAtRisk: 1200},
		},
		HighRisk: []models.ScoredCustomer{
			{Customer: hot, Score: 15, Tier: models.TierCritical},
			{Customer: warm, Score: 13, Tier: models.TierCritical},
		},
		Profile: models.HighRiskProfile{
			Customers: 2, MonthlyRevenue: 170, AnnualRevenueAtRisk: 2040, AvgMonthly: 85, AvgTenure: 2,
		},
		CLV: models.CLVSummary{AvgAll: 2000, MonthlyRevenueLoss: 139130.85, AnnualRevenueLoss: 1669570.2},
		Significance: []models.SignificanceResult{
			{Factor: "contract", ChiSquare: 1184.6, DOF: 2, PValue: 5.86e-258, Significant: true},
		},
	}
}

func TestTimestampedFilename(t *testing.T) {
	at := time.Date(2025, 3, 1, 14, 5, 9, 0, time.UTC)
	assert.Equal(t, filepath.Join("out", "churn_report_20250301_140509.json"),
		TimestampedFilename("out", ReportName, "json", at))
}

func TestHighRiskRows(t *testing.T) {
	rows := HighRiskRows(sampleReport().HighRisk)
	require.Len(t, rows, 3)
	assert.Equal(t, HighRiskHeader, rows[0])
	assert.Equal(t, []string{
		"9237-HQITU", "2", "month-to-month", "85.00", "electronic-check",
		"no", "fiber", "15", "Critical",
	}, rows[1])
	assert.Equal(t, "5575-GNVDE", rows[2][0])
}

func TestSummaryRows(t *testing.T) {
	rows := SummaryRows(sampleReport())
	assert.Equal(t, []string{"Metric", "Value"}, rows[0])

	got := map[string]string{}
	for _, r := range rows[1:] {
		got[r[0]] = r[1]
	}
	assert.Equal(t, "7043", got["Total Customers"])
	assert.Equal(t, "26.54", got["Churn Rate (%)"])
	assert.Equal(t, "1669570.20", got["Annual Revenue Loss"])
	assert.Equal(t, "2", got["High-Risk Customers"])
	assert.Equal(t, "1", got["Critical-Risk Customers"])
	assert.Equal(t, "2040.00", got["High-Risk Annual Revenue At Risk"])
	assert.Equal(t, "85.00", got["High-Risk Average Monthly Charge"])
	assert.Equal(t, "2.00", got["High-Risk Average Tenure (months)"])
}

func TestExport_WritesRequestedFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	r := sampleReport()

	paths, err := Export(dir, r, true, true)
	require.NoError(t, err)
	require.Len(t, paths, 3)

	raw, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	var decoded models.Report
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "run-1", decoded.RunID)
	assert.Equal(t, 42.71, decoded.Segments["contract"][0].ChurnRate)

	f, err := os.Open(paths[1])
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 3)
	assert.Equal(t, filepath.Join(dir, "high_risk_customers_20250301_140509.csv"), paths[1])
	assert.Equal(t, filepath.Join(dir, "churn_summary_metrics_20250301_140509.csv"), paths[2])
}

func TestExport_FormatSelection(t *testing.T) {
	dir := t.TempDir()
	paths, err := Export(dir, sampleReport(), false, true)
	require.NoError(t, err)
	assert.Len(t, paths, 2)

	paths, err = Export(dir, sampleReport(), true, false)
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, ".json", filepath.Ext(paths[0]))
}

func TestPrint(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Print(&buf, sampleReport(), []string{"contract", "missing"}))
	out := buf.String()

	assert.Contains(t, out, "CHURN BY CONTRACT")
	assert.Contains(t, out, "month-to-month")
	assert.Contains(t, out, "42.71")
	assert.Contains(t, out, "(excluded, tenure 0)")
	assert.Contains(t, out, "9237-HQITU")
	assert.Contains(t, out, "CHI-SQUARE TESTS")
	assert.Contains(t, out, "HIGH-RISK PROFILE")
	assert.NotContains(t, out, "MISSING")
}

func TestPrint_EmptyReport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Print(&buf, &models.Report{}, nil))
	assert.Contains(t, buf.String(), "OVERVIEW")
	assert.NotContains(t, buf.String(), "TOP HIGH-RISK")
}
