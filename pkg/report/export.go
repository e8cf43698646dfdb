package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"churn-metrics/pkg/models"
)

// File name stems.
const (
	ReportName   = "churn_report"
	HighRiskName = "high_risk_customers"
	SummaryName  = "churn_summary_metrics"
)

// TimestampedFilename builds <dir>/<name>_<YYYYMMDD_HHMMSS>.<ext>.
func TimestampedFilename(dir, name, ext string, t time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%s.%s", name, t.Format("20060102_150405"), ext))
}

// ExportJSON writes data as indented JSON, creating the parent directory.
func ExportJSON(filename string, data any) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return fmt.Errorf("create folder: %w", err)
	}
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("write JSON: %w", err)
	}
	return file.Close()
}

// HighRiskHeader is the column order of the high-risk export.
var HighRiskHeader = []string{
	"customerID", "tenure", "Contract", "MonthlyCharges", "PaymentMethod",
	"TechSupport", "InternetService", "RiskScore", "RiskCategory",
}

// HighRiskRows renders scored customers in export order.
func HighRiskRows(list []models.ScoredCustomer) [][]string {
	rows := make([][]string, 0, len(list)+1)
	rows = append(rows, HighRiskHeader)
	for _, sc := range list {
		c := sc.Customer
		rows = append(rows, []string{
			c.CustomerID,
			strconv.Itoa(c.TenureMonths),
			string(c.ContractType),
			money(c.MonthlyCharges),
			string(c.PaymentMethod),
			string(c.TechSupport),
			string(c.InternetService),
			strconv.Itoa(sc.Score),
			string(sc.Tier),
		})
	}
	return rows
}

// SummaryRows renders the headline metrics as Metric,Value pairs.
func SummaryRows(r *models.Report) [][]string {
	critical := 0
	var annualAtRisk float64
	for _, t := range r.RiskSummary {
		if t.Tier == models.TierCritical || t.Tier == models.TierHigh {
			annualAtRisk += t.AnnualRevenueAtRisk
		}
		if t.Tier == models.TierCritical {
			critical = t.Customers
		}
	}
	return [][]string{
		{"Metric", "Value"},
		{"Total Customers", strconv.Itoa(r.Overview.TotalCustomers)},
		{"Churned Customers", strconv.Itoa(r.Overview.ChurnedCustomers)},
		{"Churn Rate (%)", money(r.Overview.ChurnRate)},
		{"Average Monthly Charges", money(r.Overview.AvgMonthly)},
		{"Average Tenure (months)", money(r.Overview.AvgTenure)},
		{"Monthly Revenue Loss", money(r.CLV.MonthlyRevenueLoss)},
		{"Annual Revenue Loss", money(r.CLV.AnnualRevenueLoss)},
		{"Average CLV", money(r.CLV.AvgAll)},
		{"Average CLV (Churned)", money(r.CLV.AvgChurned)},
		{"Average CLV (Retained)", money(r.CLV.AvgRetained)},
		{"High-Risk Customers", strconv.Itoa(len(r.HighRisk))},
		{"Critical-Risk Customers", strconv.Itoa(critical)},
		{"High-Risk Annual Revenue At Risk", money(annualAtRisk)},
		{"High-Risk Average Monthly Charge", money(r.Profile.AvgMonthly)},
		{"High-Risk Average Tenure (months)", money(r.Profile.AvgTenure)},
	}
}

func money(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// WriteCSV writes rows to filename, creating the parent directory.
func WriteCSV(filename string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return fmt.Errorf("create folder: %w", err)
	}
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("write CSV: %w", err)
	}
	return file.Close()
}

// Export writes the requested report files under dir and returns their paths.
func Export(dir string, r *models.Report, writeJSON, writeCSV bool) ([]string, error) {
	var paths []string
	if writeJSON {
		path := TimestampedFilename(dir, ReportName, "json", r.GeneratedAt)
		if err := ExportJSON(path, r); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	if writeCSV {
		path := TimestampedFilename(dir, HighRiskName, "csv", r.GeneratedAt)
		if err := WriteCSV(path, HighRiskRows(r.HighRisk)); err != nil {
			return paths, err
		}
		paths = append(paths, path)

		path = TimestampedFilename(dir, SummaryName, "csv", r.GeneratedAt)
		if err := WriteCSV(path, SummaryRows(r)); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}
