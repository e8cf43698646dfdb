// Package report renders a computed run: console tables, the JSON report and
// the CSV exports.
package report

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"

	"churn-metrics/pkg/models"
)

// TopHighRisk caps the high-risk list printed to the console.
const TopHighRisk = 10

// Print writes every section of r as aligned tables.
func Print(w io.Writer, r *models.Report, segmentOrder []string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	heading(tw, "OVERVIEW")
	fmt.Fprintf(tw, "Run\t%s\n", r.RunID)
	fmt.Fprintf(tw, "Source\t%s\n", r.Source)
	fmt.Fprintf(tw, "Customers\t%d\n", r.Overview.TotalCustomers)
	fmt.Fprintf(tw, "Churned\t%d\n", r.Overview.ChurnedCustomers)
	fmt.Fprintf(tw, "Churn rate\t%.2f%%\n", r.Overview.ChurnRate)
	fmt.Fprintf(tw, "Monthly charges\t$%.2f (avg $%.2f)\n", r.Overview.TotalMonthly, r.Overview.AvgMonthly)
	fmt.Fprintf(tw, "Average tenure\t%.2f months\n", r.Overview.AvgTenure)

	names := segmentOrder
	if len(names) == 0 {
		for name := range r.Segments {
			names = append(names, name)
		}
		slices.Sort(names)
	}
	for _, name := range names {
		segs, ok := r.Segments[name]
		if !ok {
			continue
		}
		heading(tw, "CHURN BY "+strings.ToUpper(strings.ReplaceAll(name, "_", " ")))
		fmt.Fprintln(tw, "Segment\tCustomers\tChurned\tChurn %\tRevenue at risk")
		for _, s := range segs {
			fmt.Fprintf(tw, "%s\t%d\t%d\t%.2f\t$%.2f\n", s.Key, s.Total, s.Churned, s.ChurnRate, s.RevenueAtRisk)
		}
	}

	heading(tw, "TENURE COHORTS")
	fmt.Fprintln(tw, "Cohort\tCustomers\tChurn %\tRetention %\tAvg monthly")
	for _, c := range r.Cohorts.Rows {
		fmt.Fprintf(tw, "%s\t%d\t%.2f\t%.2f\t$%.2f\n", c.Label, c.Total, c.ChurnRate, c.RetentionRate, c.AvgMonthly)
	}
	if r.Cohorts.ExcludedNoTenure > 0 {
		fmt.Fprintf(tw, "(excluded, tenure 0)\t%d\t\t\t\n", r.Cohorts.ExcludedNoTenure)
	}

	heading(tw, "RISK TIERS (ACTIVE CUSTOMERS)")
	fmt.Fprintln(tw, "Tier\tCustomers\tAvg score\tMonthly revenue\tAnnual at risk")
	for _, t := range r.RiskSummary {
		fmt.Fprintf(tw, "%s\t%d\t%.2f\t$%.2f\t$%.2f\n", t.Tier, t.Customers, t.AvgScore, t.MonthlyRevenue, t.AnnualRevenueAtRisk)
	}

	if len(r.HighRisk) > 0 {
		heading(tw, "HIGH-RISK PROFILE")
		fmt.Fprintf(tw, "Customers\t%d\n", r.Profile.Customers)
		fmt.Fprintf(tw, "Revenue at risk\t$%.2f monthly, $%.2f annual\n", r.Profile.MonthlyRevenue, r.Profile.AnnualRevenueAtRisk)
		fmt.Fprintf(tw, "Average monthly charge\t$%.2f\n", r.Profile.AvgMonthly)
		fmt.Fprintf(tw, "Average tenure\t%.1f months\n", r.Profile.AvgTenure)

		heading(tw, fmt.Sprintf("TOP HIGH-RISK CUSTOMERS (%d total)", len(r.HighRisk)))
		fmt.Fprintln(tw, "Customer\tScore\tTier\tContract\tTenure\tMonthly")
		for _, sc := range r.HighRisk[:min(TopHighRisk, len(r.HighRisk))] {
			c := sc.Customer
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%d\t$%.2f\n", c.CustomerID, sc.Score, sc.Tier, c.ContractType, c.TenureMonths, c.MonthlyCharges)
		}
	}

	heading(tw, "CUSTOMER LIFETIME VALUE")
	fmt.Fprintf(tw, "Average CLV\t$%.2f\n", r.CLV.AvgAll)
	fmt.Fprintf(tw, "Churned / retained\t$%.2f / $%.2f\n", r.CLV.AvgChurned, r.CLV.AvgRetained)
	fmt.Fprintf(tw, "Realised CLV of churned\t$%.2f\n", r.CLV.RealizedChurned)
	fmt.Fprintf(tw, "Revenue loss\t$%.2f monthly, $%.2f annual\n", r.CLV.MonthlyRevenueLoss, r.CLV.AnnualRevenueLoss)
	for _, s := range r.CLV.ByContract {
		fmt.Fprintf(tw, "  %s\t$%.2f\n", s.Key, s.Means["clv"])
	}

	heading(tw, "CHI-SQUARE TESTS")
	fmt.Fprintln(tw, "Factor\tChi2\tdof\tp-value\tSignificant")
	for _, s := range r.Significance {
		fmt.Fprintf(tw, "%s\t%.2f\t%d\t%.4g\t%t\n", s.Factor, s.ChiSquare, s.DOF, s.PValue, s.Significant)
	}

	return tw.Flush()
}

func heading(w io.Writer, title string) {
	fmt.Fprintf(w, "\n%s\n%s\n", title, strings.Repeat("-", len(title)))
}
