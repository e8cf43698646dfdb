package calculator

import (
	"context"
	"slices"

	"churn-metrics/pkg/models"
)

// CLVHorizonMonths is the projection horizon. Values are undiscounted.
const CLVHorizonMonths = 36

// ProjectedCLV is realised billing plus, for active customers only, the monthly
// charge over the horizon.
func ProjectedCLV(r models.CustomerRecord) float64 {
	if r.Churned {
		return r.TotalCharges
	}
	return r.TotalCharges + r.MonthlyCharges*CLVHorizonMonths
}

// SummarizeCLV rolls projected values up overall, by churn status and by contract.
func SummarizeCLV(ctx context.Context, records []models.CustomerRecord, opts ...AggregateOption) (models.CLVSummary, error) {
	var (
		sumAll, sumChurned, sumRetained float64
		nChurned, nRetained             int
		monthlyLoss                     float64
	)
	for _, r := range records {
		v := ProjectedCLV(r)
		sumAll += v
		if r.Churned {
			sumChurned += v
			nChurned++
			monthlyLoss += r.MonthlyCharges
		} else {
			sumRetained += v
			nRetained++
		}
	}

	byContract, err := Aggregate(ctx, records, ByContract, append(slices.Clip(opts), WithMeasure(MeasureCLV))...)
	if err != nil {
		return models.CLVSummary{}, err
	}

	return models.CLVSummary{
		AvgAll:             mean(sumAll, len(records)),
		AvgChurned:         mean(sumChurned, nChurned),
		AvgRetained:        mean(sumRetained, nRetained),
		RealizedChurned:    round2(sumChurned),
		MonthlyRevenueLoss: round2(monthlyLoss),
		AnnualRevenueLoss:  round2(monthlyLoss * MonthsPerYear),
		ByContract:         byContract,
	}, nil
}

// Summarize computes the dataset headline.
func Summarize(records []models.CustomerRecord) models.Overview {
	var (
		churned int
		monthly float64
		tenure  int
	)
	for _, r := range records {
		if r.Churned {
			churned++
		}
		monthly += r.MonthlyCharges
		tenure += r.TenureMonths
	}
	return models.Overview{
		TotalCustomers:   len(records),
		ChurnedCustomers: churned,
		ChurnRate:        Rate(churned, len(records)),
		TotalMonthly:     round2(monthly),
		AvgMonthly:       mean(monthly, len(records)),
		AvgTenure:        mean(float64(tenure), len(records)),
	}
}
