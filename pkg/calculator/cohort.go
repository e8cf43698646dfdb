package calculator

import (
	"cmp"
	"context"
	"slices"

	"churn-metrics/pkg/models"
)

// Bucket is a closed tenure range in months. Max == 0 means open ended.
type Bucket struct {
	Label string
	Min   int
	Max   int
}

// CohortBuckets partition tenure >= 1 in chronological order.
var CohortBuckets = []Bucket{
	{Label: "1-6 months", Min: 1, Max: 6},
	{Label: "7-12 months", Min: 7, Max: 12},
	{Label: "13-24 months", Min: 13, Max: 24},
	{Label: "25-36 months", Min: 25, Max: 36},
	{Label: "37-48 months", Min: 37, Max: 48},
	{Label: "49+ months", Min: 49},
}

// BucketFor returns the cohort of a tenure. Tenure 0 has no cohort yet.
func BucketFor(tenure int) (Bucket, bool) {
	for _, b := range CohortBuckets {
		if tenure >= b.Min && (b.Max == 0 || tenure <= b.Max) {
			return b, true
		}
	}
	return Bucket{}, false
}

func bucketIndex(label string) int {
	for i, b := range CohortBuckets {
		if b.Label == label {
			return i
		}
	}
	return len(CohortBuckets)
}

// Cohorts aggregates records by tenure bucket, oldest-tenure-last. Records with
// zero tenure are counted in ExcludedNoTenure and left out of every row.
func Cohorts(ctx context.Context, records []models.CustomerRecord, opts ...AggregateOption) (models.CohortTable, error) {
	table := models.CohortTable{Rows: []models.CohortRow{}}
	eligible := make([]models.CustomerRecord, 0, len(records))
	for _, r := range records {
		if r.TenureMonths < 1 {
			table.ExcludedNoTenure++
			continue
		}
		eligible = append(eligible, r)
	}

	key := func(r models.CustomerRecord) string {
		b, _ := BucketFor(r.TenureMonths)
		return b.Label
	}
	opts = append(slices.Clip(opts),
		WithMeasure(MeasureMonthlyCharges),
		WithMeasure(MeasureTenure),
		WithOrder(func(a, b models.Segment) int {
			return cmp.Compare(bucketIndex(a.Key), bucketIndex(b.Key))
		}),
	)
	segs, err := Aggregate(ctx, eligible, key, opts...)
	if err != nil {
		return table, err
	}

	for _, s := range segs {
		b := CohortBuckets[bucketIndex(s.Key)]
		table.Rows = append(table.Rows, models.CohortRow{
			Label:         b.Label,
			MinTenure:     b.Min,
			MaxTenure:     b.Max,
			Total:         s.Total,
			Churned:       s.Churned,
			ChurnRate:     s.ChurnRate,
			RetentionRate: round2(100 - s.ChurnRate),
			AvgMonthly:    s.Means[MeasureMonthlyCharges.Name],
			AvgTenure:     s.Means[MeasureTenure.Name],
		})
	}
	return table, nil
}
