package calculator

import (
	"cmp"
	"context"
	"math"
	"slices"
	"strconv"

	"churn-metrics/pkg/models"

	"golang.org/x/sync/errgroup"
)

// UnknownKey labels records whose grouping key is empty. They are grouped, never dropped.
const UnknownKey = "(unknown)"

// ctxCheckEvery bounds how many rows are reduced between cancellation checks.
const ctxCheckEvery = 4096

// KeyFunc maps a record to its group. It must be total over all records.
type KeyFunc func(models.CustomerRecord) string

// Measure is a numeric field averaged and summed per group.
type Measure struct {
	Name  string
	Value func(models.CustomerRecord) float64
}

// Common measures.
var (
	MeasureMonthlyCharges = Measure{Name: "monthly_charges", Value: func(r models.CustomerRecord) float64 { return r.MonthlyCharges }}
	MeasureTenure         = Measure{Name: "tenure", Value: func(r models.CustomerRecord) float64 { return float64(r.TenureMonths) }}
	MeasureTotalCharges   = Measure{Name: "total_charges", Value: func(r models.CustomerRecord) float64 { return r.TotalCharges }}
	MeasureCLV            = Measure{Name: "clv", Value: ProjectedCLV}
)

// Key functions for the standard segmentations.
var (
	ByContract        KeyFunc = func(r models.CustomerRecord) string { return string(r.ContractType) }
	ByPaymentMethod   KeyFunc = func(r models.CustomerRecord) string { return string(r.PaymentMethod) }
	ByInternetService KeyFunc = func(r models.CustomerRecord) string { return string(r.InternetService) }
	ByTechSupport     KeyFunc = func(r models.CustomerRecord) string { return string(r.TechSupport) }
	ByOnlineSecurity  KeyFunc = func(r models.CustomerRecord) string { return string(r.OnlineSecurity) }
	BySeniorCitizen   KeyFunc = func(r models.CustomerRecord) string { return yesNo(r.SeniorCitizen) }
	ByPartner         KeyFunc = func(r models.CustomerRecord) string { return yesNo(r.Partner) }
	ByDependents      KeyFunc = func(r models.CustomerRecord) string { return yesNo(r.Dependents) }
	ByPaperless       KeyFunc = func(r models.CustomerRecord) string { return yesNo(r.PaperlessBilling) }
	ByServiceCount    KeyFunc = func(r models.CustomerRecord) string { return strconv.Itoa(r.ServiceCount()) }
)

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// SegmentLess orders two segments.
type SegmentLess func(a, b models.Segment) int

// ByChurnRateDesc is the default order: worst segment first, ties by key.
func ByChurnRateDesc(a, b models.Segment) int {
	if c := cmp.Compare(b.ChurnRate, a.ChurnRate); c != 0 {
		return c
	}
	return cmp.Compare(a.Key, b.Key)
}

// ByKeyAsc orders segments by key.
func ByKeyAsc(a, b models.Segment) int {
	return cmp.Compare(a.Key, b.Key)
}

type aggregateOptions struct {
	measures   []Measure
	order      SegmentLess
	partitions int
}

// AggregateOption configures Aggregate.
type AggregateOption func(*aggregateOptions)

// WithMeasure adds a numeric field whose mean and sum are reported per group.
func WithMeasure(m Measure) AggregateOption {
	return func(o *aggregateOptions) { o.measures = append(o.measures, m) }
}

// WithOrder replaces the default churn-rate-descending order.
func WithOrder(less SegmentLess) AggregateOption {
	return func(o *aggregateOptions) { o.order = less }
}

// WithPartitions reduces the input in n concurrent partitions.
func WithPartitions(n int) AggregateOption {
	return func(o *aggregateOptions) { o.partitions = n }
}

type accumulator struct {
	total   int
	churned int
	monthly float64
	atRisk  float64
	sums    []float64
}

func (a *accumulator) add(r models.CustomerRecord, measures []Measure) {
	a.total++
	a.monthly += r.MonthlyCharges
	if r.Churned {
		a.churned++
		a.atRisk += r.MonthlyCharges
	}
	for i, m := range measures {
		a.sums[i] += m.Value(r)
	}
}

func (a *accumulator) merge(b *accumulator) {
	a.total += b.total
	a.churned += b.churned
	a.monthly += b.monthly
	a.atRisk += b.atRisk
	for i := range a.sums {
		a.sums[i] += b.sums[i]
	}
}

type partial map[string]*accumulator

func reduce(ctx context.Context, records []models.CustomerRecord, key KeyFunc, measures []Measure) (partial, error) {
	groups := make(partial)
	for i, r := range records {
		if i%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		k := key(r)
		if k == "" {
			k = UnknownKey
		}
		acc, ok := groups[k]
		if !ok {
			acc = &accumulator{sums: make([]float64, len(measures))}
			groups[k] = acc
		}
		acc.add(r, measures)
	}
	return groups, nil
}

// Aggregate groups records by key and reports count, churned count, churn rate,
// revenue and the requested measures per group. Empty input yields no groups.
// Per-group totals always sum to len(records).
func Aggregate(ctx context.Context, records []models.CustomerRecord, key KeyFunc, opts ...AggregateOption) ([]models.Segment, error) {
	o := aggregateOptions{order: ByChurnRateDesc}
	for _, opt := range opts {
		opt(&o)
	}

	var groups partial
	if o.partitions > 1 && len(records) > o.partitions {
		parts := make([]partial, o.partitions)
		size := (len(records) + o.partitions - 1) / o.partitions
		g, gctx := errgroup.WithContext(ctx)
		for i := range parts {
			lo := i * size
			hi := min(lo+size, len(records))
			if lo >= hi {
				continue
			}
			g.Go(func() error {
				p, err := reduce(gctx, records[lo:hi], key, o.measures)
				parts[i] = p
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		groups = make(partial)
		for _, p := range parts {
			for k, acc := range p {
				if have, ok := groups[k]; ok {
					have.merge(acc)
				} else {
					groups[k] = acc
				}
			}
		}
	} else {
		var err error
		if groups, err = reduce(ctx, records, key, o.measures); err != nil {
			return nil, err
		}
	}

	out := make([]models.Segment, 0, len(groups))
	for k, acc := range groups {
		out = append(out, toSegment(k, acc, o.measures))
	}
	slices.SortFunc(out, o.order)
	return out, nil
}

func toSegment(key string, acc *accumulator, measures []Measure) models.Segment {
	seg := models.Segment{
		Key:            key,
		Total:          acc.total,
		Churned:        acc.churned,
		ChurnRate:      Rate(acc.churned, acc.total),
		MonthlyRevenue: round2(acc.monthly),
		RevenueAtRisk:  round2(acc.atRisk),
	}
	if len(measures) > 0 {
		seg.Means = make(map[string]float64, len(measures))
		seg.Sums = make(map[string]float64, len(measures))
		for i, m := range measures {
			seg.Sums[m.Name] = round2(acc.sums[i])
			seg.Means[m.Name] = round2(acc.sums[i] / float64(acc.total))
		}
	}
	return seg
}

// Rate is 100*part/whole rounded to 2 decimals, 0 when whole is 0.
func Rate(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return round2(100 * float64(part) / float64(whole))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func mean(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return round2(sum / float64(n))
}
