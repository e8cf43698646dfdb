package calculator

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"slices"

	"churn-metrics/pkg/models"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("churn-metrics/calculator")

// SegmentDef names a standard segmentation.
type SegmentDef struct {
	Name string
	Key  KeyFunc
}

// StandardSegments are reported on every run.
var StandardSegments = []SegmentDef{
	{Name: "contract", Key: ByContract},
	{Name: "payment_method", Key: ByPaymentMethod},
	{Name: "internet_service", Key: ByInternetService},
	{Name: "tech_support", Key: ByTechSupport},
	{Name: "online_security", Key: ByOnlineSecurity},
	{Name: "senior_citizen", Key: BySeniorCitizen},
	{Name: "partner", Key: ByPartner},
	{Name: "dependents", Key: ByDependents},
	{Name: "paperless_billing", Key: ByPaperless},
	{Name: "service_count", Key: ByServiceCount},
}

// SignificanceFactors are tested against churn on every run.
var SignificanceFactors = []SegmentDef{
	{Name: "contract", Key: ByContract},
	{Name: "payment_method", Key: ByPaymentMethod},
	{Name: "tech_support", Key: ByTechSupport},
	{Name: "internet_service", Key: ByInternetService},
	{Name: "senior_citizen", Key: BySeniorCitizen},
	{Name: "partner", Key: ByPartner},
	{Name: "dependents", Key: ByDependents},
}

// Run computes every result table over records. Each section runs in its own
// goroutine and writes only its own slot; the report is assembled after Wait.
func Run(ctx context.Context, records []models.CustomerRecord, cfg models.Config, logger *slog.Logger) (*models.Report, error) {
	ctx, span := tracer.Start(ctx, "calculator.Run", trace.WithAttributes(
		attribute.Int("records", len(records)),
		attribute.String("source", cfg.Source),
	))
	defer span.End()

	aggOpts := []AggregateOption{
		WithMeasure(MeasureMonthlyCharges),
		WithMeasure(MeasureTenure),
		WithMeasure(MeasureTotalCharges),
		WithPartitions(cfg.Partitions),
	}

	sections := 4 + len(StandardSegments) + len(SignificanceFactors)
	var bar *progressbar.ProgressBar
	if cfg.Verbose {
		bar = progressbar.Default(int64(sections), "computing")
	}
	done := func(name string) {
		if bar != nil {
			_ = bar.Add(1)
		}
		logger.Debug("section done", "section", name)
	}

	var (
		overview     models.Overview
		segments     = make([][]models.Segment, len(StandardSegments))
		cohorts      models.CohortTable
		riskSummary  []models.RiskTierSummary
		highRisk     []models.ScoredCustomer
		profile      models.HighRiskProfile
		clv          models.CLVSummary
		significance = make([]models.SignificanceResult, len(SignificanceFactors))
	)

	g, gctx := errgroup.WithContext(ctx)
	section := func(name string, fn func(context.Context) error) {
		g.Go(func() error {
			sctx, sspan := tracer.Start(gctx, "section."+name)
			defer sspan.End()
			if err := fn(sctx); err != nil {
				sspan.RecordError(err)
				return fmt.Errorf("%s: %w", name, err)
			}
			done(name)
			return nil
		})
	}

	section("overview", func(context.Context) error {
		overview = Summarize(records)
		return nil
	})
	for i, def := range StandardSegments {
		section("segment."+def.Name, func(ctx context.Context) error {
			segs, err := Aggregate(ctx, records, def.Key, aggOpts...)
			segments[i] = segs
			return err
		})
	}
	section("cohorts", func(ctx context.Context) error {
		var err error
		cohorts, err = Cohorts(ctx, records, WithPartitions(cfg.Partitions))
		return err
	})
	section("risk", func(context.Context) error {
		scored := ScoreActive(records)
		riskSummary = RiskSummary(scored)
		highRisk = HighRisk(scored)
		profile = ProfileOf(highRisk)
		return nil
	})
	section("clv", func(ctx context.Context) error {
		var err error
		clv, err = SummarizeCLV(ctx, records, WithPartitions(cfg.Partitions))
		return err
	})
	for i, def := range SignificanceFactors {
		section("significance."+def.Name, func(context.Context) error {
			significance[i] = ChiSquare(def.Name, records, def.Key)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	report := &models.Report{
		RunID:        uuid.NewString(),
		GeneratedAt:  cfg.Now.UTC(),
		Source:       cfg.Source,
		Overview:     overview,
		Segments:     make(map[string][]models.Segment, len(StandardSegments)),
		Cohorts:      cohorts,
		RiskSummary:  riskSummary,
		HighRisk:     highRisk,
		Profile:      profile,
		CLV:          clv,
		Significance: significance,
	}
	for i, def := range StandardSegments {
		report.Segments[def.Name] = segments[i]
	}

	logger.Info("analysis complete",
		"run_id", report.RunID,
		"customers", overview.TotalCustomers,
		"churn_rate", overview.ChurnRate,
		"high_risk", len(highRisk),
	)
	return report, nil
}

// rateTolerance absorbs the rounding differences between SQL and Go.
const rateTolerance = 0.01

// CompareSegments lists disagreements between two segmentations keyed alike.
// An empty result means the counts match exactly and rates within tolerance.
func CompareSegments(got, want []models.Segment) []string {
	index := make(map[string]models.Segment, len(want))
	for _, s := range want {
		index[s.Key] = s
	}
	var diffs []string
	for _, g := range got {
		w, ok := index[g.Key]
		if !ok {
			diffs = append(diffs, fmt.Sprintf("%s: missing from reference", g.Key))
			continue
		}
		delete(index, g.Key)
		if g.Total != w.Total || g.Churned != w.Churned {
			diffs = append(diffs, fmt.Sprintf("%s: counts %d/%d vs %d/%d", g.Key, g.Churned, g.Total, w.Churned, w.Total))
		}
		if math.Abs(g.ChurnRate-w.ChurnRate) > rateTolerance {
			diffs = append(diffs, fmt.Sprintf("%s: churn rate %.2f vs %.2f", g.Key, g.ChurnRate, w.ChurnRate))
		}
	}
	for _, k := range slices.Sorted(maps.Keys(index)) {
		diffs = append(diffs, fmt.Sprintf("%s: missing from result", k))
	}
	return diffs
}
