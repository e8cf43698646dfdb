package calculator

import (
	"cmp"
	"slices"

	"churn-metrics/pkg/models"
)

// Risk weights. A score is the plain sum of the matching predicates' weights.
const (
	WeightMonthToMonth     = 3
	WeightShortTenure      = 3
	WeightElectronicCheck  = 2
	WeightNoTechSupport    = 2
	WeightNoOnlineSecurity = 2
	WeightHighCharges      = 2
	WeightFiber            = 1

	ShortTenureMonths  = 12
	HighMonthlyCharges = 80.0
	MaxRiskScore       = 15
	CriticalScore      = 10
	HighScore          = 7
	MediumScore        = 4
	MonthsPerYear      = 12
)

// Predicate is one weighted risk factor.
type Predicate struct {
	Name   string
	Weight int
	Match  func(models.CustomerRecord) bool
}

// RiskPredicates is the seven-factor model, fiber term included.
var RiskPredicates = []Predicate{
	{Name: "month_to_month", Weight: WeightMonthToMonth, Match: func(r models.CustomerRecord) bool {
		return r.ContractType == models.ContractMonthToMonth
	}},
	{Name: "short_tenure", Weight: WeightShortTenure, Match: func(r models.CustomerRecord) bool {
		return r.TenureMonths <= ShortTenureMonths
	}},
	{Name: "electronic_check", Weight: WeightElectronicCheck, Match: func(r models.CustomerRecord) bool {
		return r.PaymentMethod == models.PaymentElectronicCheck
	}},
	{Name: "no_tech_support", Weight: WeightNoTechSupport, Match: func(r models.CustomerRecord) bool {
		return r.TechSupport == models.ServiceNo
	}},
	{Name: "no_online_security", Weight: WeightNoOnlineSecurity, Match: func(r models.CustomerRecord) bool {
		return r.OnlineSecurity == models.ServiceNo && r.HasInternet()
	}},
	{Name: "high_charges", Weight: WeightHighCharges, Match: func(r models.CustomerRecord) bool {
		return r.MonthlyCharges > HighMonthlyCharges
	}},
	{Name: "fiber", Weight: WeightFiber, Match: func(r models.CustomerRecord) bool {
		return r.InternetService == models.InternetFiber
	}},
}

// Score sums the weights of every matching predicate.
func Score(r models.CustomerRecord) int {
	score := 0
	for _, p := range RiskPredicates {
		if p.Match(r) {
			score += p.Weight
		}
	}
	return score
}

// TierFor maps a score to its tier, highest threshold first.
func TierFor(score int) models.RiskTier {
	switch {
	case score >= CriticalScore:
		return models.TierCritical
	case score >= HighScore:
		return models.TierHigh
	case score >= MediumScore:
		return models.TierMedium
	default:
		return models.TierLow
	}
}

// TierOrder lists tiers from most to least urgent.
var TierOrder = []models.RiskTier{models.TierCritical, models.TierHigh, models.TierMedium, models.TierLow}

// ScoreActive scores every customer that has not churned.
func ScoreActive(records []models.CustomerRecord) []models.ScoredCustomer {
	out := make([]models.ScoredCustomer, 0, len(records))
	for _, r := range records {
		if r.Churned {
			continue
		}
		s := Score(r)
		out = append(out, models.ScoredCustomer{Customer: r, Score: s, Tier: TierFor(s)})
	}
	return out
}

// RiskSummary aggregates scored customers per tier, most urgent first.
// Tiers without customers are omitted.
func RiskSummary(scored []models.ScoredCustomer) []models.RiskTierSummary {
	type acc struct {
		n        int
		monthly  float64
		scoreSum int
	}
	byTier := make(map[models.RiskTier]*acc, len(TierOrder))
	for _, sc := range scored {
		a, ok := byTier[sc.Tier]
		if !ok {
			a = &acc{}
			byTier[sc.Tier] = a
		}
		a.n++
		a.monthly += sc.Customer.MonthlyCharges
		a.scoreSum += sc.Score
	}

	out := make([]models.RiskTierSummary, 0, len(TierOrder))
	for _, t := range TierOrder {
		a, ok := byTier[t]
		if !ok {
			continue
		}
		out = append(out, models.RiskTierSummary{
			Tier:                t,
			Customers:           a.n,
			MonthlyRevenue:      round2(a.monthly),
			AvgScore:            mean(float64(a.scoreSum), a.n),
			AnnualRevenueAtRisk: round2(a.monthly * MonthsPerYear),
		})
	}
	return out
}

// HighRisk returns Critical and High customers, highest score first.
func HighRisk(scored []models.ScoredCustomer) []models.ScoredCustomer {
	out := make([]models.ScoredCustomer, 0)
	for _, sc := range scored {
		if sc.Tier == models.TierCritical || sc.Tier == models.TierHigh {
			out = append(out, sc)
		}
	}
	slices.SortFunc(out, func(a, b models.ScoredCustomer) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Customer.CustomerID, b.Customer.CustomerID)
	})
	return out
}

// ProfileOf summarises a high-risk list: headcount, revenue and average charge and tenure.
func ProfileOf(list []models.ScoredCustomer) models.HighRiskProfile {
	var (
		monthly float64
		tenure  int
	)
	for _, sc := range list {
		monthly += sc.Customer.MonthlyCharges
		tenure += sc.Customer.TenureMonths
	}
	return models.HighRiskProfile{
		Customers:           len(list),
		MonthlyRevenue:      round2(monthly),
		AnnualRevenueAtRisk: round2(monthly * MonthsPerYear),
		AvgMonthly:          mean(monthly, len(list)),
		AvgTenure:           mean(float64(tenure), len(list)),
	}
}
