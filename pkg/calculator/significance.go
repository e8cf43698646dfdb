package calculator

import (
	"math"
	"sort"

	"churn-metrics/pkg/models"

	"gonum.org/v1/gonum/stat/distuv"
)

// SignificanceLevel is the p-value below which a factor is reported significant.
const SignificanceLevel = 0.05

// ChiSquare tests independence between a categorical factor and churn using the
// factor x churned contingency table. A 2x2 table gets Yates' continuity correction.
// Degenerate tables (one factor value, or no churn variation) give dof 0 and p 1.
func ChiSquare(factor string, records []models.CustomerRecord, key KeyFunc) models.SignificanceResult {
	res := models.SignificanceResult{Factor: factor, PValue: 1}

	type row struct{ stayed, churned float64 }
	rows := make(map[string]*row)
	var colStayed, colChurned float64
	for _, r := range records {
		k := key(r)
		if k == "" {
			k = UnknownKey
		}
		c, ok := rows[k]
		if !ok {
			c = &row{}
			rows[k] = c
		}
		if r.Churned {
			c.churned++
			colChurned++
		} else {
			c.stayed++
			colStayed++
		}
	}
	if len(rows) < 2 || colStayed == 0 || colChurned == 0 {
		return res
	}

	keys := make([]string, 0, len(rows))
	for k := range rows {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	n := colStayed + colChurned
	dof := len(rows) - 1
	chi2 := 0.0
	for _, k := range keys {
		c := rows[k]
		total := c.stayed + c.churned
		for _, cell := range [2][2]float64{{c.stayed, total * colStayed / n}, {c.churned, total * colChurned / n}} {
			observed, expected := cell[0], cell[1]
			diff := math.Abs(observed - expected)
			if dof == 1 {
				diff -= math.Min(0.5, diff)
			}
			chi2 += diff * diff / expected
		}
	}

	res.ChiSquare = round2(chi2)
	res.DOF = dof
	res.PValue = pValue(chi2, dof)
	res.Significant = res.PValue < SignificanceLevel
	return res
}

// pValue is the upper tail of the chi-square distribution with dof degrees of freedom.
func pValue(chi2 float64, dof int) float64 {
	if chi2 <= 0 {
		return 1
	}
	return distuv.ChiSquared{K: float64(dof)}.Survival(chi2)
}
