package calculator

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"churn-metrics/pkg/models"
)

// contractDataset builds 7,043 customers with the telco contract split.
func contractDataset() []models.CustomerRecord {
	type split struct {
		contract       models.ContractType
		total, churned int
	}
	splits := []split{
		{models.ContractTwoYear, 1695, 48},
		{models.ContractMonthToMonth, 3875, 1655},
		{models.ContractOneYear, 1473, 166},
	}
	var out []models.CustomerRecord
	for _, s := range splits {
		for i := 0; i < s.total; i++ {
			out = append(out, models.CustomerRecord{
				CustomerID:     fmt.Sprintf("%s-%04d", s.contract, i),
				ContractType:   s.contract,
				TenureMonths:   i%72 + 1,
				MonthlyCharges: 50,
				Churned:        i < s.churned,
			})
		}
	}
	return out
}

func TestAggregate_ContractChurnRates(t *testing.T) {
	records := contractDataset()
	require.Len(t, records, 7043)

	segs, err := Aggregate(context.Background(), records, ByContract)
	require.NoError(t, err)
	require.Len(t, segs, 3)

	assert.Equal(t, string(models.ContractMonthToMonth), segs[0].Key)
	assert.Equal(t, 42.71, segs[0].ChurnRate)
	assert.Equal(t, string(models.ContractOneYear), segs[1].Key)
	assert.Equal(t, 11.27, segs[1].ChurnRate)
	assert.Equal(t, string(models.ContractTwoYear), segs[2].Key)
	assert.Equal(t, 2.83, segs[2].ChurnRate)

	total, churned := 0, 0
	for _, s := range segs {
		total += s.Total
		churned += s.Churned
		assert.GreaterOrEqual(t, s.ChurnRate, 0.0)
		assert.LessOrEqual(t, s.ChurnRate, 100.0)
	}
	assert.Equal(t, 7043, total)
	assert.Equal(t, 1869, churned)
}

func TestRate_TrueDivision(t *testing.T) {
	assert.Equal(t, 26.54, Rate(1869, 7043))
	assert.Equal(t, 0.0, Rate(0, 0))
	assert.Equal(t, 100.0, Rate(3, 3))
}

func TestAggregate_EmptyInput(t *testing.T) {
	segs, err := Aggregate(context.Background(), nil, ByContract)
	require.NoError(t, err)
	assert.Empty(t, segs)
}

func TestAggregate_UnknownAndEmptyKeysFormGroups(t *testing.T) {
	records := []models.CustomerRecord{
		{CustomerID: "a", ContractType: models.ContractMonthToMonth, Churned: true},
		{CustomerID: "b", ContractType: "Quarterly"},
		{CustomerID: "c", ContractType: ""},
		{CustomerID: "d", ContractType: "", Churned: true},
	}
	segs, err := Aggregate(context.Background(), records, ByContract, WithOrder(ByKeyAsc))
	require.NoError(t, err)
	require.Len(t, segs, 3)

	byKey := map[string]models.Segment{}
	total := 0
	for _, s := range segs {
		byKey[s.Key] = s
		total += s.Total
	}
	assert.Equal(t, len(records), total)
	assert.Equal(t, 2, byKey[UnknownKey].Total)
	assert.Equal(t, 50.0, byKey[UnknownKey].ChurnRate)
	assert.Equal(t, 1, byKey["Quarterly"].Total)
}

func TestAggregate_MeasuresAndRevenue(t *testing.T) {
	records := []models.CustomerRecord{
		{ContractType: models.ContractOneYear, MonthlyCharges: 20, TenureMonths: 10, Churned: true},
		{ContractType: models.ContractOneYear, MonthlyCharges: 40, TenureMonths: 20},
		{ContractType: models.ContractOneYear, MonthlyCharges: 60, TenureMonths: 30},
	}
	segs, err := Aggregate(context.Background(), records, ByContract,
		WithMeasure(MeasureMonthlyCharges), WithMeasure(MeasureTenure))
	require.NoError(t, err)
	require.Len(t, segs, 1)

	s := segs[0]
	assert.Equal(t, 40.0, s.Means["monthly_charges"])
	assert.Equal(t, 20.0, s.Means["tenure"])
	assert.Equal(t, 120.0, s.Sums["monthly_charges"])
	assert.Equal(t, 120.0, s.MonthlyRevenue)
	assert.Equal(t, 20.0, s.RevenueAtRisk)
	assert.Equal(t, 33.33, s.ChurnRate)
}

func TestAggregate_PartitionedMatchesSequential(t *testing.T) {
	records := contractDataset()
	seq, err := Aggregate(context.Background(), records, ByContract, WithMeasure(MeasureTenure))
	require.NoError(t, err)

	for _, n := range []int{2, 3, 7, 16} {
		par, err := Aggregate(context.Background(), records, ByContract,
			WithMeasure(MeasureTenure), WithPartitions(n))
		require.NoError(t, err)
		assert.Equal(t, seq, par, "partitions=%d", n)
	}
}

func TestAggregate_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Aggregate(ctx, contractDataset(), ByContract)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = Aggregate(ctx, contractDataset(), ByContract, WithPartitions(4))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAggregate_ServiceCountKey(t *testing.T) {
	records := []models.CustomerRecord{
		{HasPhoneService: true, InternetService: models.InternetDSL, TechSupport: models.ServiceYes},
		{HasPhoneService: true, InternetService: models.InternetNone, Churned: true},
	}
	segs, err := Aggregate(context.Background(), records, ByServiceCount, WithOrder(ByKeyAsc))
	require.NoError(t, err)
	require.Len(t, segs, 2)
	assert.Equal(t, "1", segs[0].Key)
	assert.Equal(t, "3", segs[1].Key)
}

func TestCompareSegments(t *testing.T) {
	a := []models.Segment{{Key: "x", Total: 10, Churned: 2, ChurnRate: 20}}
	assert.Empty(t, CompareSegments(a, a))

	b := []models.Segment{{Key: "x", Total: 10, Churned: 3, ChurnRate: 30}, {Key: "y", Total: 1}}
	diffs := CompareSegments(a, b)
	assert.Len(t, diffs, 3)
}

func TestCompareSegments_MissingKeysSorted(t *testing.T) {
	want := []models.Segment{{Key: "zeta"}, {Key: "alpha"}, {Key: "mid"}, {Key: "beta"}}
	for i := 0; i < 10; i++ {
		assert.Equal(t, []string{
			"alpha: missing from result",
			"beta: missing from result",
			"mid: missing from result",
			"zeta: missing from result",
		}, CompareSegments(nil, want))
	}
}
