package models

import (
	"time"
)

/*
LOAD → raw customer rows as read from the CSV export or the customer table.
*/

// ContractType is the billing contract of a customer. Unknown labels are kept verbatim.
type ContractType string

const (
	ContractMonthToMonth ContractType = "month-to-month"
	ContractOneYear      ContractType = "one-year"
	ContractTwoYear      ContractType = "two-year"
)

// PaymentMethod is how the customer pays. Unknown labels are kept verbatim.
type PaymentMethod string

const (
	PaymentElectronicCheck PaymentMethod = "electronic-check"
	PaymentMailedCheck     PaymentMethod = "mailed-check"
	PaymentBankTransfer    PaymentMethod = "bank-transfer"
	PaymentCreditCard      PaymentMethod = "credit-card"
)

// InternetService is the internet product of a customer.
type InternetService string

const (
	InternetNone  InternetService = "none"
	InternetDSL   InternetService = "dsl"
	InternetFiber InternetService = "fiber"
)

// ServiceStatus distinguishes a declined add-on from one that cannot exist
// because the base product (internet or phone) is absent.
type ServiceStatus string

const (
	ServiceYes        ServiceStatus = "yes"
	ServiceNo         ServiceStatus = "no"
	ServiceNoInternet ServiceStatus = "no-internet"
	ServiceNoPhone    ServiceStatus = "no-phone"
)

// Subscribed reports whether the add-on is active.
func (s ServiceStatus) Subscribed() bool { return s == ServiceYes }

// CustomerRecord is one row of the customer table. Records are read-only for a run.
type CustomerRecord struct {
	CustomerID       string          `json:"customerID"`
	Gender           string          `json:"gender"`
	SeniorCitizen    bool            `json:"seniorCitizen"`
	Partner          bool            `json:"partner"`
	Dependents       bool            `json:"dependents"`
	TenureMonths     int             `json:"tenure"`
	ContractType     ContractType    `json:"contract"`
	PaperlessBilling bool            `json:"paperlessBilling"`
	PaymentMethod    PaymentMethod   `json:"paymentMethod"`
	MonthlyCharges   float64         `json:"monthlyCharges"`
	TotalCharges     float64         `json:"totalCharges"`
	HasPhoneService  bool            `json:"phoneService"`
	MultipleLines    ServiceStatus   `json:"multipleLines"`
	InternetService  InternetService `json:"internetService"`
	OnlineSecurity   ServiceStatus   `json:"onlineSecurity"`
	OnlineBackup     ServiceStatus   `json:"onlineBackup"`
	DeviceProtection ServiceStatus   `json:"deviceProtection"`
	TechSupport      ServiceStatus   `json:"techSupport"`
	StreamingTV      ServiceStatus   `json:"streamingTV"`
	StreamingMovies  ServiceStatus   `json:"streamingMovies"`
	Churned          bool            `json:"churned"`
}

// HasInternet is false only for an explicit "none" product.
func (c CustomerRecord) HasInternet() bool {
	return c.InternetService != InternetNone
}

// ServiceCount counts subscribed products: phone, extra lines, internet and the six add-ons.
func (c CustomerRecord) ServiceCount() int {
	n := 0
	if c.HasPhoneService {
		n++
	}
	if c.MultipleLines.Subscribed() {
		n++
	}
	if c.InternetService != InternetNone && c.InternetService != "" {
		n++
	}
	for _, s := range []ServiceStatus{
		c.OnlineSecurity, c.OnlineBackup, c.DeviceProtection,
		c.TechSupport, c.StreamingTV, c.StreamingMovies,
	} {
		if s.Subscribed() {
			n++
		}
	}
	return n
}

/*
COMPUTE → derived rows, never written back to the source.
*/

// Segment is one group produced by the segment aggregator.
type Segment struct {
	Key            string             `json:"key"`
	Total          int                `json:"totalCustomers"`
	Churned        int                `json:"churned"`
	ChurnRate      float64            `json:"churnRate"` // percent, 2 decimals
	MonthlyRevenue float64            `json:"monthlyRevenue"`
	RevenueAtRisk  float64            `json:"revenueAtRisk"`
	Means          map[string]float64 `json:"means,omitempty"`
	Sums           map[string]float64 `json:"sums,omitempty"`
}

// CohortRow is a tenure bucket with its aggregates.
type CohortRow struct {
	Label         string  `json:"label"`
	MinTenure     int     `json:"minTenure"`
	MaxTenure     int     `json:"maxTenure"` // 0 = open ended
	Total         int     `json:"totalCustomers"`
	Churned       int     `json:"churned"`
	ChurnRate     float64 `json:"churnRate"`
	RetentionRate float64 `json:"retentionRate"`
	AvgMonthly    float64 `json:"avgMonthlyCharges"`
	AvgTenure     float64 `json:"avgTenure"`
}

// CohortTable is the chronological cohort breakdown.
type CohortTable struct {
	Rows             []CohortRow `json:"rows"`
	ExcludedNoTenure int         `json:"excludedZeroTenure"`
}

// RiskTier is the coarse band derived from a risk score.
type RiskTier string

const (
	TierCritical RiskTier = "Critical"
	TierHigh     RiskTier = "High"
	TierMedium   RiskTier = "Medium"
	TierLow      RiskTier = "Low"
)

// ScoredCustomer is an active customer with its risk score.
type ScoredCustomer struct {
	Customer CustomerRecord `json:"customer"`
	Score    int            `json:"riskScore"`
	Tier     RiskTier       `json:"riskTier"`
}

// RiskTierSummary aggregates the active customers of one tier.
type RiskTierSummary struct {
	Tier                RiskTier `json:"tier"`
	Customers           int      `json:"customers"`
	MonthlyRevenue      float64  `json:"monthlyRevenue"`
	AvgScore            float64  `json:"avgScore"`
	AnnualRevenueAtRisk float64  `json:"annualRevenueAtRisk"`
}

// HighRiskProfile describes the Critical and High customers taken together.
type HighRiskProfile struct {
	Customers           int     `json:"customers"`
	MonthlyRevenue      float64 `json:"monthlyRevenue"`
	AnnualRevenueAtRisk float64 `json:"annualRevenueAtRisk"`
	AvgMonthly          float64 `json:"avgMonthlyCharges"`
	AvgTenure           float64 `json:"avgTenure"`
}

// CLVSummary is the projected lifetime value rollup.
type CLVSummary struct {
	AvgAll             float64   `json:"avgAll"`
	AvgChurned         float64   `json:"avgChurned"`
	AvgRetained        float64   `json:"avgRetained"`
	RealizedChurned    float64   `json:"realizedChurned"`
	MonthlyRevenueLoss float64   `json:"monthlyRevenueLoss"`
	AnnualRevenueLoss  float64   `json:"annualRevenueLoss"`
	ByContract         []Segment `json:"byContract"`
}

// Overview is the dataset-level headline.
type Overview struct {
	TotalCustomers   int     `json:"totalCustomers"`
	ChurnedCustomers int     `json:"churnedCustomers"`
	ChurnRate        float64 `json:"churnRate"`
	TotalMonthly     float64 `json:"totalMonthlyCharges"`
	AvgMonthly       float64 `json:"avgMonthlyCharges"`
	AvgTenure        float64 `json:"avgTenure"`
}

// SignificanceResult is a chi-square independence test of one factor against churn.
type SignificanceResult struct {
	Factor      string  `json:"factor"`
	ChiSquare   float64 `json:"chiSquare"`
	DOF         int     `json:"dof"`
	PValue      float64 `json:"pValue"`
	Significant bool    `json:"significant"`
}

// Report bundles every result table of one run.
type Report struct {
	RunID        string               `json:"runId"`
	GeneratedAt  time.Time            `json:"generatedAt"`
	Source       string               `json:"source"`
	Overview     Overview             `json:"overview"`
	Segments     map[string][]Segment `json:"segments"`
	Cohorts      CohortTable          `json:"cohorts"`
	RiskSummary  []RiskTierSummary    `json:"riskSummary"`
	HighRisk     []ScoredCustomer     `json:"highRisk"`
	Profile      HighRiskProfile      `json:"highRiskProfile"`
	CLV          CLVSummary           `json:"clv"`
	Significance []SignificanceResult `json:"significance"`
}

/*
CONFIG → parameters of one run
*/

// Config carries the per-run parameters handed to calculator.Run.
type Config struct {
	Source     string    // description of where the records came from
	Partitions int       // concurrent partitions for segment aggregation, <=1 = sequential
	Now        time.Time // report timestamp, UTC
	Verbose    bool
}
