package loader

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"churn-metrics/pkg/apperrors"
	"churn-metrics/pkg/models"
)

// Column names of the telco export, lower-cased.
const (
	ColCustomerID       = "customerid"
	ColGender           = "gender"
	ColSeniorCitizen    = "seniorcitizen"
	ColPartner          = "partner"
	ColDependents       = "dependents"
	ColTenure           = "tenure"
	ColPhoneService     = "phoneservice"
	ColMultipleLines    = "multiplelines"
	ColInternetService  = "internetservice"
	ColOnlineSecurity   = "onlinesecurity"
	ColOnlineBackup     = "onlinebackup"
	ColDeviceProtection = "deviceprotection"
	ColTechSupport      = "techsupport"
	ColStreamingTV      = "streamingtv"
	ColStreamingMovies  = "streamingmovies"
	ColContract         = "contract"
	ColPaperlessBilling = "paperlessbilling"
	ColPaymentMethod    = "paymentmethod"
	ColMonthlyCharges   = "monthlycharges"
	ColTotalCharges     = "totalcharges"
	ColChurn            = "churn"
)

// RequiredColumns must be present in every source.
var RequiredColumns = []string{ColCustomerID, ColTenure, ColContract, ColMonthlyCharges, ColChurn}

// Warning is a non-fatal problem with one input row.
type Warning struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// Result holds the loaded customers and the rows that were skipped.
type Result struct {
	Records  []models.CustomerRecord
	Warnings []Warning
	Encoding string
}

// Load reads a customer export from disk.
func Load(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.Wrap(err, apperrors.CodeNotFound, "customer export "+path)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes CSV bytes into customer records. A header with no data rows
// is a valid, empty dataset. Rows that cannot be read become warnings.
func Parse(data []byte) (*Result, error) {
	decoded, enc, err := DetectAndDecode(data)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInvalidInput, "decode customer export")
	}

	reader := csv.NewReader(bytes.NewReader(decoded))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, apperrors.New(apperrors.CodeInvalidInput, "customer export has no header row")
		}
		return nil, apperrors.Wrap(err, apperrors.CodeInvalidInput, "read header row")
	}
	for i, h := range header {
		header[i] = strings.ToLower(strings.TrimSpace(h))
	}
	if err := CheckColumns(header); err != nil {
		return nil, err
	}

	res := &Result{Encoding: enc}
	rowNum := 1
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		rowNum++
		if err != nil {
			res.Warnings = append(res.Warnings, Warning{Row: rowNum, Message: fmt.Sprintf("parse error: %v", err)})
			continue
		}
		if len(row) != len(header) {
			res.Warnings = append(res.Warnings, Warning{
				Row:     rowNum,
				Message: fmt.Sprintf("row has %d columns, expected %d", len(row), len(header)),
			})
			padded := make([]string, len(header))
			copy(padded, row)
			row = padded
		}

		fields := make(map[string]string, len(header))
		for i, h := range header {
			fields[h] = row[i]
		}
		rec, err := RecordFromFields(fields)
		if err != nil {
			res.Warnings = append(res.Warnings, Warning{Row: rowNum, Message: err.Error()})
			continue
		}
		res.Records = append(res.Records, rec)
	}
	return res, nil
}

// CheckColumns rejects a source missing any required column. Names are matched case-insensitively.
func CheckColumns(columns []string) error {
	have := make(map[string]bool, len(columns))
	for _, c := range columns {
		have[strings.ToLower(strings.TrimSpace(c))] = true
	}
	var missing []string
	for _, c := range RequiredColumns {
		if !have[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return apperrors.New(apperrors.CodeInvalidInput, "missing columns: "+strings.Join(missing, ", "))
	}
	return nil
}

// RecordFromFields builds a CustomerRecord from lower-cased column -> raw value.
// A blank or non-numeric TotalCharges loads as 0 (customers billed for the first time).
func RecordFromFields(f map[string]string) (models.CustomerRecord, error) {
	var rec models.CustomerRecord

	rec.CustomerID = strings.TrimSpace(f[ColCustomerID])
	if rec.CustomerID == "" {
		return rec, fmt.Errorf("empty customer id")
	}

	tenure, err := strconv.Atoi(strings.TrimSpace(f[ColTenure]))
	if err != nil || tenure < 0 {
		return rec, fmt.Errorf("customer %s: invalid tenure %q", rec.CustomerID, f[ColTenure])
	}
	rec.TenureMonths = tenure

	monthly, err := strconv.ParseFloat(strings.TrimSpace(f[ColMonthlyCharges]), 64)
	if err != nil || monthly < 0 {
		return rec, fmt.Errorf("customer %s: invalid monthly charges %q", rec.CustomerID, f[ColMonthlyCharges])
	}
	rec.MonthlyCharges = monthly

	if total, err := strconv.ParseFloat(strings.TrimSpace(f[ColTotalCharges]), 64); err == nil && total >= 0 {
		rec.TotalCharges = total
	}

	churned, ok := BoolFromLabel(f[ColChurn])
	if !ok {
		return rec, fmt.Errorf("customer %s: invalid churn flag %q", rec.CustomerID, f[ColChurn])
	}
	rec.Churned = churned

	rec.Gender = strings.TrimSpace(f[ColGender])
	rec.SeniorCitizen, _ = BoolFromLabel(f[ColSeniorCitizen])
	rec.Partner, _ = BoolFromLabel(f[ColPartner])
	rec.Dependents, _ = BoolFromLabel(f[ColDependents])
	rec.PaperlessBilling, _ = BoolFromLabel(f[ColPaperlessBilling])
	rec.HasPhoneService, _ = BoolFromLabel(f[ColPhoneService])

	rec.ContractType = ContractFromLabel(f[ColContract])
	rec.PaymentMethod = PaymentFromLabel(f[ColPaymentMethod])
	rec.InternetService = InternetFromLabel(f[ColInternetService])
	rec.MultipleLines = ServiceFromLabel(f[ColMultipleLines])
	rec.OnlineSecurity = ServiceFromLabel(f[ColOnlineSecurity])
	rec.OnlineBackup = ServiceFromLabel(f[ColOnlineBackup])
	rec.DeviceProtection = ServiceFromLabel(f[ColDeviceProtection])
	rec.TechSupport = ServiceFromLabel(f[ColTechSupport])
	rec.StreamingTV = ServiceFromLabel(f[ColStreamingTV])
	rec.StreamingMovies = ServiceFromLabel(f[ColStreamingMovies])

	return rec, nil
}
