package loader

import (
	"strings"

	"churn-metrics/pkg/models"
)

func normLabel(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimSuffix(s, " (automatic)")
	return strings.Join(strings.Fields(s), " ")
}

// ContractFromLabel maps an export label ("Month-to-month", "One year", ...) to a ContractType.
// Unrecognised labels are returned trimmed but otherwise verbatim.
func ContractFromLabel(s string) models.ContractType {
	switch normLabel(s) {
	case "month-to-month", "month to month", "monthly":
		return models.ContractMonthToMonth
	case "one year", "one-year", "1 year":
		return models.ContractOneYear
	case "two year", "two-year", "2 year":
		return models.ContractTwoYear
	}
	return models.ContractType(strings.TrimSpace(s))
}

// PaymentFromLabel maps an export label to a PaymentMethod.
func PaymentFromLabel(s string) models.PaymentMethod {
	switch normLabel(s) {
	case "electronic check", "electronic-check":
		return models.PaymentElectronicCheck
	case "mailed check", "mailed-check":
		return models.PaymentMailedCheck
	case "bank transfer", "bank-transfer":
		return models.PaymentBankTransfer
	case "credit card", "credit-card":
		return models.PaymentCreditCard
	}
	return models.PaymentMethod(strings.TrimSpace(s))
}

// InternetFromLabel maps "DSL", "Fiber optic" and "No" to an InternetService.
func InternetFromLabel(s string) models.InternetService {
	switch normLabel(s) {
	case "no", "none":
		return models.InternetNone
	case "dsl":
		return models.InternetDSL
	case "fiber optic", "fiber", "fibre":
		return models.InternetFiber
	}
	return models.InternetService(strings.TrimSpace(s))
}

// ServiceFromLabel maps the add-on tri-state labels.
func ServiceFromLabel(s string) models.ServiceStatus {
	switch normLabel(s) {
	case "yes", "1", "true":
		return models.ServiceYes
	case "no", "0", "false":
		return models.ServiceNo
	case "no internet service":
		return models.ServiceNoInternet
	case "no phone service":
		return models.ServiceNoPhone
	}
	return models.ServiceStatus(strings.TrimSpace(s))
}

// BoolFromLabel accepts Yes/No, 1/0 and true/false.
func BoolFromLabel(s string) (bool, bool) {
	switch normLabel(s) {
	case "yes", "1", "true", "y":
		return true, true
	case "no", "0", "false", "n":
		return false, true
	}
	return false, false
}
