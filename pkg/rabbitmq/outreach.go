// Package rabbitmq publishes retention-outreach events for high-risk customers.
package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"churn-metrics/pkg/models"
)

// Routing keys per tier.
const (
	RoutingKeyCritical = "churn.risk.critical"
	RoutingKeyHigh     = "churn.risk.high"
)

// OutreachEvent asks downstream retention tooling to contact one customer.
type OutreachEvent struct {
	EventID        string    `json:"eventId"`
	RunID          string    `json:"runId"`
	CustomerID     string    `json:"customerId"`
	RiskScore      int       `json:"riskScore"`
	RiskTier       string    `json:"riskTier"`
	Contract       string    `json:"contract"`
	PaymentMethod  string    `json:"paymentMethod"`
	TenureMonths   int       `json:"tenureMonths"`
	MonthlyCharges float64   `json:"monthlyCharges"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// RoutingKey maps a tier to its routing key; tiers below High have none.
func RoutingKey(tier models.RiskTier) (string, bool) {
	switch tier {
	case models.TierCritical:
		return RoutingKeyCritical, true
	case models.TierHigh:
		return RoutingKeyHigh, true
	}
	return "", false
}

// Outreach turns a report's high-risk list into events.
type Outreach struct {
	publisher Publisher
	exchange  string
	logger    *slog.Logger
}

// NewOutreach wires a publisher to an exchange.
func NewOutreach(p Publisher, exchange string, logger *slog.Logger) *Outreach {
	return &Outreach{publisher: p, exchange: exchange, logger: logger}
}

// Publish sends one event per Critical or High customer of r and returns how
// many were sent. Individual failures do not stop the batch; they are joined
// into the returned error.
func (o *Outreach) Publish(ctx context.Context, r *models.Report) (int, error) {
	sent := 0
	var errs []error
	for _, sc := range r.HighRisk {
		key, ok := RoutingKey(sc.Tier)
		if !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		c := sc.Customer
		ev := OutreachEvent{
			EventID:        uuid.NewString(),
			RunID:          r.RunID,
			CustomerID:     c.CustomerID,
			RiskScore:      sc.Score,
			RiskTier:       string(sc.Tier),
			Contract:       string(c.ContractType),
			PaymentMethod:  string(c.PaymentMethod),
			TenureMonths:   c.TenureMonths,
			MonthlyCharges: c.MonthlyCharges,
			OccurredAt:     r.GeneratedAt,
		}
		if err := o.publisher.Publish(ctx, o.exchange, key, ev); err != nil {
			errs = append(errs, fmt.Errorf("customer %s: %w", c.CustomerID, err))
			continue
		}
		sent++
	}
	o.logger.Info("outreach events published", "exchange", o.exchange, "sent", sent, "failed", len(errs))
	return sent, errors.Join(errs...)
}
