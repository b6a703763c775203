package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"kinesis-pay/internal/gateway"
	"kinesis-pay/internal/models"
)

// RateSource resolves exchange rates for the dual-commodity mode.
type RateSource interface {
	Rate(ctx context.Context, base, quote string, ref gateway.AuditRef) (decimal.Decimal, error)
}

// Pricer turns an invoice total into the order sent to the gateway.
type Pricer struct {
	mode       models.PricingMode
	currency   string
	percentage decimal.Decimal
	rates      RateSource
}

var hundred = decimal.NewFromInt(100)

func NewPricer(mode models.PricingMode, currency string, percentage decimal.Decimal, rates RateSource) *Pricer {
	return &Pricer{
		mode:       mode,
		currency:   strings.ToUpper(currency),
		percentage: percentage,
		rates:      rates,
	}
}

func (p *Pricer) Mode() models.PricingMode {
	return p.mode
}

// Price computes the order for inv. Flat and percentage modes only accept invoices in
// the merchant settlement currency.
func (p *Pricer) Price(ctx context.Context, inv *models.Invoice) (gateway.PaymentOrder, error) {
	switch p.mode {
	case models.PricingFlat, models.PricingPercentage:
		if !strings.EqualFold(inv.Currency, p.currency) {
			return gateway.PaymentOrder{}, models.NewInputError(
				fmt.Sprintf("Kinesis Pay only accepts payments in %s", p.currency))
		}
		amount := inv.Total.Round(2)
		if p.mode == models.PricingPercentage {
			amount = ApplyPercentage(inv.Total, p.percentage)
		}
		return gateway.PaymentOrder{Amount: amount, Currency: p.currency}, nil

	case models.PricingDualCommodity:
		return p.dualCommodity(ctx, inv)
	}

	return gateway.PaymentOrder{}, models.NewInternalError("price invoice", fmt.Errorf("unknown pricing mode %q", p.mode))
}

func (p *Pricer) dualCommodity(ctx context.Context, inv *models.Invoice) (gateway.PaymentOrder, error) {
	quote := strings.ToUpper(inv.Currency)
	ref := gateway.AuditRef{InvoiceID: inv.ID}

	kauRate, err := p.rates.Rate(ctx, models.CommodityGold, quote, ref)
	if err != nil {
		return gateway.PaymentOrder{}, err
	}
	kagRate, err := p.rates.Rate(ctx, models.CommoditySilver, quote, ref)
	if err != nil {
		return gateway.PaymentOrder{}, err
	}

	kau := inv.Total.DivRound(kauRate, 8).Round(5)
	kag := inv.Total.DivRound(kagRate, 8).Round(5)

	return gateway.PaymentOrder{
		Amount:   inv.Total.Round(2),
		Currency: quote,
		Kau:      &kau,
		Kag:      &kag,
	}, nil
}

// ApplyPercentage scales total by |pct|/100, rounded half away from zero to 2 places.
func ApplyPercentage(total, pct decimal.Decimal) decimal.Decimal {
	return total.Mul(pct.Abs()).Div(hundred).Round(2)
}
