package billing

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"clientdesk/internal/types"
)

var moneyPrinter = message.NewPrinter(language.English)

// PreviewProration reports what moving the caller's subscription to
// newPriceID would cost if it happened now. It is read-only on both sides.
//
// ProrationAmount sums every proration line of the simulated invoice
// (positive is an extra charge, negative a credit). The immediate amount is
// the positive part of that delta; credits and the regular renewal land on
// the next invoice.
func (s *Service) PreviewProration(ctx context.Context, userID, subscriptionID, newPriceID string) (*types.ProrationSummary, error) {
	if _, err := s.ownedRecord(ctx, userID, subscriptionID, OpPreviewProration); err != nil {
		return nil, err
	}
	if err := s.requireKnownPrice(newPriceID); err != nil {
		return nil, err
	}

	sub, err := s.processor.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, s.processorError(ctx, OpPreviewProration, err)
	}
	item, err := primaryItem(sub)
	if err != nil {
		return nil, err
	}

	currentPrice, err := s.processor.GetPrice(ctx, item.PriceID)
	if err != nil {
		return nil, s.processorError(ctx, OpPreviewProration, err)
	}
	newPrice, err := s.processor.GetPrice(ctx, newPriceID)
	if err != nil {
		return nil, s.processorError(ctx, OpPreviewProration, err)
	}

	prorationDate := s.now().UTC().Truncate(time.Second)
	preview, err := s.processor.PreviewInvoice(ctx, types.InvoicePreviewParams{
		CustomerID:     sub.CustomerID,
		SubscriptionID: sub.ID,
		ItemID:         item.ID,
		PriceID:        newPriceID,
		ProrationDate:  prorationDate,
	})
	if err != nil {
		return nil, s.processorError(ctx, OpPreviewProration, err)
	}

	cur := firstNonEmpty(preview.Currency, newPrice.Currency, currentPrice.Currency, s.currency)
	proration := preview.ProrationTotal()
	immediate := max(proration, 0)

	return &types.ProrationSummary{
		SubscriptionID:     sub.ID,
		CurrentPriceID:     currentPrice.ID,
		NewPriceID:         newPrice.ID,
		Currency:           cur,
		CurrentUnitAmount:  currentPrice.UnitAmount,
		NewUnitAmount:      newPrice.UnitAmount,
		IsUpgrade:          newPrice.UnitAmount > currentPrice.UnitAmount,
		ProrationAmount:    proration,
		ProrationDisplay:   formatMinorUnits(cur, proration),
		ImmediateAmount:    immediate,
		ImmediateDisplay:   formatMinorUnits(cur, immediate),
		NextInvoiceAmount:  preview.AmountDue,
		NextInvoiceDisplay: formatMinorUnits(cur, preview.AmountDue),
		ProrationDate:      prorationDate,
		NextBillingDate:    sub.CurrentPeriodEnd,
	}, nil
}

// formatMinorUnits renders an amount held in the currency's minor unit, for
// example 1234 in usd as "USD 12.34". Unknown currency codes fall back to the
// raw minor-unit value.
func formatMinorUnits(code string, amount int64) string {
	unit, err := currency.ParseISO(strings.ToUpper(code))
	if err != nil {
		return fmt.Sprintf("%s %d", strings.ToUpper(code), amount)
	}
	scale, _ := currency.Standard.Rounding(unit)
	return moneyPrinter.Sprint(unit.Amount(float64(amount) / math.Pow10(scale)))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
