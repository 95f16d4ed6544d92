// Package ingestion implements the incremental spot-price ingestion run:
// checkpointed windowing, paginated source consumption, catalog-backed
// product resolution and batched persistence inside one transaction.
package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"cloudmarketwatch/internal/domain"
)

// PriceRecord is a raw spot-price record exactly as the provider's wire
// format carries it. Timestamp and SpotPrice stay strings until parsing so
// every source implementation shares the same parsing and scaling rules.
type PriceRecord struct {
	Timestamp          string // e.g. "2024-03-01*14:05:09+00:00"
	SpotPrice          string // decimal string, fractional currency per hour
	AvailabilityZone   string
	InstanceType       string
	ProductDescription string
}

// PricePage is one page of spot-price history. An empty NextToken means no
// more pages.
type PricePage struct {
	Records   []PriceRecord
	NextToken string
}

// SpotPriceSource is the consumed capability of the provider's pricing API:
// given a region, a time window and a continuation token, return a page of
// records and an optional next-page token.
type SpotPriceSource interface {
	DescribeSpotPriceHistory(ctx context.Context, region string, start, end time.Time, nextToken string) (*PricePage, error)
}

// spotTimestampLayout matches the provider's timestamp format: a literal
// '*' between date and time, followed by a numeric offset (or Z).
const spotTimestampLayout = "2006-01-02*15:04:05Z07:00"

// ParseSpotTimestamp parses a wire timestamp into UTC.
func ParseSpotTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(spotTimestampLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse spot timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

var priceScale = decimal.NewFromInt(domain.PriceScale)

// ScaleSpotPrice converts a raw decimal price string into the fixed-point
// stored representation: price * 1,000,000, floored. Decimal arithmetic
// keeps values like 0.00345999 exact (3459, not 3460).
func ScaleSpotPrice(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse spot price %q: %w", s, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("negative spot price %q", s)
	}
	return d.Mul(priceScale).Floor().IntPart(), nil
}
