package domain

import "time"

// PriceScale is the fixed-point multiplier applied to raw fractional spot
// prices before storage. Scaled values are floored, never rounded.
const PriceScale = 1_000_000

// PriceObservation is a single spot-price sample for a product in one
// availability zone. Append-only: observations are never updated or deleted.
type PriceObservation struct {
	ID               int64
	ProductID        int64     // references Product.ID
	Date             time.Time // sample timestamp from the provider
	Price            int64     // raw price * PriceScale, floored
	AvailabilityZone string
}
