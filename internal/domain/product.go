package domain

// Product identifies a sellable compute unit on a provider's spot market.
// The triple (Platform, InstanceType, DistributionType) is unique; the id is
// a database-assigned surrogate. Products are created lazily the first time
// an unseen triple shows up during ingestion and are never deleted.
type Product struct {
	ID               int64  // database-assigned surrogate id
	InstanceType     string // e.g. "m5.large"
	DistributionType string // provider's product description, e.g. "Linux/UNIX"
	Platform         string // source provider tag, e.g. "aws"
}
