package ledger

// MaxRequestBytes caps a single purchase or consumption request, keeping the
// cost arithmetic far from integer overflow.
const MaxRequestBytes = int64(1) << 50

// StorageCost returns the credit cost of a storage purchase. Pricing is in
// whole units: partial units round up, so any non-zero purchase costs at
// least one unit's price.
func StorageCost(bytes, bytesPerUnit, pricePerUnit int64) int64 {
	if bytes <= 0 || bytesPerUnit <= 0 || pricePerUnit <= 0 {
		return 0
	}
	units := (bytes + bytesPerUnit - 1) / bytesPerUnit
	return units * pricePerUnit
}
