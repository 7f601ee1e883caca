package bidding

// incrementTier is one band of the minimum-increment step function.
type incrementTier struct {
	floor     int64 // band start, inclusive, in cents
	increment int64 // minimum raise within the band, in cents
}

// incrementTable is the tiered bid increment schedule. Bands are ordered
// ascending and the table is a monotonic step function over price: larger
// absolute increments at higher price bands.
var incrementTable = []incrementTier{
	{floor: 0, increment: 100},             // under $50: $1
	{floor: 50_00, increment: 5_00},        // $50 - $99.99: $5
	{floor: 100_00, increment: 10_00},      // $100 - $249.99: $10
	{floor: 250_00, increment: 25_00},      // $250 - $499.99: $25
	{floor: 500_00, increment: 50_00},      // $500 - $999.99: $50
	{floor: 1_000_00, increment: 100_00},   // $1,000 - $2,499.99: $100
	{floor: 2_500_00, increment: 250_00},   // $2,500 - $4,999.99: $250
	{floor: 5_000_00, increment: 500_00},   // $5,000 - $9,999.99: $500
	{floor: 10_000_00, increment: 1_000_00},  // $10,000 - $24,999.99: $1,000
	{floor: 25_000_00, increment: 2_500_00},  // $25,000 - $49,999.99: $2,500
	{floor: 50_000_00, increment: 5_000_00},  // $50,000 - $99,999.99: $5,000
	{floor: 100_000_00, increment: 10_000_00}, // $100,000 and up: $10,000
}

// IncrementFor returns the minimum raise above the given price in cents.
func IncrementFor(priceCents int64) int64 {
	increment := incrementTable[0].increment
	for _, tier := range incrementTable {
		if priceCents < tier.floor {
			break
		}
		increment = tier.increment
	}
	return increment
}

// MinimumNextBid returns the lowest acceptable bid over the current price.
func MinimumNextBid(currentCents int64) int64 {
	return currentCents + IncrementFor(currentCents)
}
