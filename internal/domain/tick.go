package domain

// MarketTick is a raw numeric market snapshot for one token at one point in
// time, extracted from a push event before display formatting. Corresponds to
// the market_ticks table in ClickHouse.
type MarketTick struct {
	Address      string  // lowercase contract address
	TimestampMs  int64   // event time, Unix milliseconds
	PriceUsd     float64
	MarketCapUsd float64
	VolumeUsd    float64
	Buys         int64
	Sells        int64
	Holders      int64
	TxCount      int64
}
