package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OddsSample is one time bucket of the quoted-odds series for an event: an
// open/high/low/close summary of the yes and no quotes over the bucket, plus
// the pool totals and bet count as of the last update in the bucket.
//
// A sample is mutable only while its bucket is the current one; once a later
// bucket opens, earlier samples are never touched again.
type OddsSample struct {
	EventID     string        `json:"event_id"`
	Interval    time.Duration `json:"interval"`
	BucketStart time.Time     `json:"bucket_start"`

	OpenYes  decimal.Decimal `json:"open_yes"`
	HighYes  decimal.Decimal `json:"high_yes"`
	LowYes   decimal.Decimal `json:"low_yes"`
	CloseYes decimal.Decimal `json:"close_yes"`

	OpenNo  decimal.Decimal `json:"open_no"`
	HighNo  decimal.Decimal `json:"high_no"`
	LowNo   decimal.Decimal `json:"low_no"`
	CloseNo decimal.Decimal `json:"close_no"`

	YesPool  decimal.Decimal `json:"yes_pool"`
	NoPool   decimal.Decimal `json:"no_pool"`
	BetCount int             `json:"bet_count"`
}

// BucketStart truncates t down to the start of its interval bucket.
func BucketStart(t time.Time, interval time.Duration) time.Time {
	return t.UTC().Truncate(interval)
}
