package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// AlertRecord is an audited net-flow alert.
type AlertRecord struct {
	ID              int64
	CycleID         string
	Symbol          string
	Reason          string
	CurrentValue    decimal.Decimal
	BaselineAverage decimal.Decimal
	HasBaseline     bool
	ObservedAt      time.Time
	CreatedAt       time.Time
}
