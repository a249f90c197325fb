package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	"github.com/dingeii/binance-signal-bot/internal/market"
)

// ErrMalformed tags upstream payloads that decoded but could not be interpreted.
var ErrMalformed = errors.New("malformed response")

// FailureKind classifies a failed fetch.
type FailureKind string

const (
	FailureTimeout   FailureKind = "timeout"
	FailureTransport FailureKind = "transport"
	FailureMalformed FailureKind = "malformed_response"
	// FailureCanceled marks tasks never started because the caller stopped.
	FailureCanceled FailureKind = "canceled"
)

// FetchError is the per-symbol failure recorded in a Result.
type FetchError struct {
	Symbol string
	Kind   FailureKind
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %s: %v", e.Symbol, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Result is either telemetry or a FetchError, never both.
type Result struct {
	Symbol    string
	Telemetry market.Telemetry
	Err       *FetchError
}

// OK reports whether the fetch succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

// Classify maps an error to its FailureKind.
func Classify(err error) FailureKind {
	var (
		netErr    net.Error
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return FailureTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		return FailureTimeout
	case errors.Is(err, context.Canceled):
		return FailureCanceled
	case errors.Is(err, ErrMalformed), errors.As(err, &syntaxErr), errors.As(err, &typeErr):
		return FailureMalformed
	default:
		return FailureTransport
	}
}

func newFetchError(symbol string, err error) *FetchError {
	return &FetchError{Symbol: symbol, Kind: Classify(err), Err: err}
}
