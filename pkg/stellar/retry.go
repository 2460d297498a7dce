package stellar

import (
	"net/http"
	"strings"

	"github.com/stellar/go/clients/horizonclient"
)

// Action is what the submit loop does after a failed submission
type Action int

const (
	// Fail gives up on the payment
	Fail Action = iota
	// RetrySame resubmits the identical signed transaction
	RetrySame
	// RebuildAndRetry builds a new transaction with a fresh sequence number and fee
	RebuildAndRetry
)

func (a Action) String() string {
	switch a {
	case RetrySame:
		return "retry_same"
	case RebuildAndRetry:
		return "rebuild"
	default:
		return "fail"
	}
}

// classify decides how to continue after a submission error and returns the
// result codes reported by Horizon, if any
func classify(err error) (Action, string) {
	hErr := horizonclient.GetError(err)
	if hErr == nil {
		return Fail, ""
	}

	codes := resultCodes(hErr)

	switch hErr.Problem.Status {
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return RetrySame, codes
	}

	rc, rcErr := hErr.ResultCodes()
	if rcErr != nil || rc == nil {
		return Fail, codes
	}
	switch rc.TransactionCode {
	case "tx_internal_error":
		return RetrySame, codes
	case "tx_bad_seq", "tx_insufficient_fee":
		return RebuildAndRetry, codes
	}
	return Fail, codes
}

// resultCodes renders transaction and operation codes, e.g. "tx_failed [op_underfunded]"
func resultCodes(hErr *horizonclient.Error) string {
	rc, err := hErr.ResultCodes()
	if err != nil || rc == nil {
		return ""
	}
	out := rc.TransactionCode
	if len(rc.OperationCodes) > 0 {
		out += " [" + strings.Join(rc.OperationCodes, ", ") + "]"
	}
	return out
}

// isNotFound reports a 404 from Horizon
func isNotFound(err error) bool {
	hErr := horizonclient.GetError(err)
	return hErr != nil && hErr.Problem.Status == http.StatusNotFound
}
