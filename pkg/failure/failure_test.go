package failure

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/speedrun-hq/spacewalk-tester/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fieldValue(r Report, label string) (string, bool) {
	for _, f := range r.Fields {
		if f.Label == label {
			return f.Value, true
		}
	}
	return "", false
}

func TestErrorKindAndUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(cause, TransportError{Extrinsic: "Issue Request", Signer: "6abc"}, "submission rejected")

	assert.Equal(t, KindTransportError, err.Kind())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "TransportError: submission rejected: connection reset", err.Error())

	wrapped := fmt.Errorf("cycle: %w", err)
	got, ok := As(wrapped)
	require.True(t, ok)
	assert.Same(t, err, got)
	assert.True(t, IsKind(wrapped, KindTransportError))
	assert.False(t, IsKind(cause, KindTransportError))
}

func TestEnrichOnlyOnce(t *testing.T) {
	err := New(AccountNotFound{Account: "GABC"}, "missing")
	err.Enrich("vault-1", "pendulum", models.StagePaymentSent, "run-1")
	err.Enrich("vault-2", "amplitude", models.StageRedeemConfirmed, "run-2")

	assert.True(t, err.Enriched())
	assert.Equal(t, "vault-1", err.Vault)
	assert.Equal(t, "pendulum", err.Network)
	assert.Equal(t, models.StagePaymentSent, err.Stage)
}

func TestFatal(t *testing.T) {
	assert.True(t, Fatal(New(DuplicateConfirmationEvent{Event: "issue.RequestIssue", Count: 2}, "dup")))
	assert.False(t, Fatal(New(MissingConfirmationEvent{Event: "issue.RequestIssue"}, "none")))
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		name   string
		err    *Error
		fields map[string]string
	}{
		{
			name: "amount mismatch",
			err: New(AmountMismatch{
				Event:     "Execute Issue",
				Requested: big.NewInt(1000),
				Amount:    big.NewInt(900),
				Fee:       big.NewInt(10),
			}, "Issue executed amount is less than requested"),
			fields: map[string]string{
				"Error Name": "AmountMismatch",
				"Event":      "Execute Issue",
				"Data":       "`{\"amount\":\"900\",\"fee\":\"10\",\"requested\":\"1000\"}`",
				"Message":    "Issue executed amount is less than requested",
			},
		},
		{
			name: "dispatch failure",
			err:  New(DispatchFailure{Extrinsic: "Issue Request", Section: "issue", Method: "VaultBanned"}, "Dispatch Error"),
			fields: map[string]string{
				"Error Name":     "DispatchFailure",
				"Dispatch Error": "Issue Request",
				"Error Section":  "issue",
				"Error Method":   "VaultBanned",
			},
		},
		{
			name: "timeout",
			err:  Timeout("Execute Redeem", "0xabc", "Timed out waiting for redeem execution"),
			fields: map[string]string{
				"Error Name": "TransactionTimeout",
				"Request ID": "0xabc",
			},
		},
		{
			name: "rejected",
			err:  New(TransactionRejected{Operation: "Payment", ResultCodes: `{"transaction":"tx_failed"}`}, "Error while sending tokens to vault"),
			fields: map[string]string{
				"Transaction Type": "Payment",
				"Info":             `{"transaction":"tx_failed"}`,
			},
		},
		{
			name: "account not found",
			err:  New(AccountNotFound{Account: "GDEST"}, "The Stellar account does not exist!"),
			fields: map[string]string{
				"Attempted Account Id": "GDEST",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.err.Enrich("vault-x", "foucoco", models.StageIssueRequested, "")
			report := Describe(tt.err)

			assert.Equal(t, ReportTitle, report.Title)
			assert.Contains(t, report.Context, "network *'foucoco'*")
			assert.Contains(t, report.Context, "stage *'request_issue_completed'*")
			assert.Contains(t, report.Context, "vault-x")

			for label, want := range tt.fields {
				got, ok := fieldValue(report, label)
				require.True(t, ok, "missing field %s", label)
				assert.Equal(t, want, got, label)
			}
			_, hasRun := fieldValue(report, "Run")
			assert.False(t, hasRun)
		})
	}
}
