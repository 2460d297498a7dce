package failure

import (
	"encoding/json"
	"fmt"
	"math/big"
)

// ReportTitle is the header of every operator report
const ReportTitle = "Spacewalk Testing Service"

// Field is one labelled value of a report
type Field struct {
	Label string
	Value string
}

// Report is the transport independent form of an operator alert
type Report struct {
	Title   string
	Context string
	Fields  []Field
}

// Describe serializes a classified error into a report
func Describe(e *Error) Report {
	r := Report{
		Title: ReportTitle,
		Context: fmt.Sprintf("Encountered error in Spacewalk test for network *'%s'* in stage *'%s'*: \n *Vault Id*: %s \n",
			e.Network, e.Stage, e.Vault),
	}

	r.Fields = append(r.Fields, Field{Label: "Error Name", Value: e.Kind().String()})

	switch p := e.Payload.(type) {
	case ConfigInconsistency:
		r.Fields = append(r.Fields, Field{Label: "Data", Value: "`" + jsonString(p) + "`"})
	case AmountMismatch:
		r.Fields = append(r.Fields,
			Field{Label: "Event", Value: p.Event},
			Field{Label: "Data", Value: "`" + jsonString(amountData(p)) + "`"},
		)
	case MissingConfirmationEvent:
		r.Fields = append(r.Fields, Field{Label: "Event Name", Value: p.Event})
	case DuplicateConfirmationEvent:
		r.Fields = append(r.Fields,
			Field{Label: "Event Name", Value: p.Event},
			Field{Label: "Count", Value: fmt.Sprint(p.Count)},
		)
	case DispatchFailure:
		r.Fields = append(r.Fields,
			Field{Label: "Dispatch Error", Value: p.Extrinsic},
			Field{Label: "Error Section", Value: p.Section},
			Field{Label: "Error Method", Value: p.Method},
		)
	case ExtrinsicFailure:
		r.Fields = append(r.Fields,
			Field{Label: "When Calling Extrinsic", Value: p.Extrinsic},
			Field{Label: "Event Name", Value: p.EventName},
		)
	case TransportError:
		r.Fields = append(r.Fields,
			Field{Label: "When Calling Extrinsic", Value: p.Extrinsic},
			Field{Label: "From Account", Value: p.Signer},
		)
	case TransactionTimeout:
		r.Fields = append(r.Fields,
			Field{Label: "Operation", Value: p.Operation},
			Field{Label: "Request ID", Value: p.ID},
		)
	case TransactionRejected:
		r.Fields = append(r.Fields,
			Field{Label: "Transaction Type", Value: p.Operation},
			Field{Label: "Info", Value: p.ResultCodes},
		)
	case AccountNotFound:
		r.Fields = append(r.Fields, Field{Label: "Attempted Account Id", Value: p.Account})
	}

	msg := e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	r.Fields = append(r.Fields, Field{Label: "Message", Value: msg})

	if e.RunID != "" {
		r.Fields = append(r.Fields, Field{Label: "Run", Value: e.RunID})
	}
	return r
}

func amountData(p AmountMismatch) map[string]string {
	data := map[string]string{
		"requested": bigString(p.Requested),
		"amount":    bigString(p.Amount),
		"fee":       bigString(p.Fee),
	}
	if p.TransferFee != nil {
		data["transferFee"] = p.TransferFee.String()
	}
	return data
}

func bigString(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return n.String()
}

func jsonString(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
