package vault

import (
	"fmt"

	"github.com/speedrun-hq/spacewalk-tester/pkg/blockchain"
	"github.com/speedrun-hq/spacewalk-tester/pkg/failure"
	"github.com/speedrun-hq/spacewalk-tester/pkg/models"
)

// confirmation picks the one event of kind that was emitted for signer
func confirmation(events []models.Event, kind models.EventKind, signer blockchain.Signer) (models.Event, error) {
	d := models.Descriptors[kind]
	eventName := d.Section + "." + d.Method

	var matches []models.Event
	for _, ev := range events {
		if !d.Matches(ev) {
			continue
		}
		account, ok := d.Account(ev)
		if ok && account == signer.PublicKey {
			matches = append(matches, ev)
		}
	}

	switch len(matches) {
	case 0:
		return models.Event{}, failure.New(
			failure.MissingConfirmationEvent{Event: eventName},
			fmt.Sprintf("No %s event found for %s", eventName, signer.Address),
		)
	case 1:
		return matches[0], nil
	default:
		return models.Event{}, failure.New(
			failure.DuplicateConfirmationEvent{Event: eventName, Count: len(matches)},
			fmt.Sprintf("Inconsistent amount of %s events for %s", eventName, signer.Address),
		)
	}
}

// classifyDispatch maps the dispatch error of a finalized extrinsic
func classifyDispatch(extrinsic string, finalized *blockchain.Finalized) error {
	de := finalized.DispatchError
	if de.Module != nil {
		return failure.New(
			failure.DispatchFailure{Extrinsic: extrinsic, Section: de.Module.Section, Method: de.Module.Method},
			fmt.Sprintf("%s failed with %s.%s", extrinsic, de.Module.Section, de.Module.Method),
		)
	}

	for _, ev := range finalized.Events {
		if models.NormalizeName(ev.Section) == "system" && models.NormalizeName(ev.Method) == "extrinsicfailed" {
			msg := fmt.Sprintf("%s failed", extrinsic)
			if de.Other != "" {
				msg += ": " + de.Other
			}
			return failure.New(failure.ExtrinsicFailure{Extrinsic: extrinsic, EventName: ev.Name()}, msg)
		}
	}

	return failure.New(
		failure.DispatchFailure{Extrinsic: extrinsic, Section: "Unknown", Method: "Unknown"},
		fmt.Sprintf("%s failed with an unknown dispatch error", extrinsic),
	)
}
