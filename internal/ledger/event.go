package ledger

import (
	"fmt"
	"time"

	"github.com/fedegimenez/inmate-state-ledger/internal/digest"
)

// Event is one immutable entry of the registry, describing a committed transition.
type Event struct {
	ID             uint64        `json:"id"`
	Subject        digest.Digest `json:"subject_digest"`
	Kind           Kind          `json:"kind"`
	Description    string        `json:"description"`
	Timestamp      time.Time     `json:"timestamp"`
	Issuer         string        `json:"issuer"`
	EventDigest    digest.Digest `json:"event_digest"`
	ResultingState State         `json:"resulting_state"`
	PrevHash       digest.Digest `json:"prev_hash"`
	Hash           digest.Digest `json:"hash"`
}

// ComputeHash returns the Keccak-256 over the event's fields and its link to
// the previous event of the same record. The description enters through
// EventDigest.
func (e *Event) ComputeHash() digest.Digest {
	h := digest.New()
	fmt.Fprintf(h, "%d|%s|%d|%s|%s|%q|%d|%s",
		e.ID, e.Subject, e.Kind, e.EventDigest,
		e.Timestamp.UTC().Format(time.RFC3339Nano),
		e.Issuer, e.ResultingState, e.PrevHash,
	)
	return digest.FromHash(h)
}
