package ledger_test

import (
	"fmt"
	"testing"

	"github.com/fedegimenez/inmate-state-ledger/internal/digest"
	"github.com/fedegimenez/inmate-state-ledger/internal/ledger"
)

// readsDuringWrites commits n transitions on one record, and n intakes of
// other records, while reading the record, its timeline and the whole ledger
// in a loop. Every read must describe a fully committed transition.
func readsDuringWrites(t *testing.T, s ledger.Store, n int) {
	t.Helper()
	a := digest.OfString("A")
	if _, _, err := s.Commit(ctx, intake(a, "guard-1", "in")); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		defer close(done)
		for v := 1; v <= n; v++ {
			desc := fmt.Sprintf("control %d", v)
			if _, _, err := s.Commit(ctx, step(a, v, ledger.KindMedicalReport, ledger.StateIngresado, desc)); err != nil {
				done <- err
				return
			}
			other := digest.OfString(fmt.Sprintf("B-%d", v))
			if _, _, err := s.Commit(ctx, intake(other, "guard-1", desc)); err != nil {
				done <- err
				return
			}
		}
	}()

	reads := 0
	for {
		rec, err := s.Record(ctx, a)
		if err != nil {
			t.Fatalf("Record: %v", err)
		}
		events, err := s.Events(ctx, rec.EventIDs)
		if err != nil {
			t.Fatalf("Events: %v", err)
		}
		if err := ledger.VerifyRecord(rec, events); err != nil {
			t.Fatalf("read %d saw a partial transition: %v", reads, err)
		}
		if last := events[len(events)-1]; rec.ChainHead != last.Hash {
			t.Fatalf("read %d: chain head does not match event %d", reads, last.ID)
		}
		if _, err := ledger.Verify(ctx, s); err != nil {
			t.Fatalf("Verify during writes: %v", err)
		}
		reads++

		select {
		case err, open := <-done:
			if open && err != nil {
				t.Fatalf("writer: %v", err)
			}
			report, err := ledger.Verify(ctx, s)
			if err != nil {
				t.Fatal(err)
			}
			if report.Records != n+1 || report.Events != 2*n+1 {
				t.Errorf("report: got %d records, %d events; want %d, %d", report.Records, report.Events, n+1, 2*n+1)
			}
			return
		default:
		}
	}
}

func TestReads_seeOnlyCommittedTransitions(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			readsDuringWrites(t, open(t), 100)
		})
	}
}

func TestSnapshot_matchesRecords(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			a := digest.OfString("A")
			b := digest.OfString("B")
			mustCommit(t, s, intake(a, "guard-1", "a in"))
			mustCommit(t, s, intake(b, "guard-1", "b in"))
			mustCommit(t, s, step(a, 1, ledger.KindApplySanction, ledger.StateSancionado, "pelea"))

			snap, err := s.Snapshot(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if len(snap.Records) != 2 || snap.Records[0].IDDigest != a || snap.Records[1].IDDigest != b {
				t.Fatalf("records must be in intake order, got %d", len(snap.Records))
			}
			if len(snap.Events) != 3 {
				t.Fatalf("events: got %d, want 3", len(snap.Events))
			}
			for i, ev := range snap.Events {
				if ev.ID != uint64(i+1) {
					t.Errorf("events must be in id order, position %d holds %d", i, ev.ID)
				}
			}

			want, err := s.Record(ctx, a)
			if err != nil {
				t.Fatal(err)
			}
			got := snap.Records[0]
			if fmt.Sprint(got.EventIDs) != fmt.Sprint(want.EventIDs) || got.ChainHead != want.ChainHead || got.State != want.State {
				t.Errorf("snapshot record differs from Record: %+v vs %+v", got, want)
			}
		})
	}
}

func TestSnapshotVerify_detectsOrphanEvent(t *testing.T) {
	s := ledger.NewMemoryStore()
	mustCommit(t, s, intake(digest.OfString("A"), "guard-1", "in"))
	snap, err := s.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}

	orphan := *snap.Events[0]
	orphan.ID = 2
	snap.Events = append(snap.Events, &orphan)
	if _, err := snap.Verify(); err == nil {
		t.Error("an event outside every timeline must fail verification")
	}

	snap.Events = nil
	if _, err := snap.Verify(); err == nil {
		t.Error("a record referencing a missing event must fail verification")
	}
}

func mustCommit(t *testing.T, s ledger.Store, m ledger.Mutation) {
	t.Helper()
	if _, _, err := s.Commit(ctx, m); err != nil {
		t.Fatalf("Commit %s: %v", m.Kind, err)
	}
}
