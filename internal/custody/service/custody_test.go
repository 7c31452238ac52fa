package service_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"github.com/fedegimenez/inmate-state-ledger/internal/access"
	"github.com/fedegimenez/inmate-state-ledger/internal/custody/service"
	"github.com/fedegimenez/inmate-state-ledger/internal/digest"
	"github.com/fedegimenez/inmate-state-ledger/internal/fault"
	"github.com/fedegimenez/inmate-state-ledger/internal/ledger"
)

const (
	admin   = "admin-1"
	guard   = "guard-1"
	medic   = "medic-1"
	social  = "social-1"
	judge   = "judge-1"
	nobody  = "visitor-1"
	inmate1 = "interno-1"
)

type CustodySuite struct {
	suite.Suite
	ctx    context.Context
	store  *ledger.MemoryStore
	engine *service.Engine
	svc    *service.Service
}

func TestCustodySuite(t *testing.T) {
	suite.Run(t, new(CustodySuite))
}

func (s *CustodySuite) SetupTest() {
	s.ctx = context.Background()
	s.store = ledger.NewMemoryStore()

	ctl := access.NewController(access.NewMemoryStore(), zap.NewNop())
	s.Require().NoError(ctl.Bootstrap(s.ctx, admin, access.RoleAdmin))
	s.Require().NoError(ctl.Bootstrap(s.ctx, guard, access.RoleGuard))
	s.Require().NoError(ctl.Bootstrap(s.ctx, medic, access.RoleMedical))
	s.Require().NoError(ctl.Bootstrap(s.ctx, social, access.RoleSocial))
	s.Require().NoError(ctl.Bootstrap(s.ctx, judge, access.RoleJudge))

	s.engine = service.NewEngine(s.store, ctl, zap.NewNop())
	s.svc = service.NewService(s.engine)
}

func (s *CustodySuite) intake(id string) *ledger.Record {
	rec, err := s.svc.Intake(s.ctx, guard, service.IntakeInput{
		HumanID:     id,
		Name:        "Juan Perez",
		Location:    "Unidad A",
		Description: "evidencia",
	})
	s.Require().NoError(err)
	return rec
}

func (s *CustodySuite) eventCount() int {
	n, err := s.store.Len(s.ctx)
	s.Require().NoError(err)
	return n
}

// TestScenarioIntake verifies a guard can open a record.
func (s *CustodySuite) TestScenarioIntake() {
	rec := s.intake(inmate1)

	s.Equal(ledger.StateIngresado, rec.State)
	s.Len(rec.EventIDs, 1)
	s.Equal(digest.OfString(inmate1), rec.IDDigest)
	s.Equal(digest.OfString("evidencia"), rec.CaseDigest)
	s.Equal("Unidad A", rec.Location)
	s.Equal(guard, rec.LastActor)
}

func (s *CustodySuite) TestActorIsRecordedInCanonicalForm() {
	rec, err := s.svc.Intake(s.ctx, " Guard-1 ", service.IntakeInput{
		HumanID: inmate1, Name: "Juan Perez", Location: "Unidad A",
	})
	s.Require().NoError(err)
	s.Equal(guard, rec.LastActor)

	view, err := s.svc.View(s.ctx, inmate1)
	s.Require().NoError(err)
	s.Equal(guard, view.Timeline[0].Issuer)
}

func (s *CustodySuite) TestScenarioSanction() {
	s.intake(inmate1)

	rec, err := s.svc.ApplySanction(s.ctx, admin, inmate1, "incumplimiento")
	s.Require().NoError(err)
	s.Equal(ledger.StateSancionado, rec.State)
	s.Equal(digest.OfString("incumplimiento"), rec.CaseDigest)

	rec, err = s.svc.FulfillSanction(s.ctx, admin, inmate1, "cumplida")
	s.Require().NoError(err)
	s.Equal(ledger.StateIngresado, rec.State)
	s.Len(rec.EventIDs, 3)
}

func (s *CustodySuite) TestScenarioProgram() {
	s.intake(inmate1)

	rec, err := s.svc.StartProgram(s.ctx, social, inmate1, "educacion")
	s.Require().NoError(err)
	s.Equal(ledger.StateEnRehabilitacion, rec.State)

	rec, err = s.svc.EndProgram(s.ctx, social, inmate1, "aprobado")
	s.Require().NoError(err)
	s.Equal(ledger.StateIngresado, rec.State)
}

func (s *CustodySuite) TestScenarioTransfer() {
	s.intake(inmate1)

	rec, err := s.svc.OrderTransfer(s.ctx, admin, inmate1, "Unidad B", "orden 44")
	s.Require().NoError(err)
	s.Equal(ledger.StateEnTraslado, rec.State)
	s.Equal("Unidad B", rec.Location)

	rec, err = s.svc.Arrive(s.ctx, guard, inmate1, "Unidad B", "recibido")
	s.Require().NoError(err)
	s.Equal(ledger.StateIngresado, rec.State)
	s.Equal("Unidad B", rec.Location)
}

func (s *CustodySuite) TestScenarioReleaseRequiresRehabilitation() {
	s.intake(inmate1)

	_, err := s.svc.Release(s.ctx, judge, inmate1, "resolucion-123")
	s.Require().ErrorIs(err, fault.ErrInvalidTransition)

	fe, ok := fault.As(err)
	s.Require().True(ok)
	s.Equal([]string{"EN_REHABILITACION"}, fe.Expected)
	s.Equal("INGRESADO", fe.Actual)

	view, err := s.svc.View(s.ctx, inmate1)
	s.Require().NoError(err)
	s.Equal(ledger.StateIngresado, view.Record.State)
	s.Len(view.Timeline, 1)

	_, err = s.svc.StartProgram(s.ctx, social, inmate1, "taller")
	s.Require().NoError(err)
	rec, err := s.svc.Release(s.ctx, judge, inmate1, "resolucion-123")
	s.Require().NoError(err)
	s.Equal(ledger.StateLiberado, rec.State)
}

func (s *CustodySuite) TestScenarioArriveWithoutTransfer() {
	s.intake(inmate1)
	before := s.eventCount()

	_, err := s.svc.Arrive(s.ctx, guard, inmate1, "Unidad B", "")
	s.Require().ErrorIs(err, fault.ErrInvalidTransition)
	s.Equal(before, s.eventCount())

	view, err := s.svc.View(s.ctx, inmate1)
	s.Require().NoError(err)
	s.Equal(ledger.StateIngresado, view.Record.State)
	s.Equal("Unidad A", view.Record.Location)
}

func (s *CustodySuite) TestDuplicateIntake() {
	s.intake(inmate1)

	_, err := s.svc.Intake(s.ctx, guard, service.IntakeInput{HumanID: inmate1, Name: "Otro"})
	s.Require().ErrorIs(err, fault.ErrDuplicateRecord)

	view, err := s.svc.View(s.ctx, inmate1)
	s.Require().NoError(err)
	s.Len(view.Record.EventIDs, 1)
	s.Equal("Juan Perez", view.Record.Name)
}

func (s *CustodySuite) TestNotFound() {
	_, err := s.svc.ApplySanction(s.ctx, admin, "desconocido", "x")
	s.Require().ErrorIs(err, fault.ErrNotFound)

	_, err = s.svc.MedicalReport(s.ctx, medic, "desconocido", "x")
	s.Require().ErrorIs(err, fault.ErrNotFound)
	s.Zero(s.eventCount())
}

// TestRoleGate verifies that each transition is refused to every role except
// the one it requires, and that a refusal appends nothing.
func (s *CustodySuite) TestRoleGate() {
	s.Run("intake by non-guard", func() {
		for _, actor := range []string{admin, medic, social, judge, nobody} {
			_, err := s.svc.Intake(s.ctx, actor, service.IntakeInput{HumanID: "X-" + actor, Name: "N"})
			s.Require().ErrorIs(err, fault.ErrPermissionDenied, actor)
		}
		s.Zero(s.eventCount())
	})

	s.Run("sanction by guard", func() {
		s.intake(inmate1)
		_, err := s.svc.ApplySanction(s.ctx, guard, inmate1, "x")
		s.Require().ErrorIs(err, fault.ErrPermissionDenied)

		fe, ok := fault.As(err)
		s.Require().True(ok)
		s.Equal(guard, fe.Actor)
		s.Equal("ADMIN", fe.Role)
		s.Equal(1, s.eventCount())
	})

	s.Run("release by admin", func() {
		_, err := s.svc.Release(s.ctx, admin, inmate1, "x")
		s.Require().ErrorIs(err, fault.ErrPermissionDenied)
	})

	s.Run("medical report by social", func() {
		_, err := s.svc.MedicalReport(s.ctx, social, inmate1, "x")
		s.Require().ErrorIs(err, fault.ErrPermissionDenied)
	})
}

// TestPermissionCheckedBeforeState verifies the order of checks: a caller
// without the role is denied even when the state would also be wrong.
func (s *CustodySuite) TestPermissionCheckedBeforeState() {
	s.intake(inmate1)
	_, err := s.svc.FulfillSanction(s.ctx, guard, inmate1, "x")
	s.Require().ErrorIs(err, fault.ErrPermissionDenied)
}

func (s *CustodySuite) TestMedicalReportPreservesState() {
	s.intake(inmate1)
	_, err := s.svc.ApplySanction(s.ctx, admin, inmate1, "pelea")
	s.Require().NoError(err)

	rec, err := s.svc.MedicalReport(s.ctx, medic, inmate1, "contusion leve")
	s.Require().NoError(err)
	s.Equal(ledger.StateSancionado, rec.State)
	s.Equal(digest.OfString("contusion leve"), rec.CaseDigest)
	s.Equal(medic, rec.LastActor)
	s.Len(rec.EventIDs, 3)

	s.Run("after release", func() {
		_, err := s.svc.FulfillSanction(s.ctx, admin, inmate1, "")
		s.Require().NoError(err)
		_, err = s.svc.StartProgram(s.ctx, social, inmate1, "taller")
		s.Require().NoError(err)
		_, err = s.svc.Release(s.ctx, judge, inmate1, "fallo")
		s.Require().NoError(err)

		rec, err := s.svc.MedicalReport(s.ctx, medic, inmate1, "control de egreso")
		s.Require().NoError(err)
		s.Equal(ledger.StateLiberado, rec.State)
	})
}

func (s *CustodySuite) TestLiberadoIsTerminal() {
	s.intake(inmate1)
	_, _ = s.svc.StartProgram(s.ctx, social, inmate1, "taller")
	_, err := s.svc.Release(s.ctx, judge, inmate1, "fallo")
	s.Require().NoError(err)

	_, err = s.svc.OrderTransfer(s.ctx, admin, inmate1, "Unidad C", "")
	s.ErrorIs(err, fault.ErrInvalidTransition)
	_, err = s.svc.ApplySanction(s.ctx, admin, inmate1, "")
	s.ErrorIs(err, fault.ErrInvalidTransition)
	_, err = s.svc.StartProgram(s.ctx, social, inmate1, "")
	s.ErrorIs(err, fault.ErrInvalidTransition)
}

func (s *CustodySuite) TestMalformedInput() {
	_, err := s.svc.Intake(s.ctx, guard, service.IntakeInput{HumanID: "  ", Name: "N"})
	s.ErrorIs(err, fault.ErrMalformedInput)

	_, err = s.svc.Intake(s.ctx, guard, service.IntakeInput{HumanID: inmate1})
	s.ErrorIs(err, fault.ErrMalformedInput)

	_, err = s.svc.Intake(s.ctx, "", service.IntakeInput{HumanID: inmate1, Name: "N"})
	s.ErrorIs(err, fault.ErrMalformedInput)

	s.intake(inmate1)
	_, err = s.svc.OrderTransfer(s.ctx, admin, inmate1, " ", "")
	s.ErrorIs(err, fault.ErrMalformedInput)

	_, err = s.svc.View(s.ctx, "")
	s.ErrorIs(err, fault.ErrMalformedInput)

	_, _, err = s.engine.Apply(s.ctx, service.Request{Subject: digest.OfString(inmate1), Kind: ledger.Kind(99), Actor: admin})
	s.ErrorIs(err, fault.ErrMalformedInput)
	s.Equal(1, s.eventCount())
}

func (s *CustodySuite) TestViewAbsent() {
	view, err := s.svc.View(s.ctx, "nadie")
	s.Require().NoError(err)
	s.False(view.Exists)
	s.Nil(view.Record)
}

func (s *CustodySuite) TestViewTimeline() {
	s.intake(inmate1)
	_, err := s.svc.OrderTransfer(s.ctx, admin, inmate1, "Unidad B", "orden")
	s.Require().NoError(err)
	_, err = s.svc.Arrive(s.ctx, guard, inmate1, "Unidad B", "llegada")
	s.Require().NoError(err)

	view, err := s.svc.View(s.ctx, inmate1)
	s.Require().NoError(err)
	s.True(view.Exists)
	s.Require().Len(view.Timeline, 3)

	kinds := []ledger.Kind{ledger.KindIntake, ledger.KindOrderTransfer, ledger.KindArriveAtDestination}
	for i, ev := range view.Timeline {
		s.Equal(kinds[i], ev.Kind)
		s.Equal(view.Record.EventIDs[i], ev.ID)
		s.Equal(digest.OfString(ev.Description), ev.EventDigest)
	}
	s.Equal(ledger.StateEnTraslado, view.Timeline[1].ResultingState)
	s.NoError(ledger.VerifyRecord(view.Record, view.Timeline))
}

func (s *CustodySuite) TestClockTruncatedToMicroseconds() {
	at := time.Date(2024, 5, 2, 10, 0, 0, 123456789, time.FixedZone("ART", -3*3600))
	s.engine.SetClock(func() time.Time { return at })

	rec := s.intake(inmate1)
	s.Equal(time.UTC, rec.LastUpdated.Location())
	s.Equal(123456000, rec.LastUpdated.Nanosecond())
}

// TestFold drives a sequence of requests, valid and invalid, and checks that
// the resulting state is the fold of the transition table.
func (s *CustodySuite) TestFold() {
	type op struct {
		kind  ledger.Kind
		actor string
	}
	seq := []op{
		{ledger.KindIntake, guard},
		{ledger.KindArriveAtDestination, guard},
		{ledger.KindApplySanction, admin},
		{ledger.KindStartProgram, social},
		{ledger.KindOrderTransfer, admin},
		{ledger.KindArriveAtDestination, guard},
		{ledger.KindFulfillSanction, admin},
		{ledger.KindStartProgram, social},
		{ledger.KindMedicalReport, medic},
		{ledger.KindOrderTransfer, admin},
		{ledger.KindRelease, judge},
		{ledger.KindArriveAtDestination, guard},
		{ledger.KindStartProgram, social},
		{ledger.KindRelease, judge},
		{ledger.KindEndProgram, social},
	}

	subject := digest.OfString(inmate1)
	want := ledger.StateNone
	events := 0
	for _, o := range seq {
		next, ok := service.Next(want, o.kind)
		rec, _, err := s.engine.Apply(s.ctx, service.Request{
			Subject: subject, Kind: o.kind, Actor: o.actor,
			Name: "N", Location: "L", Description: o.kind.String(),
		})
		if ok {
			s.Require().NoError(err, o.kind.String())
			s.Equal(next, rec.State, o.kind.String())
			want = next
			events++
		} else {
			s.Require().Error(err, o.kind.String())
		}

		view, err := s.engine.View(s.ctx, subject)
		s.Require().NoError(err)
		s.Equal(want, view.Record.State)
		s.Len(view.Record.EventIDs, events)
	}
	s.Equal(ledger.StateLiberado, want)
}

// TestConcurrentSameSubject verifies that concurrent writers for one record
// are serialized: exactly one of the competing sanctions wins.
func (s *CustodySuite) TestConcurrentSameSubject() {
	s.intake(inmate1)

	const n = 20
	var wg sync.WaitGroup
	var ok, invalid atomic.Int32
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.svc.ApplySanction(s.ctx, admin, inmate1, "pelea")
			switch {
			case err == nil:
				ok.Add(1)
			case fault.CodeOf(err) == fault.InvalidTransition:
				invalid.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), ok.Load())
	s.Equal(int32(n-1), invalid.Load())
	s.Equal(2, s.eventCount())
}

func (s *CustodySuite) TestConcurrentDistinctSubjects() {
	const n = 30
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := "interno-" + string(rune('A'+i))
			_, err := s.svc.Intake(s.ctx, guard, service.IntakeInput{HumanID: id, Name: "N"})
			s.NoError(err)
			_, err = s.svc.MedicalReport(s.ctx, medic, id, "control")
			s.NoError(err)
		}(i)
	}
	wg.Wait()

	report, err := ledger.Verify(s.ctx, s.store)
	s.Require().NoError(err)
	s.Equal(n, report.Records)
	s.Equal(2*n, report.Events)
}

func (s *CustodySuite) TestCancelledBeforeCommit() {
	s.intake(inmate1)

	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	_, err := s.svc.ApplySanction(ctx, admin, inmate1, "x")
	s.Require().ErrorIs(err, context.Canceled)
	s.Equal(1, s.eventCount())
}
