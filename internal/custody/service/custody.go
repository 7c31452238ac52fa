package service

import (
	"context"
	"strings"

	"github.com/fedegimenez/inmate-state-ledger/internal/digest"
	"github.com/fedegimenez/inmate-state-ledger/internal/fault"
	"github.com/fedegimenez/inmate-state-ledger/internal/ledger"
)

// IntakeInput holds the fields of a new custody record.
type IntakeInput struct {
	HumanID     string
	Name        string
	Location    string
	Description string
}

// Service exposes the custody operations in terms of human-readable
// identifiers. Identifiers are digested before any lookup and never stored.
type Service struct {
	engine *Engine
}

// NewService creates a Service backed by engine.
func NewService(engine *Engine) *Service {
	return &Service{engine: engine}
}

// SubjectOf derives the record key for a human-readable identifier.
// Surrounding whitespace is not significant.
func SubjectOf(humanID string) (digest.Digest, error) {
	id := strings.TrimSpace(humanID)
	if id == "" {
		return digest.Zero, fault.Malformed("human id is required")
	}
	return digest.OfString(id), nil
}

// Intake creates the record for in.HumanID in state INGRESADO.
func (s *Service) Intake(ctx context.Context, actor string, in IntakeInput) (*ledger.Record, error) {
	subject, err := SubjectOf(in.HumanID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, fault.Malformed("name is required")
	}
	return s.apply(ctx, Request{
		Subject:     subject,
		Kind:        ledger.KindIntake,
		Actor:       actor,
		Name:        strings.TrimSpace(in.Name),
		Location:    in.Location,
		Description: in.Description,
	})
}

// OrderTransfer moves the record to EN_TRASLADO towards destination.
func (s *Service) OrderTransfer(ctx context.Context, actor, humanID, destination, description string) (*ledger.Record, error) {
	if strings.TrimSpace(destination) == "" {
		return nil, fault.Malformed("destination is required")
	}
	return s.located(ctx, ledger.KindOrderTransfer, actor, humanID, destination, description)
}

// Arrive completes a transfer at location.
func (s *Service) Arrive(ctx context.Context, actor, humanID, location, description string) (*ledger.Record, error) {
	if strings.TrimSpace(location) == "" {
		return nil, fault.Malformed("location is required")
	}
	return s.located(ctx, ledger.KindArriveAtDestination, actor, humanID, location, description)
}

// ApplySanction places the record under sanction for reason.
func (s *Service) ApplySanction(ctx context.Context, actor, humanID, reason string) (*ledger.Record, error) {
	return s.simple(ctx, ledger.KindApplySanction, actor, humanID, reason)
}

// FulfillSanction closes the current sanction.
func (s *Service) FulfillSanction(ctx context.Context, actor, humanID, detail string) (*ledger.Record, error) {
	return s.simple(ctx, ledger.KindFulfillSanction, actor, humanID, detail)
}

// StartProgram enrolls the record in a rehabilitation program.
func (s *Service) StartProgram(ctx context.Context, actor, humanID, programName string) (*ledger.Record, error) {
	return s.simple(ctx, ledger.KindStartProgram, actor, humanID, programName)
}

// EndProgram closes the current program with outcome.
func (s *Service) EndProgram(ctx context.Context, actor, humanID, outcome string) (*ledger.Record, error) {
	return s.simple(ctx, ledger.KindEndProgram, actor, humanID, outcome)
}

// Release sets the record to LIBERADO under ruling.
func (s *Service) Release(ctx context.Context, actor, humanID, ruling string) (*ledger.Record, error) {
	return s.simple(ctx, ledger.KindRelease, actor, humanID, ruling)
}

// MedicalReport appends a medical report without changing state.
func (s *Service) MedicalReport(ctx context.Context, actor, humanID, report string) (*ledger.Record, error) {
	return s.simple(ctx, ledger.KindMedicalReport, actor, humanID, report)
}

// View returns the record for humanID and its timeline.
func (s *Service) View(ctx context.Context, humanID string) (*ledger.View, error) {
	subject, err := SubjectOf(humanID)
	if err != nil {
		return nil, err
	}
	return s.engine.View(ctx, subject)
}

func (s *Service) located(ctx context.Context, kind ledger.Kind, actor, humanID, location, description string) (*ledger.Record, error) {
	subject, err := SubjectOf(humanID)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, Request{
		Subject:     subject,
		Kind:        kind,
		Actor:       actor,
		Location:    strings.TrimSpace(location),
		Description: description,
	})
}

func (s *Service) simple(ctx context.Context, kind ledger.Kind, actor, humanID, text string) (*ledger.Record, error) {
	subject, err := SubjectOf(humanID)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, Request{Subject: subject, Kind: kind, Actor: actor, Description: text})
}

func (s *Service) apply(ctx context.Context, req Request) (*ledger.Record, error) {
	rec, _, err := s.engine.Apply(ctx, req)
	return rec, err
}
