package protocol

import (
	"context"

	"github.com/vigia-health/platform/internal/followup/domain"
	"github.com/vigia-health/platform/internal/shared/types"
)

// contactClinicGuidance is what a patient hears when their clinician has
// protocols for the surgery type but none covering the current day
const contactClinicGuidance = "For guidance on today's recovery questions, please contact your clinic directly."

// Query identifies whose guidance is being resolved and for which day
type Query struct {
	Clinician     *domain.Clinician
	SurgeryType   domain.SurgeryType
	Day           int
	ResearchID    *types.ID
	ResearchGroup string
}

// Lookup is the storage-level filter derived from a Query
type Lookup struct {
	ClinicianID   types.ID
	SurgeryType   domain.SurgeryType
	Day           int
	ResearchID    *types.ID
	ResearchGroup string
}

// Store retrieves protocols. Implementations must return rows ordered by
// priority descending, then category.
type Store interface {
	// FindMatching returns active protocols owned by the clinician (and
	// research study, when ResearchID is set) whose day range covers Day.
	// ResearchGroup narrows to that study arm; empty matches only
	// protocols without a group tag.
	FindMatching(ctx context.Context, l Lookup) ([]Protocol, error)

	// CountForSurgeryType counts the clinician's own active non-research
	// protocols for a surgery type across all days.
	CountForSurgeryType(ctx context.Context, clinicianID types.ID, surgeryType domain.SurgeryType) (int, error)

	// FindDefault returns active system-default protocols (no clinician,
	// no research) covering the day.
	FindDefault(ctx context.Context, surgeryType domain.SurgeryType, day int) ([]Protocol, error)
}

// Resolver walks an ordered strategy chain until one produces a resolution.
// The chain always terminates: the last strategy matches unconditionally.
type Resolver struct {
	store      Store
	strategies []strategy
}

type strategy func(ctx context.Context, store Store, q Query) (*Resolution, error)

func NewResolver(store Store) *Resolver {
	return &Resolver{
		store: store,
		strategies: []strategy{
			resolveResearchGroup,
			resolveResearchStudy,
			resolveResearchSentinel,
			resolveClinicianDay,
			resolveContactClinic,
			resolveSystemDefault,
			resolveCollectionOnly,
		},
	}
}

// Resolve returns the guidance permitted for the query. It never returns a
// nil resolution on success.
func (r *Resolver) Resolve(ctx context.Context, q Query) (*Resolution, error) {
	for _, s := range r.strategies {
		res, err := s(ctx, r.store, q)
		if err != nil {
			return nil, err
		}
		if res != nil {
			return res, nil
		}
	}
	// unreachable: resolveCollectionOnly always matches
	return &Resolution{Mode: ModeCollectionOnly}, nil
}

// resolveResearchGroup matches a protocol tagged with the patient's study
// arm. Study wording is strict.
func resolveResearchGroup(ctx context.Context, store Store, q Query) (*Resolution, error) {
	if q.ResearchID == nil || q.ResearchGroup == "" {
		return nil, nil
	}

	protocols, err := store.FindMatching(ctx, Lookup{
		ClinicianID:   q.Clinician.ID,
		SurgeryType:   q.SurgeryType,
		Day:           q.Day,
		ResearchID:    q.ResearchID,
		ResearchGroup: q.ResearchGroup,
	})
	if err != nil {
		return nil, err
	}
	if len(protocols) == 0 {
		return nil, nil
	}
	return strictResolution(&protocols[0]), nil
}

// resolveResearchStudy matches a study-wide protocol without a group tag
func resolveResearchStudy(ctx context.Context, store Store, q Query) (*Resolution, error) {
	if q.ResearchID == nil {
		return nil, nil
	}

	protocols, err := store.FindMatching(ctx, Lookup{
		ClinicianID: q.Clinician.ID,
		SurgeryType: q.SurgeryType,
		Day:         q.Day,
		ResearchID:  q.ResearchID,
	})
	if err != nil {
		return nil, err
	}
	if len(protocols) == 0 {
		return nil, nil
	}
	return strictResolution(&protocols[0]), nil
}

// resolveResearchSentinel terminates every research query that found no
// study protocol: data is still collected, nothing is advised.
func resolveResearchSentinel(_ context.Context, _ Store, q Query) (*Resolution, error) {
	if q.ResearchID == nil {
		return nil, nil
	}
	return &Resolution{Mode: ModeCollectionOnly}, nil
}

// resolveClinicianDay matches the clinician's own protocol covering the day
func resolveClinicianDay(ctx context.Context, store Store, q Query) (*Resolution, error) {
	protocols, err := store.FindMatching(ctx, Lookup{
		ClinicianID: q.Clinician.ID,
		SurgeryType: q.SurgeryType,
		Day:         q.Day,
	})
	if err != nil {
		return nil, err
	}
	if len(protocols) == 0 {
		return nil, nil
	}
	p := &protocols[0]
	return &Resolution{Mode: ModeStandard, Protocol: p, Guidance: p.Content}, nil
}

// resolveContactClinic fires when the clinician has protocols for this
// surgery type but none covering this day
func resolveContactClinic(ctx context.Context, store Store, q Query) (*Resolution, error) {
	count, err := store.CountForSurgeryType(ctx, q.Clinician.ID, q.SurgeryType)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	return &Resolution{Mode: ModeContactClinic, Guidance: contactClinicGuidance}, nil
}

// resolveSystemDefault falls back to the shared default protocol, but only
// for clinicians who opted into it
func resolveSystemDefault(ctx context.Context, store Store, q Query) (*Resolution, error) {
	if !q.Clinician.UsesDefaultProtocol {
		return nil, nil
	}

	protocols, err := store.FindDefault(ctx, q.SurgeryType, q.Day)
	if err != nil {
		return nil, err
	}
	if len(protocols) == 0 {
		return nil, nil
	}
	p := &protocols[0]
	return &Resolution{Mode: ModeStandard, Protocol: p, Guidance: p.Content}, nil
}

func resolveCollectionOnly(_ context.Context, _ Store, _ Query) (*Resolution, error) {
	return &Resolution{Mode: ModeCollectionOnly}, nil
}

func strictResolution(p *Protocol) *Resolution {
	return &Resolution{Mode: ModeStrict, Protocol: p, Guidance: p.Content}
}
