// Package integration reconciles decoded analyzer messages against pending
// specimens and writes the reported values back through the specimen
// repository.
package integration

import (
	"context"
	"errors"

	"github.com/labwire/go-lis/internal/domain/specimen"
	"github.com/labwire/go-lis/internal/protocol"
)

// Match error taxonomy. These are recoverable domain mismatches: the
// orchestrator maps them to descriptive status strings and the transport
// layer never sees them as failures.
var (
	ErrMissingOrderSegment   = errors.New("no order segment decoded")
	ErrMissingSampleOrValues = errors.New("sample id or result values missing")
	ErrSampleNotFound        = errors.New("no matching received specimen")
)

// MatchedSample is the outcome of resolving a decoded message against
// pending specimens: the write set per specimen plus the resolved sample id.
type MatchedSample struct {
	SampleID string
	Sets     []specimen.ResultSet
}

// Match resolves the specimen id carried in parsed against received
// specimens and pairs each reported analyte with the awaiting parameter of
// the same code.
//
// A result whose extracted code matches no configured parameter is skipped
// silently: instruments routinely report analytes the report template does
// not track. Parameter code comparison is literal and case-sensitive.
func Match(ctx context.Context, parsed *protocol.ParsedMessage, p protocol.Protocol, repo specimen.Repository) (*MatchedSample, error) {
	if !parsed.HasOrder() {
		return nil, ErrMissingOrderSegment
	}

	sampleID := parsed.SampleID(p)
	if sampleID == "" || len(parsed.Results) == 0 {
		return nil, ErrMissingSampleOrValues
	}

	specimens, err := repo.FindReceivedByAccession(ctx, sampleID)
	if err != nil {
		return nil, err
	}
	if len(specimens) == 0 {
		return &MatchedSample{SampleID: sampleID}, ErrSampleNotFound
	}

	matched := &MatchedSample{SampleID: sampleID}
	for _, spec := range specimens {
		params, err := repo.TestParameters(ctx, spec.ID)
		if err != nil {
			return nil, err
		}

		set := specimen.ResultSet{SpecimenID: spec.ID, SampleID: sampleID}
		for _, result := range parsed.Results {
			code := protocol.ExtractCode(result.ObservationID, p)
			for _, param := range params {
				if param.Code != code {
					continue
				}
				set.Writes = append(set.Writes, specimen.ParameterWrite{
					ParameterID: param.ID,
					Code:        param.Code,
					Value:       result.Value,
					Precision:   param.Precision,
				})
			}
		}
		matched.Sets = append(matched.Sets, set)
	}

	return matched, nil
}
