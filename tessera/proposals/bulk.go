// Copyright (C) 2026 Tessera Labs, Inc.
// See LICENSE for copying information.

package proposals

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tessera.io/tessera/tessera/registry"
)

// BulkAckItem is one acknowledgment of a bulk submission.
type BulkAckItem struct {
	ProposalID        uuid.UUID            `json:"proposal_id"`
	ConsumerTeamID    uuid.UUID            `json:"consumer_team_id"`
	Response          registry.AckResponse `json:"response"`
	MigrationDeadline *time.Time           `json:"migration_deadline,omitempty"`
	Notes             string               `json:"notes,omitempty"`
}

// BulkAckRequest acknowledges many proposals at once, typically from a
// platform team sweeping its backlog.
type BulkAckRequest struct {
	Items           []BulkAckItem `json:"items"`
	ContinueOnError bool          `json:"continue_on_error,omitempty"`
	ActorID         *uuid.UUID    `json:"-"`
}

// BulkAckItemResult is one per-item outcome.
type BulkAckItemResult struct {
	ProposalID     uuid.UUID `json:"proposal_id"`
	ConsumerTeamID uuid.UUID `json:"consumer_team_id"`
	Succeeded      bool      `json:"succeeded"`
	ProposalStatus string    `json:"proposal_status,omitempty"`
	Error          string    `json:"error,omitempty"`
}

// BulkAckResult aggregates a bulk acknowledgment.
type BulkAckResult struct {
	Total     int                 `json:"total"`
	Succeeded int                 `json:"succeeded"`
	Failed    int                 `json:"failed"`
	Results   []BulkAckItemResult `json:"results"`
}

// BulkAcknowledge processes the items in order, each in its own
// transaction so an approval triggered mid-batch commits immediately.
// Without continue_on_error the first failure stops the batch; items
// already processed stay committed either way.
func (s *Service) BulkAcknowledge(ctx context.Context, req BulkAckRequest) (result *BulkAckResult, err error) {
	defer mon.Task()(&ctx)(&err)
	if len(req.Items) == 0 {
		return nil, registry.ErrValidation.New("bulk acknowledge requires at least one item")
	}
	result = &BulkAckResult{Total: len(req.Items)}
	for _, item := range req.Items {
		out := BulkAckItemResult{ProposalID: item.ProposalID, ConsumerTeamID: item.ConsumerTeamID}
		ack, ackErr := s.Acknowledge(ctx, item.ProposalID, AckRequest{
			ConsumerTeamID:    item.ConsumerTeamID,
			Response:          item.Response,
			MigrationDeadline: item.MigrationDeadline,
			Notes:             item.Notes,
			ActorID:           req.ActorID,
		})
		if ackErr != nil {
			out.Error = ackErr.Error()
			result.Failed++
			result.Results = append(result.Results, out)
			if !req.ContinueOnError {
				s.log.Warn("bulk acknowledge aborted",
					zap.Stringer("proposal_id", item.ProposalID), zap.Error(ackErr))
				return result, ackErr
			}
			continue
		}
		out.Succeeded = true
		out.ProposalStatus = string(ack.ProposalStatus)
		result.Succeeded++
		result.Results = append(result.Results, out)
	}
	return result, nil
}
