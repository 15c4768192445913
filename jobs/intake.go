package jobs

import (
	"context"

	"docintake/common"
	"docintake/shared/kafka"
	"docintake/types"
)

// NewIntakeHandler submits upload events from Kafka. Undecodable and invalid
// payloads are marked and dropped; submission failures are left for redelivery.
func NewIntakeHandler(m *Manager, log *common.Logger) *kafka.TypedMessageHandler[types.JobRequest] {
	if log == nil {
		log = common.NopLogger()
	}
	log = log.With("component", "JobIntake")
	return &kafka.TypedMessageHandler[types.JobRequest]{
		Validate: func(req *types.JobRequest) bool {
			if err := ValidateRequest(*req); err != nil {
				log.Warn("Dropping invalid upload event", "owner_id", req.OwnerID, "error", err)
				return false
			}
			return true
		},
		Process: func(ctx context.Context, req *types.JobRequest) error {
			sub, err := m.Submit(ctx, *req)
			if err != nil {
				return err
			}
			log.Info("Upload event submitted", "job_id", sub.ID, "state", sub.State)
			return nil
		},
		AlwaysMark: true,
		Logger:     log,
	}
}
