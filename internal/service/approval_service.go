package service

import (
	"context"

	"cylinder-recon/internal/approval"
	"cylinder-recon/pkg/logger"
)

type ApprovalService interface {
	Approve(ctx context.Context, orgID, recordID, actor string) (*approval.Result, error)
	Reject(ctx context.Context, orgID, recordID, actor string) (*approval.Result, error)
	BulkApprove(ctx context.Context, orgID string, recordIDs []string, actor string) []BulkOutcome
	BulkReject(ctx context.Context, orgID string, recordIDs []string, actor string) []BulkOutcome
	AutoApprove(ctx context.Context, orgID, recordID, actor string) (*approval.Outcome, error)
}

// BulkOutcome is the per-record result of a bulk operation; bulk runs
// continue past individual failures
type BulkOutcome struct {
	RecordID string           `json:"record_id"`
	Result   *approval.Result `json:"result,omitempty"`
	Error    string           `json:"error,omitempty"`
}

type approvalService struct {
	records VerificationService
	engine  *approval.Engine
	policy  *approval.Policy
}

func NewApprovalService(records VerificationService, engine *approval.Engine, policy *approval.Policy) ApprovalService {
	return &approvalService{records: records, engine: engine, policy: policy}
}

func (s *approvalService) Approve(ctx context.Context, orgID, recordID, actor string) (*approval.Result, error) {
	record, doc, err := s.records.GetRecord(ctx, orgID, recordID)
	if err != nil {
		return nil, err
	}
	return s.engine.Approve(ctx, orgID, *record, doc, actor)
}

func (s *approvalService) Reject(ctx context.Context, orgID, recordID, actor string) (*approval.Result, error) {
	record, doc, err := s.records.GetRecord(ctx, orgID, recordID)
	if err != nil {
		return nil, err
	}
	return s.engine.Reject(ctx, orgID, *record, doc, actor)
}

func (s *approvalService) BulkApprove(ctx context.Context, orgID string, recordIDs []string, actor string) []BulkOutcome {
	return s.bulk(ctx, orgID, recordIDs, actor, s.Approve)
}

func (s *approvalService) BulkReject(ctx context.Context, orgID string, recordIDs []string, actor string) []BulkOutcome {
	return s.bulk(ctx, orgID, recordIDs, actor, s.Reject)
}

func (s *approvalService) bulk(
	ctx context.Context,
	orgID string,
	recordIDs []string,
	actor string,
	op func(context.Context, string, string, string) (*approval.Result, error),
) []BulkOutcome {
	outcomes := make([]BulkOutcome, 0, len(recordIDs))
	for _, recordID := range recordIDs {
		result, err := op(ctx, orgID, recordID, actor)
		outcome := BulkOutcome{RecordID: recordID, Result: result}
		if err != nil {
			outcome.Error = err.Error()
			logger.GetLogger().WithError(err).WithField("record_id", recordID).Error("Bulk operation failed for record")
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

// AutoApprove runs the auto-approval gate for one record; refusal is
// reported in the outcome, not as an error
func (s *approvalService) AutoApprove(ctx context.Context, orgID, recordID, actor string) (*approval.Outcome, error) {
	record, doc, err := s.records.GetRecord(ctx, orgID, recordID)
	if err != nil {
		return nil, err
	}
	return s.policy.Evaluate(ctx, orgID, *record, doc, actor)
}
