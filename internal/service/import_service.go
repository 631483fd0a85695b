package service

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"

	"cylinder-recon/internal/approval"
	"cylinder-recon/internal/domain"
	"cylinder-recon/internal/parser"
	"cylinder-recon/internal/repository"
	"cylinder-recon/pkg/logger"
)

// ImportResult reports one upload: the stored document plus the auto-approval
// outcome of every record the document produced
type ImportResult struct {
	DocumentID   string             `json:"document_id"`
	RowCount     int                `json:"row_count"`
	Warnings     []string           `json:"warnings,omitempty"`
	AutoOutcomes []AutoOutcomeEntry `json:"auto_outcomes,omitempty"`
}

type AutoOutcomeEntry struct {
	RecordID string `json:"record_id"`
	Approved bool   `json:"approved"`
	Reason   string `json:"reason"`
}

type ImportService interface {
	UploadDocument(ctx context.Context, orgID string, kind domain.ImportKind, uploadedBy string, file io.Reader) (*ImportResult, error)
}

type importService struct {
	imports repository.ImportRepository
	records VerificationService
	policy  *approval.Policy
	parser  *parser.ImportCSVParser
}

func NewImportService(imports repository.ImportRepository, records VerificationService, policy *approval.Policy) ImportService {
	return &importService{
		imports: imports,
		records: records,
		policy:  policy,
		parser:  parser.NewImportCSVParser(),
	}
}

// UploadDocument parses a CSV export, persists it as a pending document, and
// runs the auto-approval gate once per derived record before any human sees
// it. Gate refusals are reported, never fatal.
func (s *importService) UploadDocument(ctx context.Context, orgID string, kind domain.ImportKind, uploadedBy string, file io.Reader) (*ImportResult, error) {
	rows, warnings, err := s.parser.Parse(file)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no parsable rows in upload")
	}

	doc := &domain.ImportDocument{
		ID:             uuid.New().String(),
		OrganizationID: orgID,
		Kind:           kind,
		Status:         domain.ImportPending,
		Rows:           rows,
		Warnings:       warnings,
		UploadedBy:     uploadedBy,
	}
	if err := s.imports.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("store import document: %w", err)
	}

	logger.GetLogger().WithFields(map[string]interface{}{
		"organization_id": orgID,
		"document_id":     doc.ID,
		"kind":            kind,
		"rows":            len(rows),
		"warnings":        len(warnings),
	}).Info("Import document stored")

	result := &ImportResult{DocumentID: doc.ID, RowCount: len(rows), Warnings: warnings}

	// Documents with parse warnings go to investigation; never auto-approve
	// over an incomplete row set
	if len(warnings) > 0 {
		return result, nil
	}

	records, err := s.records.ListRecords(ctx, orgID, ListFilter{})
	if err != nil {
		logger.GetLogger().WithError(err).Warn("Skipping auto-approval, record rebuild failed")
		return result, nil
	}

	for _, record := range records {
		if record.DocumentID != doc.ID {
			continue
		}
		fresh, freshDoc, err := s.records.GetRecord(ctx, orgID, record.ID)
		if err != nil {
			continue
		}
		outcome, err := s.policy.Evaluate(ctx, orgID, *fresh, freshDoc, "auto-approval")
		if err != nil {
			logger.GetLogger().WithError(err).WithField("record_id", record.ID).Warn("Auto-approval evaluation failed")
			continue
		}
		result.AutoOutcomes = append(result.AutoOutcomes, AutoOutcomeEntry{
			RecordID: record.ID,
			Approved: outcome.Approved,
			Reason:   outcome.Reason,
		})
	}

	return result, nil
}
