package service

import (
	"context"
	"fmt"
	"strings"

	"cylinder-recon/internal/cache"
	"cylinder-recon/internal/domain"
	"cylinder-recon/internal/repository"
	"cylinder-recon/internal/scan"
	"cylinder-recon/internal/verification"
	"cylinder-recon/pkg/logger"
)

// ListFilter narrows a record listing. Zero values mean no filtering.
type ListFilter struct {
	Kind   domain.ImportKind
	Status domain.VerificationStatus
	Search string
}

type VerificationService interface {
	ListRecords(ctx context.Context, orgID string, filter ListFilter) ([]domain.VerificationRecord, error)
	GetStats(ctx context.Context, orgID string) (*domain.VerificationStats, error)
	GetRecord(ctx context.Context, orgID, recordID string) (*domain.VerificationRecord, *domain.ImportDocument, error)
}

type verificationService struct {
	scans      repository.ScanRepository
	imports    repository.ImportRepository
	assets     *cache.AssetCache
	classifier *verification.Classifier
}

func NewVerificationService(
	scans repository.ScanRepository,
	imports repository.ImportRepository,
	assets *cache.AssetCache,
) VerificationService {
	return &verificationService{
		scans:      scans,
		imports:    imports,
		assets:     assets,
		classifier: verification.NewClassifier(),
	}
}

// ListRecords rebuilds the record list from scratch: fetch both scan tables
// and both import tables, merge, split, reconcile quantities, classify.
// Nothing here is persisted; the listing is a pure function of the stored
// scans and documents.
func (s *verificationService) ListRecords(ctx context.Context, orgID string, filter ListFilter) ([]domain.VerificationRecord, error) {
	results, err := s.build(ctx, orgID)
	if err != nil {
		return nil, err
	}

	var records []domain.VerificationRecord
	for _, result := range results {
		if !matchesFilter(result, filter) {
			continue
		}
		records = append(records, result.Record)
	}
	return records, nil
}

func (s *verificationService) GetStats(ctx context.Context, orgID string) (*domain.VerificationStats, error) {
	results, err := s.build(ctx, orgID)
	if err != nil {
		return nil, err
	}

	stats := &domain.VerificationStats{Total: len(results)}
	for _, result := range results {
		switch result.Record.Status {
		case domain.StatusPending:
			stats.Pending++
		case domain.StatusVerified:
			stats.Verified++
		case domain.StatusException:
			stats.Exceptions++
		case domain.StatusInvestigation:
			stats.Investigating++
		case domain.StatusInProgress:
			stats.Processing++
		case domain.StatusScannedOnly:
			stats.ScannedOnly++
		case domain.StatusRejected:
			stats.Rejected++
		}
	}
	return stats, nil
}

// GetRecord locates one record by its derived ID. Record identity is
// structural, so lookup means rebuilding the listing and searching it.
func (s *verificationService) GetRecord(ctx context.Context, orgID, recordID string) (*domain.VerificationRecord, *domain.ImportDocument, error) {
	results, err := s.build(ctx, orgID)
	if err != nil {
		return nil, nil, err
	}
	for _, result := range results {
		if result.Record.ID == recordID {
			record := result.Record
			return &record, result.Document, nil
		}
	}
	return nil, nil, fmt.Errorf("record not found: %s", recordID)
}

func (s *verificationService) build(ctx context.Context, orgID string) ([]verification.SplitResult, error) {
	invoices, err := s.imports.ListByStatus(ctx, orgID, domain.KindInvoice, "")
	if err != nil {
		return nil, fmt.Errorf("load invoices: %w", err)
	}
	receipts, err := s.imports.ListByStatus(ctx, orgID, domain.KindReceipt, "")
	if err != nil {
		return nil, fmt.Errorf("load receipts: %w", err)
	}
	warehouse, err := s.scans.ListBySource(ctx, orgID, domain.SourceWarehouse)
	if err != nil {
		return nil, fmt.Errorf("load warehouse scans: %w", err)
	}
	mobile, err := s.scans.ListBySource(ctx, orgID, domain.SourceMobile)
	if err != nil {
		return nil, fmt.Errorf("load mobile scans: %w", err)
	}
	importedOrders, err := s.imports.ListOrderNumbers(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("load imported orders: %w", err)
	}
	approvedOrders, err := s.imports.ListApprovedOrderNumbers(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("load approved orders: %w", err)
	}

	merged := scan.Merge(warehouse, mobile)

	results := verification.BuildRecords(verification.BuildInput{
		Documents:      append(invoices, receipts...),
		Scans:          merged,
		ImportedOrders: importedOrders,
		ApprovedOrders: approvedOrders,
	})

	resolver, err := s.assets.Resolver(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("load asset resolver: %w", err)
	}
	reconciler := verification.NewReconciler(resolver)

	for i := range results {
		record := &results[i].Record
		status := s.classifier.Classify(*record, results[i].Document)
		reconciler.Reconcile(record, status == domain.StatusVerified)
		record.Status = status
	}

	logger.GetLogger().WithFields(map[string]interface{}{
		"organization_id": orgID,
		"records":         len(results),
	}).Debug("Rebuilt verification records")

	return results, nil
}

func matchesFilter(result verification.SplitResult, filter ListFilter) bool {
	record := result.Record
	if filter.Kind != "" && record.Kind != filter.Kind {
		return false
	}
	if filter.Status != "" && record.Status != filter.Status {
		return false
	}
	if filter.Search != "" {
		needle := strings.ToLower(filter.Search)
		if !strings.Contains(strings.ToLower(record.OrderNumber), needle) &&
			!strings.Contains(strings.ToLower(record.CustomerName), needle) {
			return false
		}
	}
	return true
}
