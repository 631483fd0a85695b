package service

import (
	"context"
	"fmt"

	"cylinder-recon/internal/repository"
	"cylinder-recon/pkg/logger"
)

type MaintenanceService interface {
	RestoreRejectedScans(ctx context.Context, orgID, orderNumber string) (int64, error)
	ReassignOrderNumber(ctx context.Context, orgID, oldOrder, newOrder, customerPattern string) (int64, error)
}

type maintenanceService struct {
	scans repository.ScanRepository
}

func NewMaintenanceService(scans repository.ScanRepository) MaintenanceService {
	return &maintenanceService{scans: scans}
}

// RestoreRejectedScans sets an order's rejected scans back to pending.
// Warehouse rows deleted during rejection stay gone; the restored record is
// rebuilt from the surviving mobile rows.
func (s *maintenanceService) RestoreRejectedScans(ctx context.Context, orgID, orderNumber string) (int64, error) {
	if orderNumber == "" {
		return 0, fmt.Errorf("order number is required")
	}
	restored, err := s.scans.RestoreRejected(ctx, orgID, orderNumber)
	if err != nil {
		return 0, err
	}
	logger.GetLogger().WithFields(map[string]interface{}{
		"organization_id": orgID,
		"order_number":    orderNumber,
		"restored":        restored,
	}).Info("Restored rejected scans")
	return restored, nil
}

func (s *maintenanceService) ReassignOrderNumber(ctx context.Context, orgID, oldOrder, newOrder, customerPattern string) (int64, error) {
	if oldOrder == "" || newOrder == "" {
		return 0, fmt.Errorf("both old and new order numbers are required")
	}
	if oldOrder == newOrder {
		return 0, fmt.Errorf("old and new order numbers are identical")
	}
	moved, err := s.scans.ReassignOrderNumber(ctx, orgID, oldOrder, newOrder, customerPattern)
	if err != nil {
		return 0, err
	}
	logger.GetLogger().WithFields(map[string]interface{}{
		"organization_id": orgID,
		"old_order":       oldOrder,
		"new_order":       newOrder,
		"moved":           moved,
	}).Info("Reassigned scan order number")
	return moved, nil
}
