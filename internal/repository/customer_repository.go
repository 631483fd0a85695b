package repository

import (
	"context"
	"database/sql"
	"strings"

	"cylinder-recon/internal/domain"
	"cylinder-recon/pkg/logger"
)

// CustomerRepository resolves customer identity for custody assignment
type CustomerRepository interface {
	Resolve(ctx context.Context, orgID, customerID, customerName string) (*domain.Customer, error)
}

type customerRepository struct {
	db *sql.DB
}

func NewCustomerRepository(db *sql.DB) CustomerRepository {
	return &customerRepository{db: db}
}

// Resolve finds the customer-list identity: the stable customer ID wins, then
// a case-insensitive name match. Returns nil when neither matches, which the
// approval engine treats as shipping to an unknown customer.
func (r *customerRepository) Resolve(ctx context.Context, orgID, customerID, customerName string) (*domain.Customer, error) {
	if customerID != "" {
		customer, err := r.byID(ctx, orgID, customerID)
		if err != nil {
			return nil, err
		}
		if customer != nil {
			return customer, nil
		}
	}
	if name := strings.TrimSpace(customerName); name != "" {
		return r.byName(ctx, orgID, name)
	}
	return nil, nil
}

func (r *customerRepository) byID(ctx context.Context, orgID, customerID string) (*domain.Customer, error) {
	var customer domain.Customer
	err := r.db.QueryRowContext(ctx, `
		SELECT customer_list_id, name, organization_id
		FROM customers
		WHERE organization_id = $1 AND customer_list_id = $2
	`, orgID, customerID).Scan(&customer.ID, &customer.Name, &customer.OrganizationID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		logger.GetLogger().WithError(err).WithField("customer_id", customerID).Error("Failed to resolve customer by id")
		return nil, err
	}
	return &customer, nil
}

func (r *customerRepository) byName(ctx context.Context, orgID, name string) (*domain.Customer, error) {
	var customer domain.Customer
	err := r.db.QueryRowContext(ctx, `
		SELECT customer_list_id, name, organization_id
		FROM customers
		WHERE organization_id = $1 AND name ILIKE $2
		ORDER BY name
		LIMIT 1
	`, orgID, name).Scan(&customer.ID, &customer.Name, &customer.OrganizationID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		logger.GetLogger().WithError(err).WithField("customer_name", name).Error("Failed to resolve customer by name")
		return nil, err
	}
	return &customer, nil
}
