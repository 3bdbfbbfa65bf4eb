package service

import (
	"context"
	"errors"
	"fmt"

	"optical-pos/internal/models"
	"optical-pos/internal/store"
	"optical-pos/internal/util"
)

// CustomerDirectory reads customers and their prescriptions
type CustomerDirectory struct {
	repo store.Repository
}

// NewCustomerDirectory creates a new customer directory
func NewCustomerDirectory(repo store.Repository) *CustomerDirectory {
	return &CustomerDirectory{repo: repo}
}

func (d *CustomerDirectory) ListCustomers(ctx context.Context) ([]models.Customer, error) {
	ctx, span := util.StartSpan(ctx, "CustomerDirectory.ListCustomers")
	defer span.End()

	return d.repo.GetCustomers(ctx)
}

func (d *CustomerDirectory) GetCustomer(ctx context.Context, customerID string) (*models.Customer, error) {
	ctx, span := util.StartSpan(ctx, "CustomerDirectory.GetCustomer")
	defer span.End()

	c, err := d.repo.GetCustomerByID(ctx, customerID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrCustomerNotFound, customerID)
	}
	return c, err
}

// ListPrescriptions returns a customer's prescriptions, most recent first
func (d *CustomerDirectory) ListPrescriptions(ctx context.Context, customerID string) ([]models.Prescription, error) {
	ctx, span := util.StartSpan(ctx, "CustomerDirectory.ListPrescriptions")
	defer span.End()

	if _, err := d.GetCustomer(ctx, customerID); err != nil {
		return nil, err
	}
	return d.repo.GetPrescriptionsByCustomerID(ctx, customerID)
}
