package service

import "errors"

var (
	ErrProductNotFound  = errors.New("product not found")
	ErrCustomerNotFound = errors.New("customer not found")
	ErrSessionNotFound  = errors.New("checkout session not found")
	ErrInvalidStock     = errors.New("stock quantity must not be negative")
	ErrInvalidSale      = errors.New("invalid sale record")
)
