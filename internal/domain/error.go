package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrOperationFailed    = errors.New("operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid execution context")

	// Pricing errors
	ErrProductNotFound = errors.New("product not found or inactive")
	ErrInvalidPrice    = errors.New("product price is not a positive amount")
	ErrNoExchangeRate  = errors.New("no active exchange rate for currency pair")

	// Payment lifecycle errors
	ErrOrderCreateFailed = errors.New("provider order creation failed")
	ErrTerminalStatus    = errors.New("payment already in terminal status")
	ErrUnknownOrder      = errors.New("no payment record for provider order id")
	ErrUndecodableIntent = errors.New("purchase intent identifiers are undecodable")
	ErrLockNotAcquired   = errors.New("could not acquire reconcile lock")
	ErrCaptureIncomplete = errors.New("provider capture did not complete")
)
