// Package service implements account registration for the Qola API.
//
// Registration spans two stores that cannot share a transaction: the
// identity store owns email and password, the document store owns the
// username index, the profile document and per-address quota counters.
// RegistrationService runs it as a saga:
//
//	Validating -> EmailChecking -> IdentityCreating -> TxCommitting
//	    -> Succeeded
//	    -> Compensating -> Failed
//
// Any failure before TxCommitting ends in Failed with no side effects.
// A failed document transaction deletes the identity created in
// IdentityCreating; if that delete fails the handle is queued for the
// compensation retrier in package jobs.
//
// # Error Handling
//
// Every error returned by Register is an *Error carrying a closed Kind.
// Sentinels compare by kind:
//
//	if errors.Is(err, service.ErrUsernameAlreadyExists) { ... }
//
// # Example Usage
//
//	svc := service.NewRegistrationService(service.RegistrationServiceConfig{
//	    Identity: identityStore,
//	    Store:    documentStore,
//	    Accounts: repository.NewAccountRepository(documentStore),
//	    Quota:    service.NewQuotaTracker(repository.NewQuotaRepository(documentStore), 3),
//	})
//	result, err := svc.Register(ctx, service.RegisterRequest{
//	    Username: "Alice_01",
//	    Email:    "alice@example.com",
//	    Password: "hunter22",
//	})
package service
