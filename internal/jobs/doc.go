// Package jobs implements background job processing for the Qola API.
//
// Jobs run on a ticker independently of HTTP request handling. Each job
// exposes Start and Stop for the server lifecycle and RunOnce for tests and
// manual triggers.
//
// # Compensation Retrier
//
// Registration deletes the identity it created when the document transaction
// fails. If that delete itself fails, the handle is queued and the
// CompensationRetrier retries it:
//
//	retrier := jobs.NewCompensationRetrier(jobs.CompensationRetrierConfig{
//	    Queue:    queue,
//	    Identity: identityStore,
//	    Accounts: accountRepo,
//	    Interval: 30 * time.Second,
//	})
//	retrier.Start()
//	defer retrier.Stop()
//
// Entries whose account document exists are dropped without deleting. Failed
// attempts back off exponentially and are abandoned after MaxAttempts.
//
// # Error Handling
//
// Jobs log errors but don't crash the application.
package jobs
