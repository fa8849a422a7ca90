// Package model defines domain entities and data structures for the Qola API.
//
// The model package contains the account profile document, the per-address
// quota counter, request/response types for registration and the RFC 9457
// error representation. Models are used across all layers of the application.
//
// # Domain Entities
//
//   - Account: profile document keyed by the identity handle
//   - QuotaCounter: number of accounts created from one source address
//
// # Error Types
//
// RFC 9457 Problem Details errors are defined in errors.go:
//
//	type ProblemDetails struct {
//	    Type    string    `json:"type"`
//	    Title   string    `json:"title"`
//	    Status  int       `json:"status"`
//	    Detail  string    `json:"detail"`
//	}
package model
