// Package og defines the domain of the Open Graph image worker: the queued
// job, the content records it enriches, the outcomes a job can end in, and
// the collaborator interfaces (record store, gatekeeper, fetcher,
// canonicalizer, queue, reporter) the worker composes.
//
// The Resolver in this package maps a job onto exactly one persisted record
// and applies the idempotency policy that decides whether a scrape is
// warranted at all.
package og
