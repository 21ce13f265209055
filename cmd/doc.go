// Package cmd defines the og-worker command line: run the worker, enqueue a
// single job, and manage the Postgres schema.
package cmd
