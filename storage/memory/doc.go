// Package memory keeps accounts and company links in process memory.
//
// It backs local development servers started without a database URL and
// the load generator. Data is lost on restart.
package memory
