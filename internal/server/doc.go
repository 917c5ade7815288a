// Package server hosts the channel directory API behind one HTTP server.
//
// The server builds a consistent middleware chain of request ids, logging,
// metrics, security headers, CORS, and rate limiting so handlers all share
// common protections and instrumentation. Mutation traffic is additionally
// limited per client, with counters kept in Redis when replicas need one
// shared window.
package server
