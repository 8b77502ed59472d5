// Package domain holds the core types shared by every protocol layer:
// the session (identity, key material, nonces, transcripts), the channel
// (a short-lived correlation handle), and the closed set of error kinds
// the engine can fail with.
//
// Nothing here talks to a socket. The handshake fills a *Session's
// exported fields and sets its keys through SetServerKeys, which refuses
// a second call; the per-direction nonces live in SendState and
// RecvState, whose methods advance them by exactly one per packet
// (spec.md §3 invariants).
package domain
