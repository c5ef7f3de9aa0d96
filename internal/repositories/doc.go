// Package repositories implements SQLite persistence for credentials and playlist generation history.
//
// Key Implementations:
//   - [CredentialRepository] : [CredentialStore] backed by the credentials table
//   - [MemoryCredentials] : process-local [CredentialStore], used by tests and dry runs
//   - [SealedCredentials] : decorator that encrypts values with a gocloud.dev secrets keeper
//   - [GenerationRepository] : generation history with soft deletes
//
// Sequence numbers provide stable, human-readable ordering of generation runs independent of UUIDs and timestamps.
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories
