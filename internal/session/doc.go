// Package session runs download sessions: a sequence of document retrievals whose outcomes are
// recorded one key at a time.
//
// Sessions come from a key list ([Processor]) or from a portal period search ([PeriodSearch]).
// Both share the same per-key loop and persistence contract:
//
//   - preconditions (key source, bearer credential, certificate) are checked before any network call;
//     a failed precondition ends the session as failed with no records
//   - keys are processed strictly in order by a single worker
//   - every key produces exactly one record, and the session counters are persisted after every key
//   - a failure on one key never stops the session
//
// Persistence is delegated to a [Store] (see internal/database for the Postgres implementation and
// [MemoryStore] for the in-process one) and downloaded XML to a [BlobStore] (internal/blob).
package session
