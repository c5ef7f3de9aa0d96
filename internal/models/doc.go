// Package models defines persistent entities and the generic repository contract.
//
// [Generation] is the only persisted entity: one row per playlist generation run,
// tracking the created playlist, track count and outcome ([GenerationStatus]).
//
// All persistent entities implement [Model], providing ID, timestamps and validation.
// The [Repository] interface defines standard CRUD operations for database access.
package models
