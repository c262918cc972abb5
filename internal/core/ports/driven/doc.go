// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - ManifestReader: Locates and parses typst.toml
//   - QuerySource: Produces the queries declared by a document
//   - Handler: Resolves queries of one kind (fetch, shell)
//   - JobFactory: Turns a configured job into a handler and query plan
//   - ResultStore: Loads and persists a job's ResultSet
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - HistoryStore: Records runs for later inspection. Without it, no history is kept.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driven
