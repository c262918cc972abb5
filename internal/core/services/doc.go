// Package services implements the driving port interfaces.
// Services contain the core preprocessing logic and orchestrate
// calls to driven ports (adapters).
//
// A Pipeline runs one job: it reads the declared queries, hands them to
// a Resolver and writes the resulting ResultSet. The Preprocessor builds
// one pipeline per configured job.
package services
