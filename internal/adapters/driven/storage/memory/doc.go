// Package memory provides in-memory implementations of driven port interfaces.
//
// These stores keep data for the lifetime of the process only. They are used
// for jobs that disable their index and as lightweight stand-ins in tests.
package memory
