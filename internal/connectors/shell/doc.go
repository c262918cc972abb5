// Package shell implements the shell job: for every record, a configured
// command receives the record's data as JSON on stdin and its JSON output is
// written to the record's path. With `joined = true` the command runs once,
// reading an array of all pending records' data and printing an array of
// outputs in the same order.
package shell
