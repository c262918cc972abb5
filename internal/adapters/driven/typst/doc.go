// Package typst provides the query sources of prequery jobs.
//
// CommandSource runs `typst query` against the document; FileSource reads
// query output exported earlier. Both parse the output with ParseRecords.
package typst
