// Package domain defines the core preprocessing entities.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Query: One declarative request extracted from a document
//   - Resolution: The recorded outcome of resolving a Query
//   - ResultSet: Query identity mapped to Resolution for one run
//   - Manifest: The [tool.prequery] jobs of a typst.toml file
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
