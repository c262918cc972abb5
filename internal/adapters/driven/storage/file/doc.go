// Package file implements the on-disk result store.
//
// A store is a single document holding `version = 1` and one `resolution`
// entry per query identity, sorted by identity so that an unchanged result set
// always serializes to the same bytes. The format follows the file extension:
//
//   - .toml (default), via github.com/pelletier/go-toml/v2
//   - .json
//   - .yaml or .yml, via gopkg.in/yaml.v3
//
// All three are formats Typst can read with its built-in loaders. Writes are
// atomic: the document is written to a temporary file in the same directory
// and renamed into place.
package file
