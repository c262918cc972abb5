// Package file provides file-based implementations of driven port interfaces.
//
// Adapters:
//   - ManifestReader: the [tool.prequery] section of typst.toml
//   - ConfigStore: user-level defaults in a TOML file
package file
