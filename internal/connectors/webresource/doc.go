// Package webresource implements the web-resource job: records declaring a
// url and a path are downloaded into the project root.
//
// Records look like {"url": "https://...", "path": "assets/logo.png"}; paths
// are relative to the project root and must not escape it.
package webresource
