// Package connectors holds the query handlers that reach outside the Typst
// sandbox. Each subpackage provides a driven.JobFactory for one job kind
// together with the driven.Handler it configures:
//
//   - webresource: downloads web resources (job kind "web-resource")
//   - shell: pipes query data through a command (job kind "shell")
//
// Job factories are registered with the services.JobRegistry at startup.
package connectors
