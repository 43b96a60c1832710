// Package agentstep runs a headless coding agent as a CI step.
package agentstep

// Version is the agentstep release version.
const Version = "v0.3.0"
