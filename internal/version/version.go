// Package version carries the library's build identity.
package version

// Version is the semantic version of the library. Overridable at link
// time with -ldflags "-X .../internal/version.Version=v1.2.3".
var Version = "0.9.0"
