// Package buildinfo reports what a savevault binary was built from.
//
// Version, Commit and BuildTime are injected with ldflags:
//
//	go build -ldflags "-X github.com/yndnr/savevault/internal/infra/buildinfo.Version=v1.0.0"
//
// Values left unset fall back to the module and VCS data the Go toolchain
// embeds in the binary.
package buildinfo
