// Package envcheck gates the kernel's supported host/protocol versions,
// raising an Environment-kind "unsupported host version" error for
// anything outside the compatibility table.
// Grounded in pkg/utils/env.go's cached-lookup idiom, adapted from
// environment-variable defaults to a fixed compatibility table checked once
// at kernel construction.
package envcheck

import "fmt"

// ProtocolByte is the fixed, per-transaction protocol version this build of
// the kernel writes and accepts. The protocol-version byte is fixed per
// transaction; cross-version interop is handled by rejecting unsupported
// bytes outright rather than attempting translation.
const ProtocolByte = 1

// SupportedProtocolBytes lists every protocol byte this build can load,
// beyond the one it writes (ProtocolByte). A build that only ever wrote
// ProtocolByte 1 still lists it here for symmetry with future versions.
var SupportedProtocolBytes = map[int]bool{
	ProtocolByte: true,
}

// CheckHostVersion reports an Environment-kind error iff protocolByte isn't
// one this build knows how to replay.
func CheckHostVersion(protocolByte int) error {
	if !SupportedProtocolBytes[protocolByte] {
		return fmt.Errorf("Environment: unsupported host version (protocol byte %d)", protocolByte)
	}
	return nil
}
