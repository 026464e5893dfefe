//go:build !unix

package crash

// Capabilities are the flags supported on this platform.
const Capabilities = allFlags &^ (DumpAllThreads | GenerateCore)
