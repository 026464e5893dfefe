//go:build unix && !linux

package crash

// Capabilities are the flags supported on this platform. Registers of
// other threads can only be captured on linux.
const Capabilities = allFlags &^ DumpAllThreads
