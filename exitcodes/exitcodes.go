// Package exitcodes defines the exit codes used by op-subtest.
package exitcodes

// Exit code constants used by op-subtest:
//
// * Success (0): every non-future variant passed or was skipped
// * TestFailure (1): one or more variants failed
// * RuntimeErr (2): operational failures such as an unwritable log directory
// * ConfigFatal (173): the directory configuration is unusable; the sum of the bytes
// of "CHAPEL" modulo 256, kept for compatibility with existing drivers
const (
	Success     = 0
	TestFailure = 1
	RuntimeErr  = 2
	ConfigFatal = 173
)
