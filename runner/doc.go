// Package runner drives one directory of tests, sequentially.
//
// The main components are:
//   - RunContext: the immutable settings of one directory invocation
//   - TestDriver: discovers tests, resolves their options and runs every variant
//
// For each compile variant the driver compiles under the compile deadline, classifies
// compiler output when the build fails (or execution is disabled), then runs every
// exec variant and trial under the execute deadline. Outcomes are written to the event
// log, fed to the record sinks and counted in metrics.
package runner
