// Package harness runs fixture suites end to end against a live CI
// provider.
//
// For every scenario the executor commits a report document with the
// scenario's message, records the high-water mark (the creation time of
// the newest run), pushes, and then polls twice: first until a run newer
// than the mark appears, then until that run completes. A successful run
// is followed by reading back the manifest version, latest tag and commit
// subject, which are compared against the scenario's expectation.
//
// # Lifecycle
//
// Every scenario moves through a fixed set of states and records each
// transition with the clock's time:
//
//	idle → committed → pushed → awaiting_run_start →
//	awaiting_run_completion → completed → verified | failed
//
// A failed scenario fails its suite; the remaining scenarios of that suite
// are reported as skipped because they depend on the state the failed one
// should have produced.
//
// # Errors
//
// Failures are classified into codes (see ErrorCode) and attached to the
// scenario result. Use the Is* predicates to test for a category:
//
//	if harness.IsConclusion(result.Err) {
//	    // the run finished but did not succeed
//	}
//
// # Determinism
//
// The clock and the execution ID generator are injected. Tests use
// testutil.FakeClock and testutil.SequenceIDGenerator so that traces are
// byte-identical across runs and can be compared with golden files.
package harness
