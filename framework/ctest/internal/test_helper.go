// Package internal contains test helpers for ctest.
package internal

// RunAction calls action. Being outside of ctest, it shows up in CaseFailure frames, which lets
// tests check where the frames start and stop.
func RunAction(action func()) {
	action()
}
