// Package transformtests drives a worker through the transform test cases: it owns the worker
// session, runs each case in its own test scope, and compares the output against the fixtures.
package transformtests
