// Package ctest contains a small test runner framework that is similar to Go's testing package,
// but is run as regular application code rather than as Go tests. Each conformance case runs in
// its own scope (T), results are accumulated into a Results value, and a TestLogger reports
// progress as each case starts and finishes.
package ctest
