// Package framework contains the low-level implementation of test harness infrastructure
// that can be reused for different kinds of tests. The base package contains shared
// types such as Logger; other components are in the subpackages worker and ctest.
//
// The general model is:
//
// 1. The test harness owns one worker process, which it talks to over a line-oriented
// channel: it writes commands to the worker's standard input and reads whatever the worker
// writes back, waiting either for a pattern or for the worker to go quiet.
//
// 2. There is a general notion of a test context which is similar to Go's testing.T,
// allowing pieces of test logic to be associated with a test identifier and to accumulate
// success/failure results.
//
// The domain-specific code that knows what is being tested is responsible for providing
// the commands to send to the worker, interpreting its output, and deciding whether each
// test passed.
package framework
