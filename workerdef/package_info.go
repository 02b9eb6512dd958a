// Package workerdef contains definitions for the line-oriented text protocol spoken by an image
// transform worker: the commands the harness writes to the worker's input, the results it looks for
// in the worker's output, and the Profile that captures the parts of the protocol that differ
// between worker versions.
package workerdef
