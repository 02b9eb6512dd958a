// Package fixtures finds transform test cases on disk and checks worker output against the
// expected-output files that sit next to them.
//
// A case named "resize_small" is defined by resize_small.json (or .yaml/.yml), whose "file" property
// names an input image relative to the images directory and whose other properties are passed to the
// worker as-is. Its expected output is resize_small.out. When a case fails after the worker produced
// output, that output is saved as resize_small.got for inspection.
package fixtures
