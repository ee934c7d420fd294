// Package harness runs end-to-end history scenarios: a YAML file seeds a
// fresh in-memory store through the real write path, a set of queries runs
// against it, and the rendered output is compared against golden files.
package harness
