// Package testutil holds test doubles shared across package tests:
// testify mocks for the spawner, process backend and transport dialer, and
// scriptable fake processes and connections.
package testutil
