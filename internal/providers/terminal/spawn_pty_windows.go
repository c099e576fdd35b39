//go:build windows

package terminal

// No PTY on Windows; AutoSpawner always takes the pipe path.
func newPTYSpawner() Spawner {
	return nil
}
