package testutil

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sholden3/aiorchestration-sub008/internal/proctree"
	"github.com/sholden3/aiorchestration-sub008/internal/providers/terminal"
	"github.com/sholden3/aiorchestration-sub008/internal/transport"
)

// MockSpawner is a testify mock for terminal.Spawner
type MockSpawner struct {
	mock.Mock
}

func (m *MockSpawner) Spawn(req terminal.SpawnRequest) (terminal.Process, error) {
	args := m.Called(req)
	proc, _ := args.Get(0).(terminal.Process)
	return proc, args.Error(1)
}

// MockOS is a testify mock for proctree.OS. Return values may be given as
// functions of the pid for stateful behaviour.
type MockOS struct {
	mock.Mock
}

func (m *MockOS) List() ([]proctree.ProcessInfo, error) {
	args := m.Called()
	if fn, ok := args.Get(0).(func() []proctree.ProcessInfo); ok {
		return fn(), args.Error(1)
	}
	procs, _ := args.Get(0).([]proctree.ProcessInfo)
	return procs, args.Error(1)
}

func (m *MockOS) Lookup(pid int) (proctree.ProcessInfo, bool) {
	args := m.Called(pid)
	info, _ := args.Get(0).(proctree.ProcessInfo)
	return info, args.Bool(1)
}

func (m *MockOS) Alive(pid int) bool {
	args := m.Called(pid)
	if fn, ok := args.Get(0).(func(int) bool); ok {
		return fn(pid)
	}
	return args.Bool(0)
}

func (m *MockOS) Signal(pid int, force bool) error {
	args := m.Called(pid, force)
	if fn, ok := args.Get(0).(func(int, bool) error); ok {
		return fn(pid, force)
	}
	return args.Error(0)
}

// MockDialer is a testify mock for transport.Dialer
type MockDialer struct {
	mock.Mock
}

func (m *MockDialer) Dial(ctx context.Context) (transport.Conn, error) {
	args := m.Called(ctx)
	if fn, ok := args.Get(0).(func() (transport.Conn, error)); ok {
		return fn()
	}
	conn, _ := args.Get(0).(transport.Conn)
	return conn, args.Error(1)
}
