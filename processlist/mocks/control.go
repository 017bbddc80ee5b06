package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/dreamsxin/ramnotify/manager"
	"github.com/dreamsxin/ramnotify/types"
)

// MockProcessControl is a mock implementation of the processlist.ProcessControl interface
type MockProcessControl struct {
	mock.Mock
}

// Describe re-resolves a pid
func (m *MockProcessControl) Describe(ctx context.Context, pid int32) (types.ProcessRecord, error) {
	args := m.Called(ctx, pid)
	return args.Get(0).(types.ProcessRecord), args.Error(1)
}

// Terminate asks a process to exit
func (m *MockProcessControl) Terminate(ctx context.Context, pid int32) error {
	args := m.Called(ctx, pid)
	return args.Error(0)
}

// Kill forcibly ends a process
func (m *MockProcessControl) Kill(ctx context.Context, pid int32) error {
	args := m.Called(ctx, pid)
	return args.Error(0)
}

// WaitExit waits for a process to go away
func (m *MockProcessControl) WaitExit(ctx context.Context, pid int32, timeout time.Duration) (bool, error) {
	args := m.Called(ctx, pid, timeout)
	return args.Bool(0), args.Error(1)
}

// Capture reads the launch context of a process
func (m *MockProcessControl) Capture(ctx context.Context, pid int32) (manager.LaunchSpec, error) {
	args := m.Called(ctx, pid)
	return args.Get(0).(manager.LaunchSpec), args.Error(1)
}

// Launch starts a replacement process
func (m *MockProcessControl) Launch(spec manager.LaunchSpec) (int32, error) {
	args := m.Called(spec)
	return args.Get(0).(int32), args.Error(1)
}

// MockConfirmer is a mock implementation of the processlist.Confirmer interface
type MockConfirmer struct {
	mock.Mock
}

// Confirm answers a confirmation prompt
func (m *MockConfirmer) Confirm(ctx context.Context, action types.Action, target types.ProcessRecord) bool {
	args := m.Called(ctx, action, target)
	return args.Bool(0)
}
