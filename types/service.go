package types

import (
	"sync"
	"sync/atomic"

	"github.com/ds-test-framework/lobby/log"
)

// Service is a long running component of a node
type Service interface {
	Name() string
	Start() error
	Running() bool
	Stop() error
}

const (
	serviceIdle int32 = iota
	serviceRunning
	serviceStopped
)

// BaseService is embedded by every Service. A service runs at most once:
// after StopRunning its quit channel stays closed and it cannot restart.
type BaseService struct {
	name     string
	state    int32
	quit     chan struct{}
	stopOnce *sync.Once

	Logger *log.Logger
}

func NewBaseService(name string, parentLogger *log.Logger) *BaseService {
	return &BaseService{
		name:     name,
		state:    serviceIdle,
		quit:     make(chan struct{}),
		stopOnce: new(sync.Once),
		Logger:   parentLogger.Service(name),
	}
}

// StartRunning marks the service running. It reports false when the
// service was already started or stopped.
func (b *BaseService) StartRunning() bool {
	return atomic.CompareAndSwapInt32(&b.state, serviceIdle, serviceRunning)
}

// StopRunning closes the quit channel. Only the first call reports true.
func (b *BaseService) StopRunning() bool {
	atomic.StoreInt32(&b.state, serviceStopped)
	stopped := false
	b.stopOnce.Do(func() {
		close(b.quit)
		stopped = true
	})
	return stopped
}

func (b *BaseService) Name() string {
	return b.name
}

func (b *BaseService) Running() bool {
	return atomic.LoadInt32(&b.state) == serviceRunning
}

func (b *BaseService) Stopped() bool {
	return atomic.LoadInt32(&b.state) == serviceStopped
}

// QuitCh is closed once StopRunning is called
func (b *BaseService) QuitCh() <-chan struct{} {
	return b.quit
}
