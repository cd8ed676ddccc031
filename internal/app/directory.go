package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dkeye/Broadcast/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

// Directory mirrors live rooms to an external listing. It is write-only:
// nothing is read back on startup.
type Directory interface {
	Publish(ctx context.Context, info domain.RoomInfo) error
	Withdraw(ctx context.Context, id domain.RoomID) error
}

type NopDirectory struct{}

func (NopDirectory) Publish(context.Context, domain.RoomInfo) error { return nil }
func (NopDirectory) Withdraw(context.Context, domain.RoomID) error  { return nil }

var (
	ErrDirectoryBusy   = errors.New("directory queue full")
	ErrDirectoryClosed = errors.New("directory closed")
)

const (
	DefaultDirectoryQueue   = 256
	DefaultDirectoryTimeout = 2 * time.Second
)

type directoryOp struct {
	room  domain.RoomID
	apply func(ctx context.Context) error
}

// AsyncDirectory hands updates to one worker goroutine that applies them to
// next in submission order. Publish and Withdraw never wait on next; when the
// queue is full the update is dropped and the entry ages out by its TTL.
type AsyncDirectory struct {
	next    Directory
	timeout time.Duration

	mu     sync.Mutex
	closed bool
	queue  chan directoryOp
	wg     conc.WaitGroup
}

func NewAsyncDirectory(next Directory, timeout time.Duration, size int) *AsyncDirectory {
	if timeout <= 0 {
		timeout = DefaultDirectoryTimeout
	}
	if size <= 0 {
		size = DefaultDirectoryQueue
	}
	d := &AsyncDirectory{next: next, timeout: timeout, queue: make(chan directoryOp, size)}
	d.wg.Go(d.run)
	return d
}

// Publish queues info; ctx is not used past the call.
func (d *AsyncDirectory) Publish(_ context.Context, info domain.RoomInfo) error {
	return d.enqueue(directoryOp{room: info.ID, apply: func(ctx context.Context) error {
		return d.next.Publish(ctx, info)
	}})
}

func (d *AsyncDirectory) Withdraw(_ context.Context, id domain.RoomID) error {
	return d.enqueue(directoryOp{room: id, apply: func(ctx context.Context) error {
		return d.next.Withdraw(ctx, id)
	}})
}

func (d *AsyncDirectory) enqueue(op directoryOp) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDirectoryClosed
	}
	select {
	case d.queue <- op:
		return nil
	default:
		return ErrDirectoryBusy
	}
}

func (d *AsyncDirectory) run() {
	for op := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		if err := op.apply(ctx); err != nil {
			log.Warn().Err(err).Str("module", "app.directory").Str("room", string(op.room)).Msg("directory update")
		}
		cancel()
	}
}

// Close stops accepting updates and waits for the queued ones.
func (d *AsyncDirectory) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	d.wg.Wait()
}
