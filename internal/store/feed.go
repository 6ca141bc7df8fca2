package store

import "sync"

// QueueFeed is a Feed backed by an unbounded queue, so a slow subscriber never
// blocks the writer that pushes changes. Batches are delivered in push order.
type QueueFeed struct {
	mu     sync.Mutex
	queue  [][]Change
	signal chan struct{}
	out    chan []Change
	errs   chan error
	done   chan struct{}

	closeOnce sync.Once
	onClose   func()
}

// NewQueueFeed starts the delivery goroutine. onClose, if set, runs once when
// the feed is closed.
func NewQueueFeed(onClose func()) *QueueFeed {
	f := &QueueFeed{
		signal:  make(chan struct{}, 1),
		out:     make(chan []Change),
		errs:    make(chan error, 8),
		done:    make(chan struct{}),
		onClose: onClose,
	}
	go f.pump()
	return f
}

func (f *QueueFeed) Changes() <-chan []Change { return f.out }
func (f *QueueFeed) Errors() <-chan error     { return f.errs }

// Push queues a batch for delivery. Empty batches are dropped.
func (f *QueueFeed) Push(batch []Change) {
	if len(batch) == 0 {
		return
	}
	f.enqueue(batch)
}

// PushInitial queues the initial full batch, which is delivered even when empty.
func (f *QueueFeed) PushInitial(batch []Change) {
	if batch == nil {
		batch = []Change{}
	}
	f.enqueue(batch)
}

func (f *QueueFeed) enqueue(batch []Change) {
	f.mu.Lock()
	f.queue = append(f.queue, batch)
	f.mu.Unlock()
	select {
	case f.signal <- struct{}{}:
	default:
	}
}

// Fail reports err on the error channel. Errors beyond the buffer are dropped.
func (f *QueueFeed) Fail(err error) {
	select {
	case <-f.done:
	case f.errs <- err:
	default:
	}
}

// Done is closed once the feed is closed.
func (f *QueueFeed) Done() <-chan struct{} { return f.done }

func (f *QueueFeed) Close() error {
	f.closeOnce.Do(func() {
		close(f.done)
		if f.onClose != nil {
			f.onClose()
		}
	})
	return nil
}

func (f *QueueFeed) pump() {
	defer close(f.out)
	for {
		select {
		case <-f.done:
			return
		case <-f.signal:
		}
		for {
			f.mu.Lock()
			if len(f.queue) == 0 {
				f.mu.Unlock()
				break
			}
			batch := f.queue[0]
			f.queue = f.queue[1:]
			f.mu.Unlock()

			select {
			case f.out <- batch:
			case <-f.done:
				return
			}
		}
	}
}
