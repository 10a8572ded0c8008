package watcher

import "github.com/fsnotify/fsnotify"

// Notifier abstracts the platform change-notification primitive so the
// debounce-and-rescan logic can be exercised with a fake in tests.
type Notifier interface {
	Add(dir string) error
	Events() <-chan string
	Errors() <-chan error
	Close() error
}

// fsNotifier adapts fsnotify to the Notifier interface. Only the
// touched path matters; the scan path re-checks everything anyway.
type fsNotifier struct {
	watcher *fsnotify.Watcher
	events  chan string
	errors  chan error
	done    chan struct{}
}

// newFSNotifier creates the production notifier.
func newFSNotifier() (Notifier, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	n := &fsNotifier{
		watcher: w,
		events:  make(chan string, 64),
		errors:  make(chan error, 8),
		done:    make(chan struct{}),
	}
	go n.pump()
	return n, nil
}

// pump forwards fsnotify events as plain paths.
func (n *fsNotifier) pump() {
	for {
		select {
		case ev, ok := <-n.watcher.Events:
			if !ok {
				close(n.events)
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			select {
			case n.events <- ev.Name:
			case <-n.done:
				return
			default:
				// Drop on overflow; the periodic rescan catches up.
			}
		case err, ok := <-n.watcher.Errors:
			if !ok {
				return
			}
			select {
			case n.errors <- err:
			default:
			}
		case <-n.done:
			return
		}
	}
}

// Add registers one directory with the platform watcher.
func (n *fsNotifier) Add(dir string) error {
	return n.watcher.Add(dir)
}

// Events returns the touched-path channel.
func (n *fsNotifier) Events() <-chan string {
	return n.events
}

// Errors returns the platform error channel.
func (n *fsNotifier) Errors() <-chan error {
	return n.errors
}

// Close releases the platform watcher.
func (n *fsNotifier) Close() error {
	close(n.done)
	return n.watcher.Close()
}
