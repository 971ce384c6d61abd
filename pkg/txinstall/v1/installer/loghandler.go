package installer

import "sync"

// LogHandler receives every message written through InstallContext.LogMessage.
type LogHandler func(message string)

// LogHandlers is an ordered, concurrency-safe list of subscribed handlers.
type LogHandlers struct {
	mu       sync.RWMutex
	nextID   int
	handlers []subscription
}

type subscription struct {
	id      int
	handler LogHandler
}

// DefaultLogHandlers receives the messages of every install context in the
// process, after the context's own handlers.
var DefaultLogHandlers = &LogHandlers{}

// Subscribe adds h and returns a function that removes it again.
func (l *LogHandlers) Subscribe(h LogHandler) (unsubscribe func()) {
	if h == nil {
		return func() {}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	id := l.nextID
	l.handlers = append(l.handlers, subscription{id: id, handler: h})

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			for i, s := range l.handlers {
				if s.id == id {
					l.handlers = append(l.handlers[:i:i], l.handlers[i+1:]...)
					return
				}
			}
		})
	}
}

// Len returns the number of subscribed handlers.
func (l *LogHandlers) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.handlers)
}

func (l *LogHandlers) dispatch(message string) {
	l.mu.RLock()
	subs := append([]subscription(nil), l.handlers...)
	l.mu.RUnlock()
	for _, s := range subs {
		s.handler(message)
	}
}
