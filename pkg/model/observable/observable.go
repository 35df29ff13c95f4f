// Package observable provides the change notification primitive used by
// attributes and component instances. Observers are compared by interface
// identity, so the same observer is never registered twice and can be
// detached again later.
package observable

// Observer is notified whenever the observed value changes.
type Observer interface {
	Notify()
}

// Func adapts a plain function to the Observer interface. The returned
// observer has its own identity, so keep a reference to it if it should be
// detached again later.
func Func(fn func()) Observer {
	return &funcObserver{fn: fn}
}

type funcObserver struct {
	fn func()
}

func (f *funcObserver) Notify() { f.fn() }

// Observable is implemented by values that can be observed, such as component
// instances stored inside an attribute.
type Observable interface {
	Observe(Observer)
	Unobserve(Observer)
}

// Set holds an ordered collection of observers.
type Set struct {
	observers []Observer
	calling   bool
}

func (s *Set) Add(o Observer) {
	for _, existing := range s.observers {
		if existing == o {
			return
		}
	}
	s.observers = append(s.observers, o)
}

func (s *Set) Remove(o Observer) {
	for i, existing := range s.observers {
		if existing == o {
			s.observers = append(s.observers[:i], s.observers[i+1:]...)
			return
		}
	}
}

// Call notifies every observer in registration order. Observers added while
// calling are not notified until the next call. Reentrant calls are dropped,
// so cyclic observer graphs terminate.
func (s *Set) Call() {
	if s.calling {
		return
	}
	s.calling = true
	defer func() { s.calling = false }()

	snapshot := make([]Observer, len(s.observers))
	copy(snapshot, s.observers)

	for _, o := range snapshot {
		o.Notify()
	}
}

func (s *Set) Len() int {
	return len(s.observers)
}
