package observable

import (
	"testing"

	"github.com/matryer/is"
)

func TestObserversAreCalledInRegistrationOrder(t *testing.T) {
	is := is.New(t)

	calls := []string{}
	s := &Set{}
	s.Add(Func(func() { calls = append(calls, "first") }))
	s.Add(Func(func() { calls = append(calls, "second") }))

	s.Call()

	is.Equal(calls, []string{"first", "second"})
}

func TestObserversAreNotRegisteredTwice(t *testing.T) {
	is := is.New(t)

	count := 0
	o := Func(func() { count++ })

	s := &Set{}
	s.Add(o)
	s.Add(o)

	s.Call()

	is.Equal(count, 1)
	is.Equal(s.Len(), 1)
}

func TestRemovedObserversAreNotCalled(t *testing.T) {
	is := is.New(t)

	count := 0
	o := Func(func() { count++ })

	s := &Set{}
	s.Add(o)
	s.Call()

	s.Remove(o)
	s.Call()

	is.Equal(count, 1)
}

func TestNotificationsPropagateThroughChains(t *testing.T) {
	is := is.New(t)

	parentNotified := 0
	parent := &Set{}
	parent.Add(Func(func() { parentNotified++ }))

	child := &Set{}
	child.Add(Func(func() { parent.Call() }))

	child.Call()
	child.Call()

	is.Equal(parentNotified, 2)
}

func TestCyclicObserverChainsTerminate(t *testing.T) {
	is := is.New(t)

	notified := 0

	first := &Set{}
	second := &Set{}

	first.Add(Func(func() { second.Call() }))
	second.Add(Func(func() {
		notified++
		first.Call()
	}))

	first.Call()

	is.Equal(notified, 1)
}
