package h2

import (
	"errors"
	"testing"
)

func TestRegistryAdmitCreatesNewStream(t *testing.T) {
	r := NewRegistry(10)
	s, result, err := r.Admit(1)
	if err != nil {
		t.Fatal(err)
	}
	if result != admitCreated {
		t.Fatalf("result = %v, want admitCreated", result)
	}
	if s.ID() != 1 {
		t.Fatalf("ID = %d, want 1", s.ID())
	}
	if r.HighestRemoteID() != 1 {
		t.Fatalf("HighestRemoteID = %d, want 1", r.HighestRemoteID())
	}
	if r.ActiveCount() != 1 {
		t.Fatalf("ActiveCount = %d, want 1", r.ActiveCount())
	}
}

func TestRegistryAdmitEvenIDIsStreamClosed(t *testing.T) {
	r := NewRegistry(10)
	_, result, err := r.Admit(2)
	if result != admitRefused {
		t.Fatalf("result = %v, want admitRefused", result)
	}
	var se StreamError
	if !errors.As(err, &se) || se.Code != ErrCodeStreamClosed {
		t.Fatalf("err = %v, want StreamError{STREAM_CLOSED}", err)
	}
}

func TestRegistryAdmitRoutesKnownID(t *testing.T) {
	r := NewRegistry(10)
	s1, _, _ := r.Admit(1)
	s2, result, err := r.Admit(1)
	if err != nil {
		t.Fatal(err)
	}
	if result != admitRouteExisting {
		t.Fatalf("result = %v, want admitRouteExisting", result)
	}
	if s1 != s2 {
		t.Fatal("Admit returned a different Stream for the same known ID")
	}
}

func TestRegistryAdmitRetiredIDIsStreamClosed(t *testing.T) {
	r := NewRegistry(10)
	r.Admit(5)
	r.Retire(5)
	_, result, err := r.Admit(3) // unknown, <= highestRemoteID(5)
	if result != admitRefused {
		t.Fatalf("result = %v, want admitRefused", result)
	}
	var se StreamError
	if !errors.As(err, &se) || se.Code != ErrCodeStreamClosed {
		t.Fatalf("err = %v, want StreamError{STREAM_CLOSED}", err)
	}
}

// TestRegistryMaxConcurrentStreamsScenario mirrors the spec's 20-stream
// admission scenario: with a limit of 20, the 21st (an id numerically
// past the first 20 odd ids) is refused, and retiring one of the
// admitted streams frees a slot for the next id.
func TestRegistryMaxConcurrentStreamsScenario(t *testing.T) {
	r := NewRegistry(20)
	for id := uint32(1); id <= 39; id += 2 {
		_, result, err := r.Admit(id)
		if err != nil || result != admitCreated {
			t.Fatalf("Admit(%d) = (%v, %v), want admitCreated", id, result, err)
		}
	}
	if r.ActiveCount() != 20 {
		t.Fatalf("ActiveCount = %d, want 20", r.ActiveCount())
	}

	_, result, err := r.Admit(41)
	if result != admitRefused {
		t.Fatalf("Admit(41) result = %v, want admitRefused", result)
	}
	var se StreamError
	if !errors.As(err, &se) || se.Code != ErrCodeRefusedStream {
		t.Fatalf("Admit(41) err = %v, want StreamError{REFUSED_STREAM}", err)
	}

	r.Retire(39)
	if r.ActiveCount() != 19 {
		t.Fatalf("ActiveCount after Retire(39) = %d, want 19", r.ActiveCount())
	}

	_, result, err = r.Admit(43)
	if err != nil || result != admitCreated {
		t.Fatalf("Admit(43) after Retire(39) = (%v, %v), want admitCreated", result, err)
	}
}

func TestRegistryRefuseReleasesSlot(t *testing.T) {
	r := NewRegistry(1)
	r.Admit(1)
	if r.ActiveCount() != 1 {
		t.Fatalf("ActiveCount = %d, want 1", r.ActiveCount())
	}
	r.Refuse(1)
	if r.ActiveCount() != 0 {
		t.Fatalf("ActiveCount after Refuse = %d, want 0", r.ActiveCount())
	}
	if _, ok := r.Get(1); ok {
		t.Fatal("Get(1) still found a refused stream")
	}
}
