package h2

import (
	"errors"
	"io"
	"testing"
)

func TestStreamMachineRemoteHeaders(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(m *streamMachine)
		endStream bool
		wantState StreamState
		wantErr   ErrCode
	}{
		{
			name:      "idle to open",
			setup:     func(m *streamMachine) {},
			endStream: false,
			wantState: StateOpen,
		},
		{
			name:      "idle to half closed remote on eos",
			setup:     func(m *streamMachine) {},
			endStream: true,
			wantState: StateHalfClosedRemote,
		},
		{
			name: "trailers on open require eos",
			setup: func(m *streamMachine) {
				_ = m.onRemoteHeaders(false)
			},
			endStream: false,
			wantState: StateOpen,
			wantErr:   ErrCodeProtocol,
		},
		{
			name: "trailers on open with eos close",
			setup: func(m *streamMachine) {
				_ = m.onRemoteHeaders(false)
			},
			endStream: true,
			wantState: StateHalfClosedRemote,
		},
		{
			name: "headers on half closed remote is stream closed",
			setup: func(m *streamMachine) {
				_ = m.onRemoteHeaders(true)
			},
			endStream: true,
			wantState: StateHalfClosedRemote,
			wantErr:   ErrCodeStreamClosed,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := newStreamMachine(1)
			tc.setup(m)
			err := m.onRemoteHeaders(tc.endStream)
			if tc.wantErr != 0 {
				var se StreamError
				if !errors.As(err, &se) || se.Code != tc.wantErr {
					t.Fatalf("onRemoteHeaders error = %v, want code %v", err, tc.wantErr)
				}
			} else if err != nil {
				t.Fatalf("onRemoteHeaders unexpected error: %v", err)
			}
			if m.state != tc.wantState {
				t.Fatalf("state = %v, want %v", m.state, tc.wantState)
			}
		})
	}
}

func TestStreamMachineRemoteData(t *testing.T) {
	m := newStreamMachine(1)
	if err := m.onRemoteHeaders(false); err != nil {
		t.Fatal(err)
	}
	if err := m.onRemoteData(false); err != nil {
		t.Fatal(err)
	}
	if m.state != StateOpen {
		t.Fatalf("state = %v, want Open", m.state)
	}
	if err := m.onRemoteData(true); err != nil {
		t.Fatal(err)
	}
	if m.state != StateHalfClosedRemote {
		t.Fatalf("state = %v, want HalfClosedRemote", m.state)
	}
	if err := m.onRemoteData(false); err == nil {
		t.Fatal("expected STREAM_CLOSED after half closed remote")
	}
}

func TestStreamMachineLocalWriteSequencing(t *testing.T) {
	m := newStreamMachine(1)
	if err := m.onLocalData(false); err != ErrWriteBeforeHeaders {
		t.Fatalf("onLocalData before headers = %v, want ErrWriteBeforeHeaders", err)
	}
	if err := m.onLocalTrailers(); err != ErrTrailersWithoutData {
		t.Fatalf("onLocalTrailers before data = %v, want ErrTrailersWithoutData", err)
	}
	if err := m.onLocalHeaders(true, false); err != nil {
		t.Fatal(err)
	}
	if err := m.onLocalHeaders(true, false); err != ErrHeadersAfterFinal {
		t.Fatalf("second final headers = %v, want ErrHeadersAfterFinal", err)
	}
	if err := m.canWriteData(); err != nil {
		t.Fatalf("canWriteData after final headers = %v", err)
	}
	if err := m.onLocalData(false); err != nil {
		t.Fatal(err)
	}
	if err := m.onLocalTrailers(); err != nil {
		t.Fatal(err)
	}
	if m.state != StateHalfClosedLocal {
		t.Fatalf("state = %v, want HalfClosedLocal", m.state)
	}
	if err := m.canWriteData(); err != ErrStreamClosed {
		t.Fatalf("canWriteData after trailers = %v, want ErrStreamClosed", err)
	}
}

func TestStreamMachineInformationalHeadersDoNotTransition(t *testing.T) {
	m := newStreamMachine(1)
	for i := 0; i < 3; i++ {
		if err := m.onLocalHeaders(false, false); err != nil {
			t.Fatalf("informational headers #%d: %v", i, err)
		}
		if m.state != StateIdle {
			t.Fatalf("informational headers transitioned state to %v", m.state)
		}
	}
	if err := m.onLocalHeaders(true, true); err != nil {
		t.Fatal(err)
	}
	if m.state != StateHalfClosedLocal {
		t.Fatalf("state = %v, want HalfClosedLocal", m.state)
	}
}

func TestStreamMachineTerminalStatesAreSticky(t *testing.T) {
	m := newStreamMachine(1)
	m.onRemoteReset()
	if m.state != StateReset {
		t.Fatalf("state = %v, want Reset", m.state)
	}
	if err := m.onRemoteHeaders(true); err == nil {
		t.Fatal("expected error on Reset stream")
	}
	m.onRemoteReset() // idempotent
	if m.state != StateReset {
		t.Fatalf("state changed after second onRemoteReset: %v", m.state)
	}
}

func TestPipeDeliversWrittenBytesInOrder(t *testing.T) {
	p := newPipe()
	p.Write([]byte("hello "))
	p.Write([]byte("world"))
	p.CloseWithError(io.EOF, nil)

	buf := make([]byte, 3)
	var got []byte
	for {
		n, err := p.Read(buf)
		got = append(got, buf[:n]...)
		if err != nil {
			if err != io.EOF {
				t.Fatalf("unexpected error: %v", err)
			}
			break
		}
	}
	if string(got) != "hello world" {
		t.Fatalf("got %q, want %q", got, "hello world")
	}
}

func TestPipeCloseErrorIsSticky(t *testing.T) {
	p := newPipe()
	first := errors.New("first")
	second := errors.New("second")
	p.CloseWithError(first, nil)
	p.CloseWithError(second, nil)
	_, err := p.Read(make([]byte, 1))
	if err != first {
		t.Fatalf("err = %v, want %v", err, first)
	}
}

func TestPipeTrailersBlockUntilClosed(t *testing.T) {
	p := newPipe()
	done := make(chan struct{})
	var gotTrailers *MetaHeaders
	var gotErr error
	go func() {
		gotTrailers, gotErr = p.Trailers()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Trailers returned before CloseWithError")
	default:
	}

	want := &MetaHeaders{Fields: []HeaderField{{Name: "trai", Value: "ler"}}}
	p.CloseWithError(io.EOF, want)
	<-done
	if gotErr != io.EOF {
		t.Fatalf("err = %v, want io.EOF", gotErr)
	}
	if gotTrailers != want {
		t.Fatalf("trailers = %v, want %v", gotTrailers, want)
	}
}
