package h2

import "time"

// Transport is the bidirectional byte stream a Server speaks HTTP/2
// over. Negotiating that the peer actually wants HTTP/2 — TLS ALPN, or
// the plaintext h2c upgrade/prior-knowledge dance — and reading past
// the client connection preface both happen upstream of this package;
// see cmd/h2serve for the TLS case.
type Transport interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
}

// Config collects every tunable of one connection's engine. The zero
// value is not valid on its own; NewServer fills every unset (zero)
// field in with the documented default before any arbiter is
// constructed, the same way the teacher's ConfigureServer backfills a
// caller-supplied *Server from the wrapping *http.Server.
type Config struct {
	// MaxConcurrentStreams bounds how many remote-initiated streams
	// may be open at once (spec.md §4.4). Advertised to the peer as
	// SETTINGS_MAX_CONCURRENT_STREAMS.
	MaxConcurrentStreams uint32

	// InitialStreamRecvWindow is the receive-side flow-control window
	// granted to every new stream, advertised as
	// SETTINGS_INITIAL_WINDOW_SIZE. Must fit in a signed 31-bit value.
	InitialStreamRecvWindow int32

	// InitialConnRecvWindow is the connection-level receive window.
	// Unlike the per-stream window, this one is never conveyed via
	// SETTINGS — it is raised, if at all, by an initial WINDOW_UPDATE
	// on stream 0.
	InitialConnRecvWindow int32

	// MaxFrameSize is advertised to the peer as SETTINGS_MAX_FRAME_SIZE.
	// It does not bound the frames we send: outgoing DATA is sized by
	// the peer's own advertised MAX_FRAME_SIZE.
	MaxFrameSize uint32

	// MaxReadFrameSize bounds the payload size we accept from the
	// peer. This engine does not advertise it via SETTINGS (RFC 7540
	// has no setting for an enforced-but-unadvertised read limit); it
	// exists purely as a local sanity cap against a misbehaving or
	// hostile peer.
	MaxReadFrameSize uint32

	// MaxHeaderListSize bounds the decoded size of one header block,
	// advertised as SETTINGS_MAX_HEADER_LIST_SIZE and enforced by
	// readMetaHeaders per spec.md §4.2.
	MaxHeaderListSize uint32

	// IdleTimeout closes a connection with a GOAWAY(NO_ERROR) once
	// this long has passed without a single frame being read. Zero
	// selects the default of five minutes; a negative value disables
	// the timer.
	IdleTimeout time.Duration
}

const (
	defaultMaxConcurrentStreams    = 250
	defaultInitialStreamRecvWindow = 1 << 20 // 1MiB, larger than HTTP/2's own 64KiB default
	defaultInitialConnRecvWindow   = 1 << 20
	defaultMaxFrameSize            = 16384
	defaultMaxReadFrameSize        = 1 << 20
	defaultMaxHeaderListSize       = 16 << 20
	defaultIdleTimeout             = 5 * time.Minute
)

// withDefaults returns a copy of cfg with every zero field replaced by
// its documented default.
func (cfg Config) withDefaults() Config {
	if cfg.MaxConcurrentStreams == 0 {
		cfg.MaxConcurrentStreams = defaultMaxConcurrentStreams
	}
	if cfg.InitialStreamRecvWindow == 0 {
		cfg.InitialStreamRecvWindow = defaultInitialStreamRecvWindow
	}
	if cfg.InitialConnRecvWindow == 0 {
		cfg.InitialConnRecvWindow = defaultInitialConnRecvWindow
	}
	if cfg.MaxFrameSize == 0 {
		cfg.MaxFrameSize = defaultMaxFrameSize
	}
	if cfg.MaxReadFrameSize == 0 {
		cfg.MaxReadFrameSize = defaultMaxReadFrameSize
	}
	if cfg.MaxHeaderListSize == 0 {
		cfg.MaxHeaderListSize = defaultMaxHeaderListSize
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	return cfg
}

// ServerOption mutates a Server's Config at construction time,
// following the functional-options idiom the teacher's own
// ConfigureServer-adjacent helpers (SetMaxReadFrameSize, and friends in
// the wider x/net/http2 family) exist to approximate with plain struct
// fields — this engine has no *http.Server to piggyback defaults off
// of, so options are its equivalent entry point.
type ServerOption func(*Config)

func WithMaxConcurrentStreams(n uint32) ServerOption {
	return func(c *Config) { c.MaxConcurrentStreams = n }
}

func WithInitialStreamRecvWindow(n int32) ServerOption {
	return func(c *Config) { c.InitialStreamRecvWindow = n }
}

func WithInitialConnRecvWindow(n int32) ServerOption {
	return func(c *Config) { c.InitialConnRecvWindow = n }
}

func WithMaxFrameSize(n uint32) ServerOption {
	return func(c *Config) { c.MaxFrameSize = n }
}

func WithMaxReadFrameSize(n uint32) ServerOption {
	return func(c *Config) { c.MaxReadFrameSize = n }
}

func WithMaxHeaderListSize(n uint32) ServerOption {
	return func(c *Config) { c.MaxHeaderListSize = n }
}

func WithIdleTimeout(d time.Duration) ServerOption {
	return func(c *Config) { c.IdleTimeout = d }
}

// Server holds the Config shared by every connection it serves. A
// single Server is meant to be reused across many ServeConn calls, the
// same way one *http2.Server backs every connection a net/http.Server
// accepts.
type Server struct {
	cfg Config
}

// NewServer builds a Server, applying opts over the package defaults.
func NewServer(opts ...ServerOption) *Server {
	cfg := Config{}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{cfg: cfg.withDefaults()}
}

// ServeConnOpts carries the per-connection pieces that can't sensibly
// live on the shared Server: the transport itself and the Listener
// that will handle streams admitted on it.
type ServeConnOpts struct {
	Transport Transport
	Listener  Listener
}

// ServeConn drives one HTTP/2 connection to completion, blocking the
// calling goroutine for the engine's read/dispatch loop — the "one
// cooperative task per connection direction" of spec.md §5, realized
// here as connArbiter.serve() plus the writeLoop goroutine it spawns.
// It returns once the connection has been fully shut down, with the
// error (if any) that caused the shutdown; a clean peer-initiated close
// is reported as a nil error.
func (srv *Server) ServeConn(opts ServeConnOpts) error {
	fr := NewFramer(opts.Transport, opts.Transport)
	arbiter := newConnArbiter(fr, srv.cfg, opts.Listener)
	return arbiter.serve()
}
