package h2

import "fmt"

// SettingID is an HTTP/2 SETTINGS parameter identifier, RFC 7540 §11.3.
type SettingID uint16

const (
	SettingHeaderTableSize      SettingID = 0x1
	SettingEnablePush           SettingID = 0x2
	SettingMaxConcurrentStreams SettingID = 0x3
	SettingInitialWindowSize    SettingID = 0x4
	SettingMaxFrameSize         SettingID = 0x5
	SettingMaxHeaderListSize    SettingID = 0x6
)

var settingName = map[SettingID]string{
	SettingHeaderTableSize:      "HEADER_TABLE_SIZE",
	SettingEnablePush:           "ENABLE_PUSH",
	SettingMaxConcurrentStreams: "MAX_CONCURRENT_STREAMS",
	SettingInitialWindowSize:    "INITIAL_WINDOW_SIZE",
	SettingMaxFrameSize:         "MAX_FRAME_SIZE",
	SettingMaxHeaderListSize:    "MAX_HEADER_LIST_SIZE",
}

func (s SettingID) String() string {
	if v, ok := settingName[s]; ok {
		return v
	}
	return fmt.Sprintf("UNKNOWN_SETTING_%d", uint16(s))
}

// Setting is a single (ID, value) SETTINGS parameter.
type Setting struct {
	ID  SettingID
	Val uint32
}

func (s Setting) String() string { return fmt.Sprintf("[%v = %d]", s.ID, s.Val) }

// Valid reports whether the setting's value is within the range RFC
// 7540 §6.5.2 allows, returning the connection error to raise if not.
func (s Setting) Valid() error {
	switch s.ID {
	case SettingEnablePush:
		if s.Val != 0 && s.Val != 1 {
			return connError(ErrCodeProtocol, "ENABLE_PUSH must be 0 or 1")
		}
	case SettingInitialWindowSize:
		if s.Val > (1<<31)-1 {
			return connError(ErrCodeFlowControl, "INITIAL_WINDOW_SIZE exceeds 2^31-1")
		}
	case SettingMaxFrameSize:
		if s.Val < 16384 || s.Val > (1<<24)-1 {
			return connError(ErrCodeProtocol, "MAX_FRAME_SIZE out of range")
		}
	}
	return nil
}

// peerSettings tracks the values the remote peer has advertised to us,
// i.e. the constraints we must respect when we write. localSettings
// tracks the values we've advertised, i.e. the constraints the peer
// must respect when it writes to us.
type peerSettings struct {
	initialWindowSize    uint32
	maxFrameSize          uint32
	maxConcurrentStreams  uint32
	headerTableSize       uint32
	maxHeaderListSize     uint32
	pushEnabled           bool
}

func defaultPeerSettings() peerSettings {
	return peerSettings{
		initialWindowSize:    65535,
		maxFrameSize:          16384,
		maxConcurrentStreams:  ^uint32(0), // unbounded until told otherwise
		headerTableSize:       4096,
		maxHeaderListSize:     1 << 24, // sane default, see Framer.maxHeaderListSize
		pushEnabled:           true,
	}
}

// apply updates ps from a decoded Setting, returning a connection error
// if the value itself is invalid. It does not validate that the ID is
// known; unknown setting IDs are ignored per RFC 7540 §6.5.2.
func (ps *peerSettings) apply(s Setting) error {
	if err := s.Valid(); err != nil {
		return err
	}
	switch s.ID {
	case SettingHeaderTableSize:
		ps.headerTableSize = s.Val
	case SettingEnablePush:
		ps.pushEnabled = s.Val == 1
	case SettingMaxConcurrentStreams:
		ps.maxConcurrentStreams = s.Val
	case SettingInitialWindowSize:
		ps.initialWindowSize = s.Val
	case SettingMaxFrameSize:
		ps.maxFrameSize = s.Val
	case SettingMaxHeaderListSize:
		ps.maxHeaderListSize = s.Val
	}
	return nil
}
