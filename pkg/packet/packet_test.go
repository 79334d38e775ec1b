package packet

import "testing"

func TestPDHeaderRoundTrip(t *testing.T) {
	buf := make([]byte, PDHeaderSize+4)
	h := &PDHeader{
		SequenceCounter: 42,
		ProtocolVersion: ProtocolVersion,
		MsgType:         MsgPd,
		ComId:           2001,
		EtbTopoCnt:      1,
		OpTrnTopoCnt:    1,
		DatasetLength:   4,
		ReplyComId:      0,
		ReplyIpAddress:  0,
	}
	EncodePDHeader(buf, h)
	copy(buf[PDHeaderSize:], []byte{1, 2, 3, 4})

	got, payload, err := DecodePDValidate(buf, Topo{}, true)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got.SequenceCounter != 42 || got.ComId != 2001 {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if len(payload) != 4 || payload[0] != 1 {
		t.Errorf("payload mismatch: %v", payload)
	}
}

func TestPDHeaderBitFlipCausesCRCError(t *testing.T) {
	buf := make([]byte, PDHeaderSize)
	h := &PDHeader{ProtocolVersion: ProtocolVersion, MsgType: MsgPd, ComId: 1}
	EncodePDHeader(buf, h)
	buf[0] ^= 0x01 // flip a bit in the sequence counter, CRC now stale

	_, _, err := DecodePDValidate(buf, Topo{}, false)
	if err != ErrCRC {
		t.Errorf("expected ErrCRC, got %v", err)
	}
}

func TestPDTopoFilter(t *testing.T) {
	buf := make([]byte, PDHeaderSize)
	h := &PDHeader{ProtocolVersion: ProtocolVersion, MsgType: MsgPd, ComId: 1, EtbTopoCnt: 5}
	EncodePDHeader(buf, h)

	// Wildcard filter (0,0) accepts anything.
	if _, _, err := DecodePDValidate(buf, Topo{}, false); err != nil {
		t.Errorf("wildcard filter should accept: %v", err)
	}
	// Filter requiring etb=5 accepts.
	if _, _, err := DecodePDValidate(buf, Topo{EtbTopoCnt: 5}, false); err != nil {
		t.Errorf("matching filter should accept: %v", err)
	}
	// Filter requiring etb=6 rejects.
	if _, _, err := DecodePDValidate(buf, Topo{EtbTopoCnt: 6}, false); err != ErrTopo {
		t.Errorf("mismatched filter should reject with ErrTopo, got %v", err)
	}
}

func TestPDInvalidMsgType(t *testing.T) {
	buf := make([]byte, PDHeaderSize)
	h := &PDHeader{ProtocolVersion: ProtocolVersion, MsgType: MsgType{'X', 'x'}, ComId: 1}
	EncodePDHeader(buf, h)
	_, _, err := DecodePDValidate(buf, Topo{}, false)
	if err != ErrWire {
		t.Errorf("expected ErrWire, got %v", err)
	}
}

func TestMDHeaderRoundTrip(t *testing.T) {
	buf := make([]byte, MDHeaderSize+10)
	h := &MDHeader{
		ProtocolVersion: ProtocolVersion,
		MsgType:         MsgMr,
		ComId:           9999,
		DatasetLength:   10,
		SessionID:       SessionID{1, 2, 3},
		ReplyTimeout:    1_000_000,
		SourceURI:       PutURI("trainA.dev1"),
		DestinationURI:  PutURI("trainA.dev2"),
	}
	EncodeMDHeader(buf, h)
	copy(buf[MDHeaderSize:], []byte("0123456789"))

	got, payload, err := DecodeMDValidate(buf, Topo{}, true)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got.ComId != 9999 || URIString(got.SourceURI) != "trainA.dev1" {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if string(payload) != "0123456789" {
		t.Errorf("payload mismatch: %q", payload)
	}
}

func TestSizeTooSmall(t *testing.T) {
	_, _, err := DecodePDValidate(make([]byte, 4), Topo{}, false)
	if err != ErrSize {
		t.Errorf("expected ErrSize, got %v", err)
	}
}

func TestPad4(t *testing.T) {
	cases := map[int]int{0: 0, 1: 4, 3: 4, 4: 4, 5: 8, 99: 100}
	for in, want := range cases {
		if got := Pad4(in); got != want {
			t.Errorf("pad4(%d) = %d, want %d", in, got, want)
		}
	}
}
