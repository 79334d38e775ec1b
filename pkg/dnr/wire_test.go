package dnr

import "testing"

func TestRequestRoundTrip(t *testing.T) {
	want := []string{"devDNS.anyVeh.lCst.lClTrn.lTrn", "devECSP.anyVeh.lCst.lClTrn.lTrn"}
	got, err := DecodeRequest(EncodeRequest(want))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[1] != want[1] {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestReplyRoundTrip(t *testing.T) {
	want := []Entry{
		{URI: "devECSP.anyVeh.lCst.lClTrn.lTrn", IP: 0x0A000001, EtbTopoCnt: 1, OpTrnTopoCnt: 2},
	}
	got, err := DecodeReply(EncodeReply(want))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0] != want[0] {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestDecodeRejectsTruncatedPayloads(t *testing.T) {
	if _, err := DecodeRequest([]byte{0}); err != errShortPayload {
		t.Fatalf("expected errShortPayload, got %v", err)
	}
	if _, err := DecodeReply([]byte{0}); err != errShortPayload {
		t.Fatalf("expected errShortPayload, got %v", err)
	}
}
