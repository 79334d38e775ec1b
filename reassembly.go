package trdp

import "github.com/tallowtrack/gotrdp/pkg/packet"

// ReadState is a per-TCP-connection reassembly state machine (spec.md §4.4
// "TCP specifics" / §9 design note): the MD header is read first, then
// the declared payload, with partial reads preserved across calls. This
// plays the role the teacher's internal/fifo circular buffer plays for
// SDO segmented transfer, but TRDP's MD payload is sent as one contiguous
// block over a byte stream, so the state machine only needs to track how
// much of the header and of the declared payload have arrived so far.
type ReadState struct {
	header    [packet.MDHeaderSize]byte
	headerLen int
	needData  bool
	want      int
	payload   []byte
	payloadAt int
}

// NewReadState creates an empty reassembly state, initially expecting a
// header.
func NewReadState() *ReadState {
	return &ReadState{}
}

// Feed appends newly-read bytes from the TCP stream and returns every
// complete MD message assembled so far (there may be more than one if a
// single read spans several messages back to back). Leftover partial
// bytes remain buffered in the ReadState across calls.
func (r *ReadState) Feed(chunk []byte) ([][]byte, error) {
	var out [][]byte
	for len(chunk) > 0 {
		if !r.needData {
			n := copy(r.header[r.headerLen:], chunk)
			r.headerLen += n
			chunk = chunk[n:]
			if r.headerLen < packet.MDHeaderSize {
				continue
			}
			h, _, err := packet.DecodeMDValidate(r.header[:], packet.Topo{}, false)
			if err != nil {
				return out, err
			}
			r.want = int(h.DatasetLength)
			// Growable buffer: if the pool's staging buffer is smaller
			// than the announced datasetLength, it is grown to fit
			// (spec.md §4.4 "existing buffers are grown to fit").
			r.payload = make([]byte, packet.MDHeaderSize+r.want)
			copy(r.payload, r.header[:])
			r.payloadAt = packet.MDHeaderSize
			r.needData = true
		}
		n := copy(r.payload[r.payloadAt:], chunk)
		r.payloadAt += n
		chunk = chunk[n:]
		if r.payloadAt >= len(r.payload) {
			out = append(out, r.payload)
			r.reset()
		}
	}
	return out, nil
}

func (r *ReadState) reset() {
	r.headerLen = 0
	r.needData = false
	r.want = 0
	r.payload = nil
	r.payloadAt = 0
}
