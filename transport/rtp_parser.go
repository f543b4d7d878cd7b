package transport

import (
	"github.com/pion/rtp"

	"github.com/cwsl/audioreceiver/audio"
)

// RTP payload type values distinguishing audio from FEC repair symbols on
// the wire. These sit in the dynamic payload type range (96-127) the RTP
// profile reserves for application use.
const (
	PayloadTypeAudio = 97
	PayloadTypeFEC   = 98
)

// RTPParser implements audio.PacketParser by unmarshalling RTP packets
// with pion/rtp and mapping PayloadType to the audio/FEC packet variant,
// adapted from the source SDR server's routeAudio demux to the
// channel-interleaved PCM and repair-symbol payloads this core expects.
// The RTP SSRC is not read; sessions are keyed by the datagram's source
// address.
type RTPParser struct {
	channels   audio.ChannelMask
	sampleRate int
}

// NewRTPParser builds a parser for a port carrying mask's channels.
func NewRTPParser(mask audio.ChannelMask, sampleRate int) *RTPParser {
	return &RTPParser{channels: mask, sampleRate: sampleRate}
}

// Parse implements audio.PacketParser.
func (p *RTPParser) Parse(payload []byte) (audio.Packet, bool) {
	if len(payload) < 12 {
		return nil, false
	}

	var pkt rtp.Packet
	if err := pkt.Unmarshal(payload); err != nil {
		return nil, false
	}

	switch pkt.PayloadType {
	case PayloadTypeAudio:
		return p.parseAudio(&pkt)
	case PayloadTypeFEC:
		return p.parseFEC(&pkt)
	default:
		return nil, false
	}
}

func (p *RTPParser) parseAudio(pkt *rtp.Packet) (audio.Packet, bool) {
	if len(pkt.Payload)%2 != 0 {
		return nil, false
	}
	pcm := make([]int16, len(pkt.Payload)/2)
	for i := range pcm {
		pcm[i] = int16(uint16(pkt.Payload[2*i])<<8 | uint16(pkt.Payload[2*i+1]))
	}
	return &audio.AudioPacket{
		Seq:         uint32(pkt.SequenceNumber),
		Timestamp:   uint64(pkt.Timestamp),
		ChannelMask: p.channels,
		PCM:         pcm,
	}, true
}

// parseFEC expects an 8-byte header (big-endian BlockID, SymbolID)
// prepended to the raw repair symbol bytes.
func (p *RTPParser) parseFEC(pkt *rtp.Packet) (audio.Packet, bool) {
	if len(pkt.Payload) < 8 {
		return nil, false
	}
	blockID := beUint32(pkt.Payload[0:4])
	symbolID := beUint32(pkt.Payload[4:8])
	repair := make([]byte, len(pkt.Payload)-8)
	copy(repair, pkt.Payload[8:])
	return &audio.FECPacket{
		BlockID:  blockID,
		SymbolID: symbolID,
		Repair:   repair,
	}, true
}

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
