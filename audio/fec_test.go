package audio

import (
	"testing"

	"github.com/cwsl/audioreceiver/fec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rawPCMParser turns a big-endian mono int16 byte slice back into an
// AudioPacket, mirroring how a recovered FEC symbol re-enters the pipeline.
type rawPCMParser struct{ mask ChannelMask }

func (p rawPCMParser) Parse(payload []byte) (Packet, bool) {
	if len(payload) != 2 {
		return nil, false
	}
	v := int16(uint16(payload[0])<<8 | uint16(payload[1]))
	return &AudioPacket{ChannelMask: p.mask, PCM: []int16{v}}, true
}

func TestFECDecoderRecoversMissingSymbolFromParity(t *testing.T) {
	mask := ChannelMask(1)
	ap0 := &AudioPacket{Seq: 0, Timestamp: 0, ChannelMask: mask, PCM: []int16{0x0102}}
	ap1 := &AudioPacket{Seq: 1, Timestamp: 1, ChannelMask: mask, PCM: []int16{0x0304}}
	repairPkt := &FECPacket{BlockID: 0, SymbolID: 0, Repair: []byte{0x07, 0x00}}

	upstream := &flatReader{packets: []Packet{ap0, ap1}}
	fecQueue := &flatReader{packets: []Packet{repairPkt}}

	d := NewFECDecoder(upstream, fecQueue, rawPCMParser{mask: mask}, fec.XORDecoder{}, FECConfig{
		Enabled: true, BlockSize: 3, BlockDeadline: 5,
	})

	p, ok := d.Read()
	require.True(t, ok)
	assert.Same(t, ap0, p)

	p, ok = d.Read()
	require.True(t, ok)
	assert.Same(t, ap1, p)

	p, ok = d.Read()
	require.True(t, ok)
	recovered := p.(*AudioPacket)
	assert.Equal(t, []int16{0x0506}, recovered.PCM)
	assert.Equal(t, uint64(1), d.RecoveredCount())

	_, ok = d.Read()
	assert.False(t, ok, "no more packets once the block has been drained")
}

func TestFECDecoderEmitsGapWhenUnrecoverable(t *testing.T) {
	mask := ChannelMask(1)
	ap0 := &AudioPacket{Seq: 0, Timestamp: 100, ChannelMask: mask, PCM: []int16{1}}

	upstream := &flatReader{packets: []Packet{ap0}}
	fecQueue := &flatReader{}

	d := NewFECDecoder(upstream, fecQueue, rawPCMParser{mask: mask}, nil, FECConfig{
		Enabled: true, BlockSize: 2, BlockDeadline: 0,
	})

	p, ok := d.Read()
	require.True(t, ok)
	assert.Same(t, ap0, p)

	p, ok = d.Read()
	require.True(t, ok)
	gap, isGap := p.(*GapPacket)
	require.True(t, isGap)
	assert.Equal(t, uint64(101), gap.Timestamp)
	assert.Equal(t, 1, gap.Frames)
	assert.Equal(t, uint64(1), d.LostCount())
}

// TestFECDecoderRecoversScenarioSixBlockWithThreeDistinctLosses reproduces
// the block-10+4 FEC scenario at the FECDecoder level: a 10-source/4-repair
// block loses 3 of its 14 symbols, each in a distinct interleaved parity
// group, so the XOR stand-in recovers all three.
func TestFECDecoderRecoversScenarioSixBlockWithThreeDistinctLosses(t *testing.T) {
	mask := ChannelMask(1)
	const (
		blockID     = 42
		blockSize   = 10
		repairCount = 4
	)

	full := make([]*AudioPacket, blockSize)
	for i := 0; i < blockSize; i++ {
		seq := uint32(blockID*blockSize + i)
		full[i] = &AudioPacket{Seq: seq, Timestamp: uint64(seq), ChannelMask: mask, PCM: []int16{int16(1000 + i)}}
	}

	repair := make(map[int][]byte, repairCount)
	for g := 0; g < repairCount; g++ {
		parity := make([]byte, 2)
		for i := 0; i < blockSize; i++ {
			if i%repairCount != g {
				continue
			}
			b := int16PCMToBytes(full[i].PCM)
			parity[0] ^= b[0]
			parity[1] ^= b[1]
		}
		repair[g] = parity
	}

	// 2, 3, 4 fall in groups 2, 3, 0 (index % 4): three distinct groups,
	// each independently solvable from its own parity symbol.
	dropped := map[int]bool{2: true, 3: true, 4: true}
	var upstreamPkts, fecPkts []Packet
	for i, ap := range full {
		if dropped[i] {
			continue
		}
		upstreamPkts = append(upstreamPkts, ap)
	}
	for g, parity := range repair {
		fecPkts = append(fecPkts, &FECPacket{BlockID: blockID, SymbolID: uint32(g), Repair: parity})
	}

	d := NewFECDecoder(&flatReader{packets: upstreamPkts}, &flatReader{packets: fecPkts}, rawPCMParser{mask: mask}, fec.XORDecoder{}, FECConfig{
		Enabled: true, BlockSize: blockSize, BlockDeadline: 5, RepairCount: repairCount,
	})

	var got []Packet
	for {
		p, ok := d.Read()
		if !ok {
			break
		}
		got = append(got, p)
	}
	require.Len(t, got, blockSize)
	for i, p := range got {
		ap, ok := p.(*AudioPacket)
		require.Truef(t, ok, "position %d should be a fully recovered audio packet, not a gap", i)
		assert.Equal(t, int16(1000+i), ap.PCM[0])
	}
	assert.Equal(t, uint64(3), d.RecoveredCount())
	assert.Equal(t, uint64(0), d.LostCount())
}

func TestFECDecoderPassesThroughWhenDisabled(t *testing.T) {
	ap0 := &AudioPacket{Seq: 0, ChannelMask: 1, PCM: []int16{1}}
	upstream := &flatReader{packets: []Packet{ap0}}

	d := NewFECDecoder(upstream, &flatReader{}, nil, nil, FECConfig{Enabled: false})

	p, ok := d.Read()
	require.True(t, ok)
	assert.Same(t, ap0, p)
}
