package audio

import (
	"log"

	"github.com/cwsl/audioreceiver/fec"
)

// FECConfig configures the FEC decode stage.
type FECConfig struct {
	Enabled       bool
	BlockSize     int // expected source symbols per block
	BlockDeadline int // Read polls a not-yet-ready block tolerates before forcing a decode attempt
	RepairCount   int // number of repair symbols the sender produces per block
}

// FECDecoder sits between the audio packet reader and the rest of the
// session chain when FEC is enabled. It groups packets by block id,
// emitting source packets as they arrive and attempting reconstruction of
// missing ones once a block is ready. When disabled it degrades to an
// identity passthrough with a one-time warning, matching spec behaviour
// for a build without FEC support.
type FECDecoder struct {
	upstream PacketReader
	fecQueue PacketReader
	parser   PacketParser
	decoder  fec.BlockDecoder
	cfg      FECConfig

	blocks map[uint32]*fecBlock
	ready  []Packet

	recovered uint64
	lost      uint64
	warned    bool
}

type fecBlock struct {
	source    map[int]*AudioPacket
	repair    map[int][]byte
	frameSize int
	age       int
}

// NewFECDecoder builds the FEC stage. decoder may be nil only when
// cfg.Enabled is false.
func NewFECDecoder(upstream, fecQueue PacketReader, parser PacketParser, decoder fec.BlockDecoder, cfg FECConfig) *FECDecoder {
	return &FECDecoder{
		upstream: upstream,
		fecQueue: fecQueue,
		parser:   parser,
		decoder:  decoder,
		cfg:      cfg,
		blocks:   make(map[uint32]*fecBlock),
	}
}

// RecoveredCount reports how many source symbols were reconstructed.
func (d *FECDecoder) RecoveredCount() uint64 { return d.recovered }

// LostCount reports how many source symbols could not be reconstructed and
// were emitted as explicit gaps.
func (d *FECDecoder) LostCount() uint64 { return d.lost }

// Read implements PacketReader.
func (d *FECDecoder) Read() (Packet, bool) {
	if !d.cfg.Enabled {
		if !d.warned {
			log.Printf("audio: fec decoder disabled at build/config time, passing through")
			d.warned = true
		}
		return d.upstream.Read()
	}

	d.ingest()
	d.drainReadyBlocks()

	if len(d.ready) == 0 {
		return nil, false
	}
	p := d.ready[0]
	d.ready = d.ready[1:]
	return p, true
}

func (d *FECDecoder) ingest() {
	for {
		p, ok := d.fecQueue.Read()
		if !ok {
			break
		}
		fp, ok := p.(*FECPacket)
		if !ok {
			continue
		}
		b := d.block(fp.BlockID)
		if b.repair == nil {
			b.repair = make(map[int][]byte)
		}
		b.repair[int(fp.SymbolID)] = fp.Repair
	}

	for {
		p, ok := d.upstream.Read()
		if !ok {
			break
		}
		ap, ok := p.(*AudioPacket)
		if !ok {
			continue
		}
		blockID := ap.Seq / uint32(d.cfg.BlockSize)
		symbolID := int(ap.Seq % uint32(d.cfg.BlockSize))
		b := d.block(blockID)
		if b.source == nil {
			b.source = make(map[int]*AudioPacket)
		}
		b.source[symbolID] = ap
		if b.frameSize == 0 {
			b.frameSize = ap.Frames()
		}
	}

	for _, b := range d.blocks {
		b.age++
	}
}

func (d *FECDecoder) block(id uint32) *fecBlock {
	b, ok := d.blocks[id]
	if !ok {
		b = &fecBlock{}
		d.blocks[id] = b
	}
	return b
}

func (d *FECDecoder) drainReadyBlocks() {
	for id, b := range d.blocks {
		receivedTotal := len(b.source) + len(b.repair)
		ready := receivedTotal >= d.cfg.BlockSize || b.age >= d.cfg.BlockDeadline
		if !ready {
			continue
		}
		d.emitBlock(id, b)
		delete(d.blocks, id)
	}
}

func (d *FECDecoder) emitBlock(id uint32, b *fecBlock) {
	var recovered map[int][]byte
	missing := d.cfg.BlockSize - len(b.source)
	if missing > 0 && d.decoder != nil {
		source := make(map[int][]byte, len(b.source))
		for i, ap := range b.source {
			source[i] = int16PCMToBytes(ap.PCM)
		}
		rec, err := d.decoder.Decode(d.cfg.BlockSize, d.cfg.RepairCount, source, b.repair)
		if err != nil {
			log.Printf("audio: fec: block %d: %v", id, err)
		}
		recovered = rec
	}

	for i := 0; i < d.cfg.BlockSize; i++ {
		if ap, ok := b.source[i]; ok {
			d.ready = append(d.ready, ap)
			continue
		}
		if raw, ok := recovered[i]; ok {
			if pkt, ok := d.parser.Parse(raw); ok {
				d.ready = append(d.ready, pkt)
				d.recovered++
				continue
			}
		}
		d.lost++
		d.ready = append(d.ready, &GapPacket{
			Timestamp: estimateGapTimestamp(b, i),
			Frames:    b.frameSize,
		})
	}
}

func estimateGapTimestamp(b *fecBlock, symbolID int) uint64 {
	for i, ap := range b.source {
		offset := symbolID - i
		return uint64(int64(ap.Timestamp) + int64(offset*b.frameSize))
	}
	return 0
}

func int16PCMToBytes(pcm []int16) []byte {
	out := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		out[2*i] = byte(s >> 8)
		out[2*i+1] = byte(s)
	}
	return out
}
