package answerer

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"log/slog"
	"net"
	"time"

	"github.com/pion/rtp"
	"github.com/zaf/g711"
)

// PCMU frame geometry: 8kHz, 20ms packets, one byte per sample.
const (
	frameDuration   = 20 * time.Millisecond
	samplesPerFrame = 160
	pcmuPayloadType = 0
)

// silencePayload is one 20ms frame of µ-law encoded silence.
var silencePayload = g711.EncodeUlaw(make([]byte, samplesPerFrame*2))

// silenceStream writes clock-paced PCMU silence to the caller's RTP
// endpoint for as long as the call is up. It keeps the media path of
// the device under test exercised without needing audio files.
type silenceStream struct {
	conn   net.PacketConn
	remote net.Addr

	ssrc      uint32
	seq       uint16
	timestamp uint32
}

func newSilenceStream(conn net.PacketConn, remote net.Addr) *silenceStream {
	return &silenceStream{
		conn:      conn,
		remote:    remote,
		ssrc:      randomSSRC(),
		seq:       randomSequenceStart(),
		timestamp: randomTimestampStart(),
	}
}

// run sends frames until ctx is cancelled. Intended to be called on
// its own goroutine per call.
func (s *silenceStream) run(ctx context.Context) {
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.writeFrame(); err != nil {
				slog.Debug("[Answerer] RTP write failed, stopping stream", "error", err)
				return
			}
		}
	}
}

func (s *silenceStream) writeFrame() error {
	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    pcmuPayloadType,
			SequenceNumber: s.seq,
			Timestamp:      s.timestamp,
			SSRC:           s.ssrc,
		},
		Payload: silencePayload,
	}

	data, err := pkt.Marshal()
	if err != nil {
		return err
	}
	if _, err := s.conn.WriteTo(data, s.remote); err != nil {
		return err
	}

	s.seq++
	s.timestamp += samplesPerFrame
	return nil
}

// randomSSRC picks a random 32-bit SSRC per RFC 3550.
func randomSSRC() uint32 {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0x6c6f6164
	}
	return binary.BigEndian.Uint32(b[:])
}

func randomSequenceStart() uint16 {
	var b [2]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0
	}
	return binary.BigEndian.Uint16(b[:])
}

func randomTimestampStart() uint32 {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0
	}
	return binary.BigEndian.Uint32(b[:])
}
