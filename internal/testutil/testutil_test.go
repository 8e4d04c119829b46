package testutil

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/atvkit/atvkit/internal/codec/dmaptlv"
	"github.com/atvkit/atvkit/internal/codec/rtpframe"
	"github.com/atvkit/atvkit/internal/dmap"
)

// TestFakeDMAPServerLongPollDeliversUpdatesInOrder exercises scenario 2
// (§8): a client long-polling playstatusupdate observes revision 1's
// title, then, once the server advances mid-poll, revision 2's title —
// in that order and nothing in between.
func TestFakeDMAPServerLongPollDeliversUpdatesInOrder(t *testing.T) {
	server := NewFakeDMAPServer(t, FakeDMAPTrack{Title: "t1", Revision: 1})

	client, err := dmap.Dial(server.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	require.NoError(t, client.Login("0xDEADBEEF", ""))

	rev, nodes, err := client.PlayStatus(0)
	require.NoError(t, err)
	require.Equal(t, 1, rev)
	title, ok := dmaptlv.Find(nodes, "cann")
	require.True(t, ok)
	require.Equal(t, "t1", title.Value)

	go func() {
		time.Sleep(50 * time.Millisecond)
		server.Advance(FakeDMAPTrack{Title: "t2", Revision: 2})
	}()

	rev, nodes, err = client.PlayStatus(rev)
	require.NoError(t, err)
	require.Equal(t, 2, rev)
	title, ok = dmaptlv.Find(nodes, "cann")
	require.True(t, ok)
	require.Equal(t, "t2", title.Value)
}

// TestFakeRAOPReceiverRecordsAndAnswersRetransmit exercises the
// harness itself: a simulated streamer sends framed audio packets to
// the receiver, drops one, and answers the receiver's NACK for it —
// the same shape internal/raop's own sender drives in response to a
// real NACK (see scenario 5, §8).
func TestFakeRAOPReceiverRecordsAndAnswersRetransmit(t *testing.T) {
	receiver := NewFakeRAOPReceiver(t)
	t.Cleanup(func() { receiver.Close() })

	streamerControl := NewLoopbackUDP(t)
	t.Cleanup(func() { streamerControl.Close() })

	sent := make(map[uint16][]byte)
	for seq := uint16(0); seq < 5; seq++ {
		hdr := rtpframe.Header{SequenceNumber: seq}
		payload := []byte{byte(seq), byte(seq + 1)}
		packet := hdr.Encode(payload)
		sent[seq] = payload
		if seq == 2 {
			continue // simulate a dropped packet
		}
		_, err := receiver.audio.WriteToUDP(packet, receiver.AudioAddr())
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		return len(receiver.ReceivedSequences()) == 4
	}, time.Second, 10*time.Millisecond)

	go func() {
		buf := make([]byte, 2048)
		n, addr, err := streamerControl.ReadFromUDP(buf)
		if err != nil {
			return
		}
		req, err := rtpframe.DecodeRetransmitRequest(buf[:n])
		if err != nil {
			return
		}
		hdr := rtpframe.Header{SequenceNumber: req.FirstSequence}
		resent := rtpframe.EncodeRetransmit(req.FirstSequence, hdr.Encode(sent[req.FirstSequence]))
		_, _ = streamerControl.WriteToUDP(resent, addr)
	}()

	require.NoError(t, receiver.RequestRetransmit(streamerControl.LocalAddr().(*net.UDPAddr), 2, 1))
	seq, payload, err := receiver.ReadRetransmit()
	require.NoError(t, err)
	require.EqualValues(t, 2, seq)
	require.Equal(t, sent[2], payload)
}
