package mdns

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/dns/dnsmessage"
)

func buildResponse(t *testing.T) []byte {
	t.Helper()
	b := dnsmessage.NewBuilder(nil, dnsmessage.Header{Response: true, Authoritative: true})
	require.NoError(t, b.StartAnswers())

	svcName, err := dnsmessage.NewName("_airplay._tcp.local.")
	require.NoError(t, err)
	instName, err := dnsmessage.NewName("Living Room._airplay._tcp.local.")
	require.NoError(t, err)
	hostName, err := dnsmessage.NewName("livingroom.local.")
	require.NoError(t, err)

	require.NoError(t, b.PTRResource(
		dnsmessage.ResourceHeader{Name: svcName, Type: dnsmessage.TypePTR, Class: dnsmessage.ClassINET, TTL: 4500},
		dnsmessage.PTRResource{PTR: instName},
	))
	require.NoError(t, b.SRVResource(
		dnsmessage.ResourceHeader{Name: instName, Type: dnsmessage.TypeSRV, Class: dnsmessage.ClassINET, TTL: 120},
		dnsmessage.SRVResource{Target: hostName, Port: 7000},
	))
	require.NoError(t, b.TXTResource(
		dnsmessage.ResourceHeader{Name: instName, Type: dnsmessage.TypeTXT, Class: dnsmessage.ClassINET, TTL: 4500},
		dnsmessage.TXTResource{TXT: []string{"deviceid=AA:BB:CC:DD:EE:FF", "model=AppleTV14,1"}},
	))
	var addr [4]byte
	copy(addr[:], net.ParseIP("192.168.1.50").To4())
	require.NoError(t, b.AResource(
		dnsmessage.ResourceHeader{Name: hostName, Type: dnsmessage.TypeA, Class: dnsmessage.ClassINET, TTL: 120},
		dnsmessage.AResource{A: addr},
	))

	buf, err := b.Finish()
	require.NoError(t, err)
	return buf
}

func TestParseResponseExtractsAllRecordKinds(t *testing.T) {
	records, err := ParseResponse(buildResponse(t))
	require.NoError(t, err)
	require.Len(t, records, 4)

	var sawPTR, sawSRV, sawTXT, sawA bool
	for _, r := range records {
		switch r.Type {
		case dnsmessage.TypePTR:
			sawPTR = true
			require.Equal(t, "Living Room._airplay._tcp.local", r.PTR)
		case dnsmessage.TypeSRV:
			sawSRV = true
			require.Equal(t, uint16(7000), r.Port)
			require.Equal(t, "livingroom.local", r.Target)
		case dnsmessage.TypeTXT:
			sawTXT = true
			require.Equal(t, "AppleTV14,1", r.TXT["model"])
		case dnsmessage.TypeA:
			sawA = true
			require.Equal(t, "192.168.1.50", r.Addr.String())
		}
	}
	require.True(t, sawPTR && sawSRV && sawTXT && sawA)
}

func TestParseResponseGoodbyeDetection(t *testing.T) {
	b := dnsmessage.NewBuilder(nil, dnsmessage.Header{Response: true})
	require.NoError(t, b.StartAnswers())
	name, err := dnsmessage.NewName("Living Room._airplay._tcp.local.")
	require.NoError(t, err)
	ptr, err := dnsmessage.NewName("gone.local.")
	require.NoError(t, err)
	require.NoError(t, b.PTRResource(
		dnsmessage.ResourceHeader{Name: name, Type: dnsmessage.TypePTR, Class: dnsmessage.ClassINET, TTL: 0},
		dnsmessage.PTRResource{PTR: ptr},
	))
	buf, err := b.Finish()
	require.NoError(t, err)

	records, err := ParseResponse(buf)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.True(t, records[0].IsGoodbye)
}
