package mdns

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/dns/dnsmessage"
)

func TestBuildQueryBundlesAllServices(t *testing.T) {
	packets, err := BuildQuery(1, []string{"_airplay._tcp", "_raop._tcp"})
	require.NoError(t, err)
	require.Len(t, packets, 1)

	var parser dnsmessage.Parser
	hdr, err := parser.Start(packets[0])
	require.NoError(t, err)
	require.Equal(t, uint16(1), hdr.ID)

	questions, err := parser.AllQuestions()
	require.NoError(t, err)
	// two requested services + the device-info pseudo-record
	require.Len(t, questions, 3)
}

func TestBuildQuerySplitsWhenOversized(t *testing.T) {
	var many []string
	for i := 0; i < 200; i++ {
		many = append(many, "_service-number-"+string(rune('a'+i%26))+"._tcp")
	}
	packets, err := BuildQuery(2, many)
	require.NoError(t, err)
	require.Greater(t, len(packets), 1)
	for _, p := range packets {
		require.LessOrEqual(t, len(p), MaxPacketSize)
	}
}

func TestDNSNameAppendsLocalSuffix(t *testing.T) {
	require.Equal(t, "_airplay._tcp.local.", dnsName("_airplay._tcp"))
	require.Equal(t, "_airplay._tcp.local.", dnsName("_airplay._tcp.local."))
}
