package parsers

import (
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeDNS(t *testing.T, msg *layers.DNS) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{}
	require.NoError(t, msg.SerializeTo(buf, opts))
	return buf.Bytes()
}

func TestDNS_Query(t *testing.T) {
	msg := &layers.DNS{
		ID: 42,
		QR: false,
		OpCode: layers.DNSOpCodeQuery,
		Questions: []layers.DNSQuestion{
			{Name: []byte("example.com"), Type: layers.DNSTypeA, Class: layers.DNSClassIN},
		},
	}
	v, ok := DNS(encodeDNS(t, msg))
	require.True(t, ok)

	qname, _ := v.Get("dns_qname")
	s, _ := qname.AsString()
	assert.Equal(t, "example.com", s)

	qr, _ := v.Get("dns_qr")
	b, _ := qr.AsBool()
	assert.False(t, b)
}

func TestDNS_ResponseWithAnswer(t *testing.T) {
	msg := &layers.DNS{
		ID: 7,
		QR: true,
		OpCode: layers.DNSOpCodeQuery,
		Questions: []layers.DNSQuestion{
			{Name: []byte("example.com"), Type: layers.DNSTypeA, Class: layers.DNSClassIN},
		},
		Answers: []layers.DNSResourceRecord{
			{
				Name:  []byte("example.com"),
				Type:  layers.DNSTypeA,
				Class: layers.DNSClassIN,
				TTL:   300,
				IP:    net.ParseIP("93.184.216.34").To4(),
			},
		},
	}
	v, ok := DNS(encodeDNS(t, msg))
	require.True(t, ok)

	answers, ok := v.Get("dns_answers")
	require.True(t, ok)
	require.Len(t, answers.Elements(), 1)
	ip, ok := answers.Elements()[0].Get("ip")
	require.True(t, ok)
	s, _ := ip.AsString()
	assert.Equal(t, "93.184.216.34", s)
}

func TestDNS_MalformedPayloadReturnsFalse(t *testing.T) {
	_, ok := DNS([]byte{0x01, 0x02, 0x03})
	assert.False(t, ok)
}
