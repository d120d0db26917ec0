package parsers

import (
	"github.com/google/gopacket/layers"

	"github.com/wbrown/janus-nql/nql"
)

// DNS decodes a UDP payload as a DNS message and summarizes it into an
// L7 payload tree: query name/type for requests, answer records for
// responses. Returns ok=false if the payload doesn't parse as DNS.
func DNS(udpPayload []byte) (nql.Value, bool) {
	var dns layers.DNS
	if err := dns.DecodeFromBytes(udpPayload, nil); err != nil {
		return nql.Null, false
	}

	fields := map[string]nql.Value{
		"dns_id":        nql.NewInt(int64(dns.ID)),
		"dns_qr":        nql.NewBool(dns.QR),
		"dns_opcode":    nql.NewString(dns.OpCode.String()),
		"dns_rcode":     nql.NewString(dns.ResponseCode.String()),
	}

	if len(dns.Questions) > 0 {
		q := dns.Questions[0]
		fields["dns_qname"] = nql.NewString(string(q.Name))
		fields["dns_qtype"] = nql.NewString(q.Type.String())
	}

	if dns.QR && len(dns.Answers) > 0 {
		answers := make([]nql.Value, 0, len(dns.Answers))
		for _, a := range dns.Answers {
			answer := map[string]nql.Value{
				"name": nql.NewString(string(a.Name)),
				"type": nql.NewString(a.Type.String()),
				"ttl":  nql.NewInt(int64(a.TTL)),
			}
			if a.IP != nil {
				answer["ip"] = nql.NewString(a.IP.String())
			}
			answers = append(answers, nql.NewObject(answer))
		}
		fields["dns_answers"] = nql.NewArray(answers...)
	}

	return nql.NewObject(fields), true
}
