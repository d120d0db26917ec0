// Package pcap captures live packets via libpcap and decodes Ethernet/
// IPv4/TCP/UDP layers into network-kind Events, feeding the 5-tuple
// payload the correlation engine matches against. No teacher file
// touches packet capture, so this is grounded directly on
// gopacket/pcap's documented handle/PacketSource usage pattern rather
// than on any pack repo.
package pcap

import (
	"context"
	"fmt"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"github.com/wbrown/janus-nql/nql"
)

// Capture opens a live interface and decodes packets into Events.
type Capture struct {
	iface  string
	handle *pcap.Handle
	emit   nql.Handler
	origin *nql.Origin
}

type Config struct {
	Interface  string
	Filter     string // optional BPF expression applied at the libpcap layer
	SnapLen    int32
	Promisc    bool
	ReadTimeMs int
}

func Open(cfg Config, emit nql.Handler) (*Capture, error) {
	snapLen := cfg.SnapLen
	if snapLen <= 0 {
		snapLen = 65536
	}
	readTimeout := time.Duration(cfg.ReadTimeMs) * time.Millisecond
	if readTimeout <= 0 {
		readTimeout = 500 * time.Millisecond
	}

	handle, err := pcap.OpenLive(cfg.Interface, snapLen, cfg.Promisc, readTimeout)
	if err != nil {
		return nil, fmt.Errorf("pcap: open %s: %w", cfg.Interface, err)
	}
	if cfg.Filter != "" {
		if err := handle.SetBPFFilter(cfg.Filter); err != nil {
			handle.Close()
			return nil, fmt.Errorf("pcap: set filter %q: %w", cfg.Filter, err)
		}
	}

	return &Capture{
		iface:  cfg.Interface,
		handle: handle,
		emit:   emit,
		origin: &nql.Origin{Name: "pcap:" + cfg.Interface},
	}, nil
}

func (c *Capture) Close() {
	c.handle.Close()
}

// Run decodes packets until ctx is cancelled or the handle errors.
func (c *Capture) Run(ctx context.Context) error {
	source := gopacket.NewPacketSource(c.handle, c.handle.LinkType())
	packets := source.Packets()

	for {
		select {
		case <-ctx.Done():
			return nil
		case pkt, ok := <-packets:
			if !ok {
				return nil
			}
			if payload, ok := decode(pkt); ok {
				c.emit(nql.NewEvent(nql.KindNetwork, uint64(pkt.Metadata().Timestamp.UnixNano()), c.origin, payload))
			}
		}
	}
}

// decode extracts the 5-tuple, TCP flags, and byte length per
// SPEC_FULL.md §4.8. Non-IP or non-TCP/UDP packets are skipped.
func decode(pkt gopacket.Packet) (nql.Value, bool) {
	netLayer := pkt.NetworkLayer()
	if netLayer == nil {
		return nql.Null, false
	}
	ipv4, ok := netLayer.(*layers.IPv4)
	if !ok {
		return nql.Null, false
	}

	fields := map[string]nql.Value{
		"src_ip":  nql.NewString(ipv4.SrcIP.String()),
		"dst_ip":  nql.NewString(ipv4.DstIP.String()),
		"length":  nql.NewInt(int64(len(pkt.Data()))),
		"protocol": nql.NewString(ipv4.Protocol.String()),
	}

	transport := pkt.TransportLayer()
	switch t := transport.(type) {
	case *layers.TCP:
		fields["src_port"] = nql.NewInt(int64(t.SrcPort))
		fields["dst_port"] = nql.NewInt(int64(t.DstPort))
		fields["syn"] = nql.NewBool(t.SYN)
		fields["ack"] = nql.NewBool(t.ACK)
		fields["fin"] = nql.NewBool(t.FIN)
		fields["rst"] = nql.NewBool(t.RST)
	case *layers.UDP:
		fields["src_port"] = nql.NewInt(int64(t.SrcPort))
		fields["dst_port"] = nql.NewInt(int64(t.DstPort))
	default:
		return nql.Null, false
	}

	return nql.NewObject(fields), true
}
