//go:build pcap
// +build pcap

// Package pcapsrc replays recorded UDP captures through the same decoding
// path the live transport.Listener uses, for integration tests and offline
// replay tooling. It requires libpcap and is only built with the "pcap"
// build tag.
package pcapsrc

import (
	"context"
	"fmt"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"github.com/seawatch/trackhub/internal/command"
	"github.com/seawatch/trackhub/internal/telemetry"
	"github.com/seawatch/trackhub/internal/transport"
)

// ReplayFile reads udpPort's UDP payloads out of a pcap capture at path and
// forwards each one, decoded, to sink, in capture order. It returns once
// the file is exhausted or ctx is cancelled.
func ReplayFile(ctx context.Context, path string, udpPort int, sink transport.Sink) error {
	handle, err := pcap.OpenOffline(path)
	if err != nil {
		return fmt.Errorf("pcapsrc: open %s: %w", path, err)
	}
	defer handle.Close()

	filter := fmt.Sprintf("udp port %d", udpPort)
	if err := handle.SetBPFFilter(filter); err != nil {
		return fmt.Errorf("pcapsrc: set BPF filter %q: %w", filter, err)
	}

	source := gopacket.NewPacketSource(handle, handle.LinkType())
	start := time.Now()
	count := 0

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case packet := <-source.Packets():
			if packet == nil {
				telemetry.Logf("pcapsrc: replay of %s complete: %d packets in %v", path, count, time.Since(start))
				return nil
			}
			count++

			udpLayer := packet.Layer(layers.LayerTypeUDP)
			if udpLayer == nil {
				continue
			}
			udp, ok := udpLayer.(*layers.UDP)
			if !ok || len(udp.Payload) == 0 {
				continue
			}

			update, err := transport.DecodeObservation(udp.Payload)
			if err != nil {
				telemetry.Logf("pcapsrc: skipping packet %d: %v", count, err)
				continue
			}
			if err := sink.AddPoints([]command.AddPointUpdate{update}); err != nil {
				telemetry.Logf("pcapsrc: AddPoints rejected packet %d: %v", count, err)
			}
		}
	}
}
