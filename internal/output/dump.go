package output

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/torosent/pinba/internal/packet"
)

// Format selects how a packet is dumped.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatHex  Format = "hex"
)

// ParseFormat validates a user supplied format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatText, FormatJSON, FormatYAML, FormatHex:
		return f, nil
	case "":
		return FormatText, nil
	default:
		return "", fmt.Errorf("unknown dump format %q (want text, json, yaml or hex)", s)
	}
}

// WritePacket renders p to w in the given format.
func WritePacket(w io.Writer, p *packet.Packet, format Format) error {
	switch format {
	case FormatText, "":
		return writeText(w, p)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(p); err != nil {
			return err
		}
		return enc.Close()
	case FormatHex:
		raw, err := p.Marshal()
		if err != nil {
			return fmt.Errorf("encode packet: %w", err)
		}
		_, err = io.WriteString(w, hex.Dump(raw))
		return err
	default:
		return fmt.Errorf("unknown dump format %q", format)
	}
}

func writeText(w io.Writer, p *packet.Packet) error {
	var b strings.Builder
	fmt.Fprintf(&b, "hostname:         %s\n", p.Hostname)
	fmt.Fprintf(&b, "server_name:      %s\n", p.ServerName)
	fmt.Fprintf(&b, "script_name:      %s\n", p.ScriptName)
	if p.Schema != "" {
		fmt.Fprintf(&b, "schema:           %s\n", p.Schema)
	}
	fmt.Fprintf(&b, "request_count:    %d\n", p.RequestCount)
	fmt.Fprintf(&b, "request_time:     %.6f\n", p.RequestTime)
	fmt.Fprintf(&b, "document_size:    %d\n", p.DocumentSize)
	fmt.Fprintf(&b, "memory_peak:      %d\n", p.MemoryPeak)
	if p.MemoryFootprint != nil {
		fmt.Fprintf(&b, "memory_footprint: %d\n", *p.MemoryFootprint)
	}
	if p.Status != nil {
		fmt.Fprintf(&b, "status:           %d\n", *p.Status)
	}
	fmt.Fprintf(&b, "ru_utime:         %.6f\n", p.RuUtime)
	fmt.Fprintf(&b, "ru_stime:         %.6f\n", p.RuStime)

	if len(p.TagName) > 0 {
		b.WriteString("tags:\n")
		for i := range p.TagName {
			fmt.Fprintf(&b, "  %s=%s\n", lookup(p.Dictionary, p.TagName[i]), lookup(p.Dictionary, p.TagValue[i]))
		}
	}

	if len(p.TimerValue) > 0 {
		b.WriteString("timers:\n")
		offset := 0
		for i, value := range p.TimerValue {
			n := int(p.TimerTagCount[i])
			pairs := make([]string, 0, n)
			for j := offset; j < offset+n && j < len(p.TimerTagName); j++ {
				pairs = append(pairs, lookup(p.Dictionary, p.TimerTagName[j])+"="+lookup(p.Dictionary, p.TimerTagValue[j]))
			}
			offset += n
			fmt.Fprintf(&b, "  - value=%.6f hits=%d %s\n", value, p.TimerHitCount[i], strings.Join(pairs, ","))
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func lookup(dict []string, idx uint32) string {
	if int(idx) >= len(dict) {
		return fmt.Sprintf("#%d?", idx)
	}
	return dict[idx]
}
