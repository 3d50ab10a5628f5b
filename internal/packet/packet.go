// Package packet reshapes a request snapshot into the flat, dictionary
// indexed layout of the Pinba request message.
package packet

import (
	"time"

	"github.com/torosent/pinba/internal/dictionary"
	"github.com/torosent/pinba/internal/snapshot"
	"github.com/torosent/pinba/internal/tags"
	"github.com/torosent/pinba/internal/timer"
	"github.com/torosent/pinba/internal/wire"
)

// Packet holds wire-ready field values. Every repeated field is non-nil so
// that dumps show empty lists rather than nulls.
type Packet struct {
	Hostname        string    `json:"hostname" yaml:"hostname"`
	ServerName      string    `json:"server_name" yaml:"server_name"`
	ScriptName      string    `json:"script_name" yaml:"script_name"`
	RequestCount    uint32    `json:"request_count" yaml:"request_count"`
	DocumentSize    uint32    `json:"document_size" yaml:"document_size"`
	MemoryPeak      uint32    `json:"memory_peak" yaml:"memory_peak"`
	RequestTime     float32   `json:"request_time" yaml:"request_time"`
	RuUtime         float32   `json:"ru_utime" yaml:"ru_utime"`
	RuStime         float32   `json:"ru_stime" yaml:"ru_stime"`
	TimerHitCount   []uint32  `json:"timer_hit_count" yaml:"timer_hit_count"`
	TimerValue      []float32 `json:"timer_value" yaml:"timer_value"`
	TimerTagCount   []uint32  `json:"timer_tag_count" yaml:"timer_tag_count"`
	TimerTagName    []uint32  `json:"timer_tag_name" yaml:"timer_tag_name"`
	TimerTagValue   []uint32  `json:"timer_tag_value" yaml:"timer_tag_value"`
	Dictionary      []string  `json:"dictionary" yaml:"dictionary"`
	Status          *uint32   `json:"status,omitempty" yaml:"status,omitempty"`
	MemoryFootprint *uint32   `json:"memory_footprint,omitempty" yaml:"memory_footprint,omitempty"`
	Requests        [][]byte  `json:"requests" yaml:"requests"`
	Schema          string    `json:"schema" yaml:"schema"`
	TagName         []uint32  `json:"tag_name" yaml:"tag_name"`
	TagValue        []uint32  `json:"tag_value" yaml:"tag_value"`
	TimerRuUtime    []float32 `json:"timer_ru_utime" yaml:"timer_ru_utime"`
	TimerRuStime    []float32 `json:"timer_ru_stime" yaml:"timer_ru_stime"`
}

// Options tune Assemble.
type Options struct {
	// OnlyStoppedTimers leaves running timers out of the packet.
	OnlyStoppedTimers bool
}

type merged struct {
	tags  tags.Tags
	value time.Duration
	hits  int
}

// Assemble flattens s. Timers with the same tag identity collapse into one
// entry whose value and hit count are the sums of the originals; the first
// occurrence supplies the tags and the position.
func Assemble(s snapshot.Snapshot, opts Options) *Packet {
	p := &Packet{
		Hostname:        s.Hostname,
		ServerName:      s.ServerName,
		ScriptName:      s.ScriptName,
		RequestCount:    s.RequestCount,
		DocumentSize:    s.DocumentSize,
		MemoryPeak:      s.MemoryPeak,
		RequestTime:     seconds(s.ElapsedTime),
		RuUtime:         seconds(s.CPUUserTime),
		RuStime:         seconds(s.CPUSystemTime),
		Status:          copyUint32(s.Status),
		MemoryFootprint: copyUint32(s.MemoryFootprint),
		Schema:          s.Schema,
		TimerHitCount:   []uint32{},
		TimerValue:      []float32{},
		TimerTagCount:   []uint32{},
		TimerTagName:    []uint32{},
		TimerTagValue:   []uint32{},
		Requests:        [][]byte{},
		TagName:         []uint32{},
		TagValue:        []uint32{},
		TimerRuUtime:    []float32{},
		TimerRuStime:    []float32{},
	}

	timers := dedup(s.Timers, opts)

	dict := dictionary.New()
	for _, m := range timers {
		pairs := m.tags.Pairs()
		p.TimerHitCount = append(p.TimerHitCount, uint32(m.hits))
		p.TimerValue = append(p.TimerValue, seconds(m.value))
		p.TimerTagCount = append(p.TimerTagCount, uint32(len(pairs)))
		for _, pair := range pairs {
			p.TimerTagName = append(p.TimerTagName, dict.Intern(pair.Key))
			p.TimerTagValue = append(p.TimerTagValue, dict.Intern(pair.Value.String()))
		}
	}
	for _, pair := range s.Tags.Pairs() {
		p.TagName = append(p.TagName, dict.Intern(pair.Key))
		p.TagValue = append(p.TagValue, dict.Intern(pair.Value.String()))
	}
	p.Dictionary = dict.Entries()
	return p
}

func dedup(views []timer.View, opts Options) []*merged {
	var (
		out   []*merged
		index = make(map[string]*merged, len(views))
	)
	for _, v := range views {
		if v.State == timer.Deleted {
			continue
		}
		if opts.OnlyStoppedTimers && v.State == timer.Running {
			continue
		}
		key := v.Tags.Identity()
		if m, ok := index[key]; ok {
			m.value += v.Value
			m.hits += v.HitCount
			continue
		}
		m := &merged{tags: v.Tags, value: v.Value, hits: v.HitCount}
		index[key] = m
		out = append(out, m)
	}
	return out
}

// Values returns the packet keyed by Pinba schema field name.
func (p *Packet) Values() wire.Values {
	v := wire.Values{
		wire.FieldHostname:      p.Hostname,
		wire.FieldServerName:    p.ServerName,
		wire.FieldScriptName:    p.ScriptName,
		wire.FieldRequestCount:  p.RequestCount,
		wire.FieldDocumentSize:  p.DocumentSize,
		wire.FieldMemoryPeak:    p.MemoryPeak,
		wire.FieldRequestTime:   p.RequestTime,
		wire.FieldRuUtime:       p.RuUtime,
		wire.FieldRuStime:       p.RuStime,
		wire.FieldTimerHitCount: p.TimerHitCount,
		wire.FieldTimerValue:    p.TimerValue,
		wire.FieldTimerTagCount: p.TimerTagCount,
		wire.FieldTimerTagName:  p.TimerTagName,
		wire.FieldTimerTagValue: p.TimerTagValue,
		wire.FieldDictionary:    p.Dictionary,
		wire.FieldRequests:      p.Requests,
		wire.FieldSchema:        p.Schema,
		wire.FieldTagName:       p.TagName,
		wire.FieldTagValue:      p.TagValue,
		wire.FieldTimerRuUtime:  p.TimerRuUtime,
		wire.FieldTimerRuStime:  p.TimerRuStime,
	}
	if p.Status != nil {
		v[wire.FieldStatus] = *p.Status
	}
	if p.MemoryFootprint != nil {
		v[wire.FieldMemoryFootprint] = *p.MemoryFootprint
	}
	return v
}

// Marshal encodes the packet with the Pinba schema.
func (p *Packet) Marshal() ([]byte, error) {
	return wire.Encode(p.Values(), wire.PinbaSchema)
}

func seconds(d time.Duration) float32 {
	return float32(d.Seconds())
}

func copyUint32(p *uint32) *uint32 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
