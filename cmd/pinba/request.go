package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/tidwall/gjson"

	"github.com/torosent/pinba/internal/session"
	"github.com/torosent/pinba/internal/tags"
)

// request is one measured request described on the command line or in a
// JSON document.
type request struct {
	Tags         tags.Tags
	Timers       []timerInput
	RequestTime  *time.Duration
	Status       *uint32
	DocumentSize *uint32
	MemoryPeak   *uint32
	RequestCount *uint32
}

type timerInput struct {
	Tags  tags.Tags
	Value time.Duration
	Hits  int
}

// requestFlags are the flags shared by send and dump.
type requestFlags struct {
	tags     []string
	timers   []string
	jsonPath string
}

func (f *requestFlags) register(fs *pflag.FlagSet) {
	fs.StringArrayVar(&f.tags, "tag", nil, "Request tag as key=value (repeatable)")
	fs.StringArrayVar(&f.timers, "timer", nil, "Timer as 'k=v,k2=v2:seconds[:hits]' (repeatable)")
	fs.StringVar(&f.jsonPath, "json", "", "Read the request from a JSON file ('-' for stdin)")
}

// load merges the JSON document, if any, with the flag values. Flag tags
// override document tags; flag timers are appended.
func (f *requestFlags) load() (request, error) {
	var req request
	if f.jsonPath != "" {
		data, err := readInput(f.jsonPath)
		if err != nil {
			return request{}, err
		}
		if req, err = parseJSONRequest(data); err != nil {
			return request{}, fmt.Errorf("%s: %w", f.jsonPath, err)
		}
	}
	for _, raw := range f.tags {
		key, value, err := parseTag(raw)
		if err != nil {
			return request{}, err
		}
		req.Tags.Set(key, value)
	}
	for _, raw := range f.timers {
		ti, err := parseTimer(raw)
		if err != nil {
			return request{}, err
		}
		req.Timers = append(req.Timers, ti)
	}
	return req, nil
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

// parseTag parses "key=value". Numeric values stay strings: the wire form
// of a tag is text either way.
func parseTag(raw string) (string, tags.Value, error) {
	key, value, ok := strings.Cut(raw, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", tags.Value{}, fmt.Errorf("invalid tag %q: want key=value", raw)
	}
	if err := tags.ValidateKey(key); err != nil {
		return "", tags.Value{}, fmt.Errorf("invalid tag %q: %w", raw, err)
	}
	return key, tags.String(strings.TrimSpace(value)), nil
}

// parseTimer parses "k=v,k2=v2:seconds[:hits]".
func parseTimer(raw string) (timerInput, error) {
	parts := strings.Split(raw, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return timerInput{}, fmt.Errorf("invalid timer %q: want 'k=v,k2=v2:seconds[:hits]'", raw)
	}

	var t tags.Tags
	for _, pair := range strings.Split(parts[0], ",") {
		key, value, err := parseTag(pair)
		if err != nil {
			return timerInput{}, fmt.Errorf("timer %q: %w", raw, err)
		}
		t.Set(key, value)
	}

	secs, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return timerInput{}, fmt.Errorf("timer %q: invalid seconds: %w", raw, err)
	}

	hits := 1
	if len(parts) == 3 {
		if hits, err = strconv.Atoi(strings.TrimSpace(parts[2])); err != nil {
			return timerInput{}, fmt.Errorf("timer %q: invalid hits: %w", raw, err)
		}
	}
	return timerInput{Tags: t, Value: seconds(secs), Hits: hits}, nil
}

// parseJSONRequest reads documents shaped like
//
//	{"tags": {"app": "shop"},
//	 "timers": [{"tags": {"group": "db"}, "value": 1.5, "hits": 2}],
//	 "request_time": 0.2, "status": 200, "document_size": 512}
func parseJSONRequest(data []byte) (request, error) {
	if !gjson.ValidBytes(data) {
		return request{}, fmt.Errorf("invalid JSON")
	}
	doc := gjson.ParseBytes(data)

	var req request
	var err error
	if req.Tags, err = jsonTags(doc.Get("tags")); err != nil {
		return request{}, err
	}

	doc.Get("timers").ForEach(func(_, item gjson.Result) bool {
		var t tags.Tags
		if t, err = jsonTags(item.Get("tags")); err != nil {
			return false
		}
		hits := 1
		if h := item.Get("hits"); h.Exists() {
			hits = int(h.Int())
		}
		req.Timers = append(req.Timers, timerInput{Tags: t, Value: seconds(item.Get("value").Float()), Hits: hits})
		return true
	})
	if err != nil {
		return request{}, err
	}

	if v := doc.Get("request_time"); v.Exists() {
		d := seconds(v.Float())
		req.RequestTime = &d
	}
	req.Status = jsonUint32(doc.Get("status"))
	req.DocumentSize = jsonUint32(doc.Get("document_size"))
	req.MemoryPeak = jsonUint32(doc.Get("memory_peak"))
	req.RequestCount = jsonUint32(doc.Get("request_count"))
	return req, nil
}

// jsonTags converts a JSON object into Tags, keeping document order.
func jsonTags(obj gjson.Result) (tags.Tags, error) {
	var t tags.Tags
	if !obj.Exists() {
		return t, nil
	}
	if !obj.IsObject() {
		return t, fmt.Errorf("tags must be an object, got %s", obj.Type)
	}
	var err error
	obj.ForEach(func(k, v gjson.Result) bool {
		var value tags.Value
		switch v.Type {
		case gjson.String:
			value = tags.String(v.Str)
		case gjson.True, gjson.False:
			value = tags.Bool(v.Bool())
		case gjson.Number:
			if strings.ContainsAny(v.Raw, ".eE") {
				value = tags.Float(v.Num)
			} else {
				value = tags.Int(v.Int())
			}
		default:
			err = fmt.Errorf("tag %q: %w", k.Str, tags.ErrNonScalar)
			return false
		}
		t.Set(k.Str, value)
		return true
	})
	return t, err
}

func jsonUint32(v gjson.Result) *uint32 {
	if !v.Exists() {
		return nil
	}
	n := uint32(v.Uint())
	return &n
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// apply records req on c.
func (req request) apply(c *session.Client) error {
	for _, p := range req.Tags.Pairs() {
		if err := c.SetTag(p.Key, p.Value); err != nil {
			return err
		}
	}
	for _, ti := range req.Timers {
		if _, err := c.AddTimer(ti.Tags, ti.Value, ti.Hits); err != nil {
			return err
		}
	}
	if req.RequestTime != nil {
		c.SetRequestTime(*req.RequestTime)
	}
	if req.Status != nil {
		c.SetStatus(*req.Status)
	}
	if req.DocumentSize != nil {
		c.SetDocumentSize(*req.DocumentSize)
	}
	if req.MemoryPeak != nil {
		c.SetMemoryPeak(*req.MemoryPeak)
	}
	if req.RequestCount != nil {
		c.SetRequestCount(*req.RequestCount)
	}
	return nil
}
