// Package environment reads the host facts a request snapshot reports when
// the caller has not overridden them: hostname, server and script name,
// memory usage and CPU time.
package environment

import (
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// Environment is the host introspection collaborator of the snapshot
// builder. Empty strings and zero values mean "unknown".
type Environment interface {
	Hostname() string
	ServerName() string
	ScriptName() string
	MemoryPeak() uint64
	MemoryFootprint() uint64
	Rusage() (user, system time.Duration)
}

// System reads the running process and its environment variables.
// ServerName and ScriptName honor the CGI style SERVER_NAME and
// SCRIPT_NAME variables; ScriptName falls back to the executable name.
type System struct{}

var _ Environment = System{}

func (System) Hostname() string {
	name, err := os.Hostname()
	if err != nil {
		return ""
	}
	return name
}

func (System) ServerName() string {
	return os.Getenv("SERVER_NAME")
}

func (System) ScriptName() string {
	if name := os.Getenv("SCRIPT_NAME"); name != "" {
		return name
	}
	if len(os.Args) > 0 {
		return filepath.Base(os.Args[0])
	}
	return ""
}

// MemoryPeak returns the peak resident set size when the platform reports
// it, else the memory obtained from the OS by the Go runtime.
func (s System) MemoryPeak() uint64 {
	if peak := maxRSS(); peak > 0 {
		return peak
	}
	return s.MemoryFootprint()
}

// MemoryFootprint returns the memory obtained from the OS by the Go runtime.
func (System) MemoryFootprint() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.Sys
}

func (System) Rusage() (user, system time.Duration) {
	return rusage()
}

// Static is an Environment with fixed answers.
type Static struct {
	Host       string
	Server     string
	Script     string
	Peak       uint64
	Footprint  uint64
	UserTime   time.Duration
	SystemTime time.Duration
}

var _ Environment = Static{}

func (s Static) Hostname() string { return s.Host }
func (s Static) ServerName() string { return s.Server }
func (s Static) ScriptName() string { return s.Script }
func (s Static) MemoryPeak() uint64 { return s.Peak }
func (s Static) MemoryFootprint() uint64 { return s.Footprint }

func (s Static) Rusage() (user, system time.Duration) {
	return s.UserTime, s.SystemTime
}
