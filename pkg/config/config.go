// Package config holds the typed configuration structs of spec.md §6, in
// the style of the teacher's pkg/config getter/setter types: small,
// focused structs rather than one monolithic options bag.
package config

import "time"

// OptionFlags are the per-session option flags of spec.md §6.
type OptionFlags uint32

const (
	OptionBlock OptionFlags = 1 << iota
	OptionNoReuseAddr
	OptionTrafficShaping
	OptionNoMcLoop
	OptionNoUdpChk
)

// TimeoutBehavior is one of the three PD subscriber timeout policies of
// spec.md §3 "Subscriber entry".
type TimeoutBehavior int

const (
	KeepLastValue TimeoutBehavior = iota
	ZeroOnTimeout
	Invalidate
)

// SendParams mirrors trdp.SendParams at the config layer, so callers can
// build a session purely from this package without importing the root
// package's socket internals.
type SendParams struct {
	QoS     uint8
	TTL     uint8
	TSN     bool
	Vlan    uint16
	Retries uint8
}

// MDDefault is the `mdDefault` block of spec.md §6.
type MDDefault struct {
	ReplyTimeout     time.Duration
	ConfirmTimeout   time.Duration
	ConnectTimeout   time.Duration
	SendingTimeout   time.Duration
	Retries          uint8
	QoS              uint8
	TTL              uint8
	TCPPort          int
	UDPPort          int
	MaxNumSessions   int
	Flags            OptionFlags
}

// PDDefault is the `pdDefault` block of spec.md §6.
type PDDefault struct {
	Flags           OptionFlags
	Timeout         time.Duration
	TimeoutBehavior TimeoutBehavior
	SendParams      SendParams
}

// Session is the full per-session configuration of spec.md §6.
type Session struct {
	CycleTime    time.Duration
	HostName     string
	LeaderName   string
	OptionFlags  OptionFlags
	MDDefault    MDDefault
	PDDefault    PDDefault
}

// Default returns the configuration the teacher's own examples use as a
// starting point: modest cycle time, generous timeouts, UDP-only.
func Default() Session {
	return Session{
		CycleTime:  10 * time.Millisecond,
		OptionFlags: OptionBlock,
		MDDefault: MDDefault{
			ReplyTimeout:   1 * time.Second,
			ConfirmTimeout: 1 * time.Second,
			ConnectTimeout: 5 * time.Second,
			SendingTimeout: 500 * time.Millisecond,
			Retries:        2,
			TCPPort:        17225,
			UDPPort:        17225,
			MaxNumSessions: 1024,
		},
		PDDefault: PDDefault{
			Timeout:         1200 * time.Millisecond,
			TimeoutBehavior: KeepLastValue,
		},
	}
}
