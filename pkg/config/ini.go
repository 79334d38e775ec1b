package config

import (
	"time"

	"gopkg.in/ini.v1"
)

// LoadFile reads a session configuration from an INI file, overlaying
// values onto Default(). Grounded on the teacher's pkg/od/parser.go,
// which loads an EDS the same way via ini.Load; here the sections are
// [session], [pd] and [md] instead of CANopen object entries. This is
// deliberately NOT the XML configuration format TRDP tooling usually
// ships with (spec.md §1 names the XML parser an external collaborator);
// it is a convenience loader for this module's own defaults.
func LoadFile(path string) (Session, error) {
	cfg := Default()
	f, err := ini.Load(path)
	if err != nil {
		return cfg, err
	}

	if sec, err := f.GetSection("session"); err == nil {
		if k, err := sec.GetKey("cycle_time_us"); err == nil {
			if us, err := k.Int64(); err == nil {
				cfg.CycleTime = time.Duration(us) * time.Microsecond
			}
		}
		if k, err := sec.GetKey("host_name"); err == nil {
			cfg.HostName = k.String()
		}
		if k, err := sec.GetKey("leader_name"); err == nil {
			cfg.LeaderName = k.String()
		}
	}

	if sec, err := f.GetSection("pd"); err == nil {
		if k, err := sec.GetKey("timeout_us"); err == nil {
			if us, err := k.Int64(); err == nil {
				cfg.PDDefault.Timeout = time.Duration(us) * time.Microsecond
			}
		}
	}

	if sec, err := f.GetSection("md"); err == nil {
		if k, err := sec.GetKey("reply_timeout_us"); err == nil {
			if us, err := k.Int64(); err == nil {
				cfg.MDDefault.ReplyTimeout = time.Duration(us) * time.Microsecond
			}
		}
		if k, err := sec.GetKey("confirm_timeout_us"); err == nil {
			if us, err := k.Int64(); err == nil {
				cfg.MDDefault.ConfirmTimeout = time.Duration(us) * time.Microsecond
			}
		}
		if k, err := sec.GetKey("tcp_port"); err == nil {
			if p, err := k.Int(); err == nil {
				cfg.MDDefault.TCPPort = p
			}
		}
		if k, err := sec.GetKey("udp_port"); err == nil {
			if p, err := k.Int(); err == nil {
				cfg.MDDefault.UDPPort = p
			}
		}
	}

	return cfg, nil
}
