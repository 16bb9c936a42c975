package main

import (
	"os"

	"github.com/netreach/netdiscovery/internal/netdiscovery"
	"gopkg.in/yaml.v3"
)

// rawOptions mirrors the wire shape of a NETDISCOVERY option set:
// RANGEIP/PARAM/AUTHENTICATION records. The task framework normally
// delivers this via isEnabled's contact payload; this loader exists so
// netdiscoveryd can be driven standalone from a file.
type rawOptions struct {
	Options []struct {
		RangeIP []struct {
			Start   string   `yaml:"IPSTART"`
			End     string   `yaml:"IPEND"`
			Ports   []uint16 `yaml:"PORTS"`
			Domains []string `yaml:"DOMAINS"`
			Entity  string   `yaml:"ENTITY"`
			Walk    string   `yaml:"FILE"`
		} `yaml:"RANGEIP"`
		Param []struct {
			PID              *uint32 `yaml:"PID"`
			ThreadsDiscovery *uint32 `yaml:"THREADS_DISCOVERY"`
			Timeout          *uint32 `yaml:"TIMEOUT"`
		} `yaml:"PARAM"`
		Authentication []struct {
			ID           string `yaml:"ID"`
			Version      string `yaml:"VERSION"`
			Community    string `yaml:"COMMUNITY"`
			Username     string `yaml:"USERNAME"`
			AuthPassword string `yaml:"AUTHPASSWORD"`
			AuthProtocol string `yaml:"AUTHPROTOCOL"`
			PrivPassword string `yaml:"PRIVPASSWORD"`
			PrivProtocol string `yaml:"PRIVPROTOCOL"`
		} `yaml:"AUTHENTICATION"`
	} `yaml:"options"`
}

// loadOptions reads a YAML options file and converts it into
// netdiscovery.Option values.
func loadOptions(path string) ([]netdiscovery.Option, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var raw rawOptions
	if err := yaml.NewDecoder(f).Decode(&raw); err != nil {
		return nil, err
	}

	options := make([]netdiscovery.Option, 0, len(raw.Options))
	for _, o := range raw.Options {
		opt := netdiscovery.Option{}
		for _, r := range o.RangeIP {
			opt.RangeIP = append(opt.RangeIP, netdiscovery.Range{
				Start:   r.Start,
				End:     r.End,
				Ports:   r.Ports,
				Domains: r.Domains,
				Entity:  r.Entity,
				Walk:    r.Walk,
			})
		}
		for _, p := range o.Param {
			opt.Param = append(opt.Param, netdiscovery.Param{
				PID:              p.PID,
				ThreadsDiscovery: p.ThreadsDiscovery,
				Timeout:          p.Timeout,
			})
		}
		for _, c := range o.Authentication {
			opt.Authentication = append(opt.Authentication, netdiscovery.Credential{
				ID:           c.ID,
				Version:      c.Version,
				Community:    c.Community,
				Username:     c.Username,
				AuthPassword: c.AuthPassword,
				AuthProtocol: c.AuthProtocol,
				PrivPassword: c.PrivPassword,
				PrivProtocol: c.PrivProtocol,
			})
		}
		options = append(options, opt)
	}
	return options, nil
}
