package sccp

import (
	"fmt"
	"strings"
)

// Provisioning is the administrative description of lines and devices.
type Provisioning struct {
	Lines   []LineConfig   `json:"lines" yaml:"lines"`
	Devices []DeviceConfig `json:"devices" yaml:"devices"`
}

type LineConfig struct {
	Name               string `json:"name" yaml:"name"`
	Label              string `json:"label,omitempty" yaml:"label,omitempty"`
	CallerIDName       string `json:"cid_name,omitempty" yaml:"cid_name,omitempty"`
	CallerIDNumber     string `json:"cid_num,omitempty" yaml:"cid_num,omitempty"`
	IncomingLimit      int    `json:"incoming_limit,omitempty" yaml:"incoming_limit,omitempty"`
	ForwardAll         string `json:"forward_all,omitempty" yaml:"forward_all,omitempty"`
	ForwardBusy        string `json:"forward_busy,omitempty" yaml:"forward_busy,omitempty"`
	SubscriptionNumber string `json:"subscription_number,omitempty" yaml:"subscription_number,omitempty"`
	SubscriptionName   string `json:"subscription_name,omitempty" yaml:"subscription_name,omitempty"`
}

type DeviceConfig struct {
	ID          string         `json:"id" yaml:"id"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	NAT         bool           `json:"nat,omitempty" yaml:"nat,omitempty"`
	Keepalive   int            `json:"keepalive,omitempty" yaml:"keepalive,omitempty"` // seconds, 0 = server default
	Buttons     []ButtonConfig `json:"buttons,omitempty" yaml:"buttons,omitempty"`
}

// Button types.
const (
	ButtonLine      = "line"
	ButtonSpeedDial = "speeddial"
)

// ButtonConfig is one programmable button. Line buttons may override the
// line's subscription id and forwarding for this device.
type ButtonConfig struct {
	Type               string `json:"type" yaml:"type"`
	Line               string `json:"line,omitempty" yaml:"line,omitempty"`
	SubscriptionNumber string `json:"subscription_number,omitempty" yaml:"subscription_number,omitempty"`
	SubscriptionName   string `json:"subscription_name,omitempty" yaml:"subscription_name,omitempty"`
	ForwardAll         string `json:"forward_all,omitempty" yaml:"forward_all,omitempty"`
	Number             string `json:"number,omitempty" yaml:"number,omitempty"`
	Label              string `json:"label,omitempty" yaml:"label,omitempty"`
}

// Validate checks names are present and unique and that line buttons point
// at configured lines.
func (p *Provisioning) Validate() error {
	lines := make(map[string]bool, len(p.Lines))
	for i, l := range p.Lines {
		if l.Name == "" {
			return fmt.Errorf("line %d: name is required", i)
		}
		if strings.ContainsAny(l.Name, "@/:") {
			return fmt.Errorf("line %q: name must not contain '@', '/' or ':'", l.Name)
		}
		if lines[l.Name] {
			return fmt.Errorf("line %q: duplicate name", l.Name)
		}
		if l.IncomingLimit < 0 {
			return fmt.Errorf("line %q: incoming_limit must not be negative", l.Name)
		}
		lines[l.Name] = true
	}

	devices := make(map[string]bool, len(p.Devices))
	for i, d := range p.Devices {
		if d.ID == "" {
			return fmt.Errorf("device %d: id is required", i)
		}
		if len(d.ID) > 15 {
			return fmt.Errorf("device %q: id longer than 15 characters", d.ID)
		}
		if devices[d.ID] {
			return fmt.Errorf("device %q: duplicate id", d.ID)
		}
		devices[d.ID] = true
		for j, b := range d.Buttons {
			switch b.Type {
			case ButtonLine:
				if !lines[b.Line] {
					return fmt.Errorf("device %q button %d: unknown line %q", d.ID, j+1, b.Line)
				}
			case ButtonSpeedDial:
				if b.Number == "" {
					return fmt.Errorf("device %q button %d: speed dial needs a number", d.ID, j+1)
				}
			default:
				return fmt.Errorf("device %q button %d: unknown type %q", d.ID, j+1, b.Type)
			}
		}
	}
	return nil
}
