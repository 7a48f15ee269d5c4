// Package loader reads the compliance reference that firmware and device
// identities are checked against.
package loader

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/blang/semver/v4"
	"gopkg.in/yaml.v3"
)

// ConfigError reports a compliance reference that cannot be used.
// Callers disable the reference checks and keep running.
type ConfigError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	msg := "compliance reference"
	if e.Path != "" {
		msg += " " + e.Path
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

// IsConfigError reports whether err is a *ConfigError
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// ReferenceYAML represents the reference file structure
type ReferenceYAML struct {
	SupportedDeviceIDs []int64        `yaml:"supported_device_ids,omitempty"`
	Firmware           []FirmwareYAML `yaml:"firmware"`
}

// FirmwareYAML represents one firmware rule
type FirmwareYAML struct {
	PSID    string `yaml:"psid"`
	Device  string `yaml:"device,omitempty"`
	Version string `yaml:"version"`
	Minimum string `yaml:"minimum,omitempty"`
}

// FirmwareRule is the expected firmware for one PSID
type FirmwareRule struct {
	PSID    string
	Device  string
	Version semver.Version
	// Minimum is nil when only an exact version is expected
	Minimum *semver.Version
}

// ComplianceReference is the parsed reference table
type ComplianceReference struct {
	path    string
	devices []int64
	rules   map[string]FirmwareRule
}

// LoadComplianceReference loads a reference from a YAML file
func LoadComplianceReference(path string) (*ComplianceReference, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Reason: "failed to read file", Err: err}
	}
	return ParseComplianceReference(data, path)
}

// ParseComplianceReference parses a reference from YAML bytes
func ParseComplianceReference(data []byte, path string) (*ComplianceReference, error) {
	var y ReferenceYAML
	if err := yaml.Unmarshal(data, &y); err != nil {
		return nil, &ConfigError{Path: path, Reason: "failed to parse YAML", Err: err}
	}
	return convertReference(&y, path)
}

func convertReference(y *ReferenceYAML, path string) (*ComplianceReference, error) {
	if len(y.Firmware) == 0 && len(y.SupportedDeviceIDs) == 0 {
		return nil, &ConfigError{Path: path, Reason: "reference is empty"}
	}

	ref := &ComplianceReference{
		path:    path,
		devices: slices.Clone(y.SupportedDeviceIDs),
		rules:   make(map[string]FirmwareRule, len(y.Firmware)),
	}
	slices.Sort(ref.devices)

	for i, f := range y.Firmware {
		psid := strings.TrimSpace(f.PSID)
		if psid == "" {
			return nil, &ConfigError{Path: path, Reason: fmt.Sprintf("firmware entry %d has no psid", i)}
		}
		if _, dup := ref.rules[psid]; dup {
			return nil, &ConfigError{Path: path, Reason: fmt.Sprintf("duplicate psid %s", psid)}
		}

		version, err := ParseFirmware(f.Version)
		if err != nil {
			return nil, &ConfigError{Path: path, Reason: fmt.Sprintf("psid %s: invalid version", psid), Err: err}
		}
		rule := FirmwareRule{PSID: psid, Device: f.Device, Version: version}

		if f.Minimum != "" {
			minimum, err := ParseFirmware(f.Minimum)
			if err != nil {
				return nil, &ConfigError{Path: path, Reason: fmt.Sprintf("psid %s: invalid minimum", psid), Err: err}
			}
			if minimum.GT(version) {
				return nil, &ConfigError{Path: path, Reason: fmt.Sprintf("psid %s: minimum %s above version %s", psid, minimum, version)}
			}
			rule.Minimum = &minimum
		}

		ref.rules[psid] = rule
	}

	return ref, nil
}

// ParseFirmware parses a dotted firmware version such as "20.35.1012"
func ParseFirmware(s string) (semver.Version, error) {
	return semver.ParseTolerant(strings.TrimSpace(s))
}

// Path returns the file the reference was loaded from
func (r *ComplianceReference) Path() string { return r.path }

// Rule returns the firmware rule for a PSID
func (r *ComplianceReference) Rule(psid string) (FirmwareRule, bool) {
	rule, ok := r.rules[psid]
	return rule, ok
}

// HasRules reports whether the reference declares any firmware rules
func (r *ComplianceReference) HasRules() bool {
	return len(r.rules) > 0
}

// SupportsDevice reports whether a device ID is listed as supported.
// An empty list supports every device.
func (r *ComplianceReference) SupportsDevice(id int64) bool {
	if len(r.devices) == 0 {
		return true
	}
	_, found := slices.BinarySearch(r.devices, id)
	return found
}

// PSIDs returns the PSIDs with a firmware rule, sorted
func (r *ComplianceReference) PSIDs() []string {
	out := make([]string, 0, len(r.rules))
	for psid := range r.rules {
		out = append(out, psid)
	}
	slices.Sort(out)
	return out
}
