package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Defaults are the launch parameters used when a deep link omits them.
type Defaults struct {
	URI       string   `yaml:"uri"`
	Backend   string   `yaml:"backend"`
	EdgeAuth  string   `yaml:"edgeauth"`
	StreamIDs []string `yaml:"streamIDs"`
	Acts      []string `yaml:"acts"`
}

// BuiltinDefaults mirror the values the app ships with.
func BuiltinDefaults() Defaults {
	return Defaults{
		Backend: "https://demo.phenixrts.com/pcast",
		StreamIDs: []string{
			"us-southwest#PHX-AD-3.bW6xGJ57.20200901.PSazwzvT",
			"us-southwest#PHX-AD-3.d52ZDAtI.20200901.PSshZlR0",
			"us-northeast#US-ASHBURN-AD-1.kggKhyr8.20200901.PSaOPG77",
		},
		Acts: []string{"0:06", "1:57", "3:45", "7:19", "9:05", "12:50", "14:37", "16:52"},
	}
}

// LoadDefaults reads a YAML defaults file over BuiltinDefaults. Fields absent
// from the file keep their builtin value. A missing file is not an error.
func LoadDefaults(path string) (Defaults, error) {
	d := BuiltinDefaults()
	if path == "" {
		return d, nil
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return d, nil
	}
	if err != nil {
		return d, fmt.Errorf("read defaults %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &d); err != nil {
		return d, fmt.Errorf("parse defaults %s: %w", path, err)
	}
	return d, nil
}

// ApplyEnv overrides d with BACKEND_URL, PCAST_URI, EDGE_AUTH, STREAM_IDS and ACTS.
func (d Defaults) ApplyEnv() Defaults {
	d.Backend = GetEnv("BACKEND_URL", d.Backend)
	d.URI = GetEnv("PCAST_URI", d.URI)
	d.EdgeAuth = GetEnv("EDGE_AUTH", d.EdgeAuth)
	d.StreamIDs = GetEnvList("STREAM_IDS", d.StreamIDs)
	d.Acts = GetEnvList("ACTS", d.Acts)
	return d
}
