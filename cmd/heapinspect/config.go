package main

import (
	"fmt"
	"os"

	"github.com/gostonefire/bucketheap/interfaces"
	"github.com/gostonefire/bucketheap/internal/logging"
	"github.com/gostonefire/bucketheap/record"
	"gopkg.in/yaml.v3"
)

const (
	layoutPlain  = "plain"
	layoutBucket = "bucket"
)

// recordTypes - Record types the inspector knows how to decode, by configuration name
var recordTypes = map[string]interfaces.RecordType{
	"person": record.PersonType{},
}

// Config - Inspector configuration
//   - Name is the heap or bucket heap name the files are named after
//   - Layout is plain for a heap and bucket for a bucket heap
//   - RecordType is the name of the record type stored
//   - Log is the logger configuration
type Config struct {
	Name       string         `yaml:"name"`
	Layout     string         `yaml:"layout"`
	RecordType string         `yaml:"record_type"`
	Log        logging.Config `yaml:"log"`
}

// defaultConfig - Returns the configuration used for anything not given in file or flags
func defaultConfig() Config {
	return Config{
		Layout:     layoutBucket,
		RecordType: "person",
		Log: logging.Config{
			Level:      "warn",
			Format:     "console",
			OutputFile: "stderr",
		},
	}
}

// loadConfig - Reads configuration from a YAML file on top of the defaults. An empty path gives the defaults.
func loadConfig(path string) (config Config, err error) {
	config = defaultConfig()
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		err = fmt.Errorf("failed to read config file %s: %w", path, err)
		return
	}

	err = yaml.Unmarshal(data, &config)
	if err != nil {
		err = fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return
}

// validate - Checks that the configuration can be used to open files
func (C Config) validate() (err error) {
	if C.Name == "" {
		return fmt.Errorf("a heap name is required")
	}
	if C.Layout != layoutPlain && C.Layout != layoutBucket {
		return fmt.Errorf("unknown layout %q, expected %s or %s", C.Layout, layoutPlain, layoutBucket)
	}
	if _, ok := recordTypes[C.RecordType]; !ok {
		return fmt.Errorf("unknown record type %q", C.RecordType)
	}

	return
}
