package config

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Descriptor defaults, matching what the hosted agent application expects.
const (
	DefaultDescriptorPath = "agent_engine.yaml"
	DefaultRequirement    = "google-cloud-aiplatform[adk,agent_engines]"
	DefaultAgentPickle    = "agent_engine.pkl"
	DefaultStagingDir     = "agent_engine"
	DefaultPythonVersion  = "3.12"
)

// Descriptor declares how a deployment is packaged and configured.
type Descriptor struct {
	DisplayName      string            `yaml:"display_name"`
	Description      string            `yaml:"description"`
	PythonVersion    string            `yaml:"python_version"`
	Requirements     []string          `yaml:"requirements"`
	RequirementsFile string            `yaml:"requirements_file"`
	ExtraPackages    []string          `yaml:"extra_packages"`
	AgentPickle      string            `yaml:"agent_pickle"`
	StagingDir       string            `yaml:"staging_dir"`
	Env              map[string]string `yaml:"env"`

	// baseDir anchors relative paths; it is the descriptor's directory.
	baseDir string
}

// LoadDescriptor reads a YAML descriptor. When path is the default and the
// file does not exist, a descriptor with defaults is returned.
func LoadDescriptor(path string) (*Descriptor, error) {
	if path == "" {
		path = DefaultDescriptorPath
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist) && path == DefaultDescriptorPath:
		d := &Descriptor{baseDir: "."}
		d.applyDefaults()
		return d, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read descriptor %s: %w", path, err)
	}

	d, err := ParseDescriptor(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse descriptor %s: %w", path, err)
	}
	d.baseDir = filepath.Dir(path)
	return d, nil
}

// ParseDescriptor decodes YAML and applies defaults. Relative paths resolve
// against the working directory.
func ParseDescriptor(data []byte) (*Descriptor, error) {
	var d Descriptor
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&d); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	d.baseDir = "."
	d.applyDefaults()
	if err := d.validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

func (d *Descriptor) applyDefaults() {
	if len(d.Requirements) == 0 && d.RequirementsFile == "" {
		d.Requirements = []string{DefaultRequirement}
	}
	if len(d.ExtraPackages) == 0 {
		d.ExtraPackages = []string{"."}
	}
	if d.AgentPickle == "" {
		d.AgentPickle = DefaultAgentPickle
	}
	if d.StagingDir == "" {
		d.StagingDir = DefaultStagingDir
	}
	if d.PythonVersion == "" {
		d.PythonVersion = DefaultPythonVersion
	}
}

func (d *Descriptor) validate() error {
	for name := range d.Env {
		if name == "" || strings.ContainsAny(name, "= ") {
			return fmt.Errorf("invalid environment variable name %q", name)
		}
	}
	if strings.Contains(d.StagingDir, "..") {
		return fmt.Errorf("staging_dir must not contain '..': %q", d.StagingDir)
	}
	return nil
}

// Path resolves p relative to the descriptor's directory.
func (d *Descriptor) Path(p string) string {
	if filepath.IsAbs(p) || d.baseDir == "" {
		return p
	}
	return filepath.Join(d.baseDir, p)
}

// BaseDir returns the directory relative paths resolve against.
func (d *Descriptor) BaseDir() string {
	if d.baseDir == "" {
		return "."
	}
	return d.baseDir
}

// PicklePath returns the resolved path of the serialized agent object.
func (d *Descriptor) PicklePath() string {
	return d.Path(d.AgentPickle)
}

// ResolvedRequirements merges inline requirements with requirements_file,
// dropping blank lines and comments while keeping first-seen order.
func (d *Descriptor) ResolvedRequirements() ([]string, error) {
	reqs := append([]string(nil), d.Requirements...)

	if d.RequirementsFile != "" {
		f, err := os.Open(d.Path(d.RequirementsFile))
		if err != nil {
			return nil, fmt.Errorf("failed to open requirements file: %w", err)
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			reqs = append(reqs, line)
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to read requirements file: %w", err)
		}
	}

	seen := make(map[string]bool, len(reqs))
	out := reqs[:0]
	for _, r := range reqs {
		if seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out, nil
}

// EnvNames returns the environment variable names in sorted order.
func (d *Descriptor) EnvNames() []string {
	names := make([]string, 0, len(d.Env))
	for name := range d.Env {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
