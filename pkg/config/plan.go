// Package config loads interception plans: which program to run and which
// of its classes to mock or stub.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Stub replaces the body of the matching methods.
type Stub struct {
	Class  string `yaml:"class" toml:"class"`
	Method string `yaml:"method" toml:"method"`
	// Descriptor narrows Method to one overload, e.g. "(I)I".
	Descriptor string `yaml:"descriptor,omitempty" toml:"descriptor,omitempty"`
	// Returns is the value callers observe. Nil means the zero value of the
	// return type, or the original result when Proceed is set.
	Returns any `yaml:"returns,omitempty" toml:"returns,omitempty"`
	// Proceed runs the original body before Returns is applied.
	Proceed bool `yaml:"proceed,omitempty" toml:"proceed,omitempty"`
}

// Log configures commonlog.
type Log struct {
	Verbosity int    `yaml:"verbosity" toml:"verbosity"`
	Path      string `yaml:"path,omitempty" toml:"path,omitempty"`
}

// Plan is one interception plan.
type Plan struct {
	Classpath string   `yaml:"classpath" toml:"classpath"`
	Jmod      string   `yaml:"jmod,omitempty" toml:"jmod,omitempty"`
	Main      string   `yaml:"main" toml:"main"`
	Args      []string `yaml:"args,omitempty" toml:"args,omitempty"`
	Mocks     []string `yaml:"mocks,omitempty" toml:"mocks,omitempty"`
	Stubs     []Stub   `yaml:"stubs,omitempty" toml:"stubs,omitempty"`
	Log       Log      `yaml:"log" toml:"log"`

	// Dir is the directory of the plan file; relative paths resolve
	// against it.
	Dir string `yaml:"-" toml:"-"`
}

// DefaultPlan runs nothing and intercepts nothing, with classes looked up
// in the working directory.
func DefaultPlan() *Plan {
	return &Plan{Classpath: "."}
}

// LoadPlan reads a plan file. Files ending in .toml are TOML, anything else
// is YAML. Fields absent from the file keep their default. An empty path
// returns the defaults.
func LoadPlan(path string) (*Plan, error) {
	plan := DefaultPlan()
	if path == "" {
		return plan, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(data, plan)
	} else {
		err = yaml.Unmarshal(data, plan)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse plan %s: %w", path, err)
	}

	plan.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("invalid plan %s: %w", path, err)
	}
	return plan, nil
}

// Validate checks the stubs and normalises their return values.
func (p *Plan) Validate() error {
	for i := range p.Stubs {
		s := &p.Stubs[i]
		if s.Class == "" || s.Method == "" {
			return fmt.Errorf("stub %d: class and method are required", i)
		}
		if s.Descriptor != "" && !strings.HasPrefix(s.Descriptor, "(") {
			return fmt.Errorf("stub %s.%s: malformed descriptor %q", s.Class, s.Method, s.Descriptor)
		}
		// TOML integers decode as int64; the bridge wants int for any
		// integral return type.
		if v, ok := s.Returns.(int64); ok {
			s.Returns = int(v)
		}
		if err := s.checkReturns(); err != nil {
			return fmt.Errorf("stub %s.%s%s: %w", s.Class, s.Method, s.Descriptor, err)
		}
	}
	for _, m := range p.Mocks {
		if m == "" {
			return fmt.Errorf("empty mock class name")
		}
	}
	return nil
}

// checkReturns matches Returns against the return type of Descriptor. A
// descriptor without a return type, or a nil Returns, is not checked.
func (s *Stub) checkReturns() error {
	end := strings.IndexByte(s.Descriptor, ')')
	if s.Returns == nil || end < 0 || end == len(s.Descriptor)-1 {
		return nil
	}
	ret := s.Descriptor[end+1:]
	switch ret[0] {
	case 'V':
		return fmt.Errorf("void method cannot return %v", s.Returns)
	case 'B', 'C', 'I', 'S', 'J':
		if _, ok := s.Returns.(int); ok {
			return nil
		}
	case 'Z':
		switch s.Returns.(type) {
		case bool, int:
			return nil
		}
	case 'F', 'D':
		switch v := s.Returns.(type) {
		case float64:
			return nil
		case int:
			s.Returns = float64(v)
			return nil
		}
	case 'L':
		if _, ok := s.Returns.(string); ok && ret == "Ljava/lang/String;" {
			return nil
		}
	}
	return fmt.Errorf("cannot return %T %v as %s", s.Returns, s.Returns, ret)
}

// Resolve returns path relative to the plan directory, unless it is
// absolute or the plan was not loaded from a file.
func (p *Plan) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || p.Dir == "" {
		return path
	}
	return filepath.Join(p.Dir, path)
}

// ClasspathDir returns the resolved classpath.
func (p *Plan) ClasspathDir() string { return p.Resolve(p.Classpath) }

// JmodPath returns the configured jmod, or one found in the environment.
// It is empty when none is available; built-in classes still work then.
func (p *Plan) JmodPath() string {
	if p.Jmod != "" {
		return p.Resolve(p.Jmod)
	}
	return FindJmod()
}

// FindJmod locates java.base.jmod through JAVA_BASE_JMOD, JAVA_HOME or the
// usual Linux install locations.
func FindJmod() string {
	if env := os.Getenv("JAVA_BASE_JMOD"); env != "" {
		return env
	}
	if javaHome := os.Getenv("JAVA_HOME"); javaHome != "" {
		p := filepath.Join(javaHome, "jmods", "java.base.jmod")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	matches, _ := filepath.Glob("/usr/lib/jvm/java-*-openjdk-*/jmods/java.base.jmod")
	if len(matches) > 0 {
		return matches[0]
	}
	return ""
}
