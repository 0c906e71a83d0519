package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/illmade-knight/go-cloud-reconciler/pkg/alerting"
	"github.com/illmade-knight/go-cloud-reconciler/pkg/reconcile"
	"github.com/illmade-knight/go-cloud-reconciler/pkg/storage"
)

// Environment holds the settings shared by every resource in a Document.
type Environment struct {
	Name      string            `yaml:"name"`
	ProjectID string            `yaml:"project_id"`
	Location  string            `yaml:"location,omitempty"`
	Labels    map[string]string `yaml:"labels,omitempty"`
	// TeardownProtection refuses any spec that would delete a resource.
	TeardownProtection bool `yaml:"teardown_protection,omitempty"`
}

// Document is the declarative description of the resources to reconcile.
type Document struct {
	Environment   Environment                `yaml:"environment"`
	Buckets       []storage.BucketSpec       `yaml:"buckets,omitempty"`
	AlertPolicies []alerting.AlertPolicySpec `yaml:"alert_policies,omitempty"`
}

// Option adjusts how a document is parsed.
type Option func(*Document)

// WithDefaultProject sets the environment project when the document has none.
func WithDefaultProject(projectID string) Option {
	return func(d *Document) {
		if d.Environment.ProjectID == "" {
			d.Environment.ProjectID = projectID
		}
	}
}

// LoadDocument reads, defaults and validates the document at path.
func LoadDocument(path string, opts ...Option) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}
	doc, err := ParseDocument(data, opts...)
	if err != nil {
		return nil, fmt.Errorf("config file '%s': %w", path, err)
	}
	return doc, nil
}

// ParseDocument decodes a YAML document, applies defaults and validates it.
// Unknown keys are rejected.
func ParseDocument(data []byte, opts ...Option) (*Document, error) {
	doc := &Document{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	for _, opt := range opts {
		opt(doc)
	}
	doc.ApplyDefaults()
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

// ApplyDefaults pushes environment settings down into the resource specs.
// Values set on a spec always win.
func (d *Document) ApplyDefaults() {
	for i := range d.Buckets {
		b := &d.Buckets[i]
		if b.Location == "" {
			b.Location = d.Environment.Location
		}
		if len(d.Environment.Labels) > 0 {
			labels := maps.Clone(d.Environment.Labels)
			maps.Copy(labels, b.Labels)
			b.Labels = labels
		}
		*b = b.WithDefaults(d.Environment.ProjectID)
	}
	for i := range d.AlertPolicies {
		d.AlertPolicies[i] = d.AlertPolicies[i].WithDefaults()
	}
}

// Validate checks every spec, so that no remote call is made for a document
// that is partly invalid.
func (d *Document) Validate() error {
	var errs []error
	seen := make(map[string]bool, len(d.Buckets))
	for i, b := range d.Buckets {
		if err := b.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("buckets[%d]: %w", i, err))
		}
		if seen[b.Name] {
			errs = append(errs, fmt.Errorf("buckets[%d]: %w: bucket '%s' is declared more than once", i, reconcile.ErrValidation, b.Name))
		}
		seen[b.Name] = true
		if d.Environment.TeardownProtection && b.State == storage.StateAbsent {
			errs = append(errs, fmt.Errorf("buckets[%d]: %w: teardown protection forbids deleting bucket '%s'", i, reconcile.ErrValidation, b.Name))
		}
	}

	seenPolicies := make(map[string]bool, len(d.AlertPolicies))
	for i, p := range d.AlertPolicies {
		if err := p.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("alert_policies[%d]: %w", i, err))
		}
		name, err := p.ResourceName(d.Environment.ProjectID)
		if err != nil {
			errs = append(errs, fmt.Errorf("alert_policies[%d]: %w", i, err))
			continue
		}
		if name != "" && seenPolicies[name] {
			errs = append(errs, fmt.Errorf("alert_policies[%d]: %w: alert policy '%s' is declared more than once", i, reconcile.ErrValidation, name))
		}
		seenPolicies[name] = true
		if d.Environment.TeardownProtection && p.State == alerting.StateAbsent {
			errs = append(errs, fmt.Errorf("alert_policies[%d]: %w: teardown protection forbids deleting alert policy '%s'", i, reconcile.ErrValidation, name))
		}
	}
	return errors.Join(errs...)
}
