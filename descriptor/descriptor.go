// Package descriptor loads deployment descriptors (serverless.yml and its JSON
// equivalent) and exposes their environment maps as a configuration tree.
//
// The tree returned by Tree shares maps with the document, so resolving the
// tree in place resolves the document, which Encode then writes back out.
package descriptor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ruteri/kms-env-resolver/interfaces"
	"gopkg.in/yaml.v3"
)

type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

const (
	providerKey    = "provider"
	functionsKey   = "functions"
	environmentKey = "environment"
	regionKey      = "region"
)

// UnsupportedFormatError is returned for descriptor formats other than YAML and JSON.
type UnsupportedFormatError struct {
	Format string
}

func (e *UnsupportedFormatError) Error() string {
	return "unsupported descriptor format: " + e.Format
}

// Descriptor is a decoded deployment descriptor.
type Descriptor struct {
	Document map[string]any
	Format   Format
}

// FormatForPath picks the format from the file extension.
func FormatForPath(path string) (Format, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", &UnsupportedFormatError{Format: ext}
	}
}

// ParseFormat validates a format name. An empty name selects YAML.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "yaml", "yml":
		return FormatYAML, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", &UnsupportedFormatError{Format: name}
	}
}

// Load reads and decodes the descriptor at path.
func Load(path string) (*Descriptor, error) {
	format, err := FormatForPath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading descriptor: %w", err)
	}

	return Parse(data, format)
}

// Parse decodes a descriptor. JSON is decoded by the YAML decoder, which
// accepts it as a subset.
func Parse(data []byte, format Format) (*Descriptor, error) {
	if format != FormatYAML && format != FormatJSON {
		return nil, &UnsupportedFormatError{Format: string(format)}
	}

	doc := map[string]any{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("error decoding descriptor: %w", err)
	}

	return &Descriptor{Document: doc, Format: format}, nil
}

// Region returns provider.region, or an empty string when unset.
func (d *Descriptor) Region() string {
	provider, _ := d.Document[providerKey].(map[string]any)
	region, _ := provider[regionKey].(string)
	return strings.TrimSpace(region)
}

// Tree returns the environment scopes of the descriptor. The scopes are the
// document's own maps.
func (d *Descriptor) Tree() (*interfaces.ConfigurationTree, error) {
	tree := &interfaces.ConfigurationTree{
		Units: map[string]interfaces.Scope{},
	}

	provider, err := mapping(d.Document[providerKey], providerKey)
	if err != nil {
		return nil, err
	}
	tree.Shared, err = scope(provider[environmentKey], providerKey+"."+environmentKey)
	if err != nil {
		return nil, err
	}

	functions, err := mapping(d.Document[functionsKey], functionsKey)
	if err != nil {
		return nil, err
	}
	for name, value := range functions {
		path := functionsKey + "." + name
		function, err := mapping(value, path)
		if err != nil {
			return nil, err
		}
		tree.Units[name], err = scope(function[environmentKey], path+"."+environmentKey)
		if err != nil {
			return nil, err
		}
	}

	return tree, nil
}

// Encode writes the document in the descriptor's format.
func (d *Descriptor) Encode(w io.Writer) error {
	return d.EncodeAs(w, d.Format)
}

// EncodeAs writes the document in the given format.
func (d *Descriptor) EncodeAs(w io.Writer, format Format) error {
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(d.Document); err != nil {
			return fmt.Errorf("error encoding descriptor: %w", err)
		}
		return enc.Close()
	case FormatJSON:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(d.Document); err != nil {
			return fmt.Errorf("error encoding descriptor: %w", err)
		}
		_, err := w.Write(buf.Bytes())
		return err
	default:
		return &UnsupportedFormatError{Format: string(format)}
	}
}

// mapping returns value as a map, treating absent and null values as empty.
func mapping(value any, path string) (map[string]any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return v, nil
	default:
		return nil, fmt.Errorf("%s must be a mapping, got %T", path, value)
	}
}

// scope returns value as a Scope sharing the same map, nil when absent.
func scope(value any, path string) (interfaces.Scope, error) {
	m, err := mapping(value, path)
	if err != nil || m == nil {
		return nil, err
	}
	return interfaces.Scope(m), nil
}
