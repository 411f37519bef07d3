package cipher

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ruteri/kms-env-resolver/interfaces"
)

// Kind tags the classification of a configuration value.
type Kind int

const (
	// PlainText values are left untouched by resolution.
	PlainText Kind = iota
	// ObjectCipher is a structured value carrying an "encrypted" field.
	ObjectCipher
	// DataURICipher is a data:aws/kms; string.
	DataURICipher
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case PlainText:
		return "plaintext"
	case ObjectCipher:
		return "object"
	case DataURICipher:
		return "data-uri"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

const (
	encryptedField = "encrypted"
	regionField    = "kmsKeyRegion"
)

var dataURIPattern = regexp.MustCompile(`(?im)^data:aws/kms;([\w-]*,?.*)`)

// Reference is a classified configuration value.
type Reference struct {
	Kind Kind
	// Ciphertext is the base64 ciphertext, empty for PlainText.
	Ciphertext string
	// RegionHint is the per-reference region, empty when the reference does
	// not name one.
	RegionHint string
}

// IsCipher reports whether the reference must be decrypted.
func (r Reference) IsCipher() bool {
	return r.Kind != PlainText
}

// Classify tries the object form first, then the inline form. Values matching
// neither are PlainText.
func Classify(value any) (Reference, error) {
	ref, ok, err := ParseObjectForm(value)
	if err != nil || ok {
		return ref, err
	}

	ref, ok, err = ParseDataURIForm(value)
	if err != nil || ok {
		return ref, err
	}

	return Reference{Kind: PlainText}, nil
}

// ParseObjectForm inspects structured values for the "encrypted" marker field.
// The boolean result is false when the value is not an object cipher. A value
// carrying the marker with empty or non-text content is an error, never
// plaintext.
func ParseObjectForm(value any) (Reference, bool, error) {
	fields, ok := asFields(value)
	if !ok {
		return Reference{}, false, nil
	}

	encrypted, ok := fields[encryptedField]
	if !ok {
		return Reference{}, false, nil
	}

	ciphertext, isText := encrypted.(string)
	if !isText {
		return Reference{}, false, fmt.Errorf("%w: %q must be text, got %T", interfaces.ErrMalformedCipherObject, encryptedField, encrypted)
	}
	ciphertext = strings.TrimSpace(ciphertext)
	if ciphertext == "" {
		return Reference{}, false, fmt.Errorf("%w: %q is empty", interfaces.ErrMalformedCipherObject, encryptedField)
	}

	var hint string
	switch region := fields[regionField].(type) {
	case nil:
	case string:
		hint = strings.TrimSpace(region)
	default:
		return Reference{}, false, fmt.Errorf("%w: %q must be text, got %T", interfaces.ErrMalformedCipherObject, regionField, region)
	}

	return Reference{Kind: ObjectCipher, Ciphertext: ciphertext, RegionHint: hint}, true, nil
}

// ParseDataURIForm inspects text values for the data:aws/kms; scheme. The
// scheme is matched case-insensitively at the start of any line.
func ParseDataURIForm(value any) (Reference, bool, error) {
	text, ok := value.(string)
	if !ok {
		return Reference{}, false, nil
	}

	match := dataURIPattern.FindStringSubmatch(text)
	if match == nil {
		return Reference{}, false, nil
	}

	segments := make([]string, 0, 2)
	for _, segment := range strings.Split(match[1], ",") {
		if segment != "" {
			segments = append(segments, segment)
		}
	}

	switch len(segments) {
	case 1:
		return Reference{Kind: DataURICipher, Ciphertext: segments[0]}, true, nil
	case 2:
		return Reference{Kind: DataURICipher, RegionHint: segments[0], Ciphertext: segments[1]}, true, nil
	default:
		return Reference{}, false, fmt.Errorf("%w: expected 1 or 2 segments after scheme, got %d", interfaces.ErrMalformedInlineCipher, len(segments))
	}
}

// asFields normalizes the map shapes produced by YAML and JSON decoders.
func asFields(value any) (map[string]any, bool) {
	switch v := value.(type) {
	case map[string]any:
		return v, true
	case interfaces.Scope:
		return v, true
	case map[string]string:
		fields := make(map[string]any, len(v))
		for key, val := range v {
			fields[key] = val
		}
		return fields, true
	case map[any]any:
		fields := make(map[string]any, len(v))
		for key, val := range v {
			name, ok := key.(string)
			if !ok {
				continue
			}
			fields[name] = val
		}
		return fields, true
	default:
		return nil, false
	}
}
