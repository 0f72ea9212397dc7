// Package identity derives stable server identifiers from a deployment
// namespace and a source natural key.
package identity

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// DefaultNamespace is the deployment namespace used for every source. Changing
// it re-keys the whole canonical table.
const DefaultNamespace = "02ffac85-92a0-4bb2-adf4-c715b3c93b0d"

// Scheme selects how a Deriver turns a key into an identifier.
type Scheme string

const (
	// SchemeUUIDv5 is the RFC 4122 name-based UUID over the namespace bytes.
	SchemeUUIDv5 Scheme = "uuidv5"
	// SchemeLegacyHex hashes the namespace string concatenated with the key
	// and only forces the version nibble. Deployments whose rows were keyed
	// that way keep their ids by selecting it.
	SchemeLegacyHex Scheme = "legacy-hex"
)

// ParseScheme maps a configured name to a Scheme. Empty means SchemeUUIDv5.
func ParseScheme(s string) (Scheme, error) {
	switch Scheme(s) {
	case "", SchemeUUIDv5:
		return SchemeUUIDv5, nil
	case SchemeLegacyHex:
		return SchemeLegacyHex, nil
	}
	return "", fmt.Errorf("unknown identity scheme %q", s)
}

// Deriver maps natural keys to name-based (version 5) UUID strings.
type Deriver struct {
	ns     uuid.UUID
	scheme Scheme
}

// NewDeriver parses namespace and returns a Deriver bound to it.
func NewDeriver(namespace string) (*Deriver, error) {
	return NewDeriverWithScheme(namespace, SchemeUUIDv5)
}

// NewDeriverWithScheme is NewDeriver with an explicit derivation scheme.
func NewDeriverWithScheme(namespace string, scheme Scheme) (*Deriver, error) {
	ns, err := uuid.Parse(namespace)
	if err != nil {
		return nil, fmt.Errorf("invalid identity namespace %q: %w", namespace, err)
	}
	scheme, err = ParseScheme(string(scheme))
	if err != nil {
		return nil, err
	}
	return &Deriver{ns: ns, scheme: scheme}, nil
}

// MustDeriver is NewDeriver for constants; it panics on a malformed namespace.
func MustDeriver(namespace string) *Deriver {
	d, err := NewDeriver(namespace)
	if err != nil {
		panic(err)
	}
	return d
}

// Namespace returns the namespace the deriver was built with.
func (d *Deriver) Namespace() string { return d.ns.String() }

// Scheme returns the derivation scheme in use.
func (d *Deriver) Scheme() Scheme { return d.scheme }

// Derive returns the 36-character identifier for key.
func (d *Deriver) Derive(key string) string {
	if d.scheme == SchemeLegacyHex {
		return legacyHex(d.ns.String(), key)
	}
	return uuid.NewSHA1(d.ns, []byte(key)).String()
}

func legacyHex(namespace, key string) string {
	sum := sha1.Sum([]byte(namespace + key))
	h := hex.EncodeToString(sum[:])
	return h[0:8] + "-" + h[8:12] + "-5" + h[13:16] + "-" + h[16:20] + "-" + h[20:32]
}

// Derive is a convenience wrapper for one-off derivations.
func Derive(namespace uuid.UUID, key string) string {
	return uuid.NewSHA1(namespace, []byte(key)).String()
}

// Valid reports whether s is a well-formed UUID string.
func Valid(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
