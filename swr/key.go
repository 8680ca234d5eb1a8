package swr

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/IvanBrykalov/swrcache/internal/util"
)

// keySep separates the namespace from the encoded parameters in a key's
// canonical id. 0x1f (ASCII unit separator) cannot appear in JSON output,
// so ids never collide across namespaces.
const keySep = '\x1f'

// Key identifies one cacheable unit: a namespace plus an ordered parameter
// tuple. Keys are immutable values; two keys built from equal namespaces
// and parameters are equal and resolve to the same cache entry, no matter
// where they were constructed.
//
// Parameters are canonicalized with encoding/json (which sorts map keys),
// so identity is structural. Parameters that cannot be encoded (channels,
// funcs, NaN, ...) make the key invalid; the first store operation using an
// invalid key fails fast with ErrInvalidKey — this is a caller bug, never a
// runtime fault.
type Key struct {
	ns     string
	params []any
	id     string
	err    error
}

// NewKey builds a Key from a namespace and an ordered parameter tuple.
func NewKey(namespace string, params ...any) Key {
	k := Key{ns: namespace, params: params}
	if namespace == "" {
		k.err = fmt.Errorf("%w: empty namespace", ErrInvalidKey)
		return k
	}
	if strings.ContainsRune(namespace, keySep) {
		k.err = fmt.Errorf("%w: namespace contains reserved separator", ErrInvalidKey)
		return k
	}
	if len(params) == 0 {
		k.id = namespace
		return k
	}
	b, err := json.Marshal(params)
	if err != nil {
		k.err = fmt.Errorf("%w: %v", ErrInvalidKey, err)
		return k
	}
	var sb strings.Builder
	sb.Grow(len(namespace) + 1 + len(b))
	sb.WriteString(namespace)
	sb.WriteByte(keySep)
	sb.Write(b)
	k.id = sb.String()
	return k
}

// Namespace returns the key's namespace.
func (k Key) Namespace() string { return k.ns }

// ID returns the canonical identity string. Empty for invalid or zero keys.
func (k Key) ID() string { return k.id }

// Params returns a copy of the parameter tuple.
func (k Key) Params() []any {
	if len(k.params) == 0 {
		return nil
	}
	out := make([]any, len(k.params))
	copy(out, k.params)
	return out
}

// Hash returns a 64-bit hash of the canonical id, used for shard routing.
func (k Key) Hash() uint64 { return util.Fnv64a(k.id) }

// Equal reports structural equality. Invalid keys are equal to nothing.
func (k Key) Equal(o Key) bool {
	return k.err == nil && o.err == nil && k.id != "" && k.id == o.id
}

// IsZero reports whether k is the zero Key (no namespace, no error).
func (k Key) IsZero() bool { return k.id == "" && k.err == nil && k.ns == "" }

func (k Key) String() string {
	if k.err != nil {
		return "invalid(" + k.ns + ")"
	}
	return k.id
}

// validate returns the construction error, or ErrInvalidKey for a zero key.
func (k Key) validate() error {
	if k.err != nil {
		return k.err
	}
	if k.id == "" {
		return fmt.Errorf("%w: zero key", ErrInvalidKey)
	}
	return nil
}
