package cache

import (
	"fmt"

	"github.com/goccy/go-json"
)

// Params is the parameter mapping of a lookup. Serialization sorts keys at every
// nesting level, so insertion order never changes the normalized key.
type Params map[string]any

// Key identifies a cached lookup. It is comparable: two keys are the same lookup
// iff they are ==. Params holds the canonical JSON encoding of the parameters.
type Key struct {
	Provider string
	Endpoint string
	Query    string
	Params   string
}

// NormalizationError reports a key that cannot be built. It signals a bug in
// the caller, which is why Normalize panics with it.
type NormalizationError struct {
	Field string
	Err   error
}

func (e *NormalizationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cache key: invalid %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("cache key: invalid %s", e.Field)
}

func (e *NormalizationError) Unwrap() error { return e.Err }

// Normalize builds the Key for (provider, endpoint, query, params). A nil params
// mapping normalizes exactly like an empty one. It panics with a
// *NormalizationError when the inputs are malformed.
func Normalize(provider, endpoint, query string, params Params) Key {
	k, err := TryNormalize(provider, endpoint, query, params)
	if err != nil {
		panic(err)
	}
	return k
}

// TryNormalize is Normalize returning the error instead of panicking.
func TryNormalize(provider, endpoint, query string, params Params) (Key, error) {
	if provider == "" {
		return Key{}, &NormalizationError{Field: "provider"}
	}
	if endpoint == "" {
		return Key{}, &NormalizationError{Field: "endpoint"}
	}
	if params == nil {
		params = Params{}
	}
	encoded, err := json.Marshal(params)
	if err != nil {
		return Key{}, &NormalizationError{Field: "params", Err: err}
	}
	return Key{
		Provider: provider,
		Endpoint: endpoint,
		Query:    query,
		Params:   string(encoded),
	}, nil
}

// String serializes the key as a JSON array. Strings are escaped, so a query
// containing any delimiter still round-trips unambiguously.
func (k Key) String() string {
	out, err := json.Marshal([]any{k.Provider, k.Endpoint, k.Query, json.RawMessage(k.paramsJSON())})
	if err != nil {
		// Params was produced by Marshal, so re-encoding cannot fail.
		panic(err)
	}
	return string(out)
}

// StorageParams is the canonical value stored in the durable tier's params
// column: the query and the parameter mapping in one JSON object.
func (k Key) StorageParams() string {
	out, err := json.Marshal(map[string]any{
		"params": json.RawMessage(k.paramsJSON()),
		"query":  k.Query,
	})
	if err != nil {
		panic(err)
	}
	return string(out)
}

func (k Key) paramsJSON() string {
	if k.Params == "" {
		return "{}"
	}
	return k.Params
}
