package authdb

import (
	"encoding/json"
)

// Codec turns account records into the string form kept by the backend
// and back.
type Codec[A any] interface {
	Encode(account A) (string, error)
	Decode(data string) (A, error)
}

// Ensure JSONCodec implements Codec.
var _ Codec[map[string]any] = JSONCodec[map[string]any]{}

// JSONCodec is the default codec. Struct fields and nested maps survive
// a round trip; map key order and Go types beyond what JSON can express
// (e.g. int vs float64 inside map[string]any) do not.
type JSONCodec[A any] struct{}

func (JSONCodec[A]) Encode(account A) (string, error) {
	data, err := json.Marshal(account)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (JSONCodec[A]) Decode(data string) (A, error) {
	var account A
	err := json.Unmarshal([]byte(data), &account)
	return account, err
}
