package ledger

import (
	"bytes"

	"github.com/ugorji/go/codec"
)

func canonicalHandle() *codec.JsonHandle {
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	return jh
}

// marshalCanonical encodes v in canonical JSON. The output is what gets
// hashed, so it must not depend on map iteration order.
func marshalCanonical(v interface{}) ([]byte, error) {
	b := new(bytes.Buffer)
	enc := codec.NewEncoder(b, canonicalHandle())

	if err := enc.Encode(v); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

func unmarshalCanonical(data []byte, v interface{}) error {
	dec := codec.NewDecoder(bytes.NewBuffer(data), canonicalHandle())
	return dec.Decode(v)
}
