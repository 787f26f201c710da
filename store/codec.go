package store

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// Badger values are CBOR-encoded documents. Canonical field ordering keeps
// re-encoded documents byte-identical, and signed integer decoding plus a
// string-keyed map type keep round-tripped values usable without
// reflection at read sites.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("store: cbor encoder: %v", err))
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		IntDec:         cbor.IntDecConvertSigned,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("store: cbor decoder: %v", err))
	}
}

func encodeDoc(doc Document) ([]byte, error) {
	return encMode.Marshal(map[string]any(doc))
}

func decodeDoc(raw []byte) (Document, error) {
	var doc map[string]any
	if err := decMode.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return Document(doc), nil
}
