package doc

import (
	"encoding/json"

	"github.com/solidb/solidb/pkg/types"
)

func marshalDoc(d types.Document) ([]byte, error) {
	return json.Marshal(d)
}

func unmarshalDoc(raw []byte, d *types.Document) error {
	return json.Unmarshal(raw, d)
}
