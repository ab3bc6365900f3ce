package columnar

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/pierrec/lz4/v4"
)

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	zr := lz4.NewReader(bytes.NewReader(data))
	return io.ReadAll(zr)
}

func compressValues(values []interface{}) ([]byte, error) {
	raw, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	return compress(raw)
}

func decompressValues(data []byte) ([]interface{}, error) {
	raw, err := decompress(data)
	if err != nil {
		return nil, err
	}
	var values []interface{}
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, err
	}
	return values, nil
}
