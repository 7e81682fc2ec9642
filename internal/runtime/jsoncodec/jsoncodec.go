// Package jsoncodec decodes the JSON property files accepted for manual runs.
package jsoncodec

import (
	"io"

	"github.com/bytedance/sonic"
)

// ConfigStd keeps encoding/json semantics: numbers decode to float64 and
// unknown fields are tolerated.
var defaultConfig = sonic.ConfigStd

func Unmarshal(data []byte, v any) error {
	return defaultConfig.Unmarshal(data, v)
}

func Decode(r io.Reader, v any) error {
	dec := defaultConfig.NewDecoder(r)
	return dec.Decode(v)
}
