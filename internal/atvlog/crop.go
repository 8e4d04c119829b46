package atvlog

import (
	"encoding/hex"
	"os"
	"strconv"
	"sync"
)

// Environment variables controlling how much of a raw protocol payload is
// included in a debug log line before it gets cropped.
const (
	EnvBinaryMaxLine   = "PYATV_BINARY_MAX_LINE"
	EnvProtobufMaxLine = "PYATV_PROTOBUF_MAX_LINE"
)

const defaultMaxLine = 80

var (
	cropOnce    sync.Once
	binaryMax   int
	protobufMax int
)

func loadCropLimits() {
	binaryMax = envInt(EnvBinaryMaxLine, defaultMaxLine)
	protobufMax = envInt(EnvProtobufMaxLine, defaultMaxLine)
}

func envInt(name string, fallback int) int {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

// Crop hex-encodes payload and truncates it to the line-length budget
// configured for "kind" ("protobuf" uses PYATV_PROTOBUF_MAX_LINE, anything
// else uses PYATV_BINARY_MAX_LINE), appending a byte count when truncated.
func Crop(kind string, payload []byte) string {
	cropOnce.Do(loadCropLimits)

	limit := binaryMax
	if kind == "protobuf" {
		limit = protobufMax
	}

	encoded := hex.EncodeToString(payload)
	if len(encoded) <= limit {
		return encoded
	}
	return encoded[:limit] + "...(" + strconv.Itoa(len(payload)) + " bytes)"
}
