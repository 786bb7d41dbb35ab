package columnar

import (
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/parquet/compress"
)

// Codec presets. Raw parquet codec names (snappy, zstd, gzip, brotli, lz4)
// are accepted as well.
const (
	CodecNone      = "none"
	CodecFast      = "fast"
	CodecBalanced  = "balanced"
	CodecHighRatio = "high-ratio"
)

type codecSpec struct {
	codec        compress.Compression
	defaultLevel int
	minLevel     int
	maxLevel     int
}

// leveled reports whether the codec takes a compression level.
func (c codecSpec) leveled() bool { return c.maxLevel > 0 }

var codecs = map[string]codecSpec{
	CodecNone:      {codec: compress.Codecs.Uncompressed},
	"uncompressed": {codec: compress.Codecs.Uncompressed},
	CodecFast:      {codec: compress.Codecs.Snappy},
	"snappy":       {codec: compress.Codecs.Snappy},
	CodecBalanced:  {codec: compress.Codecs.Zstd, defaultLevel: 3, minLevel: 1, maxLevel: 22},
	CodecHighRatio: {codec: compress.Codecs.Zstd, defaultLevel: 19, minLevel: 1, maxLevel: 22},
	"zstd":         {codec: compress.Codecs.Zstd, defaultLevel: 3, minLevel: 1, maxLevel: 22},
	"gzip":         {codec: compress.Codecs.Gzip, defaultLevel: 6, minLevel: 1, maxLevel: 9},
	"brotli":       {codec: compress.Codecs.Brotli, defaultLevel: 6, minLevel: 0, maxLevel: 11},
	"lz4":          {codec: compress.Codecs.Lz4Raw},
}

// CodecNames returns the accepted codec names.
func CodecNames() []string {
	return []string{CodecNone, CodecFast, CodecBalanced, CodecHighRatio, "snappy", "zstd", "gzip", "brotli", "lz4"}
}

func lookupCodec(name string) (codecSpec, error) {
	if name == "" {
		name = CodecBalanced
	}
	spec, ok := codecs[strings.ToLower(name)]
	if !ok {
		return codecSpec{}, fmt.Errorf("unknown compression codec %q (want one of %s)", name, strings.Join(CodecNames(), ", "))
	}
	return spec, nil
}

// EffectiveLevel resolves the level actually used for codec. A zero level
// selects the codec default. Codecs without levels report zero and reject
// any explicit level.
func EffectiveLevel(codec string, level int) (int, error) {
	spec, err := lookupCodec(codec)
	if err != nil {
		return 0, err
	}
	if !spec.leveled() {
		if level != 0 {
			return 0, fmt.Errorf("codec %s does not take a compression level", codec)
		}
		return 0, nil
	}
	if level == 0 {
		return spec.defaultLevel, nil
	}
	if level < spec.minLevel || level > spec.maxLevel {
		return 0, fmt.Errorf("compression level %d out of range [%d, %d] for codec %s", level, spec.minLevel, spec.maxLevel, codec)
	}
	return level, nil
}

// ValidateCodec checks a codec name and level pair.
func ValidateCodec(codec string, level int) error {
	_, err := EffectiveLevel(codec, level)
	return err
}
