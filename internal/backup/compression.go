package backup

import (
	"path"
	"strconv"
	"strings"
)

// CompressionConfig controls archive compression
// Type values: "gzip", "none"
type CompressionConfig struct {
	Type  string `json:"type"`
	Level int    `json:"level,omitempty"`
}

// ParseCompression maps the config string ("gzip", "gzip:9", "none") to a CompressionConfig.
func ParseCompression(value string) CompressionConfig {
	compressionType, level, _ := strings.Cut(strings.TrimSpace(value), ":")
	config := CompressionConfig{Type: compressionType}
	if n, err := strconv.Atoi(level); err == nil {
		config.Level = n
	}
	return normalizeCompression(config)
}

func normalizeCompression(config CompressionConfig) CompressionConfig {
	compressionType := strings.ToLower(strings.TrimSpace(config.Type))
	if compressionType == "" {
		compressionType = "gzip"
	}

	level := config.Level
	if level == 0 {
		level = 6
	}
	if level < 1 {
		level = 1
	}
	if level > 9 {
		level = 9
	}

	if compressionType != "gzip" && compressionType != "none" {
		compressionType = "gzip"
	}

	return CompressionConfig{
		Type:  compressionType,
		Level: level,
	}
}

func compressionArchiveExtension(config CompressionConfig) string {
	switch normalizeCompression(config).Type {
	case "none":
		return "tar"
	default:
		return "tar.gz"
	}
}

func detectCompressionFromFilename(filename string) CompressionConfig {
	base := strings.ToLower(path.Base(filename))
	switch {
	case strings.HasSuffix(base, ".tar.gz") || strings.HasSuffix(base, ".tgz"):
		return CompressionConfig{Type: "gzip", Level: 6}
	case strings.HasSuffix(base, ".tar"):
		return CompressionConfig{Type: "none"}
	default:
		return CompressionConfig{Type: "gzip", Level: 6}
	}
}
