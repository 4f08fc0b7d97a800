// Copyright 2026 b2bgate
// SPDX-License-Identifier: AGPL-3.0-or-later

package contract

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	// DefaultMaxFileSizeBytes is the baseline soft limit for an inbound
	// document before the pipeline refuses to even attempt a parse.
	DefaultMaxFileSizeBytes = 64 << 20 // 64 MiB

	// FileNameMaxBytes is the maximum length of an inbound file_name.
	FileNameMaxBytes = 255
)

// MaxFileSizeBytes returns the effective soft limit for an inbound file.
// Controlled via env XMLGATE_MAX_FILE_SIZE_BYTES (the YAML key
// asn.file.storage.maxFileSize is not read here); falls back to
// DefaultMaxFileSizeBytes.
func MaxFileSizeBytes() int {
	if v := os.Getenv("XMLGATE_MAX_FILE_SIZE_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return DefaultMaxFileSizeBytes
}

// ValidationResult represents the result of a pre-parse validation check.
type ValidationResult struct {
	OK      bool
	Message string
}

// ValidateEnvelope performs basic validation on an inbound message envelope
// before it reaches the XML parser: size ceiling and, when allowedExt is
// non-empty, extension allow-listing (asn.file.storage.allowedExtensions).
func ValidateEnvelope(fileName string, fileBytes []byte, allowedExt []string) *ValidationResult {
	if len(fileBytes) > MaxFileSizeBytes() {
		return &ValidationResult{OK: false, Message: "file exceeds maxFileSize"}
	}
	if len(fileName) > FileNameMaxBytes {
		return &ValidationResult{OK: false, Message: "file_name exceeds maximum length"}
	}
	if len(allowedExt) == 0 {
		return &ValidationResult{OK: true}
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(fileName), "."))
	for _, a := range allowedExt {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == ext {
			return &ValidationResult{OK: true}
		}
	}
	return &ValidationResult{OK: false, Message: "file extension not in allowedExtensions"}
}
