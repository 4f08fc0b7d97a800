// Copyright 2026 b2bgate
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package contract provides pre-parse validation constants and utilities
// shared by the SFTP/AS2 producers (out of scope) and the worker pool's
// envelope intake step (pkg/queue dispatch).
//
// # File Size and Extension Limits
//
// The pipeline enforces a soft ceiling on inbound file size to avoid
// loading pathological documents into memory whole:
//
//	result := contract.ValidateEnvelope(env.FileName, env.FileBytes, allowedExt)
//	if !result.OK {
//	    log.Printf("rejected: %s", result.Message)
//	}
//
// The size ceiling is configurable via the XMLGATE_MAX_FILE_SIZE_BYTES
// environment variable only; the asn.file.storage.maxFileSize configuration
// key is loaded by internal/config but does not feed this ceiling.
package contract
