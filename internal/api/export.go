package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"

	"github.com/talk2db/talk2db/internal/export"
	"github.com/talk2db/talk2db/internal/observability"
	"github.com/talk2db/talk2db/internal/storage"
)

const exportKeyHeader = "X-Export-Key"

type exportRequest struct {
	Data   json.RawMessage `json:"data"`
	Format string          `json:"format"`
}

func handleExport(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	var request exportRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid export request body", false, map[string]any{"details": err.Error()})
		return
	}

	rawFormat := r.URL.Query().Get("format")
	if rawFormat == "" {
		rawFormat = request.Format
	}
	format, err := export.ParseFormat(rawFormat)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "UNSUPPORTED_FORMAT", err.Error(), false, map[string]any{"format": rawFormat})
		return
	}

	table, err := export.DecodeRows(request.Data)
	if err != nil {
		if errors.Is(err, export.ErrNoRows) {
			writeError(r.Context(), w, http.StatusBadRequest, "NO_DATA", "No data to export", false, nil)
			return
		}
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_EXPORT_DATA", err.Error(), false, nil)
		return
	}

	data, err := export.Encode(format, table)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "EXPORT_FAILED", "failed to encode export", false, map[string]any{"details": err.Error()})
		return
	}
	observability.ObserveExport(string(format))

	if deps.Archiver != nil {
		key, err := deps.Archiver.Archive(r.Context(), format, data)
		if err != nil {
			if deps.Logger != nil {
				deps.Logger.WarnContext(r.Context(), "export archive failed", "format", format, "error", err)
			}
		} else {
			w.Header().Set(exportKeyHeader, key)
		}
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", format.Filename()))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func handleExportDownload(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Exports == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ARCHIVE_NOT_CONFIGURED", "export archive is not configured", false, nil)
		return
	}
	key := r.PathValue("key")
	if err := storage.ValidateExportPath(key); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_EXPORT_KEY", err.Error(), false, nil)
		return
	}

	body, info, err := deps.Exports.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "EXPORT_NOT_FOUND", "export not found", false, map[string]any{"key": key})
			return
		}
		writeError(r.Context(), w, http.StatusBadGateway, "ARCHIVE_UNAVAILABLE", "failed to read archived export", true, map[string]any{"details": err.Error()})
		return
	}
	defer func() { _ = body.Close() }()

	format, _ := export.ParseFormat(path.Ext(key)[1:])
	contentType := info.ContentType
	if contentType == "" {
		contentType = format.ContentType()
	}
	disposition := info.ContentDisposition
	if disposition == "" {
		disposition = fmt.Sprintf("attachment; filename=%s", format.Filename())
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", disposition)
	if info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil && deps.Logger != nil {
		deps.Logger.WarnContext(r.Context(), "export download interrupted", "key", key, "error", err)
	}
}
