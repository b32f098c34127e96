package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/talk2db/talk2db/internal/speech"
)

const maxAudioUploadBytes = 25 << 20

type synthesizeRequest struct {
	Text string `json:"text"`
}

// handleTranscribe accepts a multipart form with an audio_file part or a raw audio body.
func handleTranscribe(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Speech == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SPEECH_NOT_CONFIGURED", "speech service is not configured", false, nil)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxAudioUploadBytes)

	audio := io.Reader(r.Body)
	contentType := r.Header.Get("Content-Type")
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil && mediaType == "multipart/form-data" {
		file, header, err := r.FormFile("audio_file")
		if err != nil {
			writeError(r.Context(), w, http.StatusBadRequest, "AUDIO_REQUIRED", "audio_file is required", false, map[string]any{"details": err.Error()})
			return
		}
		defer func() { _ = file.Close() }()
		audio = file
		contentType = header.Header.Get("Content-Type")
	}

	text, err := deps.Speech.Transcribe(r.Context(), audio, contentType)
	if err != nil {
		var recognitionErr *speech.RecognitionError
		if errors.As(err, &recognitionErr) {
			writeError(r.Context(), w, http.StatusUnprocessableEntity, "SPEECH_NOT_RECOGNIZED", err.Error(), false, nil)
			return
		}
		writeError(r.Context(), w, http.StatusBadGateway, "TRANSCRIBE_FAILED", "failed to transcribe audio", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"text": text})
}

func handleSynthesize(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Speech == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SPEECH_NOT_CONFIGURED", "speech service is not configured", false, nil)
		return
	}
	var request synthesizeRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid synthesis request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.Text) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "TEXT_REQUIRED", "text is required", false, nil)
		return
	}

	audio, err := deps.Speech.Synthesize(r.Context(), request.Text)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadGateway, "SYNTHESIS_FAILED", "failed to synthesize speech", true, map[string]any{"details": err.Error()})
		return
	}
	defer func() { _ = audio.Close() }()

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Disposition", "inline; filename=speech.mp3")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, audio); err != nil && deps.Logger != nil {
		deps.Logger.WarnContext(r.Context(), "speech stream interrupted", "error", err)
	}
}
