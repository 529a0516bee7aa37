// Package httpapi serves the transcription service's HTTP routes.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/lexiqai/voice-transcribe/internal/capture"
	"github.com/lexiqai/voice-transcribe/internal/observability"
	"github.com/lexiqai/voice-transcribe/internal/speech"
)

// AudioField is the multipart field carrying the recording
const AudioField = "audio"

// memoryLimit is how much of a multipart form is held in memory before
// spilling to temporary files
const memoryLimit = 10 << 20

// TranscriptResponse is the success body
type TranscriptResponse struct {
	Transcript string `json:"transcript"`
}

// ErrorResponse is the failure body
type ErrorResponse struct {
	Error string `json:"error"`
}

// HandleTranscript returns the POST /api/transcript handler. Uploads larger
// than maxUploadBytes are rejected.
func HandleTranscript(backend speech.Backend, maxUploadBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := observability.WithCorrelationID(observability.NewCorrelationID()).
			With().
			Str("component", "httpapi").
			Str("backend", backend.Name()).
			Logger()
		metrics := observability.NewMetrics("httpapi")

		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		if err := r.ParseMultipartForm(memoryLimit); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				logger.Warn().Int64("limit", maxUploadBytes).Msg("Upload too large")
				writeError(w, http.StatusRequestEntityTooLarge, "Audio file too large")
				return
			}
			logger.Warn().Err(err).Msg("Invalid multipart request")
			writeError(w, http.StatusBadRequest, "No audio file provided")
			return
		}
		defer r.MultipartForm.RemoveAll()

		file, header, err := r.FormFile(AudioField)
		if err != nil {
			writeError(w, http.StatusBadRequest, "No audio file provided")
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to read upload")
			writeError(w, http.StatusBadRequest, "Failed to read audio file")
			return
		}
		if len(data) == 0 {
			writeError(w, http.StatusBadRequest, "No audio file provided")
			return
		}
		metrics.RecordAudioBytes("upload", int64(len(data)))

		mediaType := partMediaType(header.Header.Get("Content-Type"))
		audio := speech.AudioFile{
			Name:      "audio" + capture.FileExtension(mediaType),
			MediaType: mediaType,
			Data:      data,
		}

		metrics.RecordTranscriptionStart()
		text, err := backend.Transcribe(r.Context(), audio)
		metrics.RecordTranscriptionEnd(err == nil)
		if err != nil {
			metrics.RecordError("backend")
			logger.Error().Err(err).Int("bytes", len(data)).Msg("Transcription failed")
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}

		logger.Info().
			Int("bytes", len(data)).
			Str("media_type", mediaType).
			Int("chars", len(text)).
			Msg("Transcription served")
		writeJSON(w, http.StatusOK, TranscriptResponse{Transcript: text})
	}
}

// partMediaType normalizes the declared part type, falling back to webm for
// missing or generic declarations
func partMediaType(declared string) string {
	mediaType, _, err := mime.ParseMediaType(declared)
	if err != nil || mediaType == "application/octet-stream" {
		return capture.DefaultMediaType
	}
	return mediaType
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
