package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/talk2db/talk2db/internal/speech"
)

func TestTranscribeMultipartUpload(t *testing.T) {
	fake := &fakeSpeech{text: "show all employees"}
	h := NewHandler(testConfig(t, nil), Dependencies{Speech: fake})

	body, contentType := multipartAudio(t, "audio_file", []byte("RIFF-audio"))
	req := httptest.NewRequest(http.MethodPost, "/transcribe", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	if decodeBody(t, rr)["text"] != "show all employees" {
		t.Fatalf("body = %s", rr.Body.String())
	}
	if fake.audio != "RIFF-audio" {
		t.Fatalf("audio = %q", fake.audio)
	}
}

func TestTranscribeRawBodyAndMissingPart(t *testing.T) {
	fake := &fakeSpeech{text: "hi"}
	h := NewHandler(testConfig(t, nil), Dependencies{Speech: fake})

	req := httptest.NewRequest(http.MethodPost, "/api/transcribe", strings.NewReader("raw-audio"))
	req.Header.Set("Content-Type", "audio/wav")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || fake.audio != "raw-audio" || fake.contentType != "audio/wav" {
		t.Fatalf("status = %d audio = %q type = %q", rr.Code, fake.audio, fake.contentType)
	}

	body, contentType := multipartAudio(t, "other", []byte("x"))
	req = httptest.NewRequest(http.MethodPost, "/transcribe", body)
	req.Header.Set("Content-Type", contentType)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("missing part status = %d", rr.Code)
	}
}

func TestTranscribeNotRecognized(t *testing.T) {
	h := NewHandler(testConfig(t, nil), Dependencies{Speech: &fakeSpeech{err: &speech.RecognitionError{Status: "NoMatch"}}})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/transcribe", strings.NewReader("x")))
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestSynthesizeSpeechStreamsAudio(t *testing.T) {
	fake := &fakeSpeech{}
	h := NewHandler(testConfig(t, nil), Dependencies{Speech: fake})

	for _, path := range []string{"/synthesize_speech", "/api/synthesize_speech"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"text":"There are 6 employees."}`)))
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status = %d body=%s", path, rr.Code, rr.Body.String())
		}
		if rr.Header().Get("Content-Type") != "audio/mpeg" || rr.Body.String() != "mp3:There are 6 employees." {
			t.Fatalf("%s response = %q (%s)", path, rr.Body.String(), rr.Header().Get("Content-Type"))
		}
	}
}

func TestSynthesizeSpeechErrors(t *testing.T) {
	h := NewHandler(testConfig(t, nil), Dependencies{Speech: &fakeSpeech{err: errors.New("quota")}})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/synthesize_speech", strings.NewReader(`{"text":"  "}`)))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("blank text status = %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/synthesize_speech", strings.NewReader(`{"text":"hello"}`)))
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("provider failure status = %d", rr.Code)
	}

	h = NewHandler(testConfig(t, nil), Dependencies{})
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/synthesize_speech", strings.NewReader(`{"text":"hello"}`)))
	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("unconfigured status = %d", rr.Code)
	}
}

type fakeSpeech struct {
	text        string
	err         error
	audio       string
	contentType string
}

func (f *fakeSpeech) Transcribe(_ context.Context, audio io.Reader, contentType string) (string, error) {
	data, _ := io.ReadAll(audio)
	f.audio = string(data)
	f.contentType = contentType
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

func (f *fakeSpeech) Synthesize(_ context.Context, text string) (io.ReadCloser, error) {
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(strings.NewReader("mp3:" + text)), nil
}
