package speech

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscribeUploadsMultipart(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, transcribePath, r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "en", r.FormValue("language"))
		assert.Equal(t, "8000", r.FormValue("sampling_rate"))

		file, header, err := r.FormFile(fieldAudio)
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "meeting.WAV", header.Filename)
		content, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, "RIFF", string(content))

		_, _ = w.Write([]byte(`{"text":" hello team "}`))
	}))
	defer server.Close()

	client, err := NewClient(Config{BaseURL: server.URL})
	require.NoError(t, err)

	text, err := client.Transcribe(t.Context(), "meeting.WAV", strings.NewReader("RIFF"), "en", 8000)
	require.NoError(t, err)
	assert.Equal(t, "hello team", text)
}

func TestTranscribeAppliesDefaults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, DefaultLanguage, r.FormValue("language"))
		assert.Equal(t, "16000", r.FormValue("sampling_rate"))
		_, _ = w.Write([]byte(`{"text":"ok"}`))
	}))
	defer server.Close()

	client, err := NewClient(Config{BaseURL: server.URL})
	require.NoError(t, err)

	_, err = client.Transcribe(t.Context(), "a.ogg", strings.NewReader("x"), "", 0)
	require.NoError(t, err)
}

func TestTranscribeRejectsInput(t *testing.T) {
	client, err := NewClient(Config{BaseURL: "http://127.0.0.1:0"})
	require.NoError(t, err)

	_, err = client.Transcribe(t.Context(), "notes.txt", strings.NewReader("x"), "", 0)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = client.Transcribe(t.Context(), "a.mp3", strings.NewReader(""), "", 0)
	assert.ErrorIs(t, err, ErrEmptyAudio)
}

func TestSupportedFile(t *testing.T) {
	assert.True(t, SupportedFile("x.flac"))
	assert.True(t, SupportedFile("X.MP3"))
	assert.False(t, SupportedFile("x.aac"))
	assert.False(t, SupportedFile("wav"))
}
