package uploader

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHTTPUpload(t *testing.T) {
	var gotName string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/artifacts", r.URL.Path)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		gotName = r.URL.Query().Get("name")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"url": "https://cdn.example.com/a/1"})
	}))
	defer srv.Close()

	up := NewHTTP(srv.URL, "tok")
	info, err := up.Upload(context.Background(), "interview-1.wav", []byte{1, 2, 3})
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example.com/a/1", info.URL)
	require.False(t, info.UploadedAt.IsZero())
	require.Equal(t, "interview-1.wav", gotName)
	require.Equal(t, []byte{1, 2, 3}, gotBody)
}

func TestHTTPUploadServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	up := NewHTTP(srv.URL, "")
	_, err := up.Upload(context.Background(), "x.wav", []byte{1})
	require.Error(t, err)

	var ue *UploadError
	require.True(t, errors.As(err, &ue))
	require.Equal(t, "x.wav", ue.Name)
}

func TestFakeUploader(t *testing.T) {
	f := NewFake()
	info, err := f.Upload(context.Background(), "a.wav", []byte{9})
	require.NoError(t, err)
	require.Equal(t, "fake://a.wav", info.URL)
	require.Equal(t, []byte{9}, f.Received["a.wav"])

	f.Err = errors.New("offline")
	_, err = f.Upload(context.Background(), "b.wav", nil)
	require.Error(t, err)
}
