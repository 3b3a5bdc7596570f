package recruiter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplication(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/applications/app-7", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Application{
			ID: "app-7", Candidate: "J. Doe", Status: "interviewing", InterviewID: "iv-1",
		})
	}))
	defer srv.Close()

	app, err := New(srv.URL, "tok").Application(context.Background(), "app-7")
	require.NoError(t, err)
	require.Equal(t, "iv-1", app.InterviewID)
	require.False(t, app.ReadOnly())
}

func TestApplicationReadOnly(t *testing.T) {
	for _, tt := range []struct {
		app  Application
		want bool
	}{
		{Application{Status: "interviewing"}, false},
		{Application{Status: "closed"}, true},
		{Application{Status: "interviewing", Evaluated: true}, true},
	} {
		require.Equal(t, tt.want, tt.app.ReadOnly(), "%+v", tt.app)
	}
}

func TestSubmitEvaluation(t *testing.T) {
	var got Evaluation
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/evaluations", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	err := New(srv.URL, "").SubmitEvaluation(context.Background(), Evaluation{
		InterviewID: "iv-1", Score: 4, Notes: "strong systems background",
	})
	require.NoError(t, err)
	require.Equal(t, "iv-1", got.InterviewID)
	require.Equal(t, 4, got.Score)
}

func TestApplicationServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := New(srv.URL, "").Application(context.Background(), "missing")
	require.Error(t, err)
}
