package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchOK(t *testing.T) {
	var gotPath string
	srv := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte("<html>bill</html>"))
	})

	f := NewPageFetcher(srv.URL, "194th", 100)
	page, err := f.Fetch(context.Background(), "H1")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if gotPath != "/Bills/194th/H1" {
		t.Fatalf("path = %q", gotPath)
	}
	if string(page.HTML) != "<html>bill</html>" {
		t.Fatalf("body = %q", page.HTML)
	}
	if page.URL != srv.URL+"/Bills/194th/H1" {
		t.Fatalf("url = %q", page.URL)
	}
}

func TestFetchNotFound(t *testing.T) {
	srv := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	f := NewPageFetcher(srv.URL, "194th", 100)
	_, err := f.Fetch(context.Background(), "H999")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFetchServerErrorIsTransient(t *testing.T) {
	srv := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	})

	f := NewPageFetcher(srv.URL, "194th", 100)
	_, err := f.Fetch(context.Background(), "H1")
	var te *TransientError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransientError, got %v", err)
	}
}

func TestFetchUnexpectedStatus(t *testing.T) {
	srv := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	})

	f := NewPageFetcher(srv.URL, "194th", 100)
	_, err := f.Fetch(context.Background(), "H1")
	if err == nil {
		t.Fatal("expected error")
	}
	var te *TransientError
	if errors.As(err, &te) {
		t.Fatal("4xx is not transient")
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatal("403 is not a missing bill")
	}
}

func TestFetchNetworkFailureIsTransient(t *testing.T) {
	srv := testServer(t, func(w http.ResponseWriter, r *http.Request) {})
	srv.Close()

	f := NewPageFetcher(srv.URL, "194th", 100)
	_, err := f.Fetch(context.Background(), "H1")
	var te *TransientError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransientError, got %v", err)
	}
}

func TestFetchFullText(t *testing.T) {
	srv := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/Bills/194th/H1/Text" {
			w.Write([]byte("Section 1. Text."))
			return
		}
		http.NotFound(w, r)
	})

	f := NewPageFetcher(srv.URL, "194th", 100)
	text, err := f.FetchFullText(context.Background(), "H1")
	if err != nil {
		t.Fatalf("fetch text: %v", err)
	}
	if text != "Section 1. Text." {
		t.Fatalf("text = %q", text)
	}

	// A bill with no published text is normal, not an error.
	text, err = f.FetchFullText(context.Background(), "H2")
	if err != nil {
		t.Fatalf("fetch missing text: %v", err)
	}
	if text != "" {
		t.Fatalf("text = %q", text)
	}
}
