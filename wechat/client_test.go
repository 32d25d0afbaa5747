package wechat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func newTestServer(t *testing.T, tokenCalls *int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/cgi-bin/token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(tokenCalls, 1)
		if r.URL.Query().Get("appid") != "app" || r.URL.Query().Get("secret") != "secret" {
			w.Write([]byte(`{"errcode":40013,"errmsg":"invalid appid"}`))
			return
		}
		w.Write([]byte(`{"access_token":"tok","expires_in":7200}`))
	})
	mux.HandleFunc("/cgi-bin/material/add_material", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("access_token") != "tok" || r.URL.Query().Get("type") != "image" {
			w.Write([]byte(`{"errcode":40001,"errmsg":"invalid credential"}`))
			return
		}
		file, header, err := r.FormFile("media")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			return
		}
		data, _ := io.ReadAll(file)
		if string(data) != "png-bytes" || header.Filename != "a.png" {
			t.Errorf("unexpected upload %q %q", header.Filename, data)
		}
		w.Write([]byte(`{"media_id":"m1","url":"http://mmbiz.qpic.cn/a.png"}`))
	})
	mux.HandleFunc("/cgi-bin/draft/add", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Articles []Article `json:"articles"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		if len(body.Articles) != 1 || body.Articles[0].ThumbMediaID != "m1" {
			w.Write([]byte(`{"errcode":40007,"errmsg":"invalid media_id"}`))
			return
		}
		w.Write([]byte(`{"media_id":"draft-1"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientFlow(t *testing.T) {
	var tokenCalls int32
	srv := newTestServer(t, &tokenCalls)
	c := NewClient("app", "secret", WithBaseURL(srv.URL))
	ctx := context.Background()

	media, err := c.UploadImage(ctx, "a.png", []byte("png-bytes"))
	if err != nil {
		t.Fatalf("UploadImage: %v", err)
	}
	if media.MediaID != "m1" || media.URL == "" {
		t.Fatalf("unexpected media %+v", media)
	}

	id, err := c.AddDraft(ctx, []Article{{Title: "t", Content: "<p>x</p>", ThumbMediaID: "m1"}})
	if err != nil {
		t.Fatalf("AddDraft: %v", err)
	}
	if id != "draft-1" {
		t.Fatalf("draft id = %q", id)
	}

	if got := atomic.LoadInt32(&tokenCalls); got != 1 {
		t.Fatalf("token requested %d times, want 1", got)
	}
}

func TestClientAPIError(t *testing.T) {
	var tokenCalls int32
	srv := newTestServer(t, &tokenCalls)
	c := NewClient("app", "wrong", WithBaseURL(srv.URL))

	_, err := c.Token(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != 40013 {
		t.Fatalf("code = %d", apiErr.Code)
	}
}

func TestAddDraftMissingMediaID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/cgi-bin/token" {
			w.Write([]byte(`{"access_token":"tok","expires_in":7200}`))
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient("app", "secret", WithBaseURL(srv.URL))
	_, err := c.AddDraft(context.Background(), []Article{{Title: "t"}})
	if !errors.Is(err, ErrMissingField) {
		t.Fatalf("expected ErrMissingField, got %v", err)
	}
}
