package notifications_test

import (
	"context"
	"io"
	"mime"
	"net/http"
	"net/http/httptest"
	"testing"

	"threadrelay/internal/config"
	"threadrelay/internal/logging"
	"threadrelay/internal/notifications"
)

func TestNewPresenterLogsWhenTopicMissing(t *testing.T) {
	t.Setenv("NTFY_TOPIC", "")
	cfg := config.Default()
	presenter := notifications.NewPresenter(&cfg, logging.NewNop())
	if err := presenter.Show(context.Background(), "title", "body"); err != nil {
		t.Fatalf("expected log presenter to return nil, got %v", err)
	}
	if err := presenter.Alert(context.Background(), "title", "body"); err != nil {
		t.Fatalf("expected log presenter to return nil, got %v", err)
	}
}

func TestNtfyPresenterFormatsRequests(t *testing.T) {
	tests := []struct {
		name           string
		alert          bool
		expectTags     string
		expectPriority string
	}{
		{name: "notice", expectTags: "threadrelay,post"},
		{name: "alert", alert: true, expectTags: "threadrelay,error,alert", expectPriority: "high"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				body     string
			}
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var dec mime.WordDecoder
				title, err := dec.DecodeHeader(r.Header.Get("Title"))
				if err != nil {
					t.Errorf("decode title: %v", err)
				}
				captured.title = title
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, _ := io.ReadAll(r.Body)
				captured.body = string(body)
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			presenter := notifications.NewPresenter(&cfg, logging.NewNop())

			var err error
			if tc.alert {
				err = presenter.Alert(context.Background(), "スレタイ", "(画像が投稿されました)\nhello")
			} else {
				err = presenter.Show(context.Background(), "スレタイ", "(画像が投稿されました)\nhello")
			}
			if err != nil {
				t.Fatalf("presenter returned error: %v", err)
			}
			if captured.title != "スレタイ" {
				t.Fatalf("unexpected title %q", captured.title)
			}
			if captured.body != "(画像が投稿されました)\nhello" {
				t.Fatalf("unexpected body %q", captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestNtfyPresenterReportsHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "limit", http.StatusTooManyRequests)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	presenter := notifications.NewPresenter(&cfg, nil)
	if err := presenter.Show(context.Background(), "t", "b"); err == nil {
		t.Fatal("expected error for 429 response")
	}
}
