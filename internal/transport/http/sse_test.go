package http

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"quizblitz-service/internal/domain"
)

func TestSSEStreamPushesSessionUpdates(t *testing.T) {
	server, _ := newTestServer(t)
	createAndStart(t, server.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		server.URL+"/api/quizblitz/events/session/blitz1", nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected event-stream content type, got %q", ct)
	}

	events := readFrames(t, resp, 2)
	if events[0].name != "connected" {
		t.Fatalf("expected connected frame first, got %q", events[0].name)
	}
	if events[1].name != "session_update" {
		t.Fatalf("expected session_update, got %q", events[1].name)
	}
	var view domain.SessionView
	if err := json.Unmarshal([]byte(events[1].data), &view); err != nil {
		t.Fatalf("decode update: %v", err)
	}
	if view.QuizCode != "BLITZ1" || view.Status != domain.StatusActive {
		t.Fatalf("unexpected view %+v", view)
	}
	if view.TimeRemaining <= 0 {
		t.Fatalf("expected positive remaining time, got %v", view.TimeRemaining)
	}
}

func TestSSEStreamClosesWhenQuizFinishes(t *testing.T) {
	server, service := newTestServer(t)
	createAndStart(t, server.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet,
		server.URL+"/api/quizblitz/events/session/blitz1", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer resp.Body.Close()

	for i := 0; i < 2; i++ {
		if _, err := service.AdvanceQuestion(context.Background(), "blitz1", i); err != nil {
			t.Fatalf("advance %d: %v", i, err)
		}
	}

	// The stream must emit a finished view and then end on its own.
	scanner := bufio.NewScanner(resp.Body)
	sawFinished := false
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") && strings.Contains(line, `"isQuizCompleted":true`) {
			sawFinished = true
		}
	}
	if !sawFinished {
		t.Fatal("stream ended without a finished session_update")
	}
}

func TestSSEUnknownSessionIs404(t *testing.T) {
	server, _ := newTestServer(t)
	resp, err := http.Get(server.URL + "/api/quizblitz/events/session/NOPE")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

type sseFrame struct {
	name string
	data string
}

func readFrames(t *testing.T, resp *http.Response, n int) []sseFrame {
	t.Helper()
	scanner := bufio.NewScanner(resp.Body)
	var frames []sseFrame
	var current sseFrame
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			current.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			current.data = strings.TrimPrefix(line, "data: ")
		case line == "":
			if current.name != "" {
				frames = append(frames, current)
				current = sseFrame{}
			}
			if len(frames) == n {
				return frames
			}
		}
	}
	t.Fatalf("stream ended after %d frames, wanted %d", len(frames), n)
	return nil
}
