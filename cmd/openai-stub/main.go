package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/scarper/internal/pipeline"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	} `json:"messages"`
}

type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// messageText flattens a message body that is either a string or a list of
// typed parts. The second result reports whether an image part was present.
func messageText(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, false
	}
	var parts []contentPart
	if err := json.Unmarshal(raw, &parts); err != nil {
		return "", false
	}
	var b strings.Builder
	image := false
	for _, p := range parts {
		switch p.Type {
		case "text":
			b.WriteString(p.Text)
		case "image_url":
			image = true
		}
	}
	return b.String(), image
}

var contextHeader = regexp.MustCompile(`(?m)^\[(\d+)\] (.+)$`)

// answer cites every context block of the user prompt.
func answer(user string, image bool) string {
	matches := contextHeader.FindAllStringSubmatch(user, -1)
	if len(matches) == 0 {
		return "I don't know; no external context was retrieved."
	}
	var b strings.Builder
	for _, m := range matches {
		fmt.Fprintf(&b, "%s is relevant [%s]. ", strings.TrimSpace(m[2]), m[1])
	}
	if image {
		b.WriteString("The attached image was considered.")
	}
	return strings.TrimSpace(b.String())
}

// summarize keeps the first sentence of the page excerpt as a bullet.
func summarize(user string) string {
	body := user
	if i := strings.Index(user, "Content from "); i >= 0 {
		if j := strings.Index(user[i:], ":\n\n"); j >= 0 {
			body = user[i+j+3:]
		}
	}
	body = strings.TrimSpace(body)
	if i := strings.IndexAny(body, ".!?"); i >= 0 {
		body = body[:i+1]
	}
	if len(body) > 280 {
		body = body[:280]
	}
	return "- " + body
}

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	model := os.Getenv("MODEL_ID")
	if strings.TrimSpace(model) == "" {
		model = "test-model"
	}
	addr := os.Getenv("ADDR")
	if strings.TrimSpace(addr) == "" {
		addr = ":8081"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   []map[string]any{{"id": model, "object": "model"}},
		})
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Messages) < 2 {
			http.Error(w, "expected system and user messages", http.StatusBadRequest)
			return
		}
		sys, _ := messageText(req.Messages[0].Content)
		user, image := messageText(req.Messages[len(req.Messages)-1].Content)

		var content string
		switch {
		case strings.TrimSpace(sys) == pipeline.SystemPrompt:
			content = answer(user, image)
		case strings.Contains(sys, "research assistant"):
			content = summarize(user)
		default:
			http.Error(w, "unexpected system", http.StatusBadRequest)
			return
		}
		log.Debug().Int("prompt_chars", len(user)).Bool("image", image).Msg("completion")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "stub",
			"object": "chat.completion",
			"model":  model,
			"choices": []map[string]any{
				{"index": 0, "finish_reason": "stop", "message": map[string]string{"role": "assistant", "content": content}},
			},
		})
	})

	log.Info().Str("addr", addr).Str("model", model).Msg("openai-stub listening")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal().Err(err).Msg("serve")
	}
}
