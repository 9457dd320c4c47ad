package main

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"village-assist/internal/answer"
	"village-assist/internal/app"
	"village-assist/internal/cache"
	"village-assist/internal/httputil"
	"village-assist/internal/lang"
	"village-assist/internal/store"
	"village-assist/internal/translate"
)

type chatRequest struct {
	Message        string `json:"message" validate:"max=4000"`
	TargetLanguage string `json:"target_language" validate:"omitempty,min=2,max=8"`
	SessionID      string `json:"session_id" validate:"max=64"`
	Speak          bool   `json:"speak"`
}

type chatResponse struct {
	OK           bool           `json:"ok"`
	ResponseType string         `json:"response_type"`
	BotReply     string         `json:"bot_reply"`
	Outcome      answer.Outcome `json:"outcome"`
	Language     string         `json:"language"`
	Cached       bool           `json:"cached"`
	SessionID    string         `json:"session_id"`
	AudioURL     string         `json:"audio_url,omitempty"`
}

func chatHandler(deps app.Deps) http.HandlerFunc {
	tmpl := deps.Pipeline.Template()
	pipelineLang := tmpl.Language

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req chatRequest
		if !decodeJSON(deps, w, r, &req) {
			return
		}
		message := strings.TrimSpace(req.Message)
		if message == "" {
			httputil.WriteError(w, http.StatusBadRequest, tmpl.Replies.EmptyQuery)
			return
		}
		sessionID := req.SessionID
		if sessionID == "" {
			sessionID = uuid.NewString()
		}
		log := deps.Log.With("session_id", sessionID)

		source, err := deps.Translator.Detect(ctx, message)
		if err != nil {
			log.Warn("language detection failed", "err", err)
			source = lang.DetectLanguage(message, pipelineLang)
		}
		target := strings.ToLower(req.TargetLanguage)
		if target == "" {
			target = source
		}

		resp := chatResponse{OK: true, ResponseType: "text", Language: target, SessionID: sessionID}

		key := cache.GenerateKey(tmpl.Name, target, message)
		if hit, err := deps.Cache.Get(ctx, key); err != nil {
			log.Warn("answer cache lookup failed", "err", err)
		} else if hit != nil {
			resp.BotReply = hit.Text
			resp.Outcome = answer.Outcome(hit.Outcome)
			resp.Cached = true
		}

		if !resp.Cached {
			query := translateOrKeep(ctx, deps, message, source, pipelineLang)
			res := deps.Pipeline.Answer(ctx, query)
			resp.Outcome = res.Outcome
			resp.BotReply = translateOrKeep(ctx, deps, res.Text, pipelineLang, target)

			if res.Outcome == answer.OutcomeAnswered {
				entry := &cache.Entry{Text: resp.BotReply, Outcome: string(res.Outcome), Script: string(res.Script), Language: target}
				if err := deps.Cache.Set(ctx, key, entry, time.Duration(deps.Config.CacheTTL)*time.Second); err != nil {
					log.Warn("answer cache store failed", "err", err)
				}
			}
		}

		if _, err := deps.Store.SaveChatTurn(ctx, store.ChatTurn{
			SessionID:   sessionID,
			UserMessage: message,
			BotMessage:  resp.BotReply,
			SourceLang:  source,
			TargetLang:  target,
			Outcome:     string(resp.Outcome),
		}); err != nil {
			log.Error("failed to save chat turn", "err", err)
		}

		if req.Speak && deps.Speaker != nil {
			if url, err := speakToFile(ctx, deps, resp.BotReply, target); err != nil {
				log.Error("failed to synthesize reply", "err", err)
			} else {
				resp.AudioURL = url
			}
		}

		httputil.WriteJSON(w, http.StatusOK, resp)
	}
}

// translateOrKeep returns text in target, or text unchanged when translation
// is unnecessary or fails.
func translateOrKeep(ctx context.Context, deps app.Deps, text, source, target string) string {
	if translate.SameLanguage(source, target) || strings.TrimSpace(text) == "" {
		return text
	}
	out, err := deps.Translator.Translate(ctx, text, source, target)
	if err != nil || strings.TrimSpace(out) == "" {
		deps.Log.Warn("translation failed; keeping original text", "source", source, "target", target, "err", err)
		return text
	}
	return out
}

// speakToFile writes text as audio under the TTS directory and returns its URL.
func speakToFile(ctx context.Context, deps app.Deps, text, language string) (string, error) {
	dest := filepath.Join(deps.Config.TTSDir, "reply_"+uuid.NewString())
	path, err := deps.Speaker.SpeakLanguage(ctx, text, language, dest)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(deps.Config.PublicURL, "/") + "/tts/" + filepath.Base(path), nil
}
