package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"village-assist/internal/answer"
	"village-assist/internal/app"
	"village-assist/internal/cache"
	"village-assist/internal/config"
	"village-assist/internal/llm"
	"village-assist/internal/otp"
	"village-assist/internal/queue"
	"village-assist/internal/retrieval"
	"village-assist/internal/sms"
	"village-assist/internal/speech"
	"village-assist/internal/store"
	"village-assist/internal/transcribe"
	"village-assist/internal/translate"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type testEnv struct {
	store *store.MockStore
	queue *queue.MockQueue
	llm   *llm.MockClient
	sms   *sms.MockSender
	deps  app.Deps
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store: new(store.MockStore),
		queue: new(queue.MockQueue),
		llm:   new(llm.MockClient),
		sms:   new(sms.MockSender),
	}
	tmpl, err := answer.BuiltinTemplates().Lookup("english")
	require.NoError(t, err)

	dir := t.TempDir()
	env.deps = app.Deps{
		Config: config.Config{
			MaxUploadSize:    1024 * 1024,
			UploadDir:        filepath.Join(dir, "uploads"),
			TTSDir:           filepath.Join(dir, "tts"),
			CacheTTL:         60,
			InferenceTimeout: 5,
		},
		Log:        discard,
		Store:      env.store,
		Queue:      env.queue,
		Cache:      cache.NewNoOpCache(),
		LLM:        env.llm,
		Retriever:  retrieval.None{},
		Templates:  answer.BuiltinTemplates(),
		Pipeline:   answer.NewPipeline(answer.Config{Template: tmpl}, env.llm, retrieval.None{}, discard),
		Translator: translate.Passthrough{},
		SMS:        env.sms,
		OTP:        otp.NewService(otp.Config{Secret: []byte("test")}, otp.NewMemoryStore(), env.sms, discard),
	}
	return env
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	newRouter(e.deps).ServeHTTP(rec, req)
	return rec
}

func jsonRequest(method, path string, body any) *http.Request {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestChatHandler(t *testing.T) {
	tests := []struct {
		name        string
		body        map[string]any
		setup       func(*testEnv)
		wantStatus  int
		wantOutcome string
		wantReply   string
	}{
		{
			name:       "empty message",
			body:       map[string]any{"message": "   "},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "greeting skips inference",
			body: map[string]any{"message": "Hello"},
			setup: func(e *testEnv) {
				e.store.On("SaveChatTurn", mock.Anything, mock.MatchedBy(func(turn store.ChatTurn) bool {
					return turn.Outcome == "greeting" && turn.SourceLang == "en"
				})).Return(store.ChatTurn{}, nil).Once()
			},
			wantStatus:  http.StatusOK,
			wantOutcome: "greeting",
			wantReply:   "Hi! Which government service or complaint can I help you with?",
		},
		{
			name: "answered",
			body: map[string]any{"message": "How do I get a ration card?", "session_id": "s-1"},
			setup: func(e *testEnv) {
				e.llm.On("Generate", mock.Anything, mock.Anything).Return("- Visit the mandal office with Aadhaar.", nil).Once()
				e.store.On("SaveChatTurn", mock.Anything, mock.MatchedBy(func(turn store.ChatTurn) bool {
					return turn.SessionID == "s-1" && turn.Outcome == "answered"
				})).Return(store.ChatTurn{}, nil).Once()
			},
			wantStatus:  http.StatusOK,
			wantOutcome: "answered",
			wantReply:   "- Visit the mandal office with Aadhaar.",
		},
		{
			name: "provider failure is not an HTTP error",
			body: map[string]any{"message": "road is broken"},
			setup: func(e *testEnv) {
				e.llm.On("Generate", mock.Anything, mock.Anything).Return("", errors.New("timeout")).Once()
				e.store.On("SaveChatTurn", mock.Anything, mock.Anything).Return(store.ChatTurn{}, errors.New("db down")).Once()
			},
			wantStatus:  http.StatusOK,
			wantOutcome: "provider_failure",
			wantReply:   "Sorry, the service is temporarily unavailable. Please try again.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			if tt.setup != nil {
				tt.setup(env)
			}

			rec := env.do(jsonRequest(http.MethodPost, "/api/chat", tt.body))
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())

			body := decodeBody(t, rec)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, true, body["ok"])
				assert.Equal(t, "text", body["response_type"])
				assert.Equal(t, tt.wantOutcome, body["outcome"])
				assert.Equal(t, tt.wantReply, body["bot_reply"])
				assert.NotEmpty(t, body["session_id"])
			} else {
				assert.Equal(t, false, body["ok"])
			}
			env.llm.AssertExpectations(t)
			env.store.AssertExpectations(t)
		})
	}
}

func TestChatTranslatesAndCaches(t *testing.T) {
	env := newTestEnv(t)
	tr := new(translate.MockTranslator)
	memory, err := cache.NewMemoryCache(10)
	require.NoError(t, err)
	defer memory.Close()
	env.deps.Translator = tr
	env.deps.Cache = memory

	tr.On("Detect", mock.Anything, "पेंशन कैसे मिलेगी?").Return("hi", nil)
	tr.On("Translate", mock.Anything, "पेंशन कैसे मिलेगी?", "hi", "en").Return("How do I get a pension?", nil).Once()
	tr.On("Translate", mock.Anything, "- Apply at the gram panchayat.", "en", "hi").Return("- ग्राम पंचायत में आवेदन करें।", nil).Once()
	env.llm.On("Generate", mock.Anything, mock.MatchedBy(func(p string) bool {
		return strings.Contains(p, "How do I get a pension?")
	})).Return("- Apply at the gram panchayat.", nil).Once()
	env.store.On("SaveChatTurn", mock.Anything, mock.Anything).Return(store.ChatTurn{}, nil).Twice()

	for i, wantCached := range []bool{false, true} {
		rec := env.do(jsonRequest(http.MethodPost, "/api/chat", map[string]any{"message": "पेंशन कैसे मिलेगी?"}))
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i)
		body := decodeBody(t, rec)
		assert.Equal(t, "- ग्राम पंचायत में आवेदन करें।", body["bot_reply"])
		assert.Equal(t, "hi", body["language"])
		assert.Equal(t, wantCached, body["cached"])
	}
	tr.AssertExpectations(t)
	env.llm.AssertExpectations(t)
}

func TestChatSpeaks(t *testing.T) {
	env := newTestEnv(t)
	synth := new(speech.MockSynthesizer)
	synth.On("Extension").Return("wav")
	synth.On("Synthesize", mock.Anything, mock.Anything, speech.Options{Language: "en"}).
		Return(speech.Result{Audio: []byte("RIFF"), ContentType: "audio/wav"}, nil).Once()
	env.deps.Speaker = speech.NewSpeaker(synth, "Please repeat.", "en", discard)
	env.store.On("SaveChatTurn", mock.Anything, mock.Anything).Return(store.ChatTurn{}, nil).Once()

	rec := env.do(jsonRequest(http.MethodPost, "/api/chat", map[string]any{"message": "hi", "speak": true}))
	require.Equal(t, http.StatusOK, rec.Code)
	audioURL, _ := decodeBody(t, rec)["audio_url"].(string)
	require.True(t, strings.HasPrefix(audioURL, "/tts/reply_"), audioURL)
	assert.True(t, strings.HasSuffix(audioURL, ".wav"))

	rec = env.do(httptest.NewRequest(http.MethodGet, audioURL, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "RIFF", rec.Body.String())

	rec = env.do(httptest.NewRequest(http.MethodGet, "/tts/missing.wav", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTextToSpeechHandler(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(jsonRequest(http.MethodPost, "/api/text-to-speech", map[string]any{"text": "hello"}))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	synth := new(speech.MockSynthesizer)
	synth.On("Extension").Return("mp3")
	synth.On("Synthesize", mock.Anything, "Please repeat.", speech.Options{Language: "te"}).
		Return(speech.Result{Audio: []byte("ID3")}, nil).Once()
	env.deps.Speaker = speech.NewSpeaker(synth, "Please repeat.", "en", discard)

	rec = env.do(jsonRequest(http.MethodPost, "/api/text-to-speech", map[string]any{"text": "", "language": "te"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["ok"])
	assert.True(t, strings.HasSuffix(body["audio_url"].(string), ".mp3"))
	synth.AssertExpectations(t)
}

func TestVoiceToTextHandler(t *testing.T) {
	env := newTestEnv(t)
	tr := new(transcribe.MockTranscriber)
	env.deps.Transcriber = tr
	tr.On("Transcribe", mock.Anything, []byte("audio-bytes"), "audio/webm").
		Return(transcribe.Transcript{Text: "రోడ్డు పాడైంది", Language: "te"}, nil).Once()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="audio"; filename="voice.webm"`)
	h.Set("Content-Type", "audio/webm")
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, _ = part.Write([]byte("audio-bytes"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/voice-to-text", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := env.do(req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "రోడ్డు పాడైంది", body["text"])
	assert.Equal(t, "te", body["language"])

	rec = env.do(httptest.NewRequest(http.MethodPost, "/api/voice-to-text", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOTPFlow(t *testing.T) {
	env := newTestEnv(t)
	var code string
	env.sms.On("SendOTP", mock.Anything, "9876543210", mock.Anything).
		Run(func(args mock.Arguments) { code = args.String(2) }).Return(nil)

	rec := env.do(jsonRequest(http.MethodPost, "/api/send-otp", map[string]any{"mobile_number": "12345"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(jsonRequest(http.MethodPost, "/api/send-otp", map[string]any{"mobile_number": "+91 98765 43210"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, code, 4)

	rec = env.do(jsonRequest(http.MethodPost, "/api/verify-otp", map[string]any{"mobile_number": "9876543210", "otp": "00000"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(jsonRequest(http.MethodPost, "/api/verify-otp", map[string]any{"mobile_number": "9876543210", "otp": code}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	token, _ := decodeBody(t, rec)["token"].(string)
	require.NotEmpty(t, token)

	// The code is single use.
	rec = env.do(jsonRequest(http.MethodPost, "/api/verify-otp", map[string]any{"mobile_number": "9876543210", "otp": code}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// A verified token is attached to later submissions.
	env.store.On("CreateApplication", mock.Anything, mock.MatchedBy(func(a store.Application) bool {
		return a.Details["verified_mobile"] == "9876543210"
	})).Return(store.Application{ID: 3}, nil).Once()
	env.queue.On("Enqueue", mock.Anything, queue.TaskOfType(queue.TaskTypeNotify)).Return(nil).Once()
	req := formRequest("/api/apply", url.Values{"name": {"Ravi"}, "phone": {"9876543210"}, "purpose": {"Pension"}})
	req.Header.Set("Authorization", "Bearer "+token)
	rec = env.do(req)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	req = formRequest("/api/apply", url.Values{"name": {"Ravi"}, "phone": {"9876543210"}, "purpose": {"Pension"}})
	req.Header.Set("Authorization", "Bearer forged")
	rec = env.do(req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSendOTPRateLimited(t *testing.T) {
	env := newTestEnv(t)
	env.sms.On("SendOTP", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	for i := 0; i < 3; i++ {
		rec := env.do(jsonRequest(http.MethodPost, "/api/send-otp", map[string]any{"mobile_number": "9876543210"}))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := env.do(jsonRequest(http.MethodPost, "/api/send-otp", map[string]any{"mobile_number": "9876543210"}))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestVerifyOTPLockout(t *testing.T) {
	env := newTestEnv(t)
	var code string
	env.sms.On("SendOTP", mock.Anything, "9876543210", mock.Anything).
		Run(func(args mock.Arguments) { code = args.String(2) }).Return(nil)

	rec := env.do(jsonRequest(http.MethodPost, "/api/send-otp", map[string]any{"mobile_number": "9876543210"}))
	require.Equal(t, http.StatusOK, rec.Code)

	// Five-digit guesses never match the four-digit code.
	for i := 0; i < otp.DefaultMaxVerifyAttempts-1; i++ {
		rec = env.do(jsonRequest(http.MethodPost, "/api/verify-otp", map[string]any{"mobile_number": "9876543210", "otp": fmt.Sprintf("1000%d", i)}))
		require.Equal(t, http.StatusBadRequest, rec.Code)
	}
	rec = env.do(jsonRequest(http.MethodPost, "/api/verify-otp", map[string]any{"mobile_number": "9876543210", "otp": "99999"}))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = env.do(jsonRequest(http.MethodPost, "/api/verify-otp", map[string]any{"mobile_number": "9876543210", "otp": code}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func formRequest(path string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestApplyHandler(t *testing.T) {
	tests := []struct {
		name       string
		form       url.Values
		setup      func(*testEnv)
		wantStatus int
		wantTicket string
	}{
		{
			name: "saved and acknowledged",
			form: url.Values{"name": {"Lakshmi"}, "email": {"l@example.com"}, "phone": {"9876543210"}, "purpose": {"Caste certificate"}},
			setup: func(e *testEnv) {
				e.store.On("CreateApplication", mock.Anything, mock.MatchedBy(func(a store.Application) bool {
					return a.ApplicantName == "Lakshmi" && a.ApplicationType == "Service Application" &&
						a.Details["purpose"] == "Caste certificate" && a.Status == store.ApplicationSubmitted
				})).Return(store.Application{ID: 12}, nil).Once()
				e.queue.On("Enqueue", mock.Anything, mock.MatchedBy(func(task queue.Task) bool {
					var p queue.NotifyPayload
					return task.Type == queue.TaskTypeNotify && task.Decode(&p) == nil && p.Ticket == "APP-000012"
				})).Return(nil).Once()
			},
			wantStatus: http.StatusOK,
			wantTicket: "APP-000012",
		},
		{
			name:       "missing purpose",
			form:       url.Values{"name": {"Lakshmi"}, "phone": {"9876543210"}},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "invalid email",
			form:       url.Values{"name": {"Lakshmi"}, "email": {"nope"}, "phone": {"9876543210"}, "purpose": {"x"}},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "queue failure does not fail the request",
			form: url.Values{"name": {"Lakshmi"}, "phone": {"9876543210"}, "purpose": {"Pension"}},
			setup: func(e *testEnv) {
				e.store.On("CreateApplication", mock.Anything, mock.Anything).Return(store.Application{ID: 1}, nil).Once()
				e.queue.On("Enqueue", mock.Anything, queue.TaskOfType(queue.TaskTypeNotify)).Return(errors.New("nats down")).Times(3)
			},
			wantStatus: http.StatusOK,
			wantTicket: "APP-000001",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			if tt.setup != nil {
				tt.setup(env)
			}
			rec := env.do(formRequest("/api/apply", tt.form))
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantTicket != "" {
				assert.Equal(t, tt.wantTicket, decodeBody(t, rec)["ticket_number"])
			}
			env.store.AssertExpectations(t)
			env.queue.AssertExpectations(t)
		})
	}
}

func TestSubmitComplaintHandler(t *testing.T) {
	photo := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("\x89PNG fake"))
	valid := map[string]any{
		"name": "Suresh", "phone": "9876543210", "department": "Roads",
		"details": "Pothole near school", "photo": photo, "latitude": 17.38, "longitude": 78.48,
	}
	with := func(k string, v any) map[string]any {
		m := map[string]any{}
		for key, val := range valid {
			m[key] = val
		}
		if v == nil {
			delete(m, k)
		} else {
			m[k] = v
		}
		return m
	}

	t.Run("saved with photo", func(t *testing.T) {
		env := newTestEnv(t)
		var saved store.Complaint
		env.store.On("CreateComplaint", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) { saved = args.Get(1).(store.Complaint) }).
			Return(store.Complaint{ID: 5}, nil).Once()
		env.queue.On("Enqueue", mock.Anything, queue.TaskOfType(queue.TaskTypeNotify)).Return(nil).Once()

		rec := env.do(jsonRequest(http.MethodPost, "/api/submit-complaint", valid))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "COMP-000005", decodeBody(t, rec)["ticket_id"])

		assert.Equal(t, store.ComplaintInReview, saved.Status)
		assert.InDelta(t, 17.38, saved.Latitude, 1e-9)
		assert.Regexp(t, `^complaint_[0-9a-f-]{36}\.png$`, saved.PhotoFilename)
		data, err := os.ReadFile(filepath.Join(env.deps.Config.UploadDir, "complaints", saved.PhotoFilename))
		require.NoError(t, err)
		assert.Equal(t, "\x89PNG fake", string(data))
	})

	t.Run("store failure removes photo", func(t *testing.T) {
		env := newTestEnv(t)
		env.store.On("CreateComplaint", mock.Anything, mock.Anything).
			Return(store.Complaint{}, errors.New("db locked")).Once()

		rec := env.do(jsonRequest(http.MethodPost, "/api/submit-complaint", valid))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)

		entries, err := os.ReadDir(filepath.Join(env.deps.Config.UploadDir, "complaints"))
		require.NoError(t, err)
		assert.Empty(t, entries)
		env.queue.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
	})

	for name, body := range map[string]map[string]any{
		"missing latitude": with("latitude", nil),
		"bad latitude":     with("latitude", 123.0),
		"missing photo":    with("photo", nil),
		"bad photo":        with("photo", "data:image/png;base64,%%%"),
		"missing details":  with("details", nil),
	} {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t)
			rec := env.do(jsonRequest(http.MethodPost, "/api/submit-complaint", body))
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			env.store.AssertNotCalled(t, "CreateComplaint", mock.Anything, mock.Anything)
		})
	}
}

func TestListApplicationsHandler(t *testing.T) {
	env := newTestEnv(t)
	env.store.On("ListApplications", mock.Anything).Return([]store.Application{
		{ID: 2, ApplicationType: "Service Application", Details: map[string]string{"purpose": "Income certificate"}, Status: store.ApplicationSubmitted},
	}, nil).Once()
	env.store.On("ListComplaints", mock.Anything).Return([]store.Complaint{
		{ID: 9, Department: "Water", Details: "No supply", Status: store.ComplaintInReview},
	}, nil).Once()

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/get-applications", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		OK           bool         `json:"ok"`
		Applications []recordItem `json:"applications"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.OK)
	assert.Equal(t, []recordItem{
		{ID: "APP-000002", Title: "Service Application", Details: "Income certificate", StatusText: "Submitted", Type: "application"},
		{ID: "COMP-000009", Title: "Water complaint", Details: "No supply", StatusText: "In Review", Type: "complaint"},
	}, body.Applications)

	env = newTestEnv(t)
	env.store.On("ListApplications", mock.Anything).Return(nil, errors.New("db down")).Once()
	env.store.On("ListComplaints", mock.Anything).Return([]store.Complaint{}, nil).Maybe()
	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/get-applications", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func createMultipartRequest(filename, contentType string, content []byte) *http.Request {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	part, _ := mw.CreatePart(h)
	_, _ = part.Write(content)
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/documents/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadHandler(t *testing.T) {
	validDocID := uuid.New()

	tests := []struct {
		name        string
		filename    string
		contentType string
		content     []byte
		setup       func(*store.MockStore, *queue.MockQueue)
		wantStatus  int
	}{
		{
			name:        "successful upload",
			filename:    "schemes.txt",
			contentType: "text/plain",
			content:     []byte("Widow pension: apply at MeeSeva."),
			setup: func(s *store.MockStore, q *queue.MockQueue) {
				s.On("CreateDocument", mock.Anything, "schemes.txt").
					Return(store.Document{ID: validDocID, Status: store.StatusProcessing}, nil).Once()
				q.On("Enqueue", mock.Anything, mock.MatchedBy(func(task queue.Task) bool {
					var p queue.IngestPayload
					return task.Type == queue.TaskTypeIngest && task.Decode(&p) == nil &&
						p.DocumentID == validDocID && p.Content == "Widow pension: apply at MeeSeva."
				})).Return(nil).Once()
			},
			wantStatus: http.StatusAccepted,
		},
		{
			name:        "file too large",
			filename:    "large.txt",
			contentType: "text/plain",
			content:     make([]byte, 2*1024*1024),
			wantStatus:  http.StatusBadRequest,
		},
		{
			name:     "missing Content-Type detects from extension",
			filename: "notes.md",
			content:  []byte("content"),
			setup: func(s *store.MockStore, q *queue.MockQueue) {
				s.On("CreateDocument", mock.Anything, "notes.md").
					Return(store.Document{ID: validDocID, Status: store.StatusProcessing}, nil).Once()
				q.On("Enqueue", mock.Anything, mock.Anything).Return(nil).Once()
			},
			wantStatus: http.StatusAccepted,
		},
		{
			name:       "unsupported extension",
			filename:   "test.docx",
			content:    []byte("content"),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:        "unreadable pdf",
			filename:    "scan.pdf",
			contentType: "application/pdf",
			content:     []byte("not a pdf"),
			wantStatus:  http.StatusBadRequest,
		},
		{
			name:        "CreateDocument failure",
			filename:    "test.txt",
			contentType: "text/plain",
			content:     []byte("content"),
			setup: func(s *store.MockStore, q *queue.MockQueue) {
				s.On("CreateDocument", mock.Anything, "test.txt").
					Return(store.Document{}, errors.New("db error")).Once()
			},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:        "Enqueue failure marks doc failed",
			filename:    "test.txt",
			contentType: "text/plain",
			content:     []byte("content"),
			setup: func(s *store.MockStore, q *queue.MockQueue) {
				s.On("CreateDocument", mock.Anything, "test.txt").
					Return(store.Document{ID: validDocID, Status: store.StatusProcessing}, nil).Once()
				q.On("Enqueue", mock.Anything, queue.TaskOfType(queue.TaskTypeIngest)).Return(errors.New("queue error")).Times(3)
				s.On("UpdateDocumentStatus", mock.Anything, validDocID, store.StatusFailed).Return(nil).Once()
			},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			if tt.setup != nil {
				tt.setup(env.store, env.queue)
			}

			rec := env.do(createMultipartRequest(tt.filename, tt.contentType, tt.content))
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantStatus == http.StatusAccepted {
				body := decodeBody(t, rec)
				assert.Equal(t, validDocID.String(), body["document_id"])
				assert.Equal(t, string(store.StatusProcessing), body["status"])
			}
			env.store.AssertExpectations(t)
			env.queue.AssertExpectations(t)
		})
	}
}

func TestListDocumentsHandler(t *testing.T) {
	env := newTestEnv(t)
	env.store.On("ListDocuments", mock.Anything, []store.DocumentStatus{store.StatusReady}).
		Return([]store.Document{{ID: uuid.New(), Filename: "a.pdf", Status: store.StatusReady}}, nil).Once()

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/documents?status=ready", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	docs := decodeBody(t, rec)["documents"].([]any)
	require.Len(t, docs, 1)
	assert.Equal(t, "a.pdf", docs[0].(map[string]any)["filename"])
	env.store.AssertExpectations(t)
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestStatusText(t *testing.T) {
	tests := []struct {
		status string
		want   string
	}{
		{store.ApplicationSubmitted, "Submitted"},
		{store.ComplaintInReview, "In Review"},
		{"", "Unknown"},
		{"work_in_progress", "Work in progress"},
		{"ésolved", "Ésolved"},
		{"పరిష్కారం", "పరిష్కారం"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusText(tt.status), tt.status)
	}
}
