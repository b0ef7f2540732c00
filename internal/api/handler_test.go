package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/lectern/internal/lectures"
	"github.com/kalambet/lectern/internal/pipeline"
	"github.com/kalambet/lectern/internal/playback"
	"github.com/kalambet/lectern/internal/registry"
	"github.com/kalambet/lectern/internal/session"
	"github.com/kalambet/lectern/internal/state"
	"github.com/kalambet/lectern/internal/storage"
	"github.com/kalambet/lectern/internal/taxonomy"
	"github.com/kalambet/lectern/internal/tutor"
)

const testToken = "test-token-12345"

type noopPlayer struct{}

func (noopPlayer) Play(media string, onEnd func()) error { return nil }
func (noopPlayer) Stop()                                 {}

// fakeTutor serves the remote tutor's HTTP surface for end-to-end
// handler tests.
func fakeTutor(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /ingestDocuments", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "success", "message": "ingested"})
	})
	mux.HandleFunc("POST /generateLecture", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			SessionID string `json:"session_id"`
			Topic     string `json:"topic"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(map[string]any{
			"session_id":     req.SessionID,
			"topic":          req.Topic,
			"slide_content":  []string{"Point one", "Point two"},
			"lecture_script": "Welcome to " + req.Topic + ".",
		})
	})
	mux.HandleFunc("POST /generateLectureAudio", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Topic  string `json:"topic"`
			Script string `json:"lecture_script"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(map[string]string{
			"topic":          req.Topic,
			"lecture_script": req.Script,
			"audio_url":      "http://audio.test/lecture.mp3",
		})
	})
	mux.HandleFunc("POST /askQuestion", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Question string `json:"question"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(map[string]any{
			"question":         req.Question,
			"answer":           "It depends.",
			"audio_url":        "http://audio.test/answer.mp3",
			"source_documents": []string{"handbook.txt"},
		})
	})
	mux.HandleFunc("POST /askQuestionAudio", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"question":  "transcribed question",
			"answer":    "Voice answer.",
			"audio_url": "http://audio.test/voice-answer.mp3",
		})
	})
	mux.HandleFunc("GET /getDocuments/{id}", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]string{"handbook.txt"})
	})
	mux.HandleFunc("DELETE /deleteSession/{id}", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func setupHandler(t *testing.T, token string) http.Handler {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	tax, err := taxonomy.Load()
	if err != nil {
		t.Fatalf("loading taxonomy: %v", err)
	}

	remote := fakeTutor(t)
	client := tutor.New(remote.URL, 5*time.Second)

	states := state.NewManager(store, tax)
	reg := registry.New(store)
	catalog := lectures.NewCatalog(store, states)
	generator := pipeline.NewGenerator(reg, states, store, client)
	arbiter := playback.NewArbiter(noopPlayer{})
	sessions := session.NewManager(catalog, client, arbiter)

	return NewHandler(Deps{
		State:     states,
		Taxonomy:  tax,
		Registry:  reg,
		Generator: generator,
		Catalog:   catalog,
		Sessions:  sessions,
		Playback:  arbiter,
		Tutor:     client,
		Token:     token,
	})
}

func authReq(method, url, body, token string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func doJSON(t *testing.T, h http.Handler, method, url, body string, want int) map[string]any {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(method, url, body, testToken))
	if rr.Code != want {
		t.Fatalf("%s %s: status = %d, want %d; body = %s", method, url, rr.Code, want, rr.Body.String())
	}
	var resp map[string]any
	if rr.Body.Len() > 0 {
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("%s %s: parsing response: %v", method, url, err)
		}
	}
	return resp
}

func uploadDocument(t *testing.T, h http.Handler, name, content string) string {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		t.Fatalf("creating form file: %v", err)
	}
	fw.Write([]byte(content))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+testToken)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("upload: status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var doc documentView
	json.Unmarshal(rr.Body.Bytes(), &doc)
	if doc.ID == "" {
		t.Fatal("upload response missing id")
	}
	return doc.ID
}

func onboard(t *testing.T, h http.Handler, industry, role string) {
	t.Helper()
	body := fmt.Sprintf(`{"industry":%q,"role":%q}`, industry, role)
	doJSON(t, h, http.MethodPost, "/onboarding", body, http.StatusOK)
}

func TestHandler_AuthRequired(t *testing.T) {
	h := setupHandler(t, testToken)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/documents", "", ""))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/documents", "", "wrong-token"))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestHandler_HealthIsPublic(t *testing.T) {
	h := setupHandler(t, testToken)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestOnboarding_Flow(t *testing.T) {
	h := setupHandler(t, testToken)

	status := doJSON(t, h, http.MethodGet, "/onboarding", "", http.StatusOK)
	if status["has_onboarded"] != false {
		t.Fatal("expected has_onboarded false before onboarding")
	}
	if _, ok := status["industries"].([]any); !ok {
		t.Fatal("expected industries in onboarding status")
	}

	resp := doJSON(t, h, http.MethodPost, "/onboarding", `{"industry":"engineering","role":"junior"}`, http.StatusOK)
	if resp["context_key"] != "engineering|junior" {
		t.Fatalf("context_key = %v", resp["context_key"])
	}

	status = doJSON(t, h, http.MethodGet, "/onboarding", "", http.StatusOK)
	if status["has_onboarded"] != true {
		t.Fatal("expected has_onboarded true after onboarding")
	}

	topics := doJSON(t, h, http.MethodGet, "/topics", "", http.StatusOK)
	if list, ok := topics["topics"].([]any); !ok || len(list) == 0 {
		t.Fatalf("expected suggested topics, got %v", topics["topics"])
	}
}

func TestOnboarding_UnknownPairRejected(t *testing.T) {
	h := setupHandler(t, testToken)
	doJSON(t, h, http.MethodPost, "/onboarding", `{"industry":"engineering","role":"astronaut"}`, http.StatusBadRequest)
}

func TestDocuments_UploadSelectsNewest(t *testing.T) {
	h := setupHandler(t, testToken)

	first := uploadDocument(t, h, "first.txt", "first document body")
	second := uploadDocument(t, h, "second.txt", "second document body")

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/documents", "", testToken))
	var docs []documentView
	json.Unmarshal(rr.Body.Bytes(), &docs)
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}
	for _, d := range docs {
		if d.ID == second && !d.Selected {
			t.Error("newest upload should be selected")
		}
		if d.ID == first && d.Selected {
			t.Error("older upload should not be selected")
		}
	}
}

func TestDocuments_DeleteSelectedRefused(t *testing.T) {
	h := setupHandler(t, testToken)

	id := uploadDocument(t, h, "doc.txt", "body")
	doJSON(t, h, http.MethodDelete, "/documents/"+id, "", http.StatusConflict)

	doJSON(t, h, http.MethodPost, "/documents/deselect", "", http.StatusOK)
	doJSON(t, h, http.MethodDelete, "/documents/"+id, "", http.StatusOK)
}

func TestDocuments_SelectUnknown(t *testing.T) {
	h := setupHandler(t, testToken)
	doJSON(t, h, http.MethodPost, "/documents/nope/select", "", http.StatusNotFound)
}

func TestLectures_GenerateFlow(t *testing.T) {
	h := setupHandler(t, testToken)
	onboard(t, h, "engineering", "junior")
	uploadDocument(t, h, "handbook.txt", "team handbook contents")

	resp := doJSON(t, h, http.MethodPost, "/lectures", `{"topic":"Team roles"}`, http.StatusOK)
	if resp["topic"] != "Team roles" {
		t.Fatalf("topic = %v", resp["topic"])
	}
	if resp["narration_script"] == "" {
		t.Fatal("expected narration script")
	}
	id, _ := resp["id"].(string)
	if id == "" {
		t.Fatal("response missing lecture id")
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/lectures", "", testToken))
	var list []lectureView
	json.Unmarshal(rr.Body.Bytes(), &list)
	if len(list) != 1 {
		t.Fatalf("expected 1 lecture, got %d", len(list))
	}

	got := doJSON(t, h, http.MethodGet, "/lectures/"+id, "", http.StatusOK)
	if got["topic"] != "Team roles" {
		t.Fatalf("topic = %v", got["topic"])
	}
}

func TestLectures_GenerateWithoutDocument(t *testing.T) {
	h := setupHandler(t, testToken)
	onboard(t, h, "engineering", "junior")
	doJSON(t, h, http.MethodPost, "/lectures", `{"topic":"Team roles"}`, http.StatusBadRequest)
}

func TestLectures_DuplicateTopic(t *testing.T) {
	h := setupHandler(t, testToken)
	onboard(t, h, "engineering", "junior")
	uploadDocument(t, h, "handbook.txt", "team handbook contents")

	doJSON(t, h, http.MethodPost, "/lectures", `{"topic":"Team roles"}`, http.StatusOK)
	doJSON(t, h, http.MethodPost, "/lectures", `{"topic":"team ROLES"}`, http.StatusConflict)
}

func TestLectures_ScopedToContext(t *testing.T) {
	h := setupHandler(t, testToken)
	onboard(t, h, "engineering", "junior")
	uploadDocument(t, h, "handbook.txt", "team handbook contents")
	doJSON(t, h, http.MethodPost, "/lectures", `{"topic":"Team roles"}`, http.StatusOK)

	// Switching context hides the lecture without deleting it.
	onboard(t, h, "engineering", "senior")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/lectures", "", testToken))
	var list []lectureView
	json.Unmarshal(rr.Body.Bytes(), &list)
	if len(list) != 0 {
		t.Fatalf("expected 0 lectures in new context, got %d", len(list))
	}

	onboard(t, h, "engineering", "junior")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/lectures", "", testToken))
	list = nil
	json.Unmarshal(rr.Body.Bytes(), &list)
	if len(list) != 1 {
		t.Fatalf("expected lecture back in original context, got %d", len(list))
	}
}

func TestLectures_Completion(t *testing.T) {
	h := setupHandler(t, testToken)
	onboard(t, h, "engineering", "junior")
	uploadDocument(t, h, "handbook.txt", "team handbook contents")
	resp := doJSON(t, h, http.MethodPost, "/lectures", `{"topic":"Team roles"}`, http.StatusOK)
	id := resp["id"].(string)

	doJSON(t, h, http.MethodPatch, "/lectures/"+id+"/completion", `{"percent":60}`, http.StatusOK)
	got := doJSON(t, h, http.MethodGet, "/lectures/"+id, "", http.StatusOK)
	if got["completion"] != float64(60) {
		t.Fatalf("completion = %v, want 60", got["completion"])
	}

	// Regression is ignored.
	doJSON(t, h, http.MethodPatch, "/lectures/"+id+"/completion", `{"percent":20}`, http.StatusOK)
	got = doJSON(t, h, http.MethodGet, "/lectures/"+id, "", http.StatusOK)
	if got["completion"] != float64(60) {
		t.Fatalf("completion = %v, want 60 after regression attempt", got["completion"])
	}
}

func TestSession_AskFlow(t *testing.T) {
	h := setupHandler(t, testToken)
	onboard(t, h, "engineering", "junior")
	uploadDocument(t, h, "handbook.txt", "team handbook contents")
	resp := doJSON(t, h, http.MethodPost, "/lectures", `{"topic":"Team roles"}`, http.StatusOK)
	id := resp["id"].(string)

	doJSON(t, h, http.MethodPost, "/session", fmt.Sprintf(`{"lecture_id":%q}`, id), http.StatusOK)

	turn := doJSON(t, h, http.MethodPost, "/session/ask", `{"question":"Who owns deploys?"}`, http.StatusOK)
	if turn["answer"] != "It depends." {
		t.Fatalf("answer = %v", turn["answer"])
	}
	if turn["index"] != float64(0) {
		t.Fatalf("index = %v, want 0", turn["index"])
	}

	sess := doJSON(t, h, http.MethodGet, "/session", "", http.StatusOK)
	if sess["active"] != true {
		t.Fatal("expected active session")
	}
	turns, _ := sess["turns"].([]any)
	if len(turns) != 1 {
		t.Fatalf("expected 1 turn, got %d", len(turns))
	}

	doJSON(t, h, http.MethodDelete, "/session", "", http.StatusOK)
	sess = doJSON(t, h, http.MethodGet, "/session", "", http.StatusOK)
	if sess["active"] != false {
		t.Fatal("expected no active session after close")
	}
}

func TestSession_RemoteDocuments(t *testing.T) {
	h := setupHandler(t, testToken)
	onboard(t, h, "engineering", "junior")
	uploadDocument(t, h, "handbook.txt", "team handbook contents")
	resp := doJSON(t, h, http.MethodPost, "/lectures", `{"topic":"Team roles"}`, http.StatusOK)
	id := resp["id"].(string)

	doJSON(t, h, http.MethodGet, "/session/documents", "", http.StatusBadRequest)

	doJSON(t, h, http.MethodPost, "/session", fmt.Sprintf(`{"lecture_id":%q}`, id), http.StatusOK)
	docs := doJSON(t, h, http.MethodGet, "/session/documents", "", http.StatusOK)
	if list, ok := docs["documents"].([]any); !ok || len(list) != 1 {
		t.Fatalf("expected 1 remote document, got %v", docs["documents"])
	}
}

func TestLectures_DeleteCleansRemoteSession(t *testing.T) {
	h := setupHandler(t, testToken)
	onboard(t, h, "engineering", "junior")
	uploadDocument(t, h, "handbook.txt", "team handbook contents")
	resp := doJSON(t, h, http.MethodPost, "/lectures", `{"topic":"Team roles"}`, http.StatusOK)
	id := resp["id"].(string)

	doJSON(t, h, http.MethodDelete, "/lectures/"+id, "", http.StatusOK)
	doJSON(t, h, http.MethodGet, "/lectures/"+id, "", http.StatusNotFound)
}

func TestSession_AskWithoutSession(t *testing.T) {
	h := setupHandler(t, testToken)
	doJSON(t, h, http.MethodPost, "/session/ask", `{"question":"hello?"}`, http.StatusBadRequest)
}

func TestSession_OpenUnknownLecture(t *testing.T) {
	h := setupHandler(t, testToken)
	doJSON(t, h, http.MethodPost, "/session", `{"lecture_id":"missing"}`, http.StatusNotFound)
}

func TestSession_VoiceQuestion(t *testing.T) {
	h := setupHandler(t, testToken)
	onboard(t, h, "engineering", "junior")
	uploadDocument(t, h, "handbook.txt", "team handbook contents")
	resp := doJSON(t, h, http.MethodPost, "/lectures", `{"topic":"Team roles"}`, http.StatusOK)
	id := resp["id"].(string)
	doJSON(t, h, http.MethodPost, "/session", fmt.Sprintf(`{"lecture_id":%q}`, id), http.StatusOK)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("audio_file", "user_question.webm")
	fw.Write([]byte{0x1a, 0x45, 0xdf, 0xa3})
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/session/ask-voice", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+testToken)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}

	var turn turnView
	json.Unmarshal(rr.Body.Bytes(), &turn)
	if !turn.Voice {
		t.Fatal("expected voice turn")
	}
	if turn.Question != "transcribed question" {
		t.Fatalf("question = %q", turn.Question)
	}
}

func TestPlayback_ToggleNarration(t *testing.T) {
	h := setupHandler(t, testToken)
	onboard(t, h, "engineering", "junior")
	uploadDocument(t, h, "handbook.txt", "team handbook contents")
	resp := doJSON(t, h, http.MethodPost, "/lectures", `{"topic":"Team roles"}`, http.StatusOK)
	id := resp["id"].(string)

	toggled := doJSON(t, h, http.MethodPost, "/lectures/"+id+"/playback/toggle", "", http.StatusOK)
	if toggled["playing"] != true {
		t.Fatal("expected playback to start")
	}

	status := doJSON(t, h, http.MethodGet, "/playback", "", http.StatusOK)
	if status["playing"] != true {
		t.Fatal("expected playback status playing")
	}

	toggled = doJSON(t, h, http.MethodPost, "/lectures/"+id+"/playback/toggle", "", http.StatusOK)
	if toggled["playing"] != false {
		t.Fatal("expected second toggle to stop playback")
	}
}

func TestPlayback_StopWhenIdle(t *testing.T) {
	h := setupHandler(t, testToken)
	doJSON(t, h, http.MethodPost, "/playback/stop", "", http.StatusOK)
}
