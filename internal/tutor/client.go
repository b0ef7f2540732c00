// Package tutor talks to the remote tutoring service that ingests
// documents, generates lecture material, and answers questions about it.
package tutor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// voiceQuestionFilename is the form filename the service expects for a
// recorded question.
const voiceQuestionFilename = "user_question.webm"

// Lecture is the generated lecture payload returned by the service.
type Lecture struct {
	SessionID    string   `json:"session_id"`
	Topic        string   `json:"topic"`
	SlideContent []string `json:"slide_content"`
	Script       string   `json:"lecture_script"`
}

// Narration is the synthesized audio payload for a lecture script.
type Narration struct {
	Topic    string `json:"topic"`
	Script   string `json:"lecture_script"`
	AudioURL string `json:"audio_url"`
}

// Answer is the service's response to a question, in either modality.
// Question carries the transcription when the question was voice.
type Answer struct {
	Question        string   `json:"question"`
	Answer          string   `json:"answer"`
	AudioURL        string   `json:"audio_url"`
	SourceDocuments []string `json:"source_documents"`
}

// Client communicates with the tutoring service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Client targeting the given service base URL. Generation
// and synthesis calls can take a while; timeout bounds each request.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// ingestResponse mirrors the JSON returned by POST /ingestDocuments.
type ingestResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Ingest uploads a document for the given session. Any reported status
// other than "success" is an error carrying the service's message.
func (c *Client) Ingest(ctx context.Context, sessionID, filename string, content []byte) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("session_id", sessionID); err != nil {
		return fmt.Errorf("writing session field: %w", err)
	}
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return fmt.Errorf("creating file part: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return fmt.Errorf("writing file part: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ingestDocuments", &buf)
	if err != nil {
		return fmt.Errorf("creating ingest request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ingest request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ingest: %s", readError(resp))
	}

	var result ingestResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decoding ingest response: %w", err)
	}
	if result.Status != "success" {
		return fmt.Errorf("ingest rejected: %s", result.Message)
	}
	return nil
}

// generateRequest is the JSON body for POST /generateLecture.
type generateRequest struct {
	SessionID string `json:"session_id"`
	Topic     string `json:"topic"`
}

// GenerateLecture requests lecture material on the topic from the
// documents ingested under sessionID.
func (c *Client) GenerateLecture(ctx context.Context, sessionID, topic string) (*Lecture, error) {
	var lecture Lecture
	err := c.postJSON(ctx, "/generateLecture", generateRequest{SessionID: sessionID, Topic: topic}, &lecture)
	if err != nil {
		return nil, fmt.Errorf("generating lecture: %w", err)
	}
	return &lecture, nil
}

// SynthesizeAudio turns a generated lecture into narration audio. The
// service expects the full lecture payload back, not just an id.
func (c *Client) SynthesizeAudio(ctx context.Context, lecture *Lecture) (*Narration, error) {
	var narration Narration
	if err := c.postJSON(ctx, "/generateLectureAudio", lecture, &narration); err != nil {
		return nil, fmt.Errorf("synthesizing audio: %w", err)
	}
	return &narration, nil
}

// askRequest is the JSON body for POST /askQuestion.
type askRequest struct {
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
}

// AskText submits a typed question for the lecture session.
func (c *Client) AskText(ctx context.Context, sessionID, question string) (*Answer, error) {
	var answer Answer
	if err := c.postJSON(ctx, "/askQuestion", askRequest{SessionID: sessionID, Question: question}, &answer); err != nil {
		return nil, fmt.Errorf("asking question: %w", err)
	}
	return &answer, nil
}

// AskVoice submits a recorded question. The service transcribes it and
// returns the transcription alongside the answer.
func (c *Client) AskVoice(ctx context.Context, sessionID string, recording []byte) (*Answer, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("session_id", sessionID); err != nil {
		return nil, fmt.Errorf("writing session field: %w", err)
	}
	part, err := w.CreateFormFile("audio_file", voiceQuestionFilename)
	if err != nil {
		return nil, fmt.Errorf("creating audio part: %w", err)
	}
	if _, err := part.Write(recording); err != nil {
		return nil, fmt.Errorf("writing audio part: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalizing form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/askQuestionAudio", &buf)
	if err != nil {
		return nil, fmt.Errorf("creating voice question request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("voice question request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("voice question: %s", readError(resp))
	}

	var answer Answer
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		return nil, fmt.Errorf("decoding voice answer: %w", err)
	}
	return &answer, nil
}

// RemoteDocuments lists the documents the service holds for a session.
func (c *Client) RemoteDocuments(ctx context.Context, sessionID string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/getDocuments/"+sessionID, nil)
	if err != nil {
		return nil, fmt.Errorf("creating documents request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("documents request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("documents: %s", readError(resp))
	}

	var docs []string
	if err := json.NewDecoder(resp.Body).Decode(&docs); err != nil {
		return nil, fmt.Errorf("decoding documents response: %w", err)
	}
	return docs, nil
}

// DeleteSession drops the session's ingested documents on the service.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/deleteSession/"+sessionID, nil)
	if err != nil {
		return fmt.Errorf("creating delete request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delete session request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("delete session: %s", readError(resp))
	}
	return nil
}

// FetchAudio downloads synthesized audio from the URL the service
// returned. The URL may point at a host other than the service itself.
func (c *Client) FetchAudio(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating audio request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("audio request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("audio: unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) postJSON(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s", readError(resp))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// readError extracts the service's error detail from a non-200 body,
// falling back to the bare status code.
func readError(resp *http.Response) string {
	var detail struct {
		Detail string `json:"detail"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&detail); err == nil && detail.Detail != "" {
		return fmt.Sprintf("status %d: %s", resp.StatusCode, detail.Detail)
	}
	return fmt.Sprintf("unexpected status %d", resp.StatusCode)
}
