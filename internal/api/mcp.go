package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/lectern/internal/lectures"
	"github.com/kalambet/lectern/internal/session"
	"github.com/kalambet/lectern/internal/storage"
)

// MCPCatalog abstracts the lecture catalog for the MCP layer.
type MCPCatalog interface {
	List() ([]storage.Lecture, error)
	ByDocument() ([]lectures.DocumentGroup, error)
	Get(id string) (storage.Lecture, error)
}

// MCPGenerator abstracts the lecture pipeline.
type MCPGenerator interface {
	Generate(ctx context.Context, topic string) (*storage.Lecture, error)
}

// MCPSessions abstracts the Q&A session manager.
type MCPSessions interface {
	Open(lectureID string) (storage.Lecture, error)
	Active() (storage.Lecture, bool)
	AskText(ctx context.Context, question string) (session.Turn, error)
}

// MCPState exposes the onboarding context.
type MCPState interface {
	Industry() string
	Role() string
	ContextKey() string
	Topics() []string
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Catalog   MCPCatalog
	Generator MCPGenerator
	Sessions  MCPSessions
	State     MCPState
}

// NewMCPServer creates an MCP server with all lectern tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"lectern",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("lectern — lecture generation and Q&A over local documents, scoped to the user's industry and role."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("list_lectures",
			mcp.WithDescription("List generated lectures for the current industry and role context."),
		),
		mcpListLectures(deps),
	)

	s.AddTool(
		mcp.NewTool("get_lecture",
			mcp.WithDescription("Fetch a single lecture including its slide bullets and narration script."),
			mcp.WithString("lecture_id", mcp.Description("Lecture identifier"), mcp.Required()),
		),
		mcpGetLecture(deps),
	)

	s.AddTool(
		mcp.NewTool("generate_lecture",
			mcp.WithDescription("Generate a new lecture on a topic from the currently selected document."),
			mcp.WithString("topic", mcp.Description("Lecture topic"), mcp.Required()),
		),
		mcpGenerateLecture(deps),
	)

	s.AddTool(
		mcp.NewTool("ask_question",
			mcp.WithDescription("Ask a question about a lecture. Opens a session on the lecture if one is not already active."),
			mcp.WithString("lecture_id", mcp.Description("Lecture to ask about"), mcp.Required()),
			mcp.WithString("question", mcp.Description("The question text"), mcp.Required()),
		),
		mcpAskQuestion(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"lectern://context",
			"Learning Context",
			mcp.WithResourceDescription("Current industry, role, and suggested topics"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceContext(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"lectern://catalog",
			"Lecture Catalog",
			mcp.WithResourceDescription("Lectures grouped by source document"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceCatalog(deps),
	)

	return s
}

type mcpLecture struct {
	ID                 string `json:"id"`
	Topic              string `json:"topic"`
	SourceDocumentName string `json:"source_document_name"`
	Completion         int    `json:"completion"`
	CreatedAt          string `json:"created_at"`
}

func mcpLectureFrom(l storage.Lecture) mcpLecture {
	return mcpLecture{
		ID:                 l.ID,
		Topic:              l.Topic,
		SourceDocumentName: l.SourceDocumentName,
		Completion:         l.Completion,
		CreatedAt:          l.CreatedAt.Format(time.RFC3339),
	}
}

func mcpListLectures(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		list, err := deps.Catalog.List()
		if err != nil {
			return mcpError(fmt.Sprintf("listing lectures failed: %v", err)), nil
		}

		if len(list) == 0 {
			return mcpText("[]"), nil
		}

		results := make([]mcpLecture, len(list))
		for i, l := range list {
			results[i] = mcpLectureFrom(l)
		}

		b, err := json.Marshal(results)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal lectures: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpGetLecture(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("lecture_id")
		if err != nil {
			return mcpError("lecture_id is required"), nil
		}

		l, err := deps.Catalog.Get(id)
		if err != nil {
			return mcpError(fmt.Sprintf("lecture not found: %v", err)), nil
		}

		out := struct {
			mcpLecture
			SlideBullets    []string `json:"slide_bullets"`
			NarrationScript string   `json:"narration_script"`
		}{
			mcpLecture:      mcpLectureFrom(l),
			SlideBullets:    l.SlideBullets,
			NarrationScript: l.NarrationScript,
		}

		b, err := json.Marshal(out)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal lecture: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpGenerateLecture(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		topic, err := req.RequireString("topic")
		if err != nil {
			return mcpError("topic is required"), nil
		}

		l, err := deps.Generator.Generate(ctx, topic)
		if err != nil {
			return mcpError(fmt.Sprintf("generation failed: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Generated lecture %s on %q from %s", l.ID, l.Topic, l.SourceDocumentName)), nil
	}
}

func mcpAskQuestion(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		lectureID, err := req.RequireString("lecture_id")
		if err != nil {
			return mcpError("lecture_id is required"), nil
		}
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}

		if active, ok := deps.Sessions.Active(); !ok || active.ID != lectureID {
			if _, err := deps.Sessions.Open(lectureID); err != nil {
				return mcpError(fmt.Sprintf("opening session failed: %v", err)), nil
			}
		}

		turn, err := deps.Sessions.AskText(ctx, question)
		if err != nil {
			return mcpError(fmt.Sprintf("question failed: %v", err)), nil
		}

		return mcpText(turn.Answer), nil
	}
}

func mcpResourceContext(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		out := struct {
			Industry   string   `json:"industry"`
			Role       string   `json:"role"`
			ContextKey string   `json:"context_key"`
			Topics     []string `json:"topics"`
		}{
			Industry:   deps.State.Industry(),
			Role:       deps.State.Role(),
			ContextKey: deps.State.ContextKey(),
			Topics:     deps.State.Topics(),
		}

		b, err := json.Marshal(out)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal context: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpResourceCatalog(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		groups, err := deps.Catalog.ByDocument()
		if err != nil {
			return nil, fmt.Errorf("failed to list catalog: %w", err)
		}

		type groupSummary struct {
			DocumentID   string       `json:"document_id"`
			DocumentName string       `json:"document_name"`
			Lectures     []mcpLecture `json:"lectures"`
		}

		summaries := make([]groupSummary, len(groups))
		for i, g := range groups {
			ls := make([]mcpLecture, len(g.Lectures))
			for j, l := range g.Lectures {
				m := mcpLectureFrom(l)
				if utf8.RuneCountInString(m.Topic) > 200 {
					runes := []rune(m.Topic)
					m.Topic = string(runes[:200]) + "..."
				}
				ls[j] = m
			}
			summaries[i] = groupSummary{
				DocumentID:   g.DocumentID,
				DocumentName: g.DocumentName,
				Lectures:     ls,
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal catalog: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
