package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/lectern/internal/config"
)

// --- onboard ---

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Pick your industry and role",
	Long: `Pick your industry and role. The pair scopes suggested topics and
the lecture catalog; re-running onboard switches the active context.

Examples:
  lectern onboard                               # list available pairs
  lectern onboard --industry engineering --role junior`,
	RunE: func(cmd *cobra.Command, args []string) error {
		industry, _ := cmd.Flags().GetString("industry")
		role, _ := cmd.Flags().GetString("role")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		if industry == "" || role == "" {
			resp, err := client.get(cmd.Context(), "/onboarding")
			if err != nil {
				return err
			}
			var status struct {
				HasOnboarded bool   `json:"has_onboarded"`
				Industry     string `json:"industry"`
				Role         string `json:"role"`
				Industries   []struct {
					ID    string `json:"id"`
					Label string `json:"label"`
					Roles []struct {
						ID    string `json:"id"`
						Label string `json:"label"`
					} `json:"roles"`
				} `json:"industries"`
			}
			if err := decodeJSON(resp, &status); err != nil {
				return err
			}

			if status.HasOnboarded {
				printStatus("Current context", "%s / %s", status.Industry, status.Role)
			}
			fmt.Println("Available industry/role pairs:")
			for _, ind := range status.Industries {
				fmt.Printf("\n  %s (%s)\n", colorize(colorBold, ind.ID), ind.Label)
				for _, r := range ind.Roles {
					fmt.Printf("    --role %-12s %s\n", r.ID, r.Label)
				}
			}
			fmt.Println("\nRun: lectern onboard --industry <id> --role <id>")
			return nil
		}

		resp, err := client.post(cmd.Context(), "/onboarding", map[string]string{
			"industry": industry,
			"role":     role,
		})
		if err != nil {
			return err
		}
		var result struct {
			ContextKey string   `json:"context_key"`
			Topics     []string `json:"topics"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Onboarded as %s", result.ContextKey)
		if len(result.Topics) > 0 {
			fmt.Println("Suggested topics:")
			for _, t := range result.Topics {
				fmt.Printf("  - %s\n", t)
			}
		}
		return nil
	},
}

var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "List suggested lecture topics for the current context",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/topics")
		if err != nil {
			return err
		}
		var result struct {
			ContextKey string   `json:"context_key"`
			Topics     []string `json:"topics"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if result.ContextKey == "" {
			printWarning("No context selected. Run: lectern onboard")
			return nil
		}
		if len(result.Topics) == 0 {
			fmt.Println("No suggested topics for this context. Any topic works with 'lectern lectures generate'.")
			return nil
		}
		for _, t := range result.Topics {
			fmt.Println(t)
		}
		return nil
	},
}

func init() {
	onboardCmd.Flags().String("industry", "", "industry identifier")
	onboardCmd.Flags().String("role", "", "role identifier")
}

// --- documents ---

var documentsCmd = &cobra.Command{
	Use:     "documents",
	Aliases: []string{"docs"},
	Short:   "Manage uploaded documents",
}

var documentsAddCmd = &cobra.Command{
	Use:   "add <file>",
	Short: "Upload a document and select it as the lecture source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		content, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading file: %w", err)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.upload(cmd.Context(), "/documents", "file", args[0], content)
		if err != nil {
			return err
		}
		var doc struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		}
		if err := decodeJSON(resp, &doc); err != nil {
			return err
		}

		printSuccess("Uploaded and selected %s (%s)", doc.Name, doc.ID[:8])
		return nil
	},
}

var documentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List uploaded documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/documents")
		if err != nil {
			return err
		}
		var docs []struct {
			ID        string `json:"id"`
			Name      string `json:"name"`
			Preview   string `json:"preview"`
			Selected  bool   `json:"selected"`
			CreatedAt string `json:"created_at"`
		}
		if err := decodeJSON(resp, &docs); err != nil {
			return err
		}

		if len(docs) == 0 {
			fmt.Println("No documents uploaded. Run: lectern documents add <file>")
			return nil
		}
		for _, d := range docs {
			marker := " "
			if d.Selected {
				marker = colorize(colorGreen, "*")
			}
			fmt.Printf("%s %s  %s  %s\n", marker, colorize(colorCyan, d.ID[:8]), d.CreatedAt, d.Name)
		}
		return nil
	},
}

var documentsSelectCmd = &cobra.Command{
	Use:   "select <id>",
	Short: "Select a document as the lecture source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		id, err := resolveDocumentID(cmd, client, args[0])
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/documents/"+id+"/select", nil)
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Selected document %s", id[:8])
		return nil
	},
}

var documentsDeselectCmd = &cobra.Command{
	Use:   "deselect",
	Short: "Clear the document selection",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/documents/deselect", nil)
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Selection cleared")
		return nil
	},
}

var documentsRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete an uploaded document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		id, err := resolveDocumentID(cmd, client, args[0])
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/documents/"+id)
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Deleted document %s", id[:8])
		return nil
	},
}

// resolveDocumentID accepts a full ID or an unambiguous prefix.
func resolveDocumentID(cmd *cobra.Command, client *apiClient, arg string) (string, error) {
	resp, err := client.get(cmd.Context(), "/documents")
	if err != nil {
		return "", err
	}
	var docs []struct {
		ID string `json:"id"`
	}
	if err := decodeJSON(resp, &docs); err != nil {
		return "", err
	}

	var matches []string
	for _, d := range docs {
		if d.ID == arg {
			return arg, nil
		}
		if strings.HasPrefix(d.ID, arg) {
			matches = append(matches, d.ID)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return arg, nil // let the server report not found
	default:
		return "", fmt.Errorf("document ID prefix %q is ambiguous (%d matches)", arg, len(matches))
	}
}

func init() {
	documentsCmd.AddCommand(documentsAddCmd)
	documentsCmd.AddCommand(documentsListCmd)
	documentsCmd.AddCommand(documentsSelectCmd)
	documentsCmd.AddCommand(documentsDeselectCmd)
	documentsCmd.AddCommand(documentsRmCmd)
}

// --- lectures ---

var lecturesCmd = &cobra.Command{
	Use:   "lectures",
	Short: "Generate and browse lectures",
}

type lectureJSON struct {
	ID                 string   `json:"id"`
	Topic              string   `json:"topic"`
	SourceDocumentID   string   `json:"source_document_id"`
	SourceDocumentName string   `json:"source_document_name"`
	SlideBullets       []string `json:"slide_bullets"`
	NarrationScript    string   `json:"narration_script"`
	AudioCached        bool     `json:"audio_cached"`
	Completion         int      `json:"completion"`
	CreatedAt          string   `json:"created_at"`
}

var lecturesGenerateCmd = &cobra.Command{
	Use:   "generate <topic>",
	Short: "Generate a lecture on a topic from the selected document",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		topic := strings.Join(args, " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stderr, "Generating lecture on %q — this can take a while...\n", topic)
		resp, err := client.post(cmd.Context(), "/lectures", map[string]string{"topic": topic})
		if err != nil {
			return err
		}
		var lecture lectureJSON
		if err := decodeJSON(resp, &lecture); err != nil {
			return err
		}

		printSuccess("Generated lecture %s on %q", lecture.ID[:8], lecture.Topic)
		for _, bullet := range lecture.SlideBullets {
			fmt.Printf("  • %s\n", bullet)
		}
		return nil
	},
}

var lecturesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List lectures in the current context",
	RunE: func(cmd *cobra.Command, args []string) error {
		byDocument, _ := cmd.Flags().GetBool("by-document")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		if byDocument {
			resp, err := client.get(cmd.Context(), "/lectures?group=document")
			if err != nil {
				return err
			}
			var groups []struct {
				DocumentName string        `json:"document_name"`
				Lectures     []lectureJSON `json:"lectures"`
			}
			if err := decodeJSON(resp, &groups); err != nil {
				return err
			}
			if len(groups) == 0 {
				fmt.Println("No lectures in this context.")
				return nil
			}
			for _, g := range groups {
				fmt.Printf("%s\n", colorize(colorBold, g.DocumentName))
				for _, l := range g.Lectures {
					printLectureRow(l)
				}
			}
			return nil
		}

		resp, err := client.get(cmd.Context(), "/lectures")
		if err != nil {
			return err
		}
		var list []lectureJSON
		if err := decodeJSON(resp, &list); err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Println("No lectures in this context. Run: lectern lectures generate <topic>")
			return nil
		}
		for _, l := range list {
			printLectureRow(l)
		}
		return nil
	},
}

func printLectureRow(l lectureJSON) {
	audio := " "
	if l.AudioCached {
		audio = colorize(colorGreen, "♪")
	}
	fmt.Printf("  %s %s  %3d%%  %s\n", audio, colorize(colorCyan, l.ID[:8]), l.Completion, l.Topic)
}

var lecturesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a lecture's slides and narration script",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		id, err := resolveLectureID(cmd, client, args[0])
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/lectures/"+id)
		if err != nil {
			return err
		}
		var lecture lectureJSON
		if err := decodeJSON(resp, &lecture); err != nil {
			return err
		}

		fmt.Printf("%s\n", colorize(colorBold, lecture.Topic))
		fmt.Printf("Source: %s  Progress: %d%%\n\n", lecture.SourceDocumentName, lecture.Completion)
		for _, bullet := range lecture.SlideBullets {
			fmt.Printf("  • %s\n", bullet)
		}
		fmt.Printf("\n%s\n", lecture.NarrationScript)
		return nil
	},
}

var lecturesRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a lecture",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		id, err := resolveLectureID(cmd, client, args[0])
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/lectures/"+id)
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Deleted lecture %s", id[:8])
		return nil
	},
}

var lecturesPlayCmd = &cobra.Command{
	Use:   "play <id>",
	Short: "Toggle narration playback for a lecture",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		id, err := resolveLectureID(cmd, client, args[0])
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/lectures/"+id+"/playback/toggle", nil)
		if err != nil {
			return err
		}
		var result struct {
			Playing bool `json:"playing"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if result.Playing {
			printSuccess("Playing narration for %s", id[:8])
		} else {
			printSuccess("Stopped narration for %s", id[:8])
		}
		return nil
	},
}

var lecturesProgressCmd = &cobra.Command{
	Use:   "progress <id> <percent>",
	Short: "Record listening progress for a lecture",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		percent, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("percent must be a number: %w", err)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		id, err := resolveLectureID(cmd, client, args[0])
		if err != nil {
			return err
		}

		resp, err := client.patch(cmd.Context(), "/lectures/"+id+"/completion", map[string]int{"percent": percent})
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Progress for %s recorded", id[:8])
		return nil
	},
}

func resolveLectureID(cmd *cobra.Command, client *apiClient, arg string) (string, error) {
	resp, err := client.get(cmd.Context(), "/lectures")
	if err != nil {
		return "", err
	}
	var list []struct {
		ID string `json:"id"`
	}
	if err := decodeJSON(resp, &list); err != nil {
		return "", err
	}

	var matches []string
	for _, l := range list {
		if l.ID == arg {
			return arg, nil
		}
		if strings.HasPrefix(l.ID, arg) {
			matches = append(matches, l.ID)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return arg, nil
	default:
		return "", fmt.Errorf("lecture ID prefix %q is ambiguous (%d matches)", arg, len(matches))
	}
}

func init() {
	lecturesListCmd.Flags().Bool("by-document", false, "group lectures by source document")
	lecturesCmd.AddCommand(lecturesGenerateCmd)
	lecturesCmd.AddCommand(lecturesListCmd)
	lecturesCmd.AddCommand(lecturesShowCmd)
	lecturesCmd.AddCommand(lecturesRmCmd)
	lecturesCmd.AddCommand(lecturesPlayCmd)
	lecturesCmd.AddCommand(lecturesProgressCmd)
}

// --- session ---

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Q&A session on a lecture",
}

type turnJSON struct {
	Index    int    `json:"index"`
	Question string `json:"question"`
	Voice    bool   `json:"voice"`
	Answer   string `json:"answer"`
	HasAudio bool   `json:"has_audio"`
	AskedAt  string `json:"asked_at"`
}

var sessionOpenCmd = &cobra.Command{
	Use:   "open <lecture-id>",
	Short: "Open a Q&A session on a lecture",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		id, err := resolveLectureID(cmd, client, args[0])
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/session", map[string]string{"lecture_id": id})
		if err != nil {
			return err
		}
		var result struct {
			Lecture lectureJSON `json:"lecture"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Session open on %q", result.Lecture.Topic)
		return nil
	},
}

var sessionAskCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question in the open session",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/session/ask", map[string]string{"question": question})
		if err != nil {
			return err
		}
		var turn turnJSON
		if err := decodeJSON(resp, &turn); err != nil {
			return err
		}

		fmt.Println(turn.Answer)
		return nil
	},
}

var sessionAskVoiceCmd = &cobra.Command{
	Use:   "ask-voice <recording>",
	Short: "Ask a recorded question in the open session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		recording, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading recording: %w", err)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.upload(cmd.Context(), "/session/ask-voice", "audio_file", args[0], recording)
		if err != nil {
			return err
		}
		var turn turnJSON
		if err := decodeJSON(resp, &turn); err != nil {
			return err
		}

		fmt.Printf("%s %s\n", colorize(colorBold, "Heard:"), turn.Question)
		fmt.Println(turn.Answer)
		return nil
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the open session and its turn history",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/session")
		if err != nil {
			return err
		}
		var sess struct {
			Active   bool        `json:"active"`
			Awaiting bool        `json:"awaiting"`
			Lecture  lectureJSON `json:"lecture"`
			Turns    []turnJSON  `json:"turns"`
		}
		if err := decodeJSON(resp, &sess); err != nil {
			return err
		}

		if !sess.Active {
			fmt.Println("No session open. Run: lectern session open <lecture-id>")
			return nil
		}
		printStatus("Lecture", "%s", sess.Lecture.Topic)
		if sess.Awaiting {
			printStatus("State", "waiting for an answer")
		}
		for _, turn := range sess.Turns {
			q := turn.Question
			if turn.Voice {
				q += " (voice)"
			}
			fmt.Printf("\n%s %s\n", colorize(colorBold, fmt.Sprintf("Q%d:", turn.Index+1)), q)
			fmt.Printf("    %s\n", turn.Answer)
		}
		return nil
	},
}

var sessionCloseCmd = &cobra.Command{
	Use:   "close",
	Short: "Close the open session",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/session")
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Session closed")
		return nil
	},
}

func init() {
	sessionCmd.AddCommand(sessionOpenCmd)
	sessionCmd.AddCommand(sessionAskCmd)
	sessionCmd.AddCommand(sessionAskVoiceCmd)
	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionCloseCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
