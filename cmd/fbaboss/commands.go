package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/BlockchainHB/fbabossdiscord/internal/config"
)

// --- ask ---

type askSource struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Namespace string  `json:"namespace"`
	Score     float64 `json:"score"`
}

type askResult struct {
	JobID          string      `json:"job_id"`
	Answer         string      `json:"answer"`
	Confidence     float64     `json:"confidence"`
	Sources        []askSource `json:"sources"`
	Namespaces     []string    `json:"namespaces"`
	ConversationID string      `json:"conversation_id"`
	ProcessingMS   int64       `json:"processing_ms"`
}

type askOptions struct {
	UserID    string
	GuildID   string
	ChannelID string
	ThreadID  string
	Language  string
	Memory    bool
	Priority  bool
}

func askRequestBody(question string, opts askOptions) map[string]any {
	req := map[string]any{
		"question":       question,
		"user_id":        opts.UserID,
		"memory_enabled": opts.Memory,
	}
	scope := map[string]string{}
	if opts.GuildID != "" {
		scope["guild_id"] = opts.GuildID
	}
	if opts.ChannelID != "" {
		scope["channel_id"] = opts.ChannelID
	}
	if opts.ThreadID != "" {
		scope["thread_id"] = opts.ThreadID
	}
	if len(scope) > 0 {
		req["scope"] = scope
	}
	if opts.Language != "" {
		req["language"] = opts.Language
	}
	if opts.Priority {
		req["high_priority"] = true
	}
	return req
}

func runAsk(ctx context.Context, client *apiClient, question string, opts askOptions, w io.Writer) error {
	var res askResult
	err := client.post(ctx, "/v1/ask", askRequestBody(question, opts), &res)
	var apiErr *apiError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusTooManyRequests {
		return fmt.Errorf("slow down: %w", err)
	}
	if err != nil {
		return err
	}
	printAnswer(w, res)
	return nil
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question against the knowledge base",
	Long: `Ask a question against the knowledge base.

Examples:
  fbaboss ask "How many samples should I order before a bulk purchase?"
  fbaboss ask --user 1234 --guild 987 --memory "What about for supplements?"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var opts askOptions
		opts.UserID, _ = cmd.Flags().GetString("user")
		opts.GuildID, _ = cmd.Flags().GetString("guild")
		opts.ChannelID, _ = cmd.Flags().GetString("channel")
		opts.ThreadID, _ = cmd.Flags().GetString("thread")
		opts.Language, _ = cmd.Flags().GetString("language")
		opts.Memory, _ = cmd.Flags().GetBool("memory")
		opts.Priority, _ = cmd.Flags().GetBool("priority")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runAsk(cmd.Context(), client, args[0], opts, os.Stdout)
	},
}

func init() {
	askCmd.Flags().String("user", "cli", "asking user ID")
	askCmd.Flags().String("guild", "", "guild (server) ID")
	askCmd.Flags().String("channel", "", "channel ID")
	askCmd.Flags().String("thread", "", "thread ID")
	askCmd.Flags().String("language", "", "answer language (default English)")
	askCmd.Flags().Bool("memory", false, "include recent conversation history")
	askCmd.Flags().Bool("priority", false, "queue ahead of normal questions")
}

// --- ingest ---

type ingestOptions struct {
	Text        string
	URL         string
	File        string
	Title       string
	Description string
	Namespace   string
}

// ingestRequestBody builds the /ingest payload. Files are sent base64
// encoded so PDFs survive the JSON round trip.
func ingestRequestBody(opts ingestOptions) (map[string]any, error) {
	if opts.Text == "" && opts.URL == "" && opts.File == "" {
		return nil, fmt.Errorf("one of --text, --url, or --file is required")
	}

	req := map[string]any{
		"source": "cli",
	}
	if opts.Title != "" {
		req["title"] = opts.Title
	}
	if opts.Description != "" {
		req["description"] = opts.Description
	}
	if opts.Namespace != "" {
		req["namespace"] = opts.Namespace
	}

	switch {
	case opts.Text != "":
		req["type"] = "text"
		req["content"] = opts.Text
	case opts.URL != "":
		req["type"] = "url"
		req["url"] = opts.URL
	case opts.File != "":
		data, err := os.ReadFile(opts.File)
		if err != nil {
			return nil, fmt.Errorf("reading file: %w", err)
		}
		req["type"] = "file"
		req["content"] = base64.StdEncoding.EncodeToString(data)
		if opts.Title == "" {
			req["title"] = filepath.Base(opts.File)
		}
	}
	return req, nil
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest content into the knowledge base",
	Long: `Ingest content into the knowledge base.

Examples:
  fbaboss ingest --text "Order three samples before committing" --namespace unit-4
  fbaboss ingest --url https://example.com/ppc-guide --namespace unit-7
  fbaboss ingest --file ./module-3.pdf --title "Module 3 workbook"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var opts ingestOptions
		opts.Text, _ = cmd.Flags().GetString("text")
		opts.URL, _ = cmd.Flags().GetString("url")
		opts.File, _ = cmd.Flags().GetString("file")
		opts.Title, _ = cmd.Flags().GetString("title")
		opts.Description, _ = cmd.Flags().GetString("description")
		opts.Namespace, _ = cmd.Flags().GetString("namespace")

		req, err := ingestRequestBody(opts)
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		var result map[string]string
		if err := client.post(cmd.Context(), "/ingest", req, &result); err != nil {
			return err
		}

		printSuccess("Queued doc %s (job %s)", result["id"], result["job_id"])
		return nil
	},
}

func init() {
	ingestCmd.Flags().String("text", "", "text content to ingest")
	ingestCmd.Flags().String("url", "", "URL to fetch and ingest (HTML or PDF)")
	ingestCmd.Flags().String("file", "", "file path to ingest (text or PDF)")
	ingestCmd.Flags().String("title", "", "title for the document")
	ingestCmd.Flags().String("description", "", "short description of the document")
	ingestCmd.Flags().String("namespace", "", "target namespace (default namespace if omitted)")
}

// --- namespaces ---

type namespaceRow struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Vectors     int    `json:"vectors"`
	Default     bool   `json:"default"`
}

func listNamespaces(ctx context.Context, client *apiClient, w io.Writer) error {
	var rows []namespaceRow
	if err := client.get(ctx, "/namespaces", &rows); err != nil {
		return err
	}
	for _, ns := range rows {
		name := ns.Name
		if ns.Default {
			name += " (default)"
		}
		fmt.Fprintf(w, "  %-24s %6d  %s\n", colorize(colorBold, name), ns.Vectors, ns.Description)
	}
	return nil
}

var namespacesCmd = &cobra.Command{
	Use:   "namespaces",
	Short: "List knowledge base namespaces and their vector counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return listNamespaces(cmd.Context(), client, os.Stdout)
	},
}

// --- documents ---

type documentRow struct {
	ID        string    `json:"id"`
	Namespace string    `json:"namespace"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
	Embedded  bool      `json:"embedded"`
}

func listDocuments(ctx context.Context, client *apiClient, ns string, limit int, w io.Writer) error {
	q := url.Values{}
	if ns != "" {
		q.Set("namespace", ns)
	}
	q.Set("limit", strconv.Itoa(limit))

	var docs []documentRow
	if err := client.get(ctx, "/documents?"+q.Encode(), &docs); err != nil {
		return err
	}
	if len(docs) == 0 {
		fmt.Fprintln(w, "No documents.")
		return nil
	}
	for _, d := range docs {
		state := colorize(colorYellow, "pending")
		if d.Embedded {
			state = colorize(colorGreen, "embedded")
		}
		fmt.Fprintf(w, "  %s  %-12s %-8s %s  %s\n", d.ID, d.Namespace, state, d.CreatedAt.Local().Format("2006-01-02 15:04"), d.Title)
	}
	return nil
}

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "List or delete ingested documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		ns, _ := cmd.Flags().GetString("namespace")
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return listDocuments(cmd.Context(), client, ns, limit, os.Stdout)
	},
}

var documentsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a document and its vector",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		if err := client.delete(cmd.Context(), "/documents/"+url.PathEscape(args[0])); err != nil {
			return err
		}

		printSuccess("Deleted doc %s", args[0])
		return nil
	},
}

func init() {
	documentsCmd.Flags().String("namespace", "", "only list documents in this namespace")
	documentsCmd.Flags().Int("limit", 20, "maximum number of documents")
	documentsCmd.AddCommand(documentsDeleteCmd)
}

// --- conversation ---

type conversationMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type conversationTranscript struct {
	ID       string                `json:"id"`
	UserID   string                `json:"user_id"`
	Title    string                `json:"title"`
	Messages []conversationMessage `json:"messages"`
}

func showConversation(ctx context.Context, client *apiClient, id string, w io.Writer) error {
	var conv conversationTranscript
	if err := client.get(ctx, "/conversations/"+url.PathEscape(id)+"/messages", &conv); err != nil {
		return err
	}

	fmt.Fprintf(w, "%s %s\n\n", colorize(colorBold, conv.Title), colorize(colorDim, "("+conv.UserID+")"))
	for _, m := range conv.Messages {
		speaker := "User"
		if m.Role == "assistant" {
			speaker = "Assistant"
		}
		fmt.Fprintf(w, "%s %s\n%s\n\n", colorize(colorCyan, speaker), colorize(colorDim, m.CreatedAt.Local().Format("2006-01-02 15:04")), m.Content)
	}
	return nil
}

var conversationCmd = &cobra.Command{
	Use:   "conversation <id>",
	Short: "Print a stored conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return showConversation(cmd.Context(), client, args[0], os.Stdout)
	},
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

		asJSON, _ := cmd.Flags().GetBool("json")
		keys := config.ShowAll(cfg)
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(keys)
		}
		for _, k := range keys {
			note := k.Source
			if k.Source == config.SourceEnv {
				note = k.EnvVar
			}
			fmt.Printf("  %s = %s %s\n", colorize(colorBold, k.Key), k.Value, colorize(colorDim, "("+note+")"))
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

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a configuration value so the default applies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List settable configuration keys",
	Run: func(cmd *cobra.Command, args []string) {
		for _, k := range config.ValidKeys() {
			fmt.Println(k)
		}
	},
}

var configSetAPIKeyCmd = &cobra.Command{
	Use:   "set-api-key <key>",
	Short: "Store the generation backend API key in the secrets file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetEngineAPIKey(args[0]); err != nil {
			return err
		}
		printSuccess("Stored backend API key")
		return nil
	},
}

func init() {
	configShowCmd.Flags().Bool("json", false, "print configuration as JSON")
	configCmd.AddCommand(configShowCmd, configSetCmd, configUnsetCmd, configKeysCmd, configSetAPIKeyCmd)
}
