package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sigamony/DataViz/internal/api"
	"github.com/sigamony/DataViz/internal/config"
	"github.com/sigamony/DataViz/internal/memory"
	"github.com/sigamony/DataViz/internal/pipeline"
	"github.com/sigamony/DataViz/internal/suggest"
)

// --- datasets ---

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a CSV or XLSX file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		var v api.DatasetView
		if err := client.upload(cmd.Context(), args[0], &v); err != nil {
			return err
		}

		printSuccess("Uploaded %s as %s", v.Filename, v.FileID)
		printStatus("Rows", "%d", v.RowCount)
		for _, c := range v.Profile.Columns {
			printStatus(c, "%s", v.Profile.Dtypes[c])
		}
		printSuggestions(v.Suggestions)
		return nil
	},
}

var datasetsCmd = &cobra.Command{
	Use:   "datasets",
	Short: "List uploaded datasets",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		var list struct {
			Datasets []api.DatasetView `json:"datasets"`
		}
		if err := client.call(cmd.Context(), http.MethodGet, fmt.Sprintf("/datasets?limit=%d", limit), nil, &list); err != nil {
			return err
		}
		if len(list.Datasets) == 0 {
			fmt.Println("No datasets uploaded.")
			return nil
		}
		for _, d := range list.Datasets {
			fmt.Printf("%s  %s  %d rows  %s\n",
				colorize(colorBold, d.FileID), d.Filename, d.RowCount,
				d.CreatedAt.Local().Format(time.DateTime))
		}
		return nil
	},
}

var suggestCmd = &cobra.Command{
	Use:   "suggest <file-id>",
	Short: "Suggest starter chart requests for a dataset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		var body struct {
			Suggestions []suggest.Suggestion `json:"suggestions"`
		}
		path := "/datasets/" + url.PathEscape(args[0]) + "/suggestions"
		if err := client.call(cmd.Context(), http.MethodGet, path, nil, &body); err != nil {
			return err
		}
		printSuggestions(body.Suggestions)
		return nil
	},
}

func printSuggestions(s []suggest.Suggestion) {
	if len(s) == 0 {
		return
	}
	fmt.Println(colorize(colorBold, "Try asking:"))
	for _, sg := range s {
		fmt.Printf("  %s %s\n", sg.Icon, sg.Query)
	}
}

func init() {
	datasetsCmd.Flags().Int("limit", 20, "maximum number of datasets")
}

// --- sessions ---

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage conversation sessions",
}

var sessionNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Start a session and print its id",
	RunE: func(cmd *cobra.Command, args []string) error {
		tag, _ := cmd.Flags().GetString("tag")
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		var out struct {
			SessionID string `json:"session_id"`
		}
		if err := client.call(cmd.Context(), http.MethodPost, "/sessions", map[string]string{"profile_tag": tag}, &out); err != nil {
			return err
		}
		fmt.Println(out.SessionID)
		return nil
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		var s memory.Session
		if err := client.call(cmd.Context(), http.MethodGet, "/sessions/"+url.PathEscape(args[0]), nil, &s); err != nil {
			if isErrorType(err, "session_expired") {
				printWarning("session %s has expired; start a new one with: dataviz session new", args[0])
			}
			return err
		}
		printStatus("Session", "%s", s.ID)
		if s.ProfileTag != "" {
			printStatus("Tag", "%s", s.ProfileTag)
		}
		printStatus("Created", "%s", s.CreatedAt.Local().Format(time.DateTime))
		printStatus("Last active", "%s", s.LastActive.Local().Format(time.DateTime))
		return nil
	},
}

func init() {
	sessionNewCmd.Flags().String("tag", "", "optional label for the session")
	sessionCmd.AddCommand(sessionNewCmd)
	sessionCmd.AddCommand(sessionShowCmd)
}

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <file-id> <question>",
	Short: "Ask a question or request a chart",
	Long: `Ask a question about a dataset. Chart responses are written as PNG.

Examples:
  dataviz ask 3f2c... "How many rows are there?"
  dataviz ask 3f2c... "Plot monthly revenue by region" --out revenue.png
  dataviz ask 3f2c... "Make it a bar chart instead" --session $SID`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		session, _ := cmd.Flags().GetString("session")
		out, _ := cmd.Flags().GetString("out")
		showCode, _ := cmd.Flags().GetBool("code")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		printStep("Thinking...")
		var r pipeline.Response
		err = client.call(cmd.Context(), http.MethodPost, "/generate", map[string]string{
			"file_id":    args[0],
			"query":      strings.Join(args[1:], " "),
			"session_id": session,
		}, &r)
		if err != nil {
			return err
		}
		return printResponse(r, out, showCode)
	},
}

func printResponse(r pipeline.Response, out string, showCode bool) error {
	switch r.Type {
	case pipeline.TypeImage:
		img, err := base64.StdEncoding.DecodeString(r.Image)
		if err != nil {
			return fmt.Errorf("decoding chart: %w", err)
		}
		if out == "" {
			out = fmt.Sprintf("chart-%s.png", time.Now().Format("20060102-150405"))
		}
		if err := os.WriteFile(out, img, 0o644); err != nil {
			return fmt.Errorf("writing chart: %w", err)
		}
		printSuccess("Chart written to %s", out)
		if showCode {
			printCode(r.Code)
		}
	case pipeline.TypeError:
		printError("%s", r.Error)
		if r.Code != "" {
			printCode(r.Code)
		}
	default:
		fmt.Println(r.Message)
	}
	if r.MessageCount != nil {
		printStatus("Messages in session", "%d", *r.MessageCount)
	}
	return nil
}

func init() {
	askCmd.Flags().String("session", os.Getenv("DATAVIZ_SESSION"), "session id to continue (default $DATAVIZ_SESSION)")
	askCmd.Flags().StringP("out", "o", "", "PNG path for chart responses")
	askCmd.Flags().Bool("code", false, "print the script that drew the chart")
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history <session-id> <file-id>",
	Short: "Show the conversation about a dataset",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		var h struct {
			Messages []memory.Turn `json:"messages"`
		}
		if err := client.call(cmd.Context(), http.MethodGet, historyPath(args[0], args[1]), nil, &h); err != nil {
			return err
		}
		if asJSON {
			enc := json.NewEncoder(dataOut)
			enc.SetIndent("", "  ")
			return enc.Encode(h.Messages)
		}
		if len(h.Messages) == 0 {
			fmt.Println("No messages yet.")
			return nil
		}
		for _, t := range h.Messages {
			label := colorize(colorCyan, "User")
			if t.Role == memory.RoleAssistant {
				label = colorize(colorGreen, "Assistant")
			}
			fmt.Printf("%s %s: %s\n", colorize(colorDim, t.CreatedAt.Local().Format(time.TimeOnly)), label, t.Content)
		}
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear <session-id> <file-id>",
	Short: "Forget the conversation about a dataset",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		var out struct {
			Cleared bool `json:"cleared"`
		}
		if err := client.call(cmd.Context(), http.MethodDelete, historyPath(args[0], args[1]), nil, &out); err != nil {
			return err
		}
		printSuccess("Cleared conversation for %s", args[1])
		return nil
	},
}

func historyPath(sessionID, fileID string) string {
	return fmt.Sprintf("/sessions/%s/datasets/%s/history", url.PathEscape(sessionID), url.PathEscape(fileID))
}

func init() {
	historyCmd.Flags().Bool("json", false, "print raw JSON")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		fmt.Printf("# %s\n", config.FilePath())
		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s  %s\n", colorize(colorBold, k.Key), k.Value, colorize(colorDim, "$"+k.EnvVar))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) == 0 {
			return config.ValidKeys(), cobra.ShellCompDirectiveNoFileComp
		}
		return nil, cobra.ShellCompDirectiveNoFileComp
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetKey(args[0], args[1]); err != nil {
			return err
		}
		printSuccess("Set %s = %s", args[0], args[1])
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a value so its default applies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}
