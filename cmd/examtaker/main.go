package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/examtaker/internal/contentstore"
	"github.com/pavelanni/examtaker/internal/exam"
	"github.com/pavelanni/examtaker/internal/handler"
	appI18n "github.com/pavelanni/examtaker/internal/i18n"
	"github.com/pavelanni/examtaker/internal/model"
	"github.com/pavelanni/examtaker/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "examtaker",
		Short: "Timed multiple-choice tests served from a GitHub repository",
	}

	serve := serveCmd()
	root.AddCommand(serve, inspectCmd(), exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `examtaker --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addRemoteFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("api-url", contentstore.DefaultAPIURL, "Contents API base URL")
	f.String("repo", "", "Repository holding tests and results (owner/name)")
	f.String("questions-path", "questions", "Directory of test documents in the repository")
	f.String("branch", contentstore.DefaultBranch, "Branch results are committed to")
	f.Duration("request-timeout", 30*time.Second, "Timeout for remote API requests")
}

func addLogFlags(cmd *cobra.Command) {
	cmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")
	cmd.Flags().String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP exam server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	addRemoteFlags(cmd)
	f.String("results-path", "students_solution", "Directory results are written to in the repository")
	f.String("db", "examtaker.db", "SQLite journal path")
	f.StringP("lang", "l", "en", "Default UI language (en, ru)")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /ru)")
	f.Bool("secure-cookies", true, "Set Secure flag on session cookies")
	f.Duration("session-ttl", 4*time.Hour, "Drop exam sessions idle for longer than this (0 = never)")
	addLogFlags(cmd)
	return cmd
}

func inspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Fetch and validate a test document",
		RunE:  runInspect,
	}
	addRemoteFlags(cmd)
	f := cmd.Flags()
	f.String("test-id", "", "Test identifier (required)")
	f.String("token", "", "Access token (or set EXAMTAKER_TOKEN)")
	addLogFlags(cmd)

	_ = cmd.MarkFlagRequired("test-id")

	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export journaled results as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "examtaker.db", "SQLite journal path")
	f.String("test-id", "", "Only export results of this test")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLogFlags(cmd)
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("EXAMTAKER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("examtaker")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/examtaker")
	v.AddConfigPath("/etc/examtaker")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func newContentStore(v *viper.Viper) (*contentstore.Client, error) {
	return contentstore.New(contentstore.Config{
		APIURL:  v.GetString("api-url"),
		Repo:    v.GetString("repo"),
		Branch:  v.GetString("branch"),
		Timeout: v.GetDuration("request-timeout"),
	})
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	journal, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer journal.Close()

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	remote, err := newContentStore(v)
	if err != nil {
		return fmt.Errorf("create content store: %w", err)
	}

	// Normalize base path.
	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	cfg := model.AppConfig{
		QuestionsPath: v.GetString("questions-path"),
		ResultsPath:   v.GetString("results-path"),
		BasePath:      basePath,
		SecureCookies: v.GetBool("secure-cookies"),
		SessionTTL:    v.GetDuration("session-ttl"),
	}

	h, err := handler.New(remote, journal, cfg)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang, basePath))

	if basePath != "" {
		r.Route(basePath, func(sub chi.Router) {
			sub.Use(h.BasePathMiddleware)
			h.Routes(sub)
		})
		r.Get(basePath, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, basePath+"/", http.StatusMovedPermanently)
		})
	} else {
		r.Use(h.BasePathMiddleware)
		h.Routes(r)
	}

	if cfg.SessionTTL > 0 {
		go sweepSessions(h, cfg.SessionTTL)
	}

	journaled, err := journal.ResultCount()
	if err != nil {
		return fmt.Errorf("count journal: %w", err)
	}

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"repo", v.GetString("repo"),
		"api_url", v.GetString("api-url"),
		"questions_path", cfg.QuestionsPath,
		"results_path", cfg.ResultsPath,
		"lang", lang,
		"base_path", basePath,
		"journaled_results", journaled,
	)
	return http.ListenAndServe(addr, r)
}

func sweepSessions(h *handler.Handler, ttl time.Duration) {
	ticker := time.NewTicker(ttl / 4)
	defer ticker.Stop()
	for range ticker.C {
		if n := h.CleanupSessions(); n > 0 {
			slog.Debug("dropped idle sessions", "count", n)
		}
	}
}

func runInspect(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	remote, err := newContentStore(v)
	if err != nil {
		return fmt.Errorf("create content store: %w", err)
	}

	testID := v.GetString("test-id")
	ctx, cancel := context.WithTimeout(context.Background(), v.GetDuration("request-timeout"))
	defer cancel()

	raw, err := remote.FetchDocument(ctx, v.GetString("questions-path"), testID, v.GetString("token"))
	if err != nil {
		return fmt.Errorf("fetch test %s: %w", testID, err)
	}
	def, err := exam.ParseTestDefinition(raw)
	if err != nil {
		return fmt.Errorf("parse test %s: %w", testID, err)
	}

	info := exam.TestInfo(def)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "test:       %s\n", testID)
	fmt.Fprintf(out, "subject:    %s\n", info.Subject)
	fmt.Fprintf(out, "teacher:    %s\n", def.TeacherName)
	fmt.Fprintf(out, "difficulty: %s\n", info.Difficulty)
	fmt.Fprintf(out, "topics:     %s\n", strings.Join(info.Topics, ", "))
	fmt.Fprintf(out, "duration:   %s\n", exam.DurationText(info.DurationMinutes))
	fmt.Fprintf(out, "questions:  %d\n", info.TotalQuestions)
	if len(def.Questions) == 0 {
		return fmt.Errorf("test %s: %w", testID, exam.ErrNoQuestions)
	}
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	journal, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer journal.Close()

	results, err := journal.ExportResults(v.GetString("test-id"))
	if err != nil {
		return fmt.Errorf("export results: %w", err)
	}

	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = cmd.OutOrStdout()
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	slog.Info("exported results", "count", len(results))
	return nil
}
