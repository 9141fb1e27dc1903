package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zen-systems/routegate/pkg/classifier"
	"github.com/zen-systems/routegate/pkg/config"
	"github.com/zen-systems/routegate/pkg/logging"
	"github.com/zen-systems/routegate/pkg/server"
)

var (
	configFile    string
	providersFile string
	logLevel      string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "routegate",
		Short: "Route prompts to the best available model backend",
		Long: `Routegate classifies each request, ranks the registered model backends
	by capability, adaptive score and speed, and walks the ranked chain until
	one backend answers. Failing backends are benched by a circuit breaker.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to settings file (default ~/.routegate/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&providersFile, "providers", "", "path to provider profiles file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level")

	rootCmd.AddCommand(askCmd())
	rootCmd.AddCommand(routeCmd())
	rootCmd.AddCommand(providersCmd())
	rootCmd.AddCommand(modelsCmd())
	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

type requestFlags struct {
	task       string
	attachment string
	tokens     int
	complexity float64
	jsonOut    bool
}

func (f *requestFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.task, "task", "", "force the task type")
	cmd.Flags().StringVar(&f.attachment, "attachment", "", "attachment extension or MIME type")
	cmd.Flags().IntVar(&f.tokens, "attachment-tokens", 0, "estimated attachment size in tokens")
	cmd.Flags().Float64Var(&f.complexity, "complexity", -1, "override complexity in [0,1]")
	cmd.Flags().BoolVar(&f.jsonOut, "json", false, "print JSON")
}

func (f *requestFlags) request(text string) (classifier.Request, error) {
	req := classifier.Request{
		Text: text,
		Hints: classifier.Hints{
			TaskType:         classifier.TaskType(f.task),
			Attachment:       f.attachment,
			AttachmentTokens: f.tokens,
		},
	}
	if f.task != "" && !req.Hints.TaskType.Valid() {
		return req, fmt.Errorf("unknown task type %q", f.task)
	}
	if f.complexity >= 0 {
		if f.complexity > 1 {
			return req, fmt.Errorf("complexity must be in [0,1]")
		}
		c := f.complexity
		req.Hints.Complexity = &c
	}
	return req, nil
}

func askCmd() *cobra.Command {
	var flags requestFlags

	cmd := &cobra.Command{
		Use:   "ask [prompt]",
		Short: "Send a prompt to the best available backend",
		Long: `Classifies the prompt, routes it to the highest ranked backend and falls
	back down the chain on failure.

	Use --task to force a task type and --complexity to skip estimation.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := flags.request(args[0])
			if err != nil {
				return err
			}

			a, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			resp, err := a.orch.Handle(ctx, req)
			if err != nil {
				return err
			}
			if flags.jsonOut {
				return printJSON(cmd.OutOrStdout(), resp)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, resp.Text)
			fmt.Fprintf(cmd.ErrOrStderr(), "\n[%s via %s, attempt %d, %s]\n",
				resp.TaskType, resp.ProviderID, resp.AttemptIndex, resp.Duration.Round(time.Millisecond))
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func routeCmd() *cobra.Command {
	var flags requestFlags

	cmd := &cobra.Command{
		Use:   "route [prompt]",
		Short: "Show how a prompt would be routed without calling any backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := flags.request(args[0])
			if err != nil {
				return err
			}

			a, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			plan, err := a.orch.Plan(req)
			if flags.jsonOut {
				if printErr := printJSON(cmd.OutOrStdout(), plan); printErr != nil {
					return printErr
				}
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			d := plan.Descriptor
			fmt.Fprintf(w, "TASK\t%s\n", d.TaskType)
			fmt.Fprintf(w, "COMPLEXITY\t%.2f\n", d.Complexity)
			fmt.Fprintf(w, "REQUIRED\t%s\n", d.Required)
			fmt.Fprintf(w, "SENSITIVE\t%t\n", d.Sensitive)
			fmt.Fprintf(w, "TOKENS\t%d\n", d.EstimatedTokens)
			if len(d.Signals) > 0 {
				fmt.Fprintf(w, "SIGNALS\t%s\n", strings.Join(d.Signals, ", "))
			}
			if err != nil {
				_ = w.Flush()
				return err
			}

			fmt.Fprintln(w)
			fmt.Fprintln(w, "RANK\tPROVIDER\tSCORE\tDYNAMIC\tSPEED_BIAS\tMATCH")
			for i, c := range plan.Decision.Candidates {
				rank := "-"
				if i < len(plan.Decision.Chain) {
					rank = fmt.Sprint(i + 1)
				}
				fmt.Fprintf(w, "%s\t%s\t%.3f\t%.3f\t%.3f\t%.3f\n", rank, c.ProviderID, c.Score, c.Dynamic, c.SpeedBias, c.Match)
			}
			return w.Flush()
		},
	}
	flags.register(cmd)
	return cmd
}

func providersCmd() *cobra.Command {
	var checkFlag bool

	cmd := &cobra.Command{
		Use:   "providers",
		Short: "List provider profiles and their status",
		Long: `Lists every provider profile with its adapter, model, ratings and
	circuit breaker state.

	Use --check to ping each backend first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			health := map[string]error{}
			if checkFlag {
				health = a.orch.CheckHealth(cmd.Context())
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER\tADAPTER\tMODEL\tQUALITY\tSPEED\tSTATUS\tCAPABILITIES")
			for _, p := range a.orch.Providers() {
				status := "ready"
				if err, checked := health[p.ID]; checked && err != nil {
					status = "unhealthy"
				} else if !p.Available {
					status = p.Breaker
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%.2f\t%s\t%s\n",
					p.ID, p.Adapter, p.Model, p.StaticQuality, p.StaticSpeed, status, strings.Join(p.Capabilities.Strings(), ","))
			}
			for _, spec := range a.skipped {
				fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%.2f\t%s\t%s\n",
					spec.ID, spec.Adapter, a.aliases.Resolve(spec.Model), spec.StaticQuality, spec.StaticSpeed, "no key", strings.Join(spec.Capabilities, ","))
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&checkFlag, "check", false, "ping each backend before listing")
	return cmd
}

func modelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List model aliases and what they resolve to",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			providers, err := config.LoadProvidersOrDefault(cfg.Providers)
			if err != nil {
				return err
			}
			aliases := providers.ModelAliases()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ALIAS\tMODEL")
			for _, name := range aliases.Names() {
				fmt.Fprintf(w, "%s\t%s\n", name, aliases.Resolve(name))
			}
			if err := w.Flush(); err != nil {
				return err
			}

			errs := aliases.Check()
			for _, e := range errs {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", e)
			}
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the routing API over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if addr == "" {
				addr = a.cfg.Server.Address
			}
			a.orch.StartHealthChecks(ctx, a.cfg.Health.Interval)

			srv := &http.Server{
				Addr:         addr,
				Handler:      server.NewHandler(a.orch, a.prom, a.logger),
				ReadTimeout:  a.cfg.Server.ReadTimeout,
				WriteTimeout: a.cfg.Server.WriteTimeout,
			}

			errCh := make(chan error, 1)
			go func() {
				a.logger.Info("listening", zap.String("addr", addr), zap.Int("providers", len(a.orch.Providers())))
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			a.logger.Info("shutting down")
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from settings)")
	return cmd
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if providersFile != "" {
		cfg.Providers = providersFile
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

func setup(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return buildApp(ctx, cfg, logger)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
