package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"today_eat_what/server"
)

var (
	configPath string
	verbose    bool
	jsonOutput bool
	atFlag     string
	addrFlag   string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "today-eat-what",
		Short:         "Pick a meal, write a Xiaohongshu note about it, audit it and publish it",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (optional; env and .env are always read)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logs")
	root.AddCommand(runCmd(), serveCmd(), classifyCmd())
	return root
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one pipeline run and print the post id and cost",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			start, err := parseAt(atFlag)
			if err != nil {
				return err
			}
			a.logger.Info("[cli] run", "at", start.Format(time.RFC3339), "publish_target", a.cfg.PublishTarget())
			res, runErr := a.orchestrator.Run(cmd.Context(), start)

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(res); err != nil {
					return err
				}
			} else {
				if res.PostID != "" {
					fmt.Println(res.PostID)
				}
				fmt.Fprintf(os.Stderr, "cost: %s\n", res.Cost)
			}
			return runErr
		},
	}
	cmd.Flags().StringVar(&atFlag, "at", "", "classify this RFC 3339 time instead of now")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print the full run result as JSON")
	return cmd
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP trigger for an external scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			srv, err := server.New(a.orchestrator, a.cfg.Server.RunTimeout, a.logger)
			if err != nil {
				return err
			}
			listen := a.cfg.Server.Addr
			if addrFlag != "" {
				listen = addrFlag
			}
			httpSrv := &http.Server{Addr: listen, Handler: srv.Routes(), ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-cmd.Context().Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = httpSrv.Shutdown(shutdownCtx)
			}()

			a.logger.Info("starting web server", "addr", listen)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addrFlag, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

func classifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Print the meal occasion for now or --at",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			schedule, err := cfg.MealSchedule()
			if err != nil {
				return err
			}
			start, err := parseAt(atFlag)
			if err != nil {
				return err
			}
			occ := schedule.Classify(start)
			fmt.Printf("%s\t%s\n", occ, occ.Label())
			return nil
		},
	}
	cmd.Flags().StringVar(&atFlag, "at", "", "RFC 3339 time to classify (default now)")
	return cmd
}

func parseAt(s string) (time.Time, error) {
	if s == "" {
		return time.Now(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("--at: %w", err)
	}
	return t, nil
}
