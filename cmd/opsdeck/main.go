package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"opsdeck/internal/config"
	"opsdeck/internal/db"
	"opsdeck/internal/engine"
	"opsdeck/internal/migrate"
	"opsdeck/internal/repo"
	"opsdeck/internal/secrets"
	"opsdeck/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "opsdeck",
	Short: "Opsdeck IT-operations dashboard",
	Long: `Opsdeck aggregates uptime monitoring, PSA tickets, workflow automation,
hypervisor cluster status and BI reports into one dashboard, and keeps
employee onboarding checklists in sync with the ticket queue.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("OPSDECK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(serviceCmd())
	rootCmd.AddCommand(checklistCmd())
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Manage app configuration"}
	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default opsdeck.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o600); err != nil {
				return err
			}
			fmt.Printf("Wrote %s; set auth.jwt_secret and secrets.encryption_key before serving.\n", path)
			return nil
		},
	})
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the dashboard HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := slog.New(slog.NewTextHandler(os.Stderr, nil))
			return withEngine(cmd.Context(), log, func(ctx context.Context, e engine.Engine) error {
				if err := e.Bootstrap(ctx); err != nil {
					return err
				}
				if addr == "" {
					addr = e.Config.Server.Addr
				}
				if addr == "" {
					addr = ":8085"
				}
				if basePath == "" {
					basePath = e.Config.Server.BasePath
				}
				handler, err := server.New(server.Config{
					Engine:   e,
					BasePath: basePath,
					Auth: server.AuthConfig{
						JWTSecret: e.Config.Auth.JWTSecret,
						TokenTTL:  e.Config.TokenTTL(),
					},
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				log.Info("serving dashboard API", "addr", addr, "base_path", basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to config server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (defaults to config server.base_path)")
	return cmd
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "user", Short: "Manage dashboard users"}
	var username, role string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a user (prompts for password)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if username == "" {
				return fmt.Errorf("--username required")
			}
			fmt.Fprint(os.Stderr, "Password: ")
			pw, err := term.ReadPassword(int(syscall.Stdin))
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), nil, func(ctx context.Context, e engine.Engine) error {
				u, err := e.CreateUser(ctx, username, string(pw), role)
				if err != nil {
					return err
				}
				fmt.Printf("created user %s (%s)\n", u.Username, u.Role)
				return nil
			})
		},
	}
	create.Flags().StringVar(&username, "username", "", "login name")
	create.Flags().StringVar(&role, "role", "viewer", "role (admin or viewer)")
	cmd.AddCommand(create)
	return cmd
}

func serviceCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "service", Short: "Manage external integrations"}
	cmd.AddCommand(serviceListCmd())
	cmd.AddCommand(serviceSetCmd())
	cmd.AddCommand(serviceDeleteCmd())
	return cmd
}

func serviceListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured integrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				configs, err := r.ActiveServiceConfigs(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(configs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Service", "Base URL", "API Key", "Username", "Updated"})
				for _, c := range configs {
					tw.AppendRow(table.Row{c.Service, c.BaseURL, boolMark(c.APIKey != ""), c.Username, c.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func serviceSetCmd() *cobra.Command {
	var baseURL, apiKey, apiSecret, username, password string
	cmd := &cobra.Command{
		Use:   "set <service>",
		Short: "Create or update an integration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if baseURL == "" {
				return fmt.Errorf("--base-url required")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				cfg, err := r.GetServiceConfig(ctx, args[0])
				if err != nil && !errors.Is(err, repo.ErrNotFound) {
					return err
				}
				cfg.Service = args[0]
				cfg.BaseURL = baseURL
				if apiKey != "" {
					cfg.APIKey = apiKey
				}
				if apiSecret != "" {
					cfg.APISecret = apiSecret
				}
				if username != "" {
					cfg.Username = username
				}
				if password != "" {
					cfg.Password = password
				}
				if err := r.UpsertServiceConfig(ctx, cfg); err != nil {
					return err
				}
				fmt.Printf("configured %s -> %s\n", cfg.Service, cfg.BaseURL)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&baseURL, "base-url", "", "service base URL")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key")
	cmd.Flags().StringVar(&apiSecret, "api-secret", "", "API secret / token value")
	cmd.Flags().StringVar(&username, "username", "", "username or token id")
	cmd.Flags().StringVar(&password, "password", "", "password")
	return cmd
}

func serviceDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <service>",
		Short: "Remove an integration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteServiceConfig(ctx, args[0])
			})
		},
	}
}

func checklistCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "checklist", Short: "Inspect onboarding checklists"}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List checklists",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				checklists, err := r.ListChecklists(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(checklists)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Employee", "Status", "Ticket", "Done", "Created"})
				for _, c := range checklists {
					ticket := ""
					if c.TicketID != nil {
						ticket = *c.TicketID
					}
					done := 0
					for _, it := range c.Items {
						if it.Status != "pending" {
							done++
						}
					}
					tw.AppendRow(table.Row{c.EmployeeName, c.Status, ticket, fmt.Sprintf("%d/%d", done, len(c.Items)), c.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	})
	return cmd
}

func withEngine(ctx context.Context, log *slog.Logger, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	box, err := secrets.NewBox(cfg.Secrets.EncryptionKey)
	if err != nil {
		return err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, engine.New(conn, cfg, box, log))
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	box, err := secrets.NewBox(cfg.Secrets.EncryptionKey)
	if err != nil {
		return err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn, Box: box})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func boolMark(b bool) string {
	if b {
		return "set"
	}
	return "-"
}
