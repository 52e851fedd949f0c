package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/zhaochy1990/auth/internal/auth"
	"github.com/zhaochy1990/auth/internal/cli/ui"
	"github.com/zhaochy1990/auth/internal/config"
	"github.com/zhaochy1990/auth/internal/migrations"
	"github.com/zhaochy1990/auth/internal/postgres"
	"github.com/zhaochy1990/auth/internal/seed"
)

var seedCmd = &cobra.Command{
	Use:   "seed <email> [password]",
	Short: "Bootstrap the admin application and admin user",
	Long: `Ensure the admin application and an admin user exist. Safe to re-run:
an existing application is reused, an existing user is promoted to admin.

The password is only required when the user does not exist yet:
  authd seed admin@example.com 'S3cure-pass!'

The client secret is printed exactly once, when the application is created.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().String("database-url", "", "PostgreSQL connection URL")
	seedCmd.Flags().String("config", "", "Path to authd.toml config file")
}

func runSeed(cmd *cobra.Command, args []string) error {
	email := args[0]
	password := ""
	if len(args) > 1 {
		password = args[1]
	}

	flags := make(map[string]string)
	if v, _ := cmd.Flags().GetString("database-url"); v != "" {
		flags["database-url"] = v
	}
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(configPath, flags)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, _ := newLogger("warn", cfg.Logging.Format)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := postgres.New(ctx, postgres.Config{
		URL:             cfg.Database.URL,
		MaxConns:        int32(cfg.Database.MaxConns),
		MinConns:        int32(cfg.Database.MinConns),
		HealthCheckSecs: cfg.Database.HealthCheckSecs,
	}, logger)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	migRunner := migrations.NewRunner(pool, logger)
	if err := migRunner.Bootstrap(ctx); err != nil {
		return fmt.Errorf("bootstrapping migrations: %w", err)
	}
	if _, err := migRunner.Run(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	// Seeding never issues tokens, so an ephemeral key pair is fine here and
	// avoids requiring the signing keys on disk.
	jwtMgr, err := auth.NewJWTManagerGenerated(cfg.JWT.Issuer, time.Duration(cfg.JWT.AccessTokenExpirySecs)*time.Second)
	if err != nil {
		return fmt.Errorf("initializing token manager: %w", err)
	}
	refreshExpiry := time.Duration(cfg.JWT.RefreshTokenExpiryDays) * 24 * time.Hour
	svc := auth.NewService(pool, jwtMgr, refreshExpiry, logger)

	result, err := seed.Run(ctx, svc, email, password, logger)
	if err != nil {
		return err
	}

	if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
		return json.NewEncoder(os.Stdout).Encode(map[string]any{
			"app_id":        result.App.ID,
			"client_id":     result.App.ClientID,
			"client_secret": result.ClientSecret,
			"app_created":   result.AppCreated,
			"user_id":       result.User.ID,
			"user_created":  result.UserCreated,
			"user_promoted": result.UserPromoted,
		})
	}

	printSeedResult(result)
	return nil
}

func printSeedResult(result *seed.Result) {
	fmt.Printf("\n")
	if result.AppCreated {
		fmt.Printf("  %s %s created\n", ui.StyleSuccess.Render(ui.SymbolCheck), seed.AdminAppName)
	} else {
		fmt.Printf("  %s %s already exists\n", ui.StyleDim.Render(ui.SymbolDot), seed.AdminAppName)
	}
	fmt.Printf("    %s %s\n", ui.StyleLabel.Render("client_id"), ui.StyleCode.Render(result.App.ClientID))
	if result.ClientSecret != "" {
		fmt.Printf("    %s %s\n", ui.StyleLabel.Render("secret"), ui.StyleCode.Render(result.ClientSecret))
		fmt.Printf("    %s\n", ui.StyleHint.Render("Save the client secret now. It is shown only once."))
	}

	switch {
	case result.UserCreated:
		fmt.Printf("  %s admin user created\n", ui.StyleSuccess.Render(ui.SymbolCheck))
	case result.UserPromoted:
		fmt.Printf("  %s user promoted to admin\n", ui.StyleSuccess.Render(ui.SymbolCheck))
	default:
		fmt.Printf("  %s admin user already exists\n", ui.StyleDim.Render(ui.SymbolDot))
	}
	if result.User.Email != nil {
		fmt.Printf("    %s %s\n", ui.StyleLabel.Render("email"), *result.User.Email)
	}
	fmt.Printf("\n")
}
