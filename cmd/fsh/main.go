package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Farmhouse441/farmhouse-service-hub/internal/app"
	"github.com/Farmhouse441/farmhouse-service-hub/internal/config"
	"github.com/Farmhouse441/farmhouse-service-hub/internal/db"
)

var rootCmd = &cobra.Command{
	Use:   "fsh",
	Short: "Farmhouse service hub CLI",
	Long: `fsh runs the service ticket hub and administers it locally.
- Tickets: service reports owned by the user who filed them. They move through
  draft -> submitted -> additional_info_requested / approved_not_paid / approved_paid / declined.
- Roles: every user is admin or user. Users without a stored role are plain users.
- Permission matrix: one row of flags per role decides who may create, view, edit,
  delete and move tickets between statuses. Seeded from hub.yml, changed with 'fsh matrix'.
- Workspace: the .fsh directory holding hub.db. hub.yml sits next to it.
- Operator commands (role set, matrix import, profile set) act directly on the
  workspace database and skip permission checks.`,
	SilenceUsage: true,
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
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("FSH")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-operator", "user id the command acts as")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(workerCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(roleCmd())
	rootCmd.AddCommand(matrixCmd())
	rootCmd.AddCommand(ticketCmd())
	rootCmd.AddCommand(profileCmd())
}

// --- helpers ---

// withRuntime opens the workspace with settings from the environment.
func withRuntime(ctx context.Context, fn func(context.Context, *app.Runtime) error) error {
	settings, err := config.LoadSettings()
	if err != nil {
		return err
	}
	logger := app.NewLogger(settings)
	rt, err := app.Open(ctx, viper.GetString("workspace"), settings, logger)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}

func actorID() string {
	return viper.GetString("actor-id")
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
