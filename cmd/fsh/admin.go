package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Farmhouse441/farmhouse-service-hub/internal/app"
	"github.com/Farmhouse441/farmhouse-service-hub/internal/config"
	"github.com/Farmhouse441/farmhouse-service-hub/internal/domain"
	"github.com/Farmhouse441/farmhouse-service-hub/internal/engine"
	"github.com/Farmhouse441/farmhouse-service-hub/internal/permission"
)

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage hub.yml"}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default hub.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate hub.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(viper.GetString("workspace")); err != nil {
				return err
			}
			fmt.Println("config ok")
			return nil
		},
	}
	return cmd
}

func roleCmd() *cobra.Command {
	role := &cobra.Command{Use: "role", Short: "Inspect and assign user roles"}
	role.AddCommand(roleGetCmd())
	role.AddCommand(roleSetCmd())
	role.AddCommand(roleListCmd())
	return role
}

func roleGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <user-id>",
		Short: "Show the effective role of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				role, err := rt.Engine.Roles.ResolveRole(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(domain.UserRole{UserID: args[0], Role: role})
			})
		},
	}
	return cmd
}

func roleSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <user-id> <admin|user>",
		Short: "Assign a role (operator, no permission check)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				ur, err := rt.Engine.SeedRole(ctx, actorID(), args[0], domain.Role(args[1]))
				if err != nil {
					return err
				}
				return printJSONOrTable(ur)
			})
		},
	}
	return cmd
}

func roleListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored roles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				roles, err := rt.Engine.Repo.ListUserRoles(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(roles)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"User", "Role", "Updated"})
				for _, ur := range roles {
					tw.AppendRow(table.Row{ur.UserID, ur.Role, ur.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func matrixCmd() *cobra.Command {
	m := &cobra.Command{Use: "matrix", Short: "Manage role permission matrices"}
	m.AddCommand(matrixShowCmd())
	m.AddCommand(matrixImportCmd())
	m.AddCommand(matrixExportCmd())
	m.AddCommand(matrixCheckCmd())
	return m
}

func loadAllMatrices(ctx context.Context, e engine.Engine) ([]permission.Matrix, error) {
	out := make([]permission.Matrix, 0, len(domain.Roles))
	for _, role := range domain.Roles {
		m, err := e.Matrices.LoadMatrix(ctx, role)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func matrixShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show stored matrices, one column per role",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				ms, err := loadAllMatrices(ctx, rt.Engine)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(ms)
				}
				header := table.Row{"Flag"}
				for _, m := range ms {
					header = append(header, m.Role)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(header)
				flags := make([]map[string]bool, len(ms))
				for i, m := range ms {
					flags[i] = m.Flags()
				}
				for _, name := range permission.FlagNames() {
					row := table.Row{name}
					for i := range ms {
						row = append(row, mark(flags[i][name]))
					}
					tw.AppendRow(row)
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func mark(v bool) string {
	if v {
		return "x"
	}
	return ""
}

// matrixFile is the shape read by import and written by export. It matches
// the permissions section of hub.yml.
type matrixFile struct {
	Permissions map[string]permission.Matrix `yaml:"permissions"`
}

func readMatrixFile(path string) ([]permission.Matrix, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f matrixFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("invalid matrix file: %w", err)
	}
	if len(f.Permissions) == 0 {
		return nil, errors.New("matrix file has no permissions section")
	}
	roles := make([]string, 0, len(f.Permissions))
	for r := range f.Permissions {
		roles = append(roles, r)
	}
	sort.Strings(roles)
	out := make([]permission.Matrix, 0, len(roles))
	for _, r := range roles {
		role, err := domain.ParseRole(r)
		if err != nil {
			return nil, err
		}
		m := f.Permissions[r]
		m.Role = role
		out = append(out, m)
	}
	return out, nil
}

func matrixImportCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Replace stored matrices from a YAML file (operator, no permission check)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				file = config.Path(viper.GetString("workspace"))
			}
			ms, err := readMatrixFile(file)
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				if err := rt.Engine.ImportMatrices(ctx, actorID(), ms...); err != nil {
					return err
				}
				for _, m := range ms {
					fmt.Println("imported", m.Role)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML file with a permissions section (default hub.yml)")
	return cmd
}

func matrixExportCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write stored matrices as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				ms, err := loadAllMatrices(ctx, rt.Engine)
				if err != nil {
					return err
				}
				out := matrixFile{Permissions: make(map[string]permission.Matrix, len(ms))}
				for _, m := range ms {
					out.Permissions[string(m.Role)] = m
				}
				data, err := yaml.Marshal(out)
				if err != nil {
					return err
				}
				if file == "" {
					_, err = os.Stdout.Write(data)
					return err
				}
				return os.WriteFile(file, data, 0o644)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "output file (default stdout)")
	return cmd
}

func matrixCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Fail unless every role has a matrix row",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				if err := rt.Engine.CheckMatrices(ctx); err != nil {
					return err
				}
				fmt.Println("matrices ok")
				return nil
			})
		},
	}
	return cmd
}

func profileCmd() *cobra.Command {
	p := &cobra.Command{Use: "profile", Short: "Manage contact details used for notifications"}
	p.AddCommand(profileSetCmd())
	p.AddCommand(profileShowCmd())
	return p
}

func profileSetCmd() *cobra.Command {
	var in engine.ProfileInput
	cmd := &cobra.Command{
		Use:   "set <user-id>",
		Short: "Store a profile (operator, no permission check)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				p, err := rt.Engine.SeedProfile(ctx, args[0], in)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&in.Email, "email", "", "notification email")
	cmd.Flags().StringVar(&in.FirstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&in.LastName, "last-name", "", "last name")
	cmd.Flags().StringVar(&in.CompanyName, "company", "", "company name")
	return cmd
}

func profileShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <user-id>",
		Short: "Show a stored profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				p, err := rt.Engine.Repo.GetProfile(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}
