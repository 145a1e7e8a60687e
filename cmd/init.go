package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

const configTemplate = `# schemasync settings. Every key can be overridden by SCHEMASYNC_<KEY>
# in the environment (or .env) and by the matching command line flag.
# DATABASE_URL is honored as well.
database_url: sqlite://app.db
schema: %s
migrations_dir: migrations
log_level: info
drop_extra_columns: false
drop_extra_indexes: false
tolerate_applied: false
history: true
`

const schemaTemplate = `# Entity declarations. Columns keep the order written here; the
# identifier column (id) is added first when it is not declared.
entities:
  - name: Group
    columns:
      title: {type: string, size: 64}
      created: {type: created, default: CURRENT_TIMESTAMP}

  - name: User
    table: users
    columns:
      name: {type: string, size: 64, default: anon}
      email: {type: string, null: true}
      group: {type: object, null: true, references: Group}
      last_ip: ip4
      settings: json
    find_keys: [email]
    unique_keys: {users_email: email}
    has_many:
      tags: {entity: Tag, link: user_tags}

  - name: Tag
    columns:
      label: {type: string, size: 32}
    indexes: {tags_label: label}

# Column types: id string text integer double boolean date time timestamp
# datetime created modified binary hex ip4 object serialize json
# Column keys: type size null unsigned default previous references
`

const modelsTemplate = `package models

import "time"

// Group is a set of users.
type Group struct {
	Title   string    ` + "`schemasync:\"size:64\"`" + `
	Created time.Time ` + "`schemasync:\"type:created;default:CURRENT_TIMESTAMP\"`" + `
}

// User is an account.
type User struct {
	ID       int64    ` + "`schemasync:\"primary\"`" + `
	Name     string   ` + "`schemasync:\"size:64;default:anon\"`" + `
	Email    *string  ` + "`schemasync:\"unique;find\"`" + `
	Group    *int64   ` + "`schemasync:\"ref:Group\"`" + `
	LastIP   string   ` + "`schemasync:\"type:ip4\"`" + `
	Settings []string ` + "`schemasync:\"\"`" + `
}

func (User) TableName() string { return "users" }
`

func newInitCmd(a *app) *cobra.Command {
	var structs bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create schemasync.yaml and example declarations",
		Long: `Initialize a new schemasync project.

Default: a YAML declarations file (schema.yaml)
With --structs: tagged Go structs in models/

Examples:
  schemasync init                    # schemasync.yaml + schema.yaml
  schemasync init --structs          # schemasync.yaml + models/models.go`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()
			files := map[string]string{}
			schemaPath := "schema.yaml"
			if structs {
				schemaPath = "models"
				files[filepath.Join("models", "models.go")] = modelsTemplate
			} else {
				files[schemaPath] = schemaTemplate
			}
			files["schemasync.yaml"] = fmt.Sprintf(configTemplate, schemaPath)

			for _, name := range []string{"schemasync.yaml", schemaPath} {
				if _, err := os.Stat(name); err == nil {
					return fmt.Errorf("%s already exists", name)
				} else if !errors.Is(err, fs.ErrNotExist) {
					return err
				}
			}
			for _, name := range []string{"schemasync.yaml", filepath.Join("models", "models.go"), "schema.yaml"} {
				content, ok := files[name]
				if !ok {
					continue
				}
				if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
					return err
				}
				if err := os.WriteFile(name, []byte(content), 0o644); err != nil {
					return fmt.Errorf("creating %s: %w", name, err)
				}
				fmt.Fprintln(w, "✅ Created", name)
			}
			fmt.Fprintf(w, "📝 Edit %s to declare your entities\n", schemaPath)
			fmt.Fprintln(w, "🚀 Run 'schemasync plan' to preview, then 'schemasync sync' to apply")
			return nil
		},
	}
	cmd.Flags().BoolVar(&structs, "structs", false, "declare entities as tagged Go structs instead of YAML")
	return cmd
}
