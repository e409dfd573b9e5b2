package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Plexify-AI/plexifybid-sub001/internal/catalog"
	"github.com/Plexify-AI/plexifybid-sub001/internal/errors"
	"github.com/Plexify-AI/plexifybid-sub001/internal/otel"
	"github.com/Plexify-AI/plexifybid-sub001/internal/prompt"
	"github.com/Plexify-AI/plexifybid-sub001/internal/store"
	"github.com/Plexify-AI/plexifybid-sub001/internal/wire"
	"github.com/Plexify-AI/plexifybid-sub001/pkg/models"
)

func newTemplateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Manage and render prompt templates",
	}
	cmd.AddCommand(newTemplateAddCmd())
	cmd.AddCommand(newTemplateImportCmd())
	cmd.AddCommand(newTemplateListCmd())
	cmd.AddCommand(newTemplateShowCmd())
	cmd.AddCommand(newTemplateRenderCmd())
	cmd.AddCommand(newTemplateUseCmd())
	return cmd
}

// parseVarFlag reads "name[:type][:required]".
func parseVarFlag(s string) (prompt.Variable, error) {
	parts := strings.Split(s, ":")
	var typ string
	if len(parts) > 1 {
		typ = parts[1]
	}
	t, err := prompt.ParseVarType(typ)
	if err != nil {
		return prompt.Variable{}, err
	}
	required := len(parts) > 2 && strings.EqualFold(strings.TrimSpace(parts[2]), "required")
	return prompt.NewVariable(strings.TrimSpace(parts[0]), t, "", required, "")
}

func parseVarFlags(in []string) ([]prompt.Variable, error) {
	out := make([]prompt.Variable, 0, len(in))
	for _, s := range in {
		v, err := parseVarFlag(s)
		if err != nil {
			return nil, errors.NewValidationError(err.Error()).WithField("variables").WithValue(s)
		}
		out = append(out, v)
	}
	return out, nil
}

// readBody returns body, or the contents of path when body is empty.
func readBody(body, path string) (string, error) {
	if body != "" || path == "" {
		return body, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func printTemplate(cmd *cobra.Command, verb string, t *store.Template, warnings []string) error {
	if envFrom(cmd).JSON {
		if warnings == nil {
			return printJSON(cmd.OutOrStdout(), wire.Template(*t))
		}
		return printJSON(cmd.OutOrStdout(), models.TemplateResponse{Template: wire.Template(*t), Warnings: warnings})
	}
	printWarnings(cmd, warnings)
	out := cmd.OutOrStdout()
	if verb != "" {
		_, _ = fmt.Fprintf(out, "%s template %s (version %s)\n", verb, t.Slug, t.Version)
		return nil
	}
	_, _ = fmt.Fprintf(out, "Template %s (%s)\n", t.Slug, t.Name)
	_, _ = fmt.Fprintf(out, "  version: %s, used %d times\n", t.Version, t.UsageCount)
	if t.Category != "" {
		_, _ = fmt.Fprintf(out, "  category: %s\n", t.Category)
	}
	for _, v := range t.Variables {
		req := ""
		if v.Required {
			req = ", required"
		}
		_, _ = fmt.Fprintf(out, "  {{%s}} %s%s\n", v.Name, v.Type, req)
	}
	_, _ = fmt.Fprintf(out, "\n%s\n", t.Body)
	return nil
}

func newTemplateAddCmd() *cobra.Command {
	var (
		in       catalog.TemplateInput
		bodyFile string
		vars     []string
	)
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a template",
		Example: `  plexify template add "Bug report" --body "Bug in {{component}}" --var component:string:required`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Name = args[0]
			var err error
			if in.Body, err = readBody(in.Body, bodyFile); err != nil {
				return err
			}
			if in.Variables, err = parseVarFlags(vars); err != nil {
				return err
			}
			return withCatalog(cmd, func(cat *catalog.Catalog) error {
				t, warnings, err := cat.CreateTemplate(cmd.Context(), in)
				if err != nil {
					return err
				}
				return printTemplate(cmd, "Added", t, warnings)
			})
		},
	}
	cmd.Flags().StringVar(&in.Slug, "slug", "", "Slug (default: derived from the name)")
	cmd.Flags().StringVar(&in.Description, "description", "", "Description")
	cmd.Flags().StringVar(&in.Category, "category", "", "Category")
	cmd.Flags().StringVar(&in.Body, "body", "", "Template body")
	cmd.Flags().StringVar(&bodyFile, "body-file", "", "Read the template body from a file")
	cmd.Flags().StringArrayVar(&vars, "var", nil, `Variable as "name[:type][:required]" (repeatable)`)
	return cmd
}

func newTemplateImportCmd() *cobra.Command {
	var update bool
	cmd := &cobra.Command{
		Use:   "import <file.yaml>...",
		Short: "Import templates from YAML definition files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalog(cmd, func(cat *catalog.Catalog) error {
				for _, path := range args {
					in, err := catalog.LoadTemplateFile(path)
					if err != nil {
						return fmt.Errorf("%s: %w", path, err)
					}
					t, warnings, err := cat.CreateTemplate(cmd.Context(), in)
					if update && errors.Is(err, errors.ErrConflict) && in.Slug != "" {
						t, warnings, err = cat.UpdateTemplate(cmd.Context(), in.Slug, catalog.TemplatePatch{
							Name:        &in.Name,
							Description: &in.Description,
							Category:    &in.Category,
							Body:        &in.Body,
							Variables:   &in.Variables,
						})
					}
					if err != nil {
						return fmt.Errorf("%s: %w", path, err)
					}
					if err := printTemplate(cmd, "Imported", t, warnings); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&update, "update", false, "Update templates whose slug already exists")
	return cmd
}

func newTemplateListCmd() *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalog(cmd, func(cat *catalog.Catalog) error {
				list, err := cat.ListTemplates(cmd.Context(), category)
				if err != nil {
					return err
				}
				if envFrom(cmd).JSON {
					return printJSON(cmd.OutOrStdout(), wire.Templates(list))
				}
				if len(list) == 0 {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No templates.")
					return nil
				}
				for _, t := range list {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "- %s (%s, used %d)\n", t.Slug, t.Version, t.UsageCount)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "Filter by category")
	return cmd
}

func newTemplateShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <slug>",
		Short: "Show one template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalog(cmd, func(cat *catalog.Catalog) error {
				t, err := cat.GetTemplate(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printTemplate(cmd, "", t, nil)
			})
		},
	}
}

type renderFlags struct {
	set          []string
	noWarn       bool
	stripUnknown bool
}

func (f *renderFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVar(&f.set, "set", nil, "Variable value as key=value (repeatable)")
	cmd.Flags().BoolVar(&f.noWarn, "no-warn", false, "Do not warn about missing required variables")
	cmd.Flags().BoolVar(&f.stripUnknown, "strip-unknown", false, "Remove placeholders not in the schema")
}

func (f *renderFlags) options() []prompt.Option {
	return []prompt.Option{prompt.WithWarnOnMissing(!f.noWarn), prompt.WithStripUnknown(f.stripUnknown)}
}

func printRendered(cmd *cobra.Command, res models.RenderResponse) error {
	if envFrom(cmd).JSON {
		return printJSON(cmd.OutOrStdout(), res)
	}
	printWarnings(cmd, res.Warnings)
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), res.Rendered)
	return nil
}

func newTemplateRenderCmd() *cobra.Command {
	var (
		f        renderFlags
		body     string
		bodyFile string
		file     string
		vars     []string
	)
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render an ad-hoc body or template file without touching the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseSet(f.set)
			if err != nil {
				return err
			}
			var schema []prompt.Variable
			if file != "" {
				in, err := catalog.LoadTemplateFile(file)
				if err != nil {
					return err
				}
				body, schema = in.Body, in.Variables
			} else {
				if body, err = readBody(body, bodyFile); err != nil {
					return err
				}
				if schema, err = parseVarFlags(vars); err != nil {
					return err
				}
				if err := prompt.ValidateSchema(schema); err != nil {
					return errors.NewValidationError(err.Error()).WithField("variables")
				}
			}
			res := prompt.Render(body, values, schema, f.options()...)
			otel.RecordRenderWarnings(cmd.Context(), "inline", len(res.Warnings))
			return printRendered(cmd, models.RenderResponse{Rendered: res.Rendered, Warnings: res.Warnings})
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&body, "body", "", "Template body")
	cmd.Flags().StringVar(&bodyFile, "body-file", "", "Read the template body from a file")
	cmd.Flags().StringVar(&file, "file", "", "Render a YAML template definition file")
	cmd.Flags().StringArrayVar(&vars, "var", nil, `Variable as "name[:type][:required]" (repeatable)`)
	return cmd
}

func newTemplateUseCmd() *cobra.Command {
	var f renderFlags
	cmd := &cobra.Command{
		Use:   "use <slug>",
		Short: "Render a stored template and count the use",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseSet(f.set)
			if err != nil {
				return err
			}
			return withCatalog(cmd, func(cat *catalog.Catalog) error {
				res, err := cat.UseTemplate(cmd.Context(), args[0], values, f.options()...)
				if err != nil {
					return err
				}
				return printRendered(cmd, models.RenderResponse{Rendered: res.Rendered, Warnings: res.Warnings, UsageCount: res.UsageCount})
			})
		},
	}
	f.register(cmd)
	return cmd
}
