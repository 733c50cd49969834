package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nikhilbhutani/articlegen/internal/prompt"
)

func newImportCmd(opts *rootOptions) *cobra.Command {
	var (
		workflow int
		file     string
		userID   int64
		notes    string
		skip     bool
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Save a template file as the new active version",
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read template: %w", err)
			}
			mgr, closeFn, err := openManager(cmd.Context(), opts, writeCacheMode(skip))
			if err != nil {
				return err
			}
			defer closeFn()

			if notes == "" {
				notes = "Imported from " + file
			}
			res, err := mgr.Save(cmd.Context(), prompt.SaveRequest{
				WorkflowID: workflow,
				Content:    string(content),
				Notes:      notes,
				Source:     "import",
				SourceFile: file,
			}, cliMeta(userID))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "workflow %d: saved version %d (id %d)\n", workflow, res.Version, res.TemplateID)
			return nil
		},
	}
	cmd.Flags().IntVar(&workflow, "workflow", 0, "workflow id")
	cmd.Flags().StringVar(&file, "file", "", "template file")
	cmd.Flags().Int64Var(&userID, "user", 0, "id of the user the change is recorded for")
	cmd.Flags().StringVar(&notes, "notes", "", "version notes")
	cmd.Flags().BoolVar(&skip, "skip-cache-invalidation", false, "write even when Redis is unreachable")
	_ = cmd.MarkFlagRequired("workflow")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newListCmd(opts *rootOptions) *cobra.Command {
	var workflow int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the versions of a workflow's template",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, closeFn, err := openManager(cmd.Context(), opts, cacheUnused)
			if err != nil {
				return err
			}
			defer closeFn()

			versions, err := mgr.ListVersions(cmd.Context(), workflow)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tVERSION\tACTIVE\tBYTES\tAUTHOR\tCREATED\tNOTES")
			for _, v := range versions {
				active := ""
				if v.IsActive {
					active = "*"
				}
				fmt.Fprintf(tw, "%d\t%d\t%s\t%d\t%s\t%s\t%s\n",
					v.ID, v.Version, active, v.ContentLength, v.AuthorName,
					v.CreatedAt.Format("2006-01-02 15:04"), v.Notes)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&workflow, "workflow", 0, "workflow id")
	_ = cmd.MarkFlagRequired("workflow")
	return cmd
}

func newActivateCmd(opts *rootOptions) *cobra.Command {
	var (
		workflow int
		id       int64
		userID   int64
		skip     bool
	)
	cmd := &cobra.Command{
		Use:   "activate",
		Short: "Make a previous version the active one",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, closeFn, err := openManager(cmd.Context(), opts, writeCacheMode(skip))
			if err != nil {
				return err
			}
			defer closeFn()

			version, err := mgr.ActivateVersion(cmd.Context(), workflow, id, cliMeta(userID))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "workflow %d: version %d is active\n", workflow, version)
			return nil
		},
	}
	cmd.Flags().IntVar(&workflow, "workflow", 0, "workflow id")
	cmd.Flags().Int64Var(&id, "id", 0, "template id to restore")
	cmd.Flags().Int64Var(&userID, "user", 0, "id of the user the change is recorded for")
	cmd.Flags().BoolVar(&skip, "skip-cache-invalidation", false, "write even when Redis is unreachable")
	_ = cmd.MarkFlagRequired("workflow")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newAuditCmd(opts *rootOptions) *cobra.Command {
	var workflow, limit int
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recent audit entries for a workflow",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, closeFn, err := openManager(cmd.Context(), opts, cacheUnused)
			if err != nil {
				return err
			}
			defer closeFn()

			entries, err := mgr.ListAudit(cmd.Context(), workflow, limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "WHEN\tACTION\tVERSION\tUSER\tIP\tDETAILS")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\tv%d\t%s\t%s\t%s\n",
					e.CreatedAt.Format("2006-01-02 15:04:05"), e.Action, e.Version,
					e.Username, e.IPAddress, string(e.Details))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&workflow, "workflow", 0, "workflow id")
	cmd.Flags().IntVar(&limit, "limit", 0, "number of entries (default from PROMPT_AUDIT_LIMIT)")
	_ = cmd.MarkFlagRequired("workflow")
	return cmd
}

func newCheckCmd(opts *rootOptions) *cobra.Command {
	var (
		workflow int
		file     string
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate a template file without saving it",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, workflows, err := loadWorkflows(opts)
			if err != nil {
				return err
			}
			content, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read template: %w", err)
			}
			if err := prompt.NewManager(nil, workflows).Validate(workflow, string(content)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: all required placeholders present for workflow %d\n", file, workflow)
			return nil
		},
	}
	cmd.Flags().IntVar(&workflow, "workflow", 0, "workflow id")
	cmd.Flags().StringVar(&file, "file", "", "template file")
	_ = cmd.MarkFlagRequired("workflow")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newRenderCmd(opts *rootOptions) *cobra.Command {
	var (
		file string
		vars map[string]string
	)
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Substitute placeholder values into a template file",
		Long: `render prints the template with the given values substituted, e.g.

  promptctl render --file wf1.txt --var KEYWORD="running shoes" --var DOMAIN=Sport

Placeholders without a value are left in place and listed on stderr.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read template: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), prompt.Render(string(content), vars))

			var left []string
			for _, token := range prompt.ExtractPlaceholders(string(content)) {
				if _, ok := vars[strings.Trim(token, "{}")]; !ok {
					left = append(left, token)
				}
			}
			if len(left) > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "unresolved: %s\n", strings.Join(left, ", "))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "template file")
	cmd.Flags().StringToStringVar(&vars, "var", nil, "placeholder value as NAME=value (repeatable)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
