package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/dotcommander/actionlib/internal/actions"
	"github.com/dotcommander/actionlib/internal/codegen"
)

func newActionCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "action",
		Aliases: []string{"actions", "a"},
		Short:   "Add, list, edit and remove test actions",
		Long: `Manage the action library.

Commands that take an action accept its full id, a unique id prefix (the
short id shown by "action list"), or its name when no other action shares it.`,
	}

	cmd.AddCommand(
		newActionAddCmd(opts),
		newActionListCmd(opts),
		newActionShowCmd(opts),
		newActionEditCmd(opts),
		newActionRemoveCmd(opts),
		newActionGenerateCmd(opts),
	)

	return cmd
}

// actionFlags are the editable fields shared by add and edit
type actionFlags struct {
	name        string
	description string
	code        string
	codeFile    string
	category    string
}

func (f *actionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.name, "name", "n", "", "Action name")
	cmd.Flags().StringVarP(&f.description, "description", "d", "", "What the action does")
	cmd.Flags().StringVar(&f.code, "code", "", "Code snippet")
	cmd.Flags().StringVarP(&f.codeFile, "code-file", "f", "", `Read the code snippet from a file ("-" for stdin)`)
	cmd.Flags().StringVarP(&f.category, "category", "c", "", "Category (default \""+actions.DefaultCategory+"\")")
	cmd.MarkFlagsMutuallyExclusive("code", "code-file")
}

// readCode returns the snippet from --code or --code-file
func (f *actionFlags) readCode(cmd *cobra.Command) (string, bool, error) {
	switch {
	case cmd.Flags().Changed("code"):
		return f.code, true, nil
	case f.codeFile == "-":
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", false, fmt.Errorf("reading code from stdin: %w", err)
		}
		return string(data), true, nil
	case f.codeFile != "":
		data, err := os.ReadFile(f.codeFile)
		if err != nil {
			return "", false, fmt.Errorf("reading code file: %w", err)
		}
		return string(data), true, nil
	}
	return "", false, nil
}

func newActionAddCmd(opts *rootOptions) *cobra.Command {
	var flags actionFlags

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a new action",
		Example: `  actionlib action add -n "login" -c auth --code 'page.fill("#user", USER)'
  actionlib action add -n "checkout" -f checkout.py -d "Pays for the cart"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.app(cmd.Context())
			if err != nil {
				return err
			}
			out := newPrinter(cmd.OutOrStdout())
			showWarnings(cmd, a)

			code, _, err := flags.readCode(cmd)
			if err != nil {
				return err
			}

			added, err := a.actions.Add(cmd.Context(), actions.Action{
				Name:        flags.name,
				Description: flags.description,
				Code:        code,
				Category:    flags.category,
			})
			if err != nil {
				return err
			}

			out.success("Added %q (%s) to %s", added.Name, added.ShortID(), added.Category)
			return nil
		},
	}

	flags.register(cmd)
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func newActionListCmd(opts *rootOptions) *cobra.Command {
	var (
		category string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:     "list [query]",
		Aliases: []string{"ls", "search"},
		Short:   "List actions, optionally filtered",
		Long: `List actions in library order.

A query keeps the actions whose name, description or code contains it,
ignoring case. --category keeps one category; "all" keeps every category.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.app(cmd.Context())
			if err != nil {
				return err
			}
			out := newPrinter(cmd.OutOrStdout())
			showWarnings(cmd, a)

			query := ""
			if len(args) == 1 {
				query = args[0]
			}

			var matched []actions.Action
			for action := range a.actions.List(query) {
				if category != actions.AllCategories && action.Category != category {
					continue
				}
				matched = append(matched, action)
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if matched == nil {
					matched = []actions.Action{}
				}
				return enc.Encode(matched)
			}

			if len(matched) == 0 {
				out.println(out.muted.Render("No actions found."))
				return nil
			}

			width := 0
			for _, action := range matched {
				width = max(width, lipgloss.Width(action.Name))
			}
			for _, action := range matched {
				out.actionRow(action, width)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&category, "category", "c", actions.AllCategories, "Only list actions in this category")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the matching actions as JSON")

	return cmd
}

func newActionShowCmd(opts *rootOptions) *cobra.Command {
	var generatedOnly bool

	cmd := &cobra.Command{
		Use:   "show <action>",
		Short: "Show one action in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.app(cmd.Context())
			if err != nil {
				return err
			}
			out := newPrinter(cmd.OutOrStdout())

			action, err := a.actions.Resolve(args[0])
			if err != nil {
				return err
			}

			if generatedOnly {
				out.println(action.GeneratedCode)
				return nil
			}
			out.actionDetail(action)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&generatedOnly, "generated", "g", false, "Print only the generated code, unstyled")

	return cmd
}

func newActionEditCmd(opts *rootOptions) *cobra.Command {
	var (
		flags         actionFlags
		generatedCode string
	)

	cmd := &cobra.Command{
		Use:   "edit <action>",
		Short: "Change fields of an existing action",
		Long:  "Change fields of an existing action. Only the flags given are changed.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.app(cmd.Context())
			if err != nil {
				return err
			}
			out := newPrinter(cmd.OutOrStdout())
			showWarnings(cmd, a)

			action, err := a.actions.Resolve(args[0])
			if err != nil {
				return err
			}

			var fields actions.Fields
			changed := cmd.Flags().Changed
			if changed("name") {
				fields.Name = &flags.name
			}
			if changed("description") {
				fields.Description = &flags.description
			}
			if changed("category") {
				fields.Category = &flags.category
			}
			if changed("generated-code") {
				fields.GeneratedCode = &generatedCode
			}
			code, ok, err := flags.readCode(cmd)
			if err != nil {
				return err
			}
			if ok {
				fields.Code = &code
			}

			if fields == (actions.Fields{}) {
				return fmt.Errorf("nothing to change: pass at least one field flag")
			}

			updated, err := a.actions.Update(cmd.Context(), action.ID, fields)
			if err != nil {
				return err
			}

			out.success("Updated %q (%s)", updated.Name, updated.ShortID())
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&generatedCode, "generated-code", "", "Replace the generated code")

	return cmd
}

func newActionRemoveCmd(opts *rootOptions) *cobra.Command {
	var (
		cleanCategories bool
		yes             bool
	)

	cmd := &cobra.Command{
		Use:     "rm <action>",
		Aliases: []string{"remove", "delete"},
		Short:   "Remove an action",
		Long: `Remove an action from the library.

Its category is kept. With --clean-categories, categories left without any
action are dropped afterwards, after confirmation unless --yes is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.app(cmd.Context())
			if err != nil {
				return err
			}
			out := newPrinter(cmd.OutOrStdout())
			showWarnings(cmd, a)

			action, err := a.actions.Resolve(args[0])
			if err != nil {
				return err
			}

			removed, err := a.actions.Remove(cmd.Context(), action.ID)
			if err != nil {
				return err
			}
			out.success("Removed %q (%s)", removed.Name, removed.ShortID())

			if cleanCategories {
				cleanUnused(cmd, out, a.actions, yes)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&cleanCategories, "clean-categories", false, "Drop categories that no longer have actions")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")

	return cmd
}

func newActionGenerateCmd(opts *rootOptions) *cobra.Command {
	var (
		all      bool
		category string
		workers  int
	)

	cmd := &cobra.Command{
		Use:     "generate [action...]",
		Aliases: []string{"gen"},
		Short:   "Generate code for actions with the completion model",
		Long: `Send each action's code, prefixed by the system prompt, to the completion
model and store the cleaned-up answer as the action's generated code.

An IAM token is exchanged first when the cached one has expired.`,
		Example: `  actionlib action generate login
  actionlib action generate --category auth --workers 4
  actionlib action generate --all`,
		RunE: func(cmd *cobra.Command, args []string) error {
			selectMany := all || category != ""
			if selectMany == (len(args) > 0) {
				return fmt.Errorf("give either action names or ids, or one of --all and --category")
			}

			a, err := opts.app(cmd.Context())
			if err != nil {
				return err
			}
			out := newPrinter(cmd.OutOrStdout())
			showWarnings(cmd, a)

			var ids []string
			if selectMany {
				if all {
					category = actions.AllCategories
				}
				for action := range a.actions.ListByCategory(category) {
					ids = append(ids, action.ID)
				}
				if len(ids) == 0 {
					out.println(out.muted.Render("No actions to generate."))
					return nil
				}
			} else {
				for _, ref := range args {
					action, err := a.actions.Resolve(ref)
					if err != nil {
						return err
					}
					if !slices.Contains(ids, action.ID) {
						ids = append(ids, action.ID)
					}
				}
			}

			if len(ids) == 1 {
				updated, err := a.codegen.GenerateForAction(cmd.Context(), ids[0])
				if err != nil {
					return describeRemoteError(err)
				}
				out.success("Generated code for %q (%s)", updated.Name, updated.ShortID())
				out.println(out.code.Render(updated.GeneratedCode))
				return nil
			}

			results := a.codegen.GenerateMany(cmd.Context(), ids, codegen.WithWorkers(workers))

			failed := 0
			for _, r := range results {
				if r.Err != nil {
					failed++
					out.warning("%s: %v", r.ID, describeRemoteError(r.Err))
					continue
				}
				out.success("Generated code for %q (%s)", r.Action.Name, r.Action.ShortID())
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d generations failed", failed, len(results))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Generate for every action")
	cmd.Flags().StringVarP(&category, "category", "c", "", "Generate for every action in this category")
	cmd.Flags().IntVarP(&workers, "workers", "w", 2, "Concurrent generations when several actions are selected")
	cmd.MarkFlagsMutuallyExclusive("all", "category")

	return cmd
}

// showWarnings reports recoverable load problems on stderr
func showWarnings(cmd *cobra.Command, a *app) {
	if len(a.warnings) == 0 {
		return
	}
	errOut := newPrinter(cmd.ErrOrStderr())
	for _, w := range a.warnings {
		errOut.warning("%v; starting with an empty library", w)
	}
}
