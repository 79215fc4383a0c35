package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/dotcommander/actionlib/internal/actions"
)

func newCategoryCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "category",
		Aliases: []string{"categories"},
		Short:   "Inspect action categories",
		Long: `Categories are labels taken from the actions themselves. A category
exists while at least one action uses it; assign one with
"action add --category" or "action edit --category".`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List categories with their action counts",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.app(cmd.Context())
			if err != nil {
				return err
			}
			out := newPrinter(cmd.OutOrStdout())
			showWarnings(cmd, a)

			categories := a.actions.Categories()
			if len(categories) == 0 {
				out.println(out.muted.Render("No categories yet."))
				return nil
			}

			width := 0
			for _, c := range categories {
				width = max(width, lipgloss.Width(c))
			}
			for _, c := range categories {
				n := 0
				for range a.actions.ListByCategory(c) {
					n++
				}
				out.printf("%s  %s\n", out.label.Render(pad(c, width)), out.muted.Render(plural(n, "action")))
			}
			return nil
		},
	})

	return cmd
}

// cleanUnused drops categories without actions, asking first unless yes is set
func cleanUnused(cmd *cobra.Command, out *printer, store *actions.Store, yes bool) {
	unused := store.UnusedCategories()
	if len(unused) == 0 {
		return
	}

	if !yes {
		question := fmt.Sprintf("Remove unused categories %s?", strings.Join(quoteAll(unused), ", "))
		if !confirm(cmd, question) {
			out.println(out.muted.Render("Categories kept."))
			return
		}
	}

	removed := store.CleanUnusedCategories()
	out.success("Removed %s: %s", plural(len(removed), "category"), strings.Join(removed, ", "))
}

// confirm asks a yes/no question on the command's streams; anything but
// y or yes is a no
func confirm(cmd *cobra.Command, question string) bool {
	fmt.Fprintf(cmd.OutOrStdout(), "%s [y/N]: ", question)

	line, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

func quoteAll(items []string) []string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return quoted
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	if strings.HasSuffix(noun, "y") {
		return fmt.Sprintf("%d %sies", n, strings.TrimSuffix(noun, "y"))
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
