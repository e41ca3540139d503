package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/aperture-cli/aperture/aperr"
	"github.com/aperture-cli/aperture/spec"
)

// execTarget is one operation a shortcut resolved to.
type execTarget struct {
	api     string
	command *spec.CachedCommand

	// argv is the generated-tree invocation: group, name, then any
	// arguments derived from the shortcut itself.
	argv []string
}

func (t *execTarget) label() string {
	return fmt.Sprintf("%s %s %s", t.api, t.command.EffectiveGroup(), t.command.EffectiveName())
}

func (a *app) execCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec <shortcut...>",
		Short: "Run an operation by shortcut across all registered APIs",
		Long: "Resolves a shortcut to a single operation and runs it. A shortcut is\n" +
			"an operation id (list-users), a method and concrete path (GET /users/42),\n" +
			"or a group and command name (users list).",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runExec(cmd.Context(), args)
		},
	}
	cmd.Flags().SetInterspersed(false)
	return cmd
}

func (a *app) runExec(ctx context.Context, args []string) error {
	names, err := a.mgr.ListAPIs()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return aperr.New(aperr.Configuration, "no APIs registered; run 'aperture config add' first")
	}

	specs := make(map[string]*spec.CachedSpec, len(names))
	for _, name := range names {
		cached, err := a.loadSpec(name)
		if err != nil {
			return err
		}
		specs[name] = cached
	}

	targets, rest := resolveShortcut(specs, names, args)
	switch len(targets) {
	case 0:
		return aperr.New(aperr.InvalidArgument, "no operation matches %q", strings.Join(args, " "))
	case 1:
		t := targets[0]
		return a.runAPICommand(ctx, t.api, append(t.argv, rest...))
	default:
		labels := make([]string, len(targets))
		for i, t := range targets {
			labels[i] = t.label()
		}
		return aperr.New(aperr.InvalidArgument,
			"shortcut %q is ambiguous; candidates: %s",
			strings.Join(args[:len(args)-len(rest)], " "), strings.Join(labels, ", ")).
			With("candidates", labels)
	}
}

// resolveShortcut tries the shortcut forms in order: operation id, method
// plus concrete path, then group plus name. Returns the matches and the
// arguments left over for the resolved command.
func resolveShortcut(specs map[string]*spec.CachedSpec, order []string, args []string) ([]*execTarget, []string) {
	if targets := matchOperationID(specs, order, args[0]); len(targets) > 0 {
		return targets, args[1:]
	}
	if len(args) >= 2 && isHTTPMethod(args[0]) && strings.HasPrefix(args[1], "/") {
		if targets := matchMethodPath(specs, order, strings.ToUpper(args[0]), args[1]); len(targets) > 0 {
			return targets, args[2:]
		}
	}
	if len(args) >= 2 {
		if targets := matchGroupName(specs, order, args[0], args[1]); len(targets) > 0 {
			return targets, args[2:]
		}
	}
	return nil, args
}

func matchOperationID(specs map[string]*spec.CachedSpec, order []string, id string) []*execTarget {
	var targets []*execTarget
	for _, api := range order {
		cached := specs[api]
		for i := range cached.Commands {
			c := &cached.Commands[i]
			if c.Hidden || c.OperationID != id {
				continue
			}
			targets = append(targets, &execTarget{
				api: api, command: c,
				argv: []string{c.EffectiveGroup(), c.EffectiveName()},
			})
		}
	}
	return targets
}

// matchMethodPath matches a concrete URL path against operation path
// templates; matched template variables become flag arguments.
func matchMethodPath(specs map[string]*spec.CachedSpec, order []string, method, concrete string) []*execTarget {
	var targets []*execTarget
	for _, api := range order {
		cached := specs[api]
		for i := range cached.Commands {
			c := &cached.Commands[i]
			if c.Hidden || c.Method != method {
				continue
			}
			extracted, ok := matchPathTemplate(c, concrete)
			if !ok {
				continue
			}
			argv := append([]string{c.EffectiveGroup(), c.EffectiveName()}, extracted...)
			targets = append(targets, &execTarget{api: api, command: c, argv: argv})
		}
	}
	return targets
}

func matchPathTemplate(c *spec.CachedCommand, concrete string) ([]string, bool) {
	tmpl := strings.Split(strings.Trim(c.Path, "/"), "/")
	got := strings.Split(strings.Trim(concrete, "/"), "/")
	if len(tmpl) != len(got) {
		return nil, false
	}
	var extracted []string
	for i, seg := range tmpl {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			name := seg[1 : len(seg)-1]
			flag := flagNameForParam(c, name)
			if flag == "" {
				return nil, false
			}
			extracted = append(extracted, "--"+flag, got[i])
			continue
		}
		if seg != got[i] {
			return nil, false
		}
	}
	return extracted, true
}

func flagNameForParam(c *spec.CachedCommand, name string) string {
	for _, p := range c.Parameters {
		if p.Location == "path" && p.Name == name {
			return p.FlagName
		}
	}
	return ""
}

func matchGroupName(specs map[string]*spec.CachedSpec, order []string, group, name string) []*execTarget {
	var targets []*execTarget
	for _, api := range order {
		if c := specs[api].FindCommand(group, name); c != nil && !c.Hidden {
			targets = append(targets, &execTarget{
				api: api, command: c,
				argv: []string{group, name},
			})
		}
	}
	return targets
}

func isHTTPMethod(s string) bool {
	switch strings.ToUpper(s) {
	case "GET", "HEAD", "POST", "PUT", "PATCH", "DELETE", "OPTIONS", "TRACE":
		return true
	}
	return false
}

func (a *app) listCommandsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-commands <api>",
		Short: "List the generated commands of an API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cached, err := a.loadSpec(args[0])
			if err != nil {
				return err
			}
			return a.writeCommandList(cached)
		},
	}
}

func (a *app) writeCommandList(cached *spec.CachedSpec) error {
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	for _, group := range cached.Groups() {
		printed := false
		for i := range cached.Commands {
			c := &cached.Commands[i]
			if c.Hidden || c.EffectiveGroup() != group {
				continue
			}
			if !printed {
				fmt.Fprintf(tw, "%s:\n", group)
				printed = true
			}
			fmt.Fprintf(tw, "  %s\t%s %s\t%s\n", c.EffectiveName(), c.Method, c.Path, c.Summary)
		}
	}
	return tw.Flush()
}

func (a *app) searchCmd() *cobra.Command {
	var apiFilter string
	var verbose bool
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search operations across registered APIs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSearch(args[0], apiFilter, verbose)
		},
	}
	cmd.Flags().StringVar(&apiFilter, "api", "", "Limit the search to one API")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "Include summaries in results")
	return cmd
}

func (a *app) runSearch(query, apiFilter string, verbose bool) error {
	names, err := a.mgr.ListAPIs()
	if err != nil {
		return err
	}
	if apiFilter != "" {
		names = []string{apiFilter}
	}

	needle := strings.ToLower(query)
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	found := 0
	for _, api := range names {
		cached, err := a.loadSpec(api)
		if err != nil {
			return err
		}
		for i := range cached.Commands {
			c := &cached.Commands[i]
			if c.Hidden || !commandMatches(c, needle) {
				continue
			}
			found++
			fmt.Fprintf(tw, "%s\t%s %s\t%s %s\n",
				api, c.EffectiveGroup(), c.EffectiveName(), c.Method, c.Path)
			if verbose && c.Summary != "" {
				fmt.Fprintf(tw, "\t%s\n", c.Summary)
			}
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if found == 0 {
		fmt.Fprintf(a.out, "No operations match %q\n", query)
	}
	return nil
}

func commandMatches(c *spec.CachedCommand, needle string) bool {
	for _, field := range []string{
		c.OperationID, c.EffectiveGroup(), c.EffectiveName(),
		c.Path, c.Summary, c.Description,
	} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

func (a *app) docsCmd() *cobra.Command {
	var enhanced bool
	cmd := &cobra.Command{
		Use:   "docs [api [group [command]]]",
		Short: "Show documentation for registered APIs",
		Args:  cobra.MaximumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runDocs(args, enhanced)
		},
	}
	cmd.Flags().BoolVar(&enhanced, "enhanced", false, "Include schemas and examples")
	return cmd
}

func (a *app) runDocs(args []string, enhanced bool) error {
	if len(args) == 0 {
		return a.writeAPIList()
	}
	cached, err := a.loadSpec(args[0])
	if err != nil {
		return err
	}
	switch len(args) {
	case 1:
		return a.writeGroupList(cached)
	case 2:
		return a.writeGroupDocs(cached, args[1])
	default:
		c := cached.FindCommand(args[1], args[2])
		if c == nil {
			return aperr.New(aperr.InvalidArgument,
				"no command %q in group %q of API %q", args[2], args[1], args[0])
		}
		return a.writeCommandDocs(cached, c, enhanced)
	}
}

func (a *app) writeAPIList() error {
	names, err := a.mgr.ListAPIs()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Fprintln(a.out, "No APIs registered.")
		return nil
	}
	for _, name := range names {
		fmt.Fprintln(a.out, name)
	}
	return nil
}

func (a *app) writeGroupList(cached *spec.CachedSpec) error {
	counts := make(map[string]int)
	for i := range cached.Commands {
		c := &cached.Commands[i]
		if !c.Hidden {
			counts[c.EffectiveGroup()]++
		}
	}
	fmt.Fprintf(a.out, "%s %s\n\n", cached.Name, cached.Version)
	for _, group := range cached.Groups() {
		if counts[group] > 0 {
			fmt.Fprintf(a.out, "  %s (%d commands)\n", group, counts[group])
		}
	}
	return nil
}

func (a *app) writeGroupDocs(cached *spec.CachedSpec, group string) error {
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	found := false
	for i := range cached.Commands {
		c := &cached.Commands[i]
		if c.Hidden || c.EffectiveGroup() != group {
			continue
		}
		found = true
		fmt.Fprintf(tw, "%s\t%s %s\t%s\n", c.EffectiveName(), c.Method, c.Path, c.Summary)
	}
	if !found {
		return aperr.New(aperr.InvalidArgument, "no group %q in API %q", group, cached.Name)
	}
	return tw.Flush()
}

func (a *app) writeCommandDocs(cached *spec.CachedSpec, c *spec.CachedCommand, enhanced bool) error {
	fmt.Fprintf(a.out, "%s %s\n", c.Method, c.Path)
	if c.Summary != "" {
		fmt.Fprintln(a.out, c.Summary)
	}
	if c.Description != "" && c.Description != c.Summary {
		fmt.Fprintln(a.out, c.Description)
	}
	if c.Deprecated {
		fmt.Fprintln(a.out, "Deprecated.")
	}

	if len(c.Parameters) > 0 {
		fmt.Fprintln(a.out, "\nParameters:")
		tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
		for _, p := range c.Parameters {
			attrs := []string{p.Type, p.Location}
			if p.Required {
				attrs = append(attrs, "required")
			}
			if len(p.Enum) > 0 {
				attrs = append(attrs, "one of: "+strings.Join(p.Enum, ", "))
			}
			if p.Default != "" {
				attrs = append(attrs, "default "+p.Default)
			}
			fmt.Fprintf(tw, "  --%s\t%s\t%s\n", p.FlagName, strings.Join(attrs, ", "), p.Description)
			if enhanced && p.Schema != "" {
				fmt.Fprintf(tw, "  \tschema\t%s\n", p.Schema)
			}
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if b := c.RequestBody; b != nil {
		fmt.Fprintf(a.out, "\nBody (%s)", b.ContentType)
		if b.Required {
			fmt.Fprint(a.out, ", required")
		}
		fmt.Fprintln(a.out)
		if b.Description != "" {
			fmt.Fprintln(a.out, b.Description)
		}
		if enhanced && b.Schema != "" {
			fmt.Fprintf(a.out, "Schema: %s\n", b.Schema)
		}
		if enhanced && b.Example != "" {
			fmt.Fprintf(a.out, "Example: %s\n", b.Example)
		}
	}

	if enhanced && len(c.Responses) > 0 {
		fmt.Fprintln(a.out, "\nResponses:")
		for _, r := range c.Responses {
			fmt.Fprintf(a.out, "  %s %s\n", r.StatusCode, r.ContentType)
		}
	}

	if len(c.SecuritySchemes) > 0 {
		fmt.Fprintf(a.out, "\nSecurity: %s\n", strings.Join(c.SecuritySchemes, ", "))
	}
	return nil
}

func (a *app) overviewCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "overview [api]",
		Short: "Summarize registered APIs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return a.writeOverview(args[0])
			}
			names, err := a.mgr.ListAPIs()
			if err != nil {
				return err
			}
			if len(names) == 0 {
				fmt.Fprintln(a.out, "No APIs registered.")
				return nil
			}
			if !all && len(names) > 1 {
				return a.writeAPIList()
			}
			for _, name := range names {
				if err := a.writeOverview(name); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Show the overview for every API")
	return cmd
}

func (a *app) writeOverview(name string) error {
	cached, err := a.loadSpec(name)
	if err != nil {
		return err
	}
	visible := 0
	for i := range cached.Commands {
		if !cached.Commands[i].Hidden {
			visible++
		}
	}
	fmt.Fprintf(a.out, "%s %s\n", cached.Name, cached.Version)
	if cached.BaseURL != "" {
		fmt.Fprintf(a.out, "  base URL: %s\n", cached.BaseURL)
	}
	fmt.Fprintf(a.out, "  %d commands in %d groups\n", visible, len(cached.Groups()))
	if len(cached.SecuritySchemes) > 0 {
		schemes := make([]string, 0, len(cached.SecuritySchemes))
		for n := range cached.SecuritySchemes {
			schemes = append(schemes, n)
		}
		sort.Strings(schemes)
		fmt.Fprintf(a.out, "  auth: %s\n", strings.Join(schemes, ", "))
	}
	if n := len(cached.Skipped); n > 0 {
		fmt.Fprintf(a.out, "  %d endpoints skipped at registration\n", n)
	}
	return nil
}
