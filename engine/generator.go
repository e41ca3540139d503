package engine

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/aperture-cli/aperture/spec"
)

// RunFunc executes one generated leaf command. args are the positional
// arguments left after flag parsing.
type RunFunc func(cmd *cobra.Command, command *spec.CachedCommand, args []string) error

// Generator builds the cobra command tree for one cached spec.
type Generator struct {
	// Positional switches path parameters from required flags to
	// positional arguments. Boolean parameters stay flags either way.
	Positional bool
}

// Build produces the API command tree: one node per group, one leaf per
// operation.
func (g *Generator) Build(cached *spec.CachedSpec, run RunFunc) *cobra.Command {
	root := &cobra.Command{
		Use:           cached.Name,
		Short:         fmt.Sprintf("Commands for the %s API", cached.Name),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	groups := make(map[string]*cobra.Command)
	for _, name := range cached.Groups() {
		gc := &cobra.Command{
			Use:   name,
			Short: fmt.Sprintf("Operations tagged %s", name),
		}
		groups[name] = gc
		root.AddCommand(gc)
	}

	for i := range cached.Commands {
		command := &cached.Commands[i]
		groups[command.EffectiveGroup()].AddCommand(g.leaf(command, run))
	}
	return root
}

func (g *Generator) leaf(command *spec.CachedCommand, run RunFunc) *cobra.Command {
	use := command.EffectiveName()
	if g.Positional {
		for _, p := range positionalParams(command, g.Positional) {
			use += fmt.Sprintf(" <%s>", p.FlagName)
		}
	}

	leaf := &cobra.Command{
		Use:     use,
		Short:   command.Summary,
		Long:    command.Description,
		Aliases: command.Aliases,
		Hidden:  command.Hidden,
		// Extra key=value arguments select server-variable values.
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, command, args)
		},
	}
	if command.Deprecated {
		leaf.Deprecated = "this operation is marked deprecated by the API"
	}

	for i := range command.Parameters {
		g.registerFlag(leaf.Flags(), command, &command.Parameters[i])
	}

	if command.RequestBody != nil {
		desc := command.RequestBody.Description
		if desc == "" {
			desc = "Request body as a JSON string"
		}
		leaf.Flags().String("body", "", desc)
		if command.RequestBody.Required {
			_ = leaf.MarkFlagRequired("body")
		}
	}
	return leaf
}

func (g *Generator) registerFlag(flags *pflag.FlagSet, command *spec.CachedCommand, p *spec.CachedParameter) {
	if g.Positional && isPositional(p) {
		return
	}

	usage := flagUsage(p)
	switch p.Type {
	case "boolean":
		flags.Bool(p.FlagName, false, usage)
		return
	case "integer":
		var def int64
		if p.Default != "" {
			fmt.Sscanf(p.Default, "%d", &def)
		}
		flags.Int64(p.FlagName, def, usage)
	case "number":
		var def float64
		if p.Default != "" {
			fmt.Sscanf(p.Default, "%g", &def)
		}
		flags.Float64(p.FlagName, def, usage)
	default:
		flags.String(p.FlagName, p.Default, usage)
	}
	if p.Required {
		_ = cobra.MarkFlagRequired(flags, p.FlagName)
	}
}

func flagUsage(p *spec.CachedParameter) string {
	usage := p.Description
	if usage == "" {
		usage = fmt.Sprintf("%s parameter %q", p.Location, p.Name)
	}
	if len(p.Enum) > 0 {
		usage += fmt.Sprintf(" (one of: %s)", strings.Join(p.Enum, ", "))
	}
	if p.Example != "" {
		usage += fmt.Sprintf(" (example: %s)", p.Example)
	}
	return usage
}

// isPositional reports whether the parameter becomes a positional argument
// in positional mode. Booleans never do.
func isPositional(p *spec.CachedParameter) bool {
	return p.Location == "path" && p.Type != "boolean"
}

func positionalParams(command *spec.CachedCommand, positional bool) []*spec.CachedParameter {
	if !positional {
		return nil
	}
	var out []*spec.CachedParameter
	for i := range command.Parameters {
		if isPositional(&command.Parameters[i]) {
			out = append(out, &command.Parameters[i])
		}
	}
	return out
}
