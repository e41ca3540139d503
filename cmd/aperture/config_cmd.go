package main

import (
	"fmt"
	"os"
	"os/exec"
	"sort"

	"github.com/spf13/cobra"

	"github.com/aperture-cli/aperture/aperr"
	"github.com/aperture-cli/aperture/config"
	"github.com/aperture-cli/aperture/openapi"
	"github.com/aperture-cli/aperture/respcache"
	"github.com/aperture-cli/aperture/spec"
)

func (a *app) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage registered APIs, URLs, secrets, and settings",
	}
	cmd.AddCommand(
		a.configAddCmd(),
		a.configListCmd(),
		a.configRemoveCmd(),
		a.configEditCmd(),
		a.configSetURLCmd(),
		a.configGetURLCmd(),
		a.configListURLsCmd(),
		a.configSetSecretCmd(),
		a.configListSecretsCmd(),
		a.configRemoveSecretCmd(),
		a.configClearSecretsCmd(),
		a.configReinitCmd(),
		a.configClearCacheCmd(),
		a.configCacheStatsCmd(),
		a.configSetCmd(),
		a.configGetCmd(),
		a.configSettingsCmd(),
	)
	return cmd
}

func (a *app) configAddCmd() *cobra.Command {
	var force, strict bool
	cmd := &cobra.Command{
		Use:   "add <name> <file|url>",
		Short: "Register an OpenAPI specification",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.addSpec(args[0], args[1], force, strict)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Replace an existing registration")
	cmd.Flags().BoolVar(&strict, "strict", false, "Reject the spec instead of skipping incompatible endpoints")
	return cmd
}

func (a *app) addSpec(name, source string, force, strict bool) error {
	doc, raw, err := a.specLoader().Load(source)
	if err != nil {
		return err
	}
	result, err := openapi.Validate(doc, strict)
	if err != nil {
		return err
	}
	if err := a.mgr.AddSpec(name, raw, force); err != nil {
		return err
	}
	cached, err := spec.Transform(doc, spec.TransformOptions{
		Name:     name,
		Skipped:  result.Skipped,
		Warnings: result.Warnings,
	})
	if err != nil {
		// Leave no half-registered API behind.
		_ = a.mgr.RemoveSpec(name)
		return err
	}
	if err := a.specStore().Save(cached); err != nil {
		return err
	}

	for _, w := range result.Warnings {
		fmt.Fprintf(a.errOut, "warning: %s\n", w)
	}
	fmt.Fprintf(a.out, "Registered API %q with %d commands", name, len(cached.Commands))
	if n := len(result.Skipped); n > 0 {
		fmt.Fprintf(a.out, " (%d endpoints skipped)", n)
	}
	fmt.Fprintln(a.out)
	return nil
}

func (a *app) configListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered APIs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.writeAPIList()
		},
	}
}

func (a *app) configRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a registered API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if !a.mgr.HasSpec(name) {
				return aperr.New(aperr.Configuration, "API %q is not registered", name)
			}
			if err := a.mgr.RemoveSpec(name); err != nil {
				return err
			}
			if _, err := a.responseCache().ClearAPI(name); err != nil {
				return err
			}
			if _, ok := a.cfg.APIConfigs[name]; ok {
				delete(a.cfg.APIConfigs, name)
				if err := a.mgr.SaveGlobal(a.cfg); err != nil {
					return err
				}
			}
			fmt.Fprintf(a.out, "Removed API %q\n", name)
			return nil
		},
	}
}

func (a *app) configEditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "edit [api]",
		Short: "Open the global config, or an API's stored spec, in $EDITOR",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return a.editFile(a.mgr.ConfigPath())
			}
			name := args[0]
			if !a.mgr.HasSpec(name) {
				return aperr.New(aperr.Configuration, "API %q is not registered", name)
			}
			if err := a.editFile(a.mgr.SpecPath(name)); err != nil {
				return err
			}
			// The stored document changed; the cached form must follow.
			_, err := a.rederive(name)
			return err
		},
	}
}

func (a *app) editFile(path string) error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "vi"
	}
	ed := exec.Command(editor, path)
	ed.Stdin = os.Stdin
	ed.Stdout = os.Stdout
	ed.Stderr = os.Stderr
	if err := ed.Run(); err != nil {
		return aperr.Wrap(aperr.Configuration, err, "editor %q failed", editor)
	}
	return nil
}

func (a *app) configSetURLCmd() *cobra.Command {
	var env string
	cmd := &cobra.Command{
		Use:   "set-url <api> <url>",
		Short: "Set the base URL override for an API",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.cfg.SetURL(args[0], env, args[1])
			if err := a.mgr.SaveGlobal(a.cfg); err != nil {
				return err
			}
			if env != "" {
				fmt.Fprintf(a.out, "Set %s URL for %q to %s\n", env, args[0], args[1])
			} else {
				fmt.Fprintf(a.out, "Set base URL for %q to %s\n", args[0], args[1])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&env, "env", "", "Set the URL for a named environment")
	return cmd
}

func (a *app) configGetURLCmd() *cobra.Command {
	var env string
	cmd := &cobra.Command{
		Use:   "get-url <api>",
		Short: "Show the resolved base URL for an API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if env != "" {
				url, ok := a.cfg.API(name).EnvironmentURLs[env]
				if !ok {
					return aperr.New(aperr.Configuration, "no %s URL configured for API %q", env, name)
				}
				fmt.Fprintln(a.out, url)
				return nil
			}
			cached, err := a.loadSpec(name)
			if err != nil {
				return err
			}
			resolver := &config.URLResolver{}
			fmt.Fprintln(a.out, resolver.Resolve("", name, a.cfg, cached))
			return nil
		},
	}
	cmd.Flags().StringVar(&env, "env", "", "Show the URL for a named environment")
	return cmd
}

func (a *app) configListURLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-urls <api>",
		Short: "List configured URL overrides for an API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api := a.cfg.API(args[0])
			if api.BaseURLOverride != "" {
				fmt.Fprintf(a.out, "base: %s\n", api.BaseURLOverride)
			}
			envs := make([]string, 0, len(api.EnvironmentURLs))
			for env := range api.EnvironmentURLs {
				envs = append(envs, env)
			}
			sort.Strings(envs)
			for _, env := range envs {
				fmt.Fprintf(a.out, "%s: %s\n", env, api.EnvironmentURLs[env])
			}
			if api.BaseURLOverride == "" && len(envs) == 0 {
				fmt.Fprintf(a.out, "No URL overrides configured for %q\n", args[0])
			}
			return nil
		},
	}
}

func (a *app) configSetSecretCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-secret <api> <scheme> <env-var>",
		Short: "Bind a security scheme to an environment variable",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.cfg.SetSecret(args[0], args[1], args[2])
			if err := a.mgr.SaveGlobal(a.cfg); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Secret for scheme %q of %q reads from $%s\n", args[1], args[0], args[2])
			return nil
		},
	}
}

func (a *app) configListSecretsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-secrets <api>",
		Short: "List secret bindings for an API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secrets := a.cfg.API(args[0]).Secrets
			if len(secrets) == 0 {
				fmt.Fprintf(a.out, "No secrets configured for %q\n", args[0])
				return nil
			}
			schemes := make([]string, 0, len(secrets))
			for scheme := range secrets {
				schemes = append(schemes, scheme)
			}
			sort.Strings(schemes)
			for _, scheme := range schemes {
				fmt.Fprintf(a.out, "%s: $%s\n", scheme, secrets[scheme].Name)
			}
			return nil
		},
	}
}

func (a *app) configRemoveSecretCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove-secret <api> <scheme>",
		Short: "Remove one secret binding",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !a.cfg.RemoveSecret(args[0], args[1]) {
				return aperr.New(aperr.Configuration,
					"no secret configured for scheme %q of API %q", args[1], args[0])
			}
			return a.mgr.SaveGlobal(a.cfg)
		},
	}
}

func (a *app) configClearSecretsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear-secrets <api>",
		Short: "Remove every secret binding of an API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.cfg.ClearSecrets(args[0])
			return a.mgr.SaveGlobal(a.cfg)
		},
	}
}

func (a *app) configReinitCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "reinit [api]",
		Short: "Re-derive the cached model from the stored spec",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var names []string
			if all {
				var err error
				if names, err = a.mgr.ListAPIs(); err != nil {
					return err
				}
			} else {
				if len(args) == 0 {
					return aperr.New(aperr.InvalidArgument, "name an API or pass --all")
				}
				names = args
			}
			for _, name := range names {
				cached, err := a.rederive(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "Re-derived %q (%d commands)\n", name, len(cached.Commands))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Re-derive every registered API")
	return cmd
}

func (a *app) responseCache() *respcache.Cache {
	return respcache.New(respcache.Config{Dir: a.mgr.ResponseCacheDir()})
}

func (a *app) configClearCacheCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear-cache [api]",
		Short: "Delete cached responses, for one API or all",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cache := a.responseCache()
			var removed int
			var err error
			if len(args) == 1 {
				removed, err = cache.ClearAPI(args[0])
			} else {
				removed, err = cache.ClearAll()
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Removed %d cached responses\n", removed)
			return nil
		},
	}
}

func (a *app) configCacheStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cache-stats [api]",
		Short: "Show response cache statistics",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api := ""
			if len(args) == 1 {
				api = args[0]
			}
			stats, err := a.responseCache().Stats(api)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "entries: %d (%d valid, %d expired)\n",
				stats.TotalEntries, stats.ValidEntries, stats.ExpiredEntries)
			fmt.Fprintf(a.out, "size: %d bytes\n", stats.TotalSizeBytes)
			return nil
		},
	}
}

func (a *app) configSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a global setting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.SetSetting(a.cfg, args[0], args[1]); err != nil {
				return err
			}
			return a.mgr.SaveGlobal(a.cfg)
		},
	}
}

func (a *app) configGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Show one global setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := config.GetSetting(a.cfg, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, value)
			return nil
		},
	}
}

func (a *app) configSettingsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "settings",
		Short: "List global settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, s := range config.Settings(a.cfg) {
				fmt.Fprintf(a.out, "%s = %s\n", s.Key, s.Value)
			}
			return nil
		},
	}
}
