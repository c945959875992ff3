package main

import (
    "fmt"

    "github.com/joho/godotenv"
    "github.com/spf13/cobra"

    "paradis/pkg/ident"
)

// Options holds CLI options for the node.
type Options struct {
    ConfigPath string
    EnvFiles   []string
}

func newRootCmd(code *int) *cobra.Command {
    var opts Options
    root := &cobra.Command{
        Use:           "paradis-node",
        Short:         "Run a paradis peer on one UDP socket.",
        SilenceUsage:  true,
        SilenceErrors: true,
        PersistentPreRunE: func(*cobra.Command, []string) error {
            return loadEnv(opts.EnvFiles)
        },
        RunE: func(*cobra.Command, []string) error {
            *code = run(opts)
            return nil
        },
    }
    root.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "Path to YAML config file")
    root.PersistentFlags().StringSliceVar(&opts.EnvFiles, "env-file", nil, "Dotenv files to load before reading configuration (default .env when present)")
    root.AddCommand(newGenIDCmd())
    return root
}

func newGenIDCmd() *cobra.Command {
    var (
        name  string
        count int
    )
    cmd := &cobra.Command{
        Use:   "genid",
        Short: "Print new identifiers.",
        Args:  cobra.NoArgs,
        RunE: func(cmd *cobra.Command, _ []string) error {
            if count <= 0 { return fmt.Errorf("count must be positive, got %d", count) }
            gen := ident.NewGenerator(name)
            for i := 0; i < count; i++ {
                fmt.Fprintln(cmd.OutOrStdout(), gen.New())
            }
            return nil
        },
    }
    cmd.Flags().StringVarP(&name, "name", "p", "paradis-cli", "Principal name hashed into the identifiers")
    cmd.Flags().IntVarP(&count, "count", "n", 1, "Number of identifiers")
    return cmd
}

// loadEnv loads dotenv files without overriding variables already set.
func loadEnv(files []string) error {
    if len(files) == 0 {
        _ = godotenv.Load()
        return nil
    }
    if err := godotenv.Load(files...); err != nil { return fmt.Errorf("load env: %w", err) }
    return nil
}
