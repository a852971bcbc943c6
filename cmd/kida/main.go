// kida - template compiler and renderer.
//
// Renders templates from a directory against a YAML context, or checks
// them for compile errors without rendering.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lbliii/kida"
)

var (
	templateDir string
	configPath  string
	contextPath string
	watch       bool
	verbose     bool
)

var rootCmd = cobra.Command{
	Use:   "kida",
	Short: "Compile and render kida templates",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

var renderCmd = cobra.Command{
	Use:   "render [template]",
	Short: "Render a template to stdout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		engine, err := newEngine()
		if err != nil {
			return err
		}
		ctx, err := loadContext()
		if err != nil {
			return err
		}

		render := func() error {
			out, err := engine.Render(name, ctx)
			if err != nil {
				return err
			}
			fmt.Println(out)
			return nil
		}

		if err := render(); err != nil {
			return err
		}
		if !watch {
			return nil
		}

		sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		err = engine.Watch(sigCtx, func(changed string) {
			if err := render(); err != nil {
				slog.Error("render failed", "template", name, "err", err)
			}
		})
		if sigCtx.Err() != nil {
			return nil
		}
		return err
	},
}

var checkCmd = cobra.Command{
	Use:   "check [template...]",
	Short: "Compile templates and report errors without rendering",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := newEngine()
		if err != nil {
			return err
		}

		names := args
		if len(names) == 0 {
			names, err = listTemplates(templateDir)
			if err != nil {
				return err
			}
		}

		failed := 0
		for _, name := range names {
			if _, err := engine.Load(name); err != nil {
				failed++
				fmt.Fprintln(os.Stderr, err)
				continue
			}
			slog.Debug("template ok", "template", name)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d templates failed", failed, len(names))
		}
		fmt.Printf("checked %d templates\n", len(names))
		return nil
	},
}

func newEngine() (*kida.Engine, error) {
	var cfg *kida.Config
	if configPath != "" {
		var err error
		cfg, err = kida.LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
	}
	return kida.New(cfg, kida.NewDirLoader(templateDir)), nil
}

func loadContext() (map[string]any, error) {
	if contextPath == "" {
		return nil, nil
	}
	data, err := os.ReadFile(contextPath)
	if err != nil {
		return nil, fmt.Errorf("reading context: %w", err)
	}
	var ctx map[string]any
	if err := yaml.Unmarshal(data, &ctx); err != nil {
		return nil, fmt.Errorf("parsing context %s: %w", contextPath, err)
	}
	return ctx, nil
}

// listTemplates walks the template directory, returning loader-style
// slash-separated names.
func listTemplates(root string) ([]string, error) {
	var names []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing templates in %s: %w", root, err)
	}
	return names, nil
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&templateDir, "templates", "t", ".", "template directory")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "engine config YAML file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	renderCmd.Flags().StringVarP(&contextPath, "context", "c", "", "context YAML file")
	renderCmd.Flags().BoolVarP(&watch, "watch", "w", false, "re-render on template changes")

	rootCmd.AddCommand(&renderCmd, &checkCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
