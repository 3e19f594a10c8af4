// Package main 是 ogm 命令行入口：启动管理服务，或离线渲染派生方法与 schema 语句。
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	dbInfra "neo4jogm/infrastructure/database"
	"neo4jogm/internal/bootstrap"
	"neo4jogm/pkg/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "ogm",
		Short:         "Graph object mapping toolkit",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().String("config", "config.yaml", "Path to the YAML configuration file")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the admin HTTP server",
		Long:  "Connect to the configured transport and serve /healthz, /entities, /explain and /query",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	})

	explainCmd := &cobra.Command{
		Use:   "explain <entity> <method> [args...]",
		Short: "Print the Cypher derived from a repository method name",
		Long: `Render the statement for a derived method without connecting to the database.
Arguments are parsed as JSON when possible and passed as strings otherwise.`,
		Args: cobra.MinimumNArgs(2),
		RunE: runExplain,
	}
	explainCmd.Flags().String("style", "", "Override repository.query_style (filter|legacy)")
	rootCmd.AddCommand(explainCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "schema",
		Short: "Print constraint and index statements for the configured entities",
		Args:  cobra.NoArgs,
		RunE:  runSchema,
	})
	return rootCmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	app, err := bootstrap.Init(cmd.Context(), configPath)
	if err != nil {
		return err
	}
	h := bootstrap.NewServer(app)
	h.OnShutdown = append(h.OnShutdown, func(context.Context) {
		app.Logger.Info("正在关闭")
		app.Close()
	})
	h.Spin()
	return nil
}

// offlineApp 只加载配置与实体元数据，不建立连接
func offlineApp(cmd *cobra.Command) (*bootstrap.App, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	level := zap.NewAtomicLevelAt(bootstrap.ParseLevel(cfg.Logging.Level))
	logger := bootstrap.NewLogger(level)
	mctx, err := bootstrap.InitMapping(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &bootstrap.App{
		Config:    cfg,
		Logger:    logger,
		Level:     level,
		Mapping:   mctx,
		Generator: bootstrap.GeneratorFor(cfg.Transport),
	}, nil
}

func runExplain(cmd *cobra.Command, args []string) error {
	app, err := offlineApp(cmd)
	if err != nil {
		return err
	}
	style, _ := cmd.Flags().GetString("style")
	exp, err := app.Explain(bootstrap.ExplainRequest{
		Entity: args[0],
		Method: args[1],
		Style:  style,
		Args:   parseArgs(args[2:]),
	})
	if err != nil {
		return err
	}
	out, err := sonic.ConfigStd.MarshalIndent(exp, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

func parseArgs(raw []string) []any {
	out := make([]any, len(raw))
	for i, s := range raw {
		var v any
		if err := sonic.UnmarshalString(s, &v); err != nil {
			v = s
		}
		out[i] = v
	}
	return out
}

func runSchema(cmd *cobra.Command, _ []string) error {
	app, err := offlineApp(cmd)
	if err != nil {
		return err
	}
	for _, stmt := range dbInfra.SchemaStatements(app.Mapping.Entities()) {
		fmt.Fprintln(cmd.OutOrStdout(), stmt+";")
	}
	return nil
}
