// Package cli 提供命令行入口：本地对话和文本提取预览
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/fyerfyer/pdf-chat/api/middleware"
	"github.com/fyerfyer/pdf-chat/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// options 所有子命令共享的参数
type options struct {
	configFile string
	logLevel   string
}

// NewRootCommand 创建根命令
func NewRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "pdfchat",
		Short:         "Chat with a set of PDF documents from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "config.yaml", "config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug/info/warn/error), overrides config")

	root.AddCommand(newChatCommand(opts), newExtractCommand(opts))
	return root
}

// Execute 执行根命令，出错时以非零状态退出
func Execute() {
	root := NewRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
		os.Exit(1)
	}
}

// load 读取配置并初始化日志
// 命令行下日志默认只写到stderr，避免干扰对话输出
func (o *options) load(stderr io.Writer) (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	} else if cfg.Log.Level == "info" {
		cfg.Log.Level = "warn"
	}

	logger, err := middleware.ConfigureLogger(cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("configure logger: %w", err)
	}
	if cfg.Log.File == "" {
		logger.SetOutput(stderr)
	}
	return cfg, logger, nil
}
