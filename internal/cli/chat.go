package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fyerfyer/pdf-chat/internal/app"
	"github.com/fyerfyer/pdf-chat/internal/memory"
	"github.com/fyerfyer/pdf-chat/internal/services"
	"github.com/spf13/cobra"
)

// REPL中的控制命令
const (
	cmdHistory = ":history"
	cmdReset   = ":reset"
	cmdQuit    = ":quit"
	cmdHelp    = ":help"
)

const prompt = "> "

// conversation REPL需要的会话操作
type conversation interface {
	Ask(ctx context.Context, question string) (*services.Answer, error)
	History() []memory.Turn
	Reset()
}

// newChatCommand 处理文档后进入交互式问答
func newChatCommand(opts *options) *cobra.Command {
	var showSources bool

	cmd := &cobra.Command{
		Use:   "chat <files...>",
		Short: "Process documents and start an interactive chat about them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			sources, err := openSources(args)
			if err != nil {
				return err
			}

			a, err := app.New(cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			session, err := a.Manager.Create()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Processing %d document(s)...\n", len(sources))
			result, err := session.Process(cmd.Context(), sources)
			if err != nil {
				return err
			}
			for _, s := range result.Skipped {
				fmt.Fprintf(out, "skipped: %s\n", s)
			}
			fmt.Fprintf(out, "Indexed %d chunks from %d document(s) in %s. Type %s for commands.\n",
				result.Chunks, result.Documents, result.Duration.Round(time.Millisecond), cmdHelp)

			return runREPL(cmd.Context(), session, cmd.InOrStdin(), out, showSources)
		},
	}

	cmd.Flags().BoolVar(&showSources, "sources", false, "print the retrieved chunks after every answer")
	return cmd
}

// runREPL 逐行读取问题直到输入结束或:quit
// 单次提问失败只打印错误，不结束对话
func runREPL(ctx context.Context, conv conversation, in io.Reader, out io.Writer, showSources bool) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Fprint(out, prompt)
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch line {
		case "":
			continue
		case cmdQuit:
			return nil
		case cmdHelp:
			fmt.Fprintf(out, "%s  show the conversation\n%s    clear the conversation\n%s     exit\n", cmdHistory, cmdReset, cmdQuit)
			continue
		case cmdHistory:
			printHistory(out, conv.History())
			continue
		case cmdReset:
			conv.Reset()
			fmt.Fprintln(out, "Conversation cleared.")
			continue
		}

		ans, err := conv.Ask(ctx, line)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		fmt.Fprintln(out, ans.Answer)
		if showSources {
			for i, src := range ans.Sources {
				fmt.Fprintf(out, "  [%d] score=%.3f %s\n", i+1, src.Score, preview(src.Chunk.Content, 80))
			}
		}
	}
}

// printHistory 打印对话记录
func printHistory(out io.Writer, turns []memory.Turn) {
	if len(turns) == 0 {
		fmt.Fprintln(out, "(no conversation yet)")
		return
	}
	for _, t := range turns {
		fmt.Fprintf(out, "%d %s: %s\n", t.Index, t.Role, t.Content)
	}
}

// preview 截取单行预览
func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
