package cli

import (
	"fmt"
	"unicode/utf8"

	"github.com/fyerfyer/pdf-chat/internal/document"
	"github.com/spf13/cobra"
)

// newExtractCommand 打印文档提取出的文本和分块统计
func newExtractCommand(opts *options) *cobra.Command {
	var (
		quiet      bool
		showChunks bool
	)

	cmd := &cobra.Command{
		Use:   "extract <files...>",
		Short: "Print the text extracted from documents and chunking statistics",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			policy, err := document.ParseExtractPolicy(cfg.Document.ExtractPolicy)
			if err != nil {
				return err
			}
			splitter, err := document.NewCharacterSplitter(cfg.Splitter())
			if err != nil {
				return err
			}

			sources, err := openSources(args)
			if err != nil {
				return err
			}

			extractor := document.NewExtractor(document.WithPolicy(policy), document.WithExtractorLogger(logger))
			res, err := extractor.ExtractAll(cmd.Context(), sources)
			if err != nil {
				return err
			}
			chunks := splitter.Split(res.Text)

			out := cmd.OutOrStdout()
			if !quiet {
				fmt.Fprintln(out, res.Text)
			}
			if showChunks {
				for _, c := range chunks {
					fmt.Fprintf(out, "--- chunk %d offset=%d chars=%d\n%s\n", c.Index, c.Offset, utf8.RuneCountInString(c.Text), c.Text)
				}
			}

			if len(res.Skipped) > 0 {
				for _, s := range res.Skipped {
					fmt.Fprintf(out, "skipped: %v\n", s)
				}
			}
			fmt.Fprintf(out, "documents=%d pages=%d characters=%d chunks=%d chunk_size=%d overlap=%d\n",
				res.Documents, res.Pages, utf8.RuneCountInString(res.Text), len(chunks),
				cfg.Document.ChunkSize, cfg.Document.ChunkOverlap)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "only print statistics")
	cmd.Flags().BoolVar(&showChunks, "chunks", false, "print every chunk")
	return cmd
}

// openSources 按参数顺序打开文档
func openSources(paths []string) ([]document.Source, error) {
	sources := make([]document.Source, 0, len(paths))
	for _, path := range paths {
		src, err := document.OpenFile(path)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, nil
}
