package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"chorus/collab"
	"chorus/memory"
	"chorus/streamers"
	"chorus/streamers/cli"

	"github.com/spf13/cobra"
)

var chatDebugFile string

var chatCmd = &cobra.Command{
	Use:   "chat [participant]",
	Short: "Chat with a single participant",
	Long: `Start an interactive chat with one participant. Participants with
supports_memory keep the conversation across turns and across runs.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		rt, err := openRuntime(ctx, runtimeOptions{configPath: configPath, debugFile: chatDebugFile})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer rt.Close()

		p, ok := rt.roster.Get(args[0])
		if !ok {
			fmt.Fprintf(os.Stderr, "Error: participant '%s' not found (available: %v)\n", args[0], rt.roster.IDs())
			rt.Close()
			os.Exit(1)
		}

		streamer := cli.NewChatHandler()
		streamer.Welcome(p.Label(), p.Model, rt.memory.Enabled(p.ID))

		for {
			input, err := streamer.AwaitClientAnswer()
			if err != nil {
				if err == io.EOF {
					streamer.Goodbye()
					break
				}
				streamer.Error("transport", err)
				break
			}

			if input == "" {
				continue
			}
			if input == "exit" || input == "quit" {
				streamer.Goodbye()
				break
			}

			chatTurn(ctx, rt, p, input, streamer)
		}
	},
}

// chatTurn streams one answer. Ctrl-C cancels the turn, not the chat.
func chatTurn(ctx context.Context, rt *runtime, p *collab.Participant, input string, streamer *cli.ChatHandler) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	call := collab.Call{Prompt: input, History: memory.Messages(rt.memory.Read(p.ID))}
	streamer.Thinking()
	stream, err := rt.controller.Adapter().Stream(ctx, p, call)
	if err != nil {
		streamer.Error(string(collab.KindOf(err)), err)
		return
	}
	for frag := range stream.All() {
		streamer.PublishAnswerChunk(frag)
	}

	out := stream.Outcome()
	defer rt.saveLedger(context.WithoutCancel(ctx))
	if !out.Success {
		streamer.FinishAnswer(streamers.UsageInfo{})
		streamer.Error(string(out.ErrorKind), out.Err)
		return
	}
	if err := rt.memory.Append(context.WithoutCancel(ctx), p.ID, input, out.Content); err != nil {
		rt.logger.Warn("failed to append memory", "participant", p.ID, "error", err)
	}
	streamer.FinishAnswer(streamers.UsageInfo{
		InputTokens:  out.Usage.InputTokens,
		OutputTokens: out.Usage.OutputTokens,
		Cost:         out.Usage.Cost,
		Balance:      out.Balance,
	})
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVarP(&configPath, "config", "c", ".", "Path to config file or directory")
	chatCmd.Flags().StringVarP(&chatDebugFile, "debug-file", "d", "", "Write every participant call to this JSONL file")
}
