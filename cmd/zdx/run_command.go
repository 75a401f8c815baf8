package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"zdx/agent"
	"zdx/common"
	"zdx/eventbus"
	"zdx/interrupt"
	"zdx/providers"
	"zdx/secretmanager"
	"zdx/thread"
	"zdx/toolrun"
	"zdx/transcript"
)

func NewRunCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Run a single turn against a model (e.g. zdx run \"fix the failing test\")",
		ArgsUsage: "<prompt>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "model", Value: "claude-sonnet-4-5", Usage: "Model id, optionally \"<kind>:<model>\""},
			&cli.StringFlag{Name: "thinking", Value: string(common.ThinkingOff), Usage: "Thinking level: off, minimal, low, medium, high, xhigh"},
			&cli.IntFlag{Name: "max-tokens", Value: 4096, Usage: "Maximum output tokens"},
			&cli.IntFlag{Name: "tool-timeout", Value: 120, Usage: "Per-tool timeout in seconds, 0 disables"},
			&cli.StringFlag{Name: "thread", Usage: "Resume an existing thread id instead of starting a new one"},
			&cli.StringFlag{Name: "tool-set", Usage: "Named curated tool set to enable (e.g. readonly, coding); overridden by --tools"},
			&cli.StringFlag{Name: "tools", Usage: "Comma-separated explicit list of tool names to enable, overriding --tool-set and any provider allowlist"},
			&cli.BoolFlag{Name: "nats", Usage: "Mirror agent events onto NATS for this thread"},
			&cli.BoolFlag{Name: "reasoning-content", Usage: "Surface a chat-completions provider's reasoning_content delta, where supported"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			prompt := cmd.Args().First()
			if prompt == "" {
				return fmt.Errorf("a prompt argument is required")
			}
			return runTurnCommand(ctx, cmd, prompt)
		},
	}
}

func defaultSecretManager() secretmanager.SecretManager {
	return secretmanager.NewCompositeSecretManager([]secretmanager.SecretManager{
		secretmanager.EnvSecretManager{},
		secretmanager.KeyringSecretManager{},
	})
}

func runTurnCommand(ctx context.Context, cmd *cli.Command, prompt string) error {
	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolve working directory: %w", err)
	}

	var threadLog *thread.Log
	if id := cmd.String("thread"); id != "" {
		threadLog, err = thread.Open(id)
	} else {
		threadLog, err = thread.New(workDir)
	}
	if err != nil {
		return fmt.Errorf("open thread: %w", err)
	}

	priorEvents, err := threadLog.ReadEvents()
	if err != nil {
		return fmt.Errorf("read thread history: %w", err)
	}
	messages := thread.ToMessages(priorEvents)

	if err := threadLog.Append(thread.UserMessageEvent(prompt)); err != nil {
		return fmt.Errorf("append user message: %w", err)
	}
	messages = append(messages, providers.Message{
		Role:    providers.RoleUser,
		Content: []providers.ContentBlock{providers.TextBlock(prompt)},
	})

	kind, bareModel := providers.InferKind(cmd.String("model"))
	registry := providers.NewRegistry(defaultSecretManager())
	client, err := registry.ClientFor(kind, false)
	if err != nil {
		return fmt.Errorf("resolve provider: %w", err)
	}

	cfg, err := common.Load("")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	toolRegistry := toolrun.NewRegistry()
	registerBuiltinTools(toolRegistry)
	enabledDefs := resolveEnabledTools(toolRegistry, cmd.String("tools"), cmd.String("tool-set"), cfg.Providers[string(kind)].Normalize())
	toolCtx := &toolrun.Context{WorkDir: workDir, EnabledTools: toolNamesSet(enabledDefs)}

	sig := interrupt.New()
	eventCh := make(chan agent.AgentEvent, eventbus.DefaultCapacity)
	sender := agent.NewEventSender(eventCh)

	bus := eventbus.NewBroadcaster(eventbus.DefaultCapacity)
	if cmd.Bool("nats") {
		if pub, err := eventbus.NewNatsPublisher(threadLog.ID); err != nil {
			log.Warn().Err(err).Msg("continuing without NATS event mirroring")
		} else {
			bus.AttachNatsPublisher(pub)
		}
	}
	render := transcript.NewModel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range eventCh {
			bus.Publish(ev)
			render.Apply(ev)
			printDelta(ev)
		}
	}()

	req := providers.Request{
		Messages:                messages,
		Tools:                   enabledDefs,
		Model:                   bareModel,
		MaxTokens:               int(cmd.Int("max-tokens")),
		ThinkingLevel:           common.ThinkingLevel(cmd.String("thinking")),
		IncludeReasoningContent: cmd.Bool("reasoning-content"),
	}
	opts := agent.Options{ToolTimeoutSeconds: int(cmd.Int("tool-timeout"))}

	final, err := agent.RunTurn(ctx, client, req, toolRegistry, toolCtx, sender, sig, opts)
	close(eventCh)
	<-done
	bus.Close()
	if err != nil {
		return fmt.Errorf("run turn: %w", err)
	}

	for _, msg := range final[len(messages):] {
		if err := persistMessage(threadLog, msg); err != nil {
			return fmt.Errorf("persist turn: %w", err)
		}
	}

	if cfg.ThreadCache.Enabled {
		thread.NewCache(cfg.ThreadCache.Addr, 0).Invalidate(ctx)
	}
	if cfg.ThreadArchive.Enabled {
		if err := archiveThread(ctx, cfg.ThreadArchive, threadLog); err != nil {
			log.Warn().Err(err).Msg("thread archive upload failed")
		}
	}

	fmt.Printf("\n\nthread: %s\n", threadLog.ID)
	return nil
}

// archiveThread uploads the just-completed thread's JSONL file to S3
// per the thread_archive config section.
func archiveThread(ctx context.Context, cfg common.ThreadArchiveConfig, threadLog *thread.Log) error {
	client, err := thread.NewArchiveClient(ctx)
	if err != nil {
		return err
	}
	return thread.Archive(ctx, client, cfg.Bucket, cfg.Prefix, threadLog)
}

// resolveEnabledTools implements spec.md 6.2's tool-set resolution
// order for a single run: an explicit --tools list wins outright, then
// a named --tool-set, then the provider's own allowlist
// (providers.<kind>.tools), falling back to every registered tool when
// none of those narrow the set.
func resolveEnabledTools(reg *toolrun.Registry, toolsFlag, toolSetFlag string, providerCfg common.ProviderConfig) []common.ToolDefinition {
	if toolsFlag != "" {
		return reg.ToolsFromNames(strings.Split(toolsFlag, ","))
	}
	if toolSetFlag != "" {
		return reg.ToolsForSet(common.ToolSet(toolSetFlag))
	}
	return reg.ToolsForProvider(providerCfg)
}

func toolNamesSet(defs []common.ToolDefinition) map[string]struct{} {
	out := make(map[string]struct{}, len(defs))
	for _, d := range defs {
		out[d.Name] = struct{}{}
	}
	return out
}

func printDelta(ev agent.AgentEvent) {
	switch ev.Type {
	case agent.EventAssistantDelta:
		fmt.Print(ev.Text)
	case agent.EventToolStarted:
		fmt.Printf("\n[tool] %s running...\n", ev.ToolName)
	case agent.EventError:
		fmt.Fprintf(os.Stderr, "\n[error] %s: %s\n", ev.ErrorKind, ev.ErrorMessage)
	}
}

// persistMessage appends one finished provider message back onto the
// thread log as the individual events the reducer expects, so a later
// ToMessages call reconstructs it unchanged.
func persistMessage(threadLog *thread.Log, msg providers.Message) error {
	for _, block := range msg.Content {
		switch block.Type {
		case providers.BlockText:
			if msg.Role == providers.RoleAssistant {
				if err := threadLog.Append(thread.AssistantMessageEvent(block.Text)); err != nil {
					return err
				}
			}
		case providers.BlockReasoning:
			sig := ""
			if block.Replay != nil {
				sig = block.Replay.Signature
			}
			if err := threadLog.Append(thread.ThinkingEvent(block.ReasoningText, sig)); err != nil {
				return err
			}
		case providers.BlockToolUse:
			if err := threadLog.Append(thread.ToolUseEvent(block.ToolUseID, block.ToolName, block.ToolInput)); err != nil {
				return err
			}
		case providers.BlockToolResult:
			if err := threadLog.Append(thread.ToolResultEvent(block.ToolResultForID, []byte(block.ToolResultText), !block.ToolResultIsErr)); err != nil {
				return err
			}
		}
	}
	return nil
}
