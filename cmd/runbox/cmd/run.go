package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"

	"github.com/hkuds/runbox/internal/agent"
	"github.com/hkuds/runbox/internal/config"
	"github.com/hkuds/runbox/internal/sandbox"
	"github.com/hkuds/runbox/internal/tools"
)

var (
	outputDirFlag string
	modelFlag     string
)

var runCmd = &cobra.Command{
	Use:   "run \"task description\"",
	Short: "Run an agent task in a sandbox",
	Long: `Run a task with the agent loop. Commands and code the model proposes are
executed inside an isolated sandbox; files it writes to /workspace/output are
downloaded to the host when the run finishes.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&outputDirFlag, "output", "o", "runbox-output", "Host directory for downloaded artifacts")
	runCmd.Flags().StringVarP(&modelFlag, "model", "m", "", "Model override")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return err
	}
	if modelFlag != "" {
		cfg.Agent.Model = modelFlag
	}

	openAIKey, braveKey := cfg.HostToolKeys()
	if openAIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is not set")
	}

	sandboxCfg, err := cfg.ToSandboxConfig()
	if err != nil {
		return err
	}

	session, err := sandbox.NewSession(sandboxCfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer func() {
		// Teardown gets its own deadline so an interrupted run still
		// destroys the sandbox.
		closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := session.Close(closeCtx); err != nil {
			log.Printf("closing session: %v", err)
		}
	}()

	registry := tools.DefaultRegistry(session, tools.HostConfig{
		BraveAPIKey:      braveKey,
		MaxSearchResults: cfg.Tools.Search.MaxResults,
		BrowseMaxChars:   cfg.Tools.Browse.MaxChars,
	}, cfg.Tools.Enabled)

	clientCfg := openai.DefaultConfig(openAIKey)
	if cfg.Agent.APIBase != "" {
		clientCfg.BaseURL = cfg.Agent.APIBase
	}

	loop, err := agent.NewLoop(agent.Config{
		Client:        openai.NewClientWithConfig(clientCfg),
		Registry:      registry,
		Session:       session,
		Model:         cfg.Agent.Model,
		MaxIterations: cfg.Agent.MaxIterations,
		MaxTokens:     cfg.Agent.MaxTokens,
	})
	if err != nil {
		return err
	}

	result, err := loop.Run(ctx, args[0])
	if err != nil {
		return err
	}

	fmt.Println(result.Answer)
	log.Printf("run %s: %d iterations, %d tool calls", result.RunID, result.Iterations, result.ToolCalls)

	return downloadArtifacts(ctx, session, outputDirFlag)
}

// downloadArtifacts copies the sandbox's output files into dir, preserving
// paths relative to /workspace. A run that never touched the sandbox has
// nothing to download, so it must not provision one here.
func downloadArtifacts(ctx context.Context, session *sandbox.Session, dir string) error {
	if !session.Created() {
		return nil
	}
	artifacts, err := session.DownloadArtifacts(ctx, sandbox.DefaultArtifactExtensions)
	if err != nil {
		return fmt.Errorf("downloading artifacts: %w", err)
	}
	if len(artifacts) == 0 {
		return nil
	}

	for rel, data := range artifacts {
		dest := filepath.Join(dir, filepath.FromSlash(strings.TrimPrefix(rel, "output/")))
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(dest, data, 0o644); err != nil {
			return err
		}
		fmt.Printf("saved %s\n", dest)
	}
	return nil
}
