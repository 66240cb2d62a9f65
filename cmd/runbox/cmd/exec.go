package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hkuds/runbox/internal/config"
	"github.com/hkuds/runbox/internal/sandbox"
)

var (
	execTimeoutFlag int
	execPythonFlag  bool
	execNetworkFlag bool
)

var execCmd = &cobra.Command{
	Use:   "exec \"command\"",
	Short: "Run a single command in a fresh sandbox",
	Long: `Create a sandbox, run one command in it, print the output and tear the
sandbox down. Useful for trying out images and configs.`,
	Args: cobra.ExactArgs(1),
	RunE: runExec,
}

func init() {
	execCmd.Flags().IntVarP(&execTimeoutFlag, "timeout", "t", 0, "Timeout in seconds (default from config)")
	execCmd.Flags().BoolVar(&execPythonFlag, "python", false, "Treat the argument as Python code instead of a shell command")
	execCmd.Flags().BoolVar(&execNetworkFlag, "network", false, "Enable outbound network access")
}

func runExec(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return err
	}
	if execNetworkFlag {
		cfg.Sandbox.NetworkEnabled = true
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
		closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := session.Close(closeCtx); err != nil {
			log.Printf("closing session: %v", err)
		}
	}()

	req := sandbox.ExecRequest{Command: args[0], Kind: sandbox.ExecShell, TimeoutSeconds: execTimeoutFlag}
	if execPythonFlag {
		if err := session.WriteFile(ctx, sandbox.ScriptPath, []byte(args[0])); err != nil {
			return err
		}
		req.Command = "python3 " + sandbox.ScriptPath
		req.Kind = sandbox.ExecPython
	}

	res, err := session.Execute(ctx, req)
	if err != nil {
		return err
	}

	if res.Stdout != "" {
		fmt.Print(res.Stdout)
	}
	if res.Stderr != "" {
		fmt.Fprint(os.Stderr, res.Stderr)
	}
	if res.TimedOut() {
		return fmt.Errorf("command timed out")
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("command exited with code %d", res.ExitCode)
	}
	return nil
}
