package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/modoterra/gamehost/internal/buildinfo"
	"github.com/modoterra/gamehost/pkg/config"
	"github.com/modoterra/gamehost/pkg/core"
	"github.com/modoterra/gamehost/pkg/daemon/service"
	"github.com/modoterra/gamehost/pkg/logstore"
	"github.com/modoterra/gamehost/pkg/transport/uds"
	tuimodel "github.com/modoterra/gamehost/pkg/tui/model"
)

var (
	socketPath string
	configPath string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "gamehost",
	Short: "Launch and watch emulated game processes",
	Long:  "gamehost talks to gamehostd, which launches emulator processes, records and classifies their output and relays commands to them.",
	RunE:  runTUI,
}

func init() {
	defaultSocket := config.DefaultSocket()
	if s := os.Getenv(config.EnvSocket); s != "" {
		defaultSocket = s
	}
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", defaultSocket, "daemon socket path")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "path to gamehost.yaml or gamehost.toml")

	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(psCmd)
	rootCmd.AddCommand(spawnCmd)
	rootCmd.AddCommand(killCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(classesCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(psfCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serviceCmd)
}

// --- Root: TUI ---

func runTUI(_ *cobra.Command, _ []string) error {
	ensureDaemon()
	app := tuimodel.New(socketPath)
	p := tea.NewProgram(app, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func ensureDaemon() {
	if _, err := os.Stat(socketPath); err == nil {
		return
	}
	cmd := exec.Command("gamehostd", "--config", configPath)
	cmd.Env = append(os.Environ(), config.EnvSocket+"="+socketPath)
	cmd.Start()
	for i := 0; i < 30; i++ {
		if _, err := os.Stat(socketPath); err == nil {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	fmt.Fprintln(os.Stderr, "warning: could not start daemon, continuing anyway")
}

func dialDaemon() (*uds.Client, error) {
	client, err := uds.Dial(socketPath)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to daemon at %s: %w", socketPath, err)
	}
	return client, nil
}

// call runs one request against the daemon.
func call(method string, data, out any) error {
	client, err := dialDaemon()
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return client.Call(ctx, method, data, out)
}

func parsePID(s string) (int, error) {
	pid, err := strconv.Atoi(s)
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid %q", s)
	}
	return pid, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// --- Ping ---

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check if daemon is running",
	RunE: func(_ *cobra.Command, _ []string) error {
		var pong uds.PingResponse
		if err := call(uds.MethodPing, nil, &pong); err != nil {
			return err
		}
		if pong.Pong {
			fmt.Printf("pong ✓ (gamehostd %s)\n", pong.Version)
		}
		return nil
	},
}

// --- Version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("gamehost %s (%s) built %s\n", buildinfo.Version, buildinfo.Commit, buildinfo.Date)
	},
}

// --- Daemon ---

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start daemon in foreground (for debugging)",
	Long:  "Normally the TUI auto-spawns the daemon or systemd starts it on demand. Use this to run it manually.",
	RunE: func(_ *cobra.Command, _ []string) error {
		cmd := exec.Command("gamehostd", "--config", configPath)
		cmd.Env = append(os.Environ(), config.EnvSocket+"="+socketPath)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		return cmd.Run()
	},
}

// --- Ps ---

var psJSON bool

var psCmd = &cobra.Command{
	Use:   "ps",
	Short: "List running and retained processes",
	RunE: func(_ *cobra.Command, _ []string) error {
		var procs []core.ProcessInfo
		if err := call(uds.MethodListProcesses, nil, &procs); err != nil {
			return err
		}
		if psJSON {
			return printJSON(procs)
		}
		if len(procs) == 0 {
			fmt.Println("no processes")
			return nil
		}

		fmt.Printf("%-8s %-8s %-6s %-7s %-9s %s\n", "PID", "STATUS", "EXIT", "ROWS", "MEM", "EXE")
		for _, p := range procs {
			exit := "-"
			if p.ExitCode != nil {
				exit = strconv.Itoa(*p.ExitCode)
			}
			fmt.Printf("%-8d %-8s %-6s %-7d %-9s %s\n", p.PID, p.Status, exit, p.Rows, formatBytes(p.MemBytes), p.Exe)
		}
		return nil
	},
}

func init() {
	psCmd.Flags().BoolVar(&psJSON, "json", false, "output as JSON")
}

// --- Spawn ---

var (
	spawnGame     string
	spawnDir      string
	spawnEnv      []string
	spawnCopyFrom int
	spawnAttach   bool
)

var spawnCmd = &cobra.Command{
	Use:   "spawn [--game NAME] [exe] [-- args...]",
	Short: "Launch a game process",
	Long:  "Launch an executable, or a game profile from the config with --game. Arguments after the executable are passed to it.",
	RunE: func(_ *cobra.Command, args []string) error {
		req, err := spawnRequest(args)
		if err != nil {
			return err
		}
		if spawnAttach {
			return spawnAttached(req)
		}

		var res uds.SpawnResponse
		if err := call(uds.MethodSpawn, req, &res); err != nil {
			return err
		}
		fmt.Printf("%d\n", res.PID)
		return nil
	},
}

func init() {
	spawnCmd.Flags().StringVar(&spawnGame, "game", "", "game profile from the config")
	spawnCmd.Flags().StringVar(&spawnDir, "dir", "", "working directory")
	spawnCmd.Flags().StringArrayVar(&spawnEnv, "env", nil, "extra environment (KEY=VALUE, repeatable)")
	spawnCmd.Flags().IntVar(&spawnCopyFrom, "copy-from", 0, "continue the log of this pid")
	spawnCmd.Flags().BoolVar(&spawnAttach, "attach", false, "stream the log until the process exits")
}

func spawnRequest(args []string) (uds.SpawnRequest, error) {
	req := uds.SpawnRequest{Game: spawnGame, Dir: spawnDir, CopyFrom: spawnCopyFrom}
	if len(args) > 0 {
		req.Exe = args[0]
		req.Args = args[1:]
	}
	if req.Game == "" && req.Exe == "" {
		return req, errors.New("an executable or --game is required")
	}
	for _, kv := range spawnEnv {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return req, fmt.Errorf("--env %q is not KEY=VALUE", kv)
		}
		if req.Env == nil {
			req.Env = map[string]string{}
		}
		req.Env[k] = v
	}
	return req, nil
}

// spawnAttached launches the process and prints its rows until it exits.
// Interrupting kills the process.
func spawnAttached(req uds.SpawnRequest) error {
	client, err := dialDaemon()
	if err != nil {
		return err
	}
	defer client.Close()

	// The handler runs on the read loop, so events queue without bound
	// until the spawn response has arrived.
	var (
		mu      sync.Mutex
		pending []core.Event
	)
	wake := make(chan struct{}, 1)
	client.OnEvent(func(m uds.Message) {
		if m.Method != uds.EventProcess {
			return
		}
		var ev core.Event
		if err := json.Unmarshal(m.Data, &ev); err != nil {
			return
		}
		mu.Lock()
		pending = append(pending, ev)
		mu.Unlock()
		select {
		case wake <- struct{}{}:
		default:
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	var res uds.SpawnResponse
	err = client.Call(ctx, uds.MethodSpawn, req, &res)
	cancel()
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "attached to %d\n", res.PID)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-wake:
			mu.Lock()
			batch := pending
			pending = nil
			mu.Unlock()
			for _, ev := range batch {
				if ev.PID != res.PID {
					continue
				}
				switch ev.Kind {
				case core.EventLog:
					fmt.Println(logstore.FormatLine(*ev.Row))
				case core.EventIOError:
					fmt.Fprintf(os.Stderr, "i/o error: %s\n", ev.Err)
				case core.EventGameExit:
					fmt.Fprintf(os.Stderr, "exited with status %d\n", *ev.Status)
					return nil
				}
			}
		case <-sigCh:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			client.Call(ctx, uds.MethodKill, uds.PIDRequest{PID: res.PID}, nil)
			cancel()
		case <-client.Done():
			return uds.ErrConnClosed
		}
	}
}

// --- Kill / Send / Rm ---

var killCmd = &cobra.Command{
	Use:   "kill <pid>",
	Short: "Kill a running process",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		pid, err := parsePID(args[0])
		if err != nil {
			return err
		}
		if err := call(uds.MethodKill, uds.PIDRequest{PID: pid}, nil); err != nil {
			return err
		}
		fmt.Printf("kill → %d ✓\n", pid)
		return nil
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <pid> <text...>",
	Short: "Write a line to a process's stdin",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(_ *cobra.Command, args []string) error {
		pid, err := parsePID(args[0])
		if err != nil {
			return err
		}
		return call(uds.MethodSend, uds.SendRequest{PID: pid, Text: strings.Join(args[1:], " ")}, nil)
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm <pid>",
	Short: "Forget an exited process and its log",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		pid, err := parsePID(args[0])
		if err != nil {
			return err
		}
		return call(uds.MethodDelete, uds.PIDRequest{PID: pid}, nil)
	},
}

var classesCmd = &cobra.Command{
	Use:   "classes <pid>",
	Short: "List the log classes seen from a process",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		pid, err := parsePID(args[0])
		if err != nil {
			return err
		}
		var classes []string
		if err := call(uds.MethodGetClasses, uds.PIDRequest{PID: pid}, &classes); err != nil {
			return err
		}
		for _, c := range classes {
			fmt.Println(c)
		}
		return nil
	},
}

// --- Service ---

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Manage the gamehostd systemd user units",
}

var serviceInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Install and enable the gamehostd socket and service units",
	RunE: func(_ *cobra.Command, _ []string) error {
		if err := service.Install(configPath); err != nil {
			return err
		}
		fmt.Println("gamehostd installed ✓")
		return nil
	},
}

var serviceUninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Stop and remove the gamehostd units",
	RunE: func(_ *cobra.Command, _ []string) error {
		return service.Uninstall()
	},
}

var serviceStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show socket and unit state",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Println(service.Status(socketPath))
	},
}

func init() {
	serviceCmd.AddCommand(serviceInstallCmd)
	serviceCmd.AddCommand(serviceUninstallCmd)
	serviceCmd.AddCommand(serviceStatusCmd)
}

func formatBytes(b uint64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)
	switch {
	case b == 0:
		return "-"
	case b >= GB:
		return fmt.Sprintf("%.1fG", float64(b)/float64(GB))
	case b >= MB:
		return fmt.Sprintf("%.1fM", float64(b)/float64(MB))
	case b >= KB:
		return fmt.Sprintf("%.1fK", float64(b)/float64(KB))
	default:
		return fmt.Sprintf("%dB", b)
	}
}
