// rmkmount mounts a reMarkable tablet's document store as a read-only
// local filesystem over SSH.
//
// The tablet keeps documents as flat descriptor files; rmkmount
// reconstructs the folder hierarchy from descriptor parent links and
// serves rendered PDF/EPUB targets through FUSE.
//
// Usage:
//
//	rmkmount [mount] -mount <dir> [flags]
//	rmkmount umount <dir>
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/ykpmusicstudio/remarkablemount/internal/config"
	"github.com/ykpmusicstudio/remarkablemount/internal/engine"
	"github.com/ykpmusicstudio/remarkablemount/internal/fusefs"
	"github.com/ykpmusicstudio/remarkablemount/internal/logging"
	"github.com/ykpmusicstudio/remarkablemount/internal/metrics"
	"github.com/ykpmusicstudio/remarkablemount/internal/remote"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "umount":
			cmdUmount(os.Args[2:])
			return
		case "mount":
			// Strip the subcommand and fall through to normal parsing.
			os.Args = append(os.Args[:1], os.Args[2:]...)
		}
	}
	cmdMount()
}

// cmdUmount detaches a mount left behind by a killed rmkmount process.
func cmdUmount(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: rmkmount umount <dir>")
		os.Exit(1)
	}
	dir := args[0]

	cmd := exec.Command("fusermount", "-u", dir)
	if runtime.GOOS == "darwin" {
		cmd = exec.Command("umount", dir)
	}
	if out, err := cmd.CombinedOutput(); err != nil {
		fmt.Fprintf(os.Stderr, "umount %s: %v\n%s", dir, err, out)
		os.Exit(1)
	}
	fmt.Printf("Unmounted %s\n", dir)
}

func cmdMount() {
	configPath := flag.String("config", "", "Path to YAML config file")
	mountPoint := flag.String("mount", "", "Mount point for the tablet filesystem (required)")
	host := flag.String("host", "", "Tablet address (default "+config.DefaultHost+")")
	port := flag.Int("port", 0, "Tablet SSH port (default 22)")
	user := flag.String("user", "", "SSH user (default root)")
	password := flag.String("password", "", "SSH password (prompted if not set)")
	metricsAddr := flag.String("metrics", "", "Prometheus listen address (empty to disable)")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Flags win over both file and environment.
	if *mountPoint != "" {
		cfg.MountPoint = *mountPoint
	}
	if *host != "" {
		cfg.Host = *host
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *user != "" {
		cfg.User = *user
	}
	if *password != "" {
		cfg.Password = *password
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	if cfg.MountPoint == "" {
		fmt.Fprintln(os.Stderr, "Error: -mount is required")
		flag.Usage()
		os.Exit(1)
	}

	if err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "logging init error: %v\n", err)
		os.Exit(1)
	}
	defer logging.Sync()

	if cfg.Password == "" {
		pw, err := promptPassword(cfg.User, cfg.Host)
		if err != nil {
			logging.Fatal("read password", zap.Error(err))
		}
		cfg.Password = pw
	}

	logging.Info("connecting to tablet",
		zap.String("addr", cfg.Addr()), zap.String("user", cfg.User))

	client, err := remote.Dial(cfg.Host, cfg.Port, cfg.User, cfg.Password)
	if err != nil {
		logging.Fatal("connect failed", zap.Error(err))
	}
	defer client.Close()

	fs := fusefs.New(engine.New(client, cfg.DocumentRoot))
	server, err := fs.Mount(cfg.MountPoint)
	if err != nil {
		logging.Fatal("mount failed", zap.Error(err))
	}

	if cfg.MetricsAddr != "" {
		go func() {
			logging.Info("metrics listening", zap.String("addr", cfg.MetricsAddr))
			srv := &http.Server{Addr: cfg.MetricsAddr, Handler: metrics.Handler()}
			if err := srv.ListenAndServe(); err != http.ErrServerClosed {
				logging.Error("metrics server", zap.Error(err))
			}
		}()
	}

	go server.Serve()
	if err := server.WaitMount(); err != nil {
		logging.Fatal("mount handshake failed", zap.Error(err))
	}

	logging.Info("tablet mounted",
		zap.String("mount", cfg.MountPoint), zap.String("root", cfg.DocumentRoot))
	logging.Info("press Ctrl+C to unmount and exit")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logging.Info("unmounting")
	if err := server.Unmount(); err != nil {
		logging.Error("unmount failed", zap.Error(err))
	}
	logging.Info("done")
}

func promptPassword(user, host string) (string, error) {
	fmt.Printf("Password for %s@%s: ", user, host)
	raw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
