package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/bindery/internal/bridge"
)

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Manage the upscale bridge service container",
	Long: `Manage the upscale bridge service container.

In "service" transport mode the upscale stage talks to a long-lived
bridge container over HTTP instead of spawning one subprocess per call.
The container mounts the bindery home at /work and a model cache at
/models so weights survive recreation.`,
}

var bridgeStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the bridge container (creates it if missing)",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := getBridgeManager()
		if err != nil {
			return err
		}
		defer m.Close()

		fmt.Println("Starting bridge service (first boot downloads model weights)...")
		if err := m.Start(cmd.Context()); err != nil {
			return err
		}
		fmt.Printf("Bridge service ready at %s\n", m.URL())
		return nil
	},
}

var bridgeStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the bridge container",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := getBridgeManager()
		if err != nil {
			return err
		}
		defer m.Close()

		if err := m.Stop(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("Bridge service stopped")
		return nil
	},
}

var bridgeStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show bridge container status",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := getBridgeManager()
		if err != nil {
			return err
		}
		defer m.Close()

		status, err := m.Status(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Bridge service: %s\n", status)
		if status == bridge.StatusRunning {
			if err := m.WaitReady(cmd.Context(), 5*time.Second); err != nil {
				fmt.Println("  Warning: container is running but not answering health checks")
			} else {
				fmt.Printf("  URL: %s\n", m.URL())
			}
		}
		return nil
	},
}

var bridgeLogsTail string

var bridgeLogsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show bridge container logs",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := getBridgeManager()
		if err != nil {
			return err
		}
		defer m.Close()

		logs, err := m.Logs(cmd.Context(), bridgeLogsTail)
		if err != nil {
			return err
		}
		fmt.Print(logs)
		return nil
	},
}

var bridgeRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Stop and remove the bridge container",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := getBridgeManager()
		if err != nil {
			return err
		}
		defer m.Close()

		if err := m.Remove(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("Bridge container removed")
		return nil
	},
}

func init() {
	bridgeLogsCmd.Flags().StringVar(&bridgeLogsTail, "tail", "100", "number of log lines to show")

	bridgeCmd.AddCommand(bridgeStartCmd)
	bridgeCmd.AddCommand(bridgeStopCmd)
	bridgeCmd.AddCommand(bridgeStatusCmd)
	bridgeCmd.AddCommand(bridgeLogsCmd)
	bridgeCmd.AddCommand(bridgeRemoveCmd)
	rootCmd.AddCommand(bridgeCmd)
}

// getBridgeManager builds the container manager from config.
func getBridgeManager() (*bridge.ServiceManager, error) {
	h, err := getHome()
	if err != nil {
		return nil, err
	}
	cm, err := getConfig()
	if err != nil {
		return nil, err
	}
	cfg := cm.Get()

	return bridge.NewServiceManager(bridge.ServiceConfig{
		ContainerName: cfg.Bridge.ContainerName,
		Image:         cfg.Bridge.Image,
		WorkPath:      h.Path(),
		ModelPath:     cfg.Bridge.ModelCacheDir,
		HostPort:      cfg.Bridge.Port,
	})
}
