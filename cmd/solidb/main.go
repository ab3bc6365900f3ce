package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/solidb/solidb/pkg/database"
	"github.com/solidb/solidb/pkg/log"
	"github.com/solidb/solidb/pkg/metrics"
	"github.com/solidb/solidb/pkg/sdbql"
	"github.com/solidb/solidb/pkg/security"
	"github.com/solidb/solidb/pkg/synctransport"
)

func serverShutdownContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "solidb",
	Short: "solidb - a distributed multi-model document database",
	Long: `solidb stores JSON documents with secondary indexing, full-text and
vector search, a query language (SDBQL), columnar analytics, and
master-master replication across a peer cluster, delivered as a single
binary with zero external dependencies.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("solidb version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime))
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start a solidb node",
	Long:  `Start a solidb node: opens local storage, joins the cluster, and serves the shard-internal HTTP RPC surface.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		nodeID, _ := cmd.Flags().GetString("node-id")
		dataDir, _ := cmd.Flags().GetString("data-dir")
		bindAddress, _ := cmd.Flags().GetString("bind")
		apiAddress, _ := cmd.Flags().GetString("api")
		clusterID, _ := cmd.Flags().GetString("cluster-id")
		rebalanceInterval, _ := cmd.Flags().GetDuration("rebalance-interval")
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")
		pprofEnabled, _ := cmd.Flags().GetBool("enable-pprof")

		log.Init(log.Config{Level: log.InfoLevel, JSONOutput: jsonLogs})
		logger := log.WithNodeID(nodeID)

		fmt.Println("Starting solidb node...")
		fmt.Printf("  Node ID: %s\n", nodeID)
		fmt.Printf("  Data Directory: %s\n", dataDir)
		fmt.Printf("  Sync Bind Address: %s\n", bindAddress)
		fmt.Printf("  API Address: %s\n", apiAddress)
		fmt.Println()

		var syncKey []byte
		if clusterID != "" {
			syncKey = security.DeriveKeyFromClusterID(clusterID)
		}
		syncClient := synctransport.NewClient(syncKey)
		defer syncClient.Close()

		db, err := database.New(database.Config{
			NodeID:            nodeID,
			DataDir:           dataDir,
			BindAddress:       bindAddress,
			APIAddress:        apiAddress,
			RebalanceInterval: rebalanceInterval,
			ClusterID:         clusterID,
			Transport:         syncClient,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to open database: %v", err)
		}
		db.Start()

		syncServer, err := synctransport.Listen(bindAddress, syncKey, db.Log(), db.ReceiveHeartbeat, logger)
		if err != nil {
			return fmt.Errorf("failed to start sync transport: %v", err)
		}
		go syncServer.Serve()
		defer syncServer.Close()
		fmt.Printf("✓ Sync transport listening on %s\n", syncServer.Addr())

		mux := http.NewServeMux()
		mux.Handle("/_api/", db.Handler())
		mux.Handle("/_query/", sdbql.NewHandler(db))
		mux.Handle("/metrics", metrics.Handler())
		mux.HandleFunc("/health", metrics.HealthHandler())
		mux.HandleFunc("/ready", metrics.ReadyHandler())
		mux.HandleFunc("/live", metrics.LivenessHandler())

		server := &http.Server{Addr: apiAddress, Handler: mux}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("API server error")
			}
		}()
		fmt.Printf("✓ API server listening on http://%s\n", apiAddress)

		if pprofEnabled {
			pprofAddr := "127.0.0.1:6060"
			go func() {
				if err := http.ListenAndServe(pprofAddr, nil); err != nil {
					fmt.Printf("Profiling server error: %v\n", err)
				}
			}()
			fmt.Printf("✓ Profiling endpoints enabled at http://%s/debug/pprof/\n", pprofAddr)
		}

		fmt.Println()
		fmt.Println("solidb is running. Press Ctrl+C to stop.")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		fmt.Println("\nShutting down...")
		shutdownCtx, cancel := serverShutdownContext()
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		if err := db.Stop(); err != nil {
			return fmt.Errorf("failed to stop database: %v", err)
		}
		fmt.Println("✓ Shutdown complete")
		return nil
	},
}

func init() {
	serveCmd.Flags().String("node-id", "node-1", "Unique node ID")
	serveCmd.Flags().String("data-dir", "./solidb-data", "Data directory")
	serveCmd.Flags().String("bind", "127.0.0.1:7070", "Sync transport bind address")
	serveCmd.Flags().String("api", "127.0.0.1:8080", "HTTP API / shard-internal RPC address")
	serveCmd.Flags().String("cluster-id", "", "Shared cluster ID used to derive the sync transport's HMAC key (empty runs unauthenticated)")
	serveCmd.Flags().Duration("rebalance-interval", 15*time.Second, "Shard rebalance tick interval")
	serveCmd.Flags().Bool("json-logs", false, "Emit JSON-formatted logs")
	serveCmd.Flags().Bool("enable-pprof", false, "Enable pprof profiling endpoints")
}
