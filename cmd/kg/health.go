package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/alfredjeanlab/beadgraph/internal/client"
	"github.com/alfredjeanlab/beadgraph/internal/server"
)

var (
	healthURL  string
	healthGRPC string
)

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check the health of a running kg server",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		var (
			status string
			err    error
		)
		if healthGRPC != "" {
			status, err = grpcHealth(ctx, healthGRPC)
		} else {
			c := client.NewHTTPClient(healthURL, "")
			defer c.Close()
			status, err = c.Health(ctx)
		}
		if err != nil {
			return fmt.Errorf("checking health: %w", err)
		}

		if jsonOutput {
			data, err := json.MarshalIndent(map[string]string{"status": status}, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling JSON: %w", err)
			}
			fmt.Println(string(data))
		} else {
			fmt.Printf("Health: %s\n", status)
		}

		if status != "ok" && status != healthpb.HealthCheckResponse_SERVING.String() {
			return fmt.Errorf("unhealthy: %s", status)
		}
		return nil
	},
}

func init() {
	healthCmd.Flags().StringVar(&healthURL, "url", "http://localhost:8090", "kg HTTP server URL")
	healthCmd.Flags().StringVar(&healthGRPC, "grpc", "", "check the gRPC health service at this address instead")
}

// grpcHealth asks the kg.Viewer health service whether the graph is fresh.
func grpcHealth(ctx context.Context, addr string) (string, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return "", err
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: server.ServiceName})
	if err != nil {
		return "", err
	}
	return resp.GetStatus().String(), nil
}
