package cmd

import (
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/peercode/interview-service/internal/anticheat"
	"github.com/peercode/interview-service/internal/client"
	"github.com/peercode/interview-service/internal/config"
)

var (
	agentSession     string
	agentUser        string
	agentDevicesFile string
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run a headless proctoring agent attached to a session",
	Long: `Connects to a session over the websocket channel and runs the
virtual-audio-device detector, reporting violations to the coordinator.
Device labels are read from --devices-file (one label per line), written by
whatever enumerates the host's audio inputs.`,
	RunE: runAgent,
}

func init() {
	agentCmd.Flags().StringVar(&agentSession, "session", "", "session id to attach to (required)")
	agentCmd.Flags().StringVar(&agentUser, "user", "proctor-agent", "user id the agent joins as")
	agentCmd.Flags().StringVar(&agentDevicesFile, "devices-file", "", "file with one audio input label per line")
	_ = agentCmd.MarkFlagRequired("session")
	rootCmd.AddCommand(agentCmd)
}

func runAgent(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load(".env")
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger, _ := zap.NewProduction()
	if cfg.AppEnv == "development" {
		logger, _ = zap.NewDevelopment()
	}

	wsURL, err := agentURL(cfg, agentSession, agentUser)
	if err != nil {
		return err
	}

	ch := client.New(wsURL, cfg.ReconnectMaxBackoff, logger)
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := ch.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer ch.Disconnect()

	var lister anticheat.DeviceLister
	if agentDevicesFile != "" {
		lister = deviceFile(agentDevicesFile)
	}
	mon := anticheat.NewMonitor(ch, lister, cfg.DeviceScanInterval, logger)
	mon.Start(agentSession)
	defer mon.Stop()

	logger.Info("agent attached",
		zap.String("session_id", agentSession), zap.String("user_id", agentUser))
	<-ctx.Done()
	return nil
}

// agentURL builds the websocket URL with credentials: a short-lived HS256
// token when a JWT secret is configured, the dev-mode user_id query otherwise.
func agentURL(cfg *config.Config, sessionID, userID string) (string, error) {
	base := cfg.WSBaseURL
	if base == "" {
		base = "ws://localhost:" + cfg.HTTPPort
	}
	q := url.Values{}
	if cfg.JWTSecret != "" {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub":  userID,
			"role": "observer",
			"exp":  time.Now().Add(24 * time.Hour).Unix(),
		})
		signed, err := token.SignedString([]byte(cfg.JWTSecret))
		if err != nil {
			return "", fmt.Errorf("sign token: %w", err)
		}
		q.Set("token", signed)
	} else {
		q.Set("user_id", userID)
		q.Set("role", "observer")
	}
	return fmt.Sprintf("%s/ws/session/%s?%s", strings.TrimSuffix(base, "/"), sessionID, q.Encode()), nil
}

// deviceFile lists audio inputs from a plain text file, one label per line.
// Re-read on every scan so an updated enumeration is picked up live.
type deviceFile string

func (f deviceFile) AudioInputs() ([]anticheat.AudioDevice, error) {
	body, err := os.ReadFile(string(f))
	if err != nil {
		return nil, err
	}
	var devices []anticheat.AudioDevice
	for i, line := range strings.Split(string(body), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			devices = append(devices, anticheat.AudioDevice{
				ID:    fmt.Sprintf("dev-%d", i),
				Label: line,
			})
		}
	}
	return devices, nil
}
