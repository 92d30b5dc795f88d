package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/Layr-Labs/lamport-merkle-go/pkg/config"
	"github.com/Layr-Labs/lamport-merkle-go/pkg/crypto"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "lamport",
		Usage: "Lamport one-time signatures with Merkle commitments",
		Description: `Generates Lamport one-time key pairs, signs and verifies messages with them and
commits to public keys with a binary Merkle tree.

Every key pair signs at most one message. Consumed keys are recorded in the
configured persistence backend before any secret is revealed.`,
		Version: "1.0.0",
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			keygenCommand(),
			listCommand(),
			publicKeyCommand(),
			signCommand(),
			verifyCommand(),
			merkleRootCommand(),
			sendCommand(),
			serveCommand(),
		},
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "server-address",
			Aliases: []string{"server"},
			Usage:   "Peer the send command delivers messages to (default 127.0.0.1:9999)",
			EnvVars: []string{config.EnvServerAddress},
		},
		&cli.StringFlag{
			Name:    "listen-address",
			Aliases: []string{"listen"},
			Usage:   "Address the serve command listens on (default 127.0.0.1:9999)",
			EnvVars: []string{config.EnvListenAddress},
		},
		&cli.StringFlag{
			Name:    "hash",
			Usage:   "Hash function: " + joinHashers(),
			EnvVars: []string{config.EnvHashFunction},
		},
		&cli.IntFlag{
			Name:    "leaf-copies",
			Usage:   "Number of public key copies in the commitment tree (default 512)",
			EnvVars: []string{config.EnvLeafCopies},
		},
		&cli.StringFlag{
			Name:    "persistence",
			Aliases: []string{"store"},
			Usage:   "Key store backend: memory, badger, leveldb or redis (default memory)",
			EnvVars: []string{config.EnvPersistenceType},
		},
		&cli.StringFlag{
			Name:    "data-path",
			Usage:   "Database directory for the badger and leveldb backends",
			EnvVars: []string{config.EnvDataPath},
		},
		&cli.StringFlag{
			Name:    "redis-address",
			Usage:   "Redis host:port for the redis backend",
			EnvVars: []string{config.EnvRedisAddress},
		},
		&cli.StringFlag{
			Name:    "redis-password",
			Usage:   "Redis password",
			EnvVars: []string{config.EnvRedisPassword},
		},
		&cli.IntFlag{
			Name:    "redis-db",
			Usage:   "Redis database number",
			EnvVars: []string{config.EnvRedisDB},
		},
		&cli.StringFlag{
			Name:    "redis-key-prefix",
			Usage:   "Namespace for every Redis key (default lamport:)",
			EnvVars: []string{config.EnvRedisKeyPrefix},
		},
		&cli.IntFlag{
			Name:    "send-attempts",
			Usage:   "Attempts per message before send gives up (default 5)",
			EnvVars: []string{config.EnvSendAttempts},
		},
		&cli.Float64Flag{
			Name:    "rate-limit",
			Usage:   "Maximum messages per second sent to the peer, 0 for unlimited",
			EnvVars: []string{config.EnvRateLimit},
		},
		&cli.IntFlag{
			Name:    "rate-burst",
			Usage:   "Burst size for the rate limiter (default 1)",
			EnvVars: []string{config.EnvRateBurst},
		},
		&cli.StringFlag{
			Name:    "metrics-address",
			Usage:   "Serve Prometheus metrics on this address when set",
			EnvVars: []string{config.EnvMetricsAddress},
		},
		&cli.BoolFlag{
			Name:    "debug",
			Aliases: []string{"verbose"},
			Usage:   "Enable debug logging",
			EnvVars: []string{config.EnvDebug},
		},
	}
}

func joinHashers() string {
	names := crypto.SupportedHashers()
	out := names[0] + " (default)"
	for _, n := range names[1:] {
		out += ", " + n
	}
	return out
}
