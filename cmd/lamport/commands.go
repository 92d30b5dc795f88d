package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/Layr-Labs/lamport-merkle-go/internal/keyGenerator"
	"github.com/Layr-Labs/lamport-merkle-go/pkg/lamport"
	"github.com/Layr-Labs/lamport-merkle-go/pkg/merkle"
	"github.com/Layr-Labs/lamport-merkle-go/pkg/persistence"
	"github.com/Layr-Labs/lamport-merkle-go/pkg/signer"
	"github.com/Layr-Labs/lamport-merkle-go/pkg/transport"
	"github.com/Layr-Labs/lamport-merkle-go/pkg/types"
)

const verifyingBanner = "===========================================verifying...==========================================="

var errVerificationFailed = errors.New(signer.FailedMessage)

func keygenCommand() *cli.Command {
	return &cli.Command{
		Name:  "keygen",
		Usage: "Generate one-time key pairs into the key store",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "count", Aliases: []string{"n"}, Value: 1, Usage: "Number of key pairs"},
			&cli.StringFlag{Name: "name", Value: "cli", Usage: "Name recorded in the generation log"},
		},
		Action: func(c *cli.Context) error {
			if c.Int("count") < 1 {
				return fmt.Errorf("count must be at least 1")
			}
			rt, err := newRuntimeWithStore(c)
			if err != nil {
				return err
			}
			defer rt.Close()

			for i := 0; i < c.Int("count"); i++ {
				record, err := rt.keyStore.Generate(c.Context, c.String("name"))
				if err != nil {
					return err
				}
				fp, err := fingerprint(record)
				if err != nil {
					return err
				}
				fmt.Fprintf(c.App.Writer, "%s %s\n", record.KeyID, fp)
			}
			return nil
		},
	}
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List stored key pairs and whether they have been used",
		Action: func(c *cli.Context) error {
			rt, err := newRuntimeWithStore(c)
			if err != nil {
				return err
			}
			defer rt.Close()

			records, err := rt.keyStore.ListKeyPairs()
			if err != nil {
				return err
			}
			for _, r := range records {
				state := "unused"
				if r.Used {
					state = "used"
				}
				fmt.Fprintf(c.App.Writer, "%s\t%s\t%s\n", r.KeyID, r.Hasher, state)
			}
			return nil
		},
	}
}

func publicKeyCommand() *cli.Command {
	return &cli.Command{
		Name:  "public-key",
		Usage: "Print the public key of a stored key pair as a JSON array of 512 cells",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "key-id", Required: true},
		},
		Action: func(c *cli.Context) error {
			rt, err := newRuntimeWithStore(c)
			if err != nil {
				return err
			}
			defer rt.Close()

			pk, err := rt.keyStore.GetPublicKey(c.String("key-id"))
			if err != nil {
				return err
			}
			return writeJSON(c.App.Writer, pk.Cells())
		},
	}
}

func signCommand() *cli.Command {
	return &cli.Command{
		Name:      "sign",
		Usage:     "Sign a message with a one-time key and print the signed message as JSON",
		ArgsUsage: "[message]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "message", Aliases: []string{"m"}, Usage: "Message to sign (or the first argument)"},
			&cli.StringFlag{Name: "key-id", Usage: "Key to consume (default: oldest unused, generating one if needed)"},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Write the signed message to this file instead of stdout"},
		},
		Action: func(c *cli.Context) error {
			message := c.String("message")
			if !c.IsSet("message") {
				message = c.Args().First()
			}

			rt, err := newRuntimeWithStore(c)
			if err != nil {
				return err
			}
			defer rt.Close()

			var signed *types.SignedMessage
			if keyID := c.String("key-id"); keyID != "" {
				signed, err = rt.keyStore.Sign(keyID, message)
			} else {
				signed, err = rt.keyStore.SignWithNextKey(c.Context, message)
			}
			if err != nil {
				return err
			}

			if out := c.String("out"); out != "" {
				return writeJSONFile(out, signed)
			}
			return writeJSON(c.App.Writer, signed)
		},
	}
}

func verifyCommand() *cli.Command {
	return &cli.Command{
		Name:  "verify",
		Usage: "Verify a signed message produced by sign",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "in", Aliases: []string{"i"}, Value: "-", Usage: "Signed message JSON file, - for stdin"},
			&cli.StringFlag{Name: "public-key", Usage: "Public key JSON file (default: the key store, then the key embedded in the message)"},
		},
		Action: func(c *cli.Context) error {
			var msg types.SignedMessage
			if err := readJSON(c, c.String("in"), &msg); err != nil {
				return err
			}

			var (
				ok  bool
				err error
			)
			if path := c.String("public-key"); path != "" {
				ok, err = verifyWithKeyFile(c, path, &msg)
			} else {
				ok, err = verifyWithStore(c, &msg)
			}
			if err != nil {
				return err
			}

			if !ok {
				fmt.Fprintln(c.App.Writer, signer.FailedMessage)
				return errVerificationFailed
			}
			fmt.Fprintln(c.App.Writer, signer.VerifiedMessage)
			return nil
		},
	}
}

func verifyWithKeyFile(c *cli.Context, path string, msg *types.SignedMessage) (bool, error) {
	var cells []string
	if err := readJSON(c, path, &cells); err != nil {
		return false, err
	}
	pk, err := lamport.NewPublicKeyFromHex(cells)
	if err != nil {
		return false, err
	}

	rt, err := newRuntime(c)
	if err != nil {
		return false, err
	}
	defer rt.Close()

	return rt.engine.Verify(msg.Message, msg.LamportSignature(), pk), nil
}

// verifyWithStore checks msg against the stored key. A key the store does not
// hold, as with a fresh in-memory store, falls back to the public key the
// signer embedded in the message.
func verifyWithStore(c *cli.Context, msg *types.SignedMessage) (bool, error) {
	rt, err := newRuntimeWithStore(c)
	if err != nil {
		return false, err
	}
	defer rt.Close()

	ok, err := rt.keyStore.Verify(msg)
	if !errors.Is(err, persistence.ErrKeyNotFound) || len(msg.PublicKey) == 0 {
		return ok, err
	}

	pk, err := msg.LoadPublicKey()
	if err != nil {
		return false, err
	}
	rt.logger.Sugar().Infow("Key not in store, verifying against the embedded public key", "key_id", msg.KeyID)
	return rt.engine.Verify(msg.Message, msg.LamportSignature(), pk), nil
}

func merkleRootCommand() *cli.Command {
	return &cli.Command{
		Name:      "merkle-root",
		Usage:     "Print the Merkle root over the given leaf values",
		ArgsUsage: "[value...]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "Read one leaf value per line from this file"},
			&cli.BoolFlag{Name: "proofs", Usage: "Also print an inclusion proof for every leaf"},
		},
		Action: func(c *cli.Context) error {
			values := c.Args().Slice()
			if path := c.String("file"); path != "" {
				lines, err := readLines(path)
				if err != nil {
					return err
				}
				values = append(values, lines...)
			}

			rt, err := newRuntime(c)
			if err != nil {
				return err
			}
			defer rt.Close()

			raw := make([][]byte, len(values))
			for i, v := range values {
				raw[i] = []byte(v)
			}
			tree, err := rt.builder.Build(raw)
			if err != nil {
				return err
			}

			fmt.Fprintf(c.App.Writer, "Root Hash: %s\n", tree.RootHash())
			if c.Bool("proofs") {
				proofs := make([]*merkle.MerkleProof, 0, tree.LeafCount())
				for i := 0; i < tree.LeafCount(); i++ {
					proof, err := tree.GenerateProof(i)
					if err != nil {
						return err
					}
					proofs = append(proofs, proof)
				}
				return writeJSON(c.App.Writer, proofs)
			}
			return nil
		},
	}
}

func sendCommand() *cli.Command {
	return &cli.Command{
		Name:  "send",
		Usage: "Send a message to the peer, sign it, verify it and commit to the public key",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "message", Aliases: []string{"m"}, Usage: "Message to send (prompted for when absent)"},
		},
		Action: func(c *cli.Context) error {
			message := c.String("message")
			if !c.IsSet("message") {
				fmt.Fprint(c.App.Writer, "enter your message: ")
				line, err := bufio.NewReader(c.App.Reader).ReadString('\n')
				if err != nil && !errors.Is(err, io.EOF) {
					return fmt.Errorf("failed to read message: %w", err)
				}
				message = strings.TrimRight(line, "\r\n")
			}

			rt, err := newRuntimeWithStore(c)
			if err != nil {
				return err
			}
			defer rt.Close()

			retry := transport.DefaultRetryConfig
			retry.MaxAttempts = rt.cfg.SendAttempts
			client := transport.NewClient(&transport.ClientConfig{
				Address:   rt.cfg.ServerAddress,
				Retry:     &retry,
				RateLimit: rt.cfg.RateLimit,
				RateBurst: rt.cfg.RateBurst,
				Logger:    rt.logger,
			})

			s, err := signer.NewSigner(&signer.Config{
				KeyStore:   rt.keyStore,
				Sender:     client,
				Builder:    rt.builder,
				LeafCopies: rt.cfg.LeafCopies,
				Logger:     rt.logger,
			})
			if err != nil {
				return err
			}

			result, err := s.Run(c.Context, message)
			if err != nil {
				return err
			}

			fmt.Fprintf(c.App.Writer, "Received '%s'\n", result.Response)
			fmt.Fprintln(c.App.Writer, verifyingBanner)
			fmt.Fprintln(c.App.Writer, result.Status())
			fmt.Fprintf(c.App.Writer, "Root Hash: %s\n", result.RootHash)
			return nil
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the TCP echo peer that send talks to",
		Action: func(c *cli.Context) error {
			rt, err := newRuntime(c)
			if err != nil {
				return err
			}
			defer rt.Close()

			srv := transport.NewServer(rt.cfg.ListenAddress, transport.EchoHandler, rt.logger)
			if err := srv.Start(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()

			rt.logger.Sugar().Infow("Shutting down TCP server", "address", srv.Addr())
			return srv.Stop()
		},
	}
}

func fingerprint(record *types.KeyPairRecord) (string, error) {
	pk, err := record.LoadPublicKey()
	if err != nil {
		return "", err
	}
	g := &keyGenerator.GeneratedKeyPair{KeyId: record.KeyID, Hasher: record.Hasher, PublicKey: pk}
	return g.GetFingerprintHex()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeJSONFile(path string, v any) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", path, cerr)
		}
	}()
	return writeJSON(f, v)
}

func readJSON(c *cli.Context, path string, v any) error {
	var r io.Reader
	if path == "-" {
		r = c.App.Reader
	} else {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}
