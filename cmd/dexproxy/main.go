// The MIT License (MIT)
//
// # Copyright (c) 2016 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package main

import (
	"context"
	"crypto/sha1"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli"
	"golang.org/x/crypto/pbkdf2"

	"github.com/C0D3-M4513R/dexprotect-osc/internal/config"
	"github.com/C0D3-M4513R/dexprotect-osc/internal/destructure"
	"github.com/C0D3-M4513R/dexprotect-osc/internal/dexlock"
	"github.com/C0D3-M4513R/dexprotect-osc/internal/fanout"
	"github.com/C0D3-M4513R/dexprotect-osc/internal/handler"
	"github.com/C0D3-M4513R/dexprotect-osc/internal/oscsend"
	"github.com/C0D3-M4513R/dexprotect-osc/internal/receiver"
	"github.com/C0D3-M4513R/dexprotect-osc/internal/stats"
)

// seedSalt is the PBKDF2 salt used by the keygen-seed helper, named
// after the teacher's own pbkdf2.Key(..., SALT, ...) call.
const seedSalt = "dexprotect-osc"

// VERSION is populated via build flags when packaging official binaries.
var VERSION = "SELFBUILD"

func main() {
	if VERSION == "SELFBUILD" {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	app := cli.NewApp()
	app.Name = "dexproxy"
	app.Usage = "OSC relay between a VR runtime and helper apps"
	app.Version = VERSION
	app.Flags = relayFlags()
	app.Action = runRelay
	app.Commands = []cli.Command{keygenCommand(), keygenSeedCommand()}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("%+v", err)
	}
}

func relayFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{Name: "bindip", Value: "127.0.0.1", Usage: "IP address to bind the receive and forward sockets to"},
		cli.IntFlag{Name: "recvport", Value: 9001, Usage: "UDP port to receive OSC datagrams on"},
		cli.IntFlag{Name: "sendport", Value: 9000, Usage: "UDP port the VR runtime listens on"},
		cli.IntFlag{Name: "maxmessagesize", Value: 8192, Usage: "largest datagram accepted, in bytes"},
		cli.BoolFlag{Name: "dexprotectenabled", Usage: "enable avatar-key unlock handling"},
		cli.StringFlag{Name: "dexkeydir", Usage: "directory containing <avatar_id>.key files"},
		cli.BoolFlag{Name: "dexbundlemode", Usage: "send unlocked parameters as one immediate bundle instead of discrete messages"},
		cli.StringFlag{Name: "forwardports", Usage: "comma-separated list of additional UDP ports to fan datagrams out to"},
		cli.BoolFlag{Name: "parseforfanout", Usage: "decode and re-encode before fanning out, instead of forwarding raw bytes"},
		cli.StringFlag{Name: "log", Usage: "write logs to this file instead of stderr"},
		cli.StringFlag{Name: "statslog", Usage: "write periodic CSV counters to this file (time-format tokens allowed)"},
		cli.IntFlag{Name: "statsperiod", Usage: "seconds between stats rows, 0 disables"},
		cli.StringFlag{Name: "c", Usage: "load a JSON config file, overriding the flags above"},
	}
}

func runRelay(c *cli.Context) error {
	cfg := config.Defaults()
	cfg.BindIP = c.String("bindip")
	cfg.RecvPort = c.Int("recvport")
	cfg.SendPort = c.Int("sendport")
	cfg.MaxMessageSize = c.Int("maxmessagesize")
	cfg.DexProtectEnabled = c.Bool("dexprotectenabled")
	cfg.DexKeyDir = c.String("dexkeydir")
	cfg.DexBundleMode = c.Bool("dexbundlemode")
	cfg.ForwardPorts = parsePortList(c.String("forwardports"))
	cfg.ParseForFanout = c.Bool("parseforfanout")
	cfg.Log = c.String("log")
	cfg.StatsLog = c.String("statslog")
	cfg.StatsPeriod = c.Int("statsperiod")

	if path := c.String("c"); path != "" {
		if err := config.ParseJSONFile(&cfg, path); err != nil {
			return err
		}
	}

	if cfg.Log != "" {
		f, err := os.OpenFile(cfg.Log, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
		if err != nil {
			return err
		}
		defer f.Close()
		log.SetOutput(f)
	}

	log.Println("version:", VERSION)
	log.Println("bindip:", cfg.BindIP)
	log.Println("recvport:", cfg.RecvPort)
	log.Println("sendport:", cfg.SendPort)
	log.Println("maxmessagesize:", cfg.MaxMessageSize)
	log.Println("dexprotectenabled:", cfg.DexProtectEnabled)
	log.Println("forwardports:", cfg.ForwardPorts)
	log.Println("parseforfanout:", cfg.ParseForFanout)
	log.Println("statslog:", cfg.StatsLog, "statsperiod:", cfg.StatsPeriod)

	bindIP := net.ParseIP(cfg.BindIP)
	if bindIP == nil {
		return fmt.Errorf("dexproxy: invalid bindip %q", cfg.BindIP)
	}

	if cfg.DexProtectEnabled {
		if cfg.DexKeyDir == "" {
			color.Red("dexprotect is enabled but dexkeydir is empty; no avatar will ever unlock")
		} else if stat, err := os.Stat(cfg.DexKeyDir); err != nil || !stat.IsDir() {
			color.Red("dexkeydir %q does not exist or is not a directory yet", cfg.DexKeyDir)
		}
	}

	counters := &stats.Counters{}

	sender, err := oscsend.New(bindIP, 0, cfg.SendPort)
	if err != nil {
		return err
	}
	defer sender.Close()

	var messageHandler handler.MessageHandler = handler.StubMessage{}
	if cfg.DexProtectEnabled {
		dl := dexlock.New(cfg.DexKeyDir, cfg.DexBundleMode, sender)
		dl.OnUnlockStarted(func() { counters.AvatarUnlocksStarted.Add(1) })
		dl.OnUnlockVerified(func() { counters.AvatarUnlocksOK.Add(1) })
		dl.OnUnlockTimeout(func() { counters.AvatarUnlocksTimeout.Add(1) })
		messageHandler = dl
	}

	var fwd interface {
		handler.RawHandler
		handler.PacketHandler
	}
	closeFwd := func() {}
	if len(cfg.ForwardPorts) == 0 {
		fwd = fanout.NoopDispatcher{}
	} else {
		disp, err := fanout.NewDispatcher(bindIP, cfg.ForwardPorts)
		if err != nil {
			return err
		}
		disp.OnSendError = func(error) { counters.FanoutSendErrors.Add(1) }
		fwd = disp
		closeFwd = disp.Close
	}
	defer closeFwd()

	var rawHandler handler.RawHandler = handler.StubRaw{}
	var packetHandler handler.PacketHandler = handler.StubPacket{}
	if cfg.ParseForFanout {
		packetHandler = fwd
	} else {
		rawHandler = fwd
	}

	d := destructure.New(rawHandler, packetHandler, messageHandler)
	d.OnBundleDelayed = func() { counters.BundlesDelayed.Add(1) }
	d.OnBundleReleased = func() { counters.BundlesReleased.Add(1) }
	loop, err := receiver.New(bindIP, cfg.RecvPort, d, cfg.MaxMessageSize,
		func(n int) { counters.PacketsReceived.Add(1); counters.BytesReceived.Add(int64(n)) },
		func(error) {},
	)
	if err != nil {
		return err
	}
	defer loop.Close()

	statsLogger := &stats.Logger{
		Path:     cfg.StatsLog,
		Period:   time.Duration(cfg.StatsPeriod) * time.Second,
		Counters: counters,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	watchDumpSignal(counters)
	go statsLogger.Run(ctx)
	loop.Run(ctx)
	return nil
}

func parsePortList(raw string) []int {
	if raw == "" {
		return nil
	}
	var ports []int
	for _, field := range strings.Split(raw, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		p, err := strconv.Atoi(field)
		if err != nil {
			log.Printf("dexproxy: ignoring invalid forward port %q: %v", field, err)
			continue
		}
		ports = append(ports, p)
	}
	return ports
}

// keygenCommand produces a real, relay-decryptable .key file using the
// compiled-in crackme key, for exercising the unlock path end to end
// without needing the runtime's embedded secret to be extracted by
// hand.
func keygenCommand() cli.Command {
	return cli.Command{
		Name:  "keygen",
		Usage: "encrypt a key string into a <avatar_id>.key file the relay can unlock",
		Flags: []cli.Flag{
			cli.StringFlag{Name: "plaintext", Usage: "the '1.5|ParamA|0|ParamB' style key string to encrypt"},
			cli.StringFlag{Name: "out", Usage: "output path, e.g. ./avtr_12345.key"},
		},
		Action: func(c *cli.Context) error {
			plaintext := c.String("plaintext")
			out := c.String("out")
			if plaintext == "" || out == "" {
				return fmt.Errorf("dexproxy keygen: plaintext and out are both required")
			}
			ciphertext, err := dexlock.Encrypt([]byte(plaintext))
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, ciphertext, 0o600); err != nil {
				return err
			}
			log.Printf("keygen: wrote %d bytes to %s", len(ciphertext), out)
			return nil
		},
	}
}

// keygenSeedCommand derives 48 bytes of key material from an operator
// passphrase via PBKDF2-SHA1, the same derivation the teacher uses for
// its own shared session key. It prints Go byte-array literals sized
// to replace the compiled-in key/iv in internal/dexlock/crypt.go; it
// does not touch the running relay's secret.
func keygenSeedCommand() cli.Command {
	return cli.Command{
		Name:  "keygen-seed",
		Usage: "derive replacement key/iv byte literals from a passphrase (does not affect the running relay)",
		Flags: []cli.Flag{
			cli.StringFlag{Name: "passphrase", Usage: "passphrase to derive key material from"},
		},
		Action: func(c *cli.Context) error {
			passphrase := c.String("passphrase")
			if passphrase == "" {
				return fmt.Errorf("dexproxy keygen-seed: passphrase is required")
			}
			seed := pbkdf2.Key([]byte(passphrase), []byte(seedSalt), 4096, 32+16, sha1.New)
			fmt.Println("key:", formatByteLiteral(seed[:32]))
			fmt.Println("iv: ", formatByteLiteral(seed[32:]))
			return nil
		},
	}
}

func formatByteLiteral(b []byte) string {
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = fmt.Sprintf("0x%02x", v)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
