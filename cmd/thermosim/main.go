// Command thermosim simulates a thermostat device and watches live reports.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/and161185/thermolink/internal/api"
	"github.com/and161185/thermolink/internal/crypto/clientcrypto"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// app carries global flags and shared state for subcommands.
type app struct {
	cli   *client
	store *store
	log   *zap.Logger
	out   io.Writer
	now   func() time.Time
}

func usage() {
	fmt.Fprintf(os.Stderr, `thermosim - thermostat device simulator
Usage:
  thermosim [-server URL] [-state FILE] [-cacert file | -insecure] [-v] <cmd> [args]

Commands:
  version
  keygen   [-id <uuid>] [-pub <file>] [-force]   create device identity
  pubkey                                          print base64 PEM public key
  login                                           device challenge/response login
  schedule                                        print the device schedule
  report   -t <celsius> [-heater]                 post one report
  run      [-n <count>] [-every <dur>]            simulate and report periodically
  watch    -u <email> -device <uuid>              stream a device's reports
`)
	os.Exit(2)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}

// main dispatches subcommands.
func main() {
	server := flag.String("server", "http://localhost:8080/api/v1", "API base URL")
	statePath := flag.String("state", defaultStatePath(), "bbolt state file")
	caPath := flag.String("cacert", "", "CA cert (PEM)")
	insecure := flag.Bool("insecure", false, "skip cert verify (dev)")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd, args := flag.Arg(0), flag.Args()[1:]
	if cmd == "version" {
		fmt.Printf("thermosim %s (%s)\n", version, buildDate)
		return
	}

	log := zap.NewNop()
	if *verbose {
		log, _ = zap.NewDevelopment()
	}
	defer func() { _ = log.Sync() }()

	hc, err := httpClient(*caPath, *insecure)
	if err != nil {
		fail(err)
	}
	st, err := openStore(*statePath)
	if err != nil {
		fail(err)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := &app{cli: newClient(*server, hc), store: st, log: log, out: os.Stdout, now: time.Now}
	if err := a.dispatch(ctx, cmd, args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fail(err)
	}
}

func (a *app) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "keygen":
		return a.keygen(args)
	case "pubkey":
		return a.pubkey()
	case "login":
		_, err := a.deviceToken(ctx, true)
		if err == nil {
			fmt.Fprintln(a.out, "ok")
		}
		return err
	case "schedule":
		return a.printSchedule(ctx)
	case "report":
		return a.report(ctx, args)
	case "run":
		return a.run(ctx, args)
	case "watch":
		return a.watch(ctx, args)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (a *app) keygen(args []string) error {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	idFlag := fs.String("id", "", "device id (generated when empty)")
	pubPath := fs.String("pub", "", "also write the base64 PEM public key to this file")
	force := fs.Bool("force", false, "replace an existing identity")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if a.store.hasIdentity() && !*force {
		return errors.New("identity already exists (use -force to replace)")
	}

	id := uuid.Must(uuid.NewV4())
	if *idFlag != "" {
		var err error
		if id, err = uuid.FromString(*idFlag); err != nil {
			return fmt.Errorf("bad -id: %w", err)
		}
	}
	key, err := clientcrypto.GenerateKey()
	if err != nil {
		return err
	}
	if err := a.store.saveIdentity(id, key); err != nil {
		return err
	}
	pub, err := clientcrypto.PublicKeyBase64(&key.PublicKey)
	if err != nil {
		return err
	}
	if *pubPath != "" {
		if err := os.WriteFile(*pubPath, []byte(pub), 0o644); err != nil {
			return err
		}
	}
	fmt.Fprintln(a.out, id.String())
	return nil
}

func (a *app) pubkey() error {
	_, key, err := a.store.loadIdentity()
	if err != nil {
		return err
	}
	pub, err := clientcrypto.PublicKeyBase64(&key.PublicKey)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, pub)
	return nil
}

// deviceToken returns a cached device token or performs the challenge
// handshake when none is valid (or fresh is set).
func (a *app) deviceToken(ctx context.Context, fresh bool) (string, error) {
	if !fresh {
		if tok, err := a.store.loadToken("device", a.now()); err == nil {
			return tok, nil
		}
	}
	id, key, err := a.store.loadIdentity()
	if err != nil {
		return "", err
	}
	ch, err := a.cli.challenge(ctx, id)
	if err != nil {
		return "", fmt.Errorf("challenge: %w", err)
	}
	sig, err := clientcrypto.SignNonce(key, ch.Challenge)
	if err != nil {
		return "", err
	}
	tok, err := a.cli.deviceLogin(ctx, id, sig)
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	a.log.Debug("device login", zap.String("device_id", id.String()))
	if err := a.store.saveToken("device", tok.AccessToken, tokenExpiry(tok.AccessToken, a.now())); err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// deviceClient returns a client with a valid device bearer.
func (a *app) deviceClient(ctx context.Context) (*client, error) {
	tok, err := a.deviceToken(ctx, false)
	if err != nil {
		return nil, err
	}
	return a.cli.withBearer(tok), nil
}

func (a *app) printSchedule(ctx context.Context) error {
	c, err := a.deviceClient(ctx)
	if err != nil {
		return err
	}
	s, err := c.schedule(ctx)
	if err != nil {
		return err
	}
	if s == nil {
		fmt.Fprintln(a.out, "no schedule")
		return nil
	}
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

func (a *app) report(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	temp := fs.Float64("t", 21, "temperature, °C")
	heater := fs.Bool("heater", false, "heater is on")
	if err := fs.Parse(args); err != nil {
		return err
	}
	c, err := a.deviceClient(ctx)
	if err != nil {
		return err
	}
	r, err := c.postReport(ctx, api.Report{TemperatureCelcius: *temp, HeaterOn: *heater, Timestamp: a.now().UTC()})
	if err != nil {
		return err
	}
	if r.ID != nil {
		fmt.Fprintln(a.out, r.ID.String())
	}
	return nil
}

func (a *app) run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	n := fs.Int("n", 10, "number of reports; 0 runs until interrupted")
	every := fs.Duration("every", time.Second, "report interval")
	refresh := fs.Duration("refresh", time.Minute, "schedule refresh interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	c, err := a.deviceClient(ctx)
	if err != nil {
		return err
	}
	sched, err := c.schedule(ctx)
	if err != nil {
		return err
	}
	fetched := a.now()
	th := newThermostat(18, uint64(a.now().UnixNano()))

	ticker := time.NewTicker(*every)
	defer ticker.Stop()
	for sent := 0; *n == 0 || sent < *n; sent++ {
		if a.now().Sub(fetched) >= *refresh {
			if s, err := c.schedule(ctx); err == nil {
				sched, fetched = s, a.now()
			} else {
				a.log.Warn("schedule refresh", zap.Error(err))
			}
		}
		if target, ok := targetAt(sched, a.now()); ok {
			th.step(float64(target))
		} else {
			th.randomReading()
		}

		r := api.Report{TemperatureCelcius: th.temp, HeaterOn: th.heater, Timestamp: a.now().UTC()}
		if _, err := c.postReport(ctx, r); err != nil {
			var ae *apiError
			if !errors.As(err, &ae) || ae.Status != http.StatusUnauthorized {
				return err
			}
			// Token expired mid-run.
			if c, err = a.deviceClientFresh(ctx); err != nil {
				return err
			}
			if _, err := c.postReport(ctx, r); err != nil {
				return err
			}
		}
		fmt.Fprintf(a.out, "%s %.1f°C heater=%t\n", r.Timestamp.Format(time.RFC3339), r.TemperatureCelcius, r.HeaterOn)

		if *n != 0 && sent+1 == *n {
			break
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
	return nil
}

func (a *app) deviceClientFresh(ctx context.Context) (*client, error) {
	tok, err := a.deviceToken(ctx, true)
	if err != nil {
		return nil, err
	}
	return a.cli.withBearer(tok), nil
}

func (a *app) watch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	email := fs.String("u", "", "user email")
	devFlag := fs.String("device", "", "device id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" || *devFlag == "" {
		return errors.New("need -u and -device")
	}
	devID, err := uuid.FromString(*devFlag)
	if err != nil {
		return fmt.Errorf("bad -device: %w", err)
	}

	tok, err := a.store.loadToken("user:"+*email, a.now())
	if err != nil {
		pw, err := readPassword("password: ")
		if err != nil {
			return err
		}
		resp, err := a.cli.userLogin(ctx, *email, pw)
		if err != nil {
			return fmt.Errorf("login: %w", err)
		}
		tok = resp.AccessToken
		if err := a.store.saveToken("user:"+*email, tok, tokenExpiry(tok, a.now())); err != nil {
			return err
		}
	}

	return a.cli.withBearer(tok).stream(ctx, devID, func(event, data string) error {
		var r api.Report
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return fmt.Errorf("decode %s event: %w", event, err)
		}
		fmt.Fprintf(a.out, "%-10s %s %.1f°C heater=%t\n", event, r.Timestamp.Local().Format(time.RFC3339), r.TemperatureCelcius, r.HeaterOn)
		return nil
	})
}

// readPassword reads without echo from a terminal, else one line of stdin.
func readPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, prompt)
		pw, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		return string(pw), err
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
