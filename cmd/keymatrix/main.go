// Command keymatrix scans a GPIO key matrix, debounces it and publishes key events to MQTT.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/sweeney/keymatrix/internal/debounce"
	"github.com/sweeney/keymatrix/internal/keys"
	"github.com/sweeney/keymatrix/internal/matrix"
	"github.com/sweeney/keymatrix/internal/mqtt"
	"github.com/sweeney/keymatrix/internal/status"
	"github.com/sweeney/keymatrix/internal/timer"
	"github.com/sweeney/keymatrix/internal/web"
)

// options collects the command line configuration.
type options struct {
	chip       string
	rowPins    []int
	colPins    []int
	scan       time.Duration
	tick       time.Duration
	algo       debounce.Algorithm
	debounce   debounce.Config
	broker     string
	clientID   string
	heartbeat  time.Duration
	printState bool
	httpAddr   string
	wsBroker   string
}

func main() {
	chip := flag.String("chip", "gpiochip0", "GPIO chip name")
	rows := flag.String("rows", joinPins(matrix.DefaultRowPins), "Comma-separated BCM pins driving matrix rows")
	cols := flag.String("cols", joinPins(matrix.DefaultColPins), "Comma-separated BCM pins reading matrix columns")
	scan := flag.Duration("scan", time.Millisecond, "Matrix scan interval")
	tick := flag.Duration("tick", timer.DefaultResolution, "Debounce tick length")
	algo := flag.String("algo", string(debounce.AlgoAsymDeferLockout), `Debounce algorithm ("asym_defer_lockout" or "none")`)
	initialDelay := flag.Uint("initial-delay", debounce.DefaultInitialDelay, "Ticks before a transition may reach the cooked matrix")
	lockout := flag.Uint("lockout", debounce.DefaultLockoutPeriod, "Ticks a key stays locked after the initial delay")
	broker := flag.String("broker", "tcp://192.168.1.200:1883", "MQTT broker address")
	clientID := flag.String("client-id", mqtt.DefaultClientID, "MQTT client ID")
	heartbeat := flag.Duration("heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")
	printState := flag.Bool("print-state", false, "Print one raw scan and exit")
	httpAddr := flag.String("http", ":80", "HTTP status address (empty to disable)")
	wsBroker := flag.String("ws-broker", "=broker", `MQTT websocket URL for live UI ("=broker" derives from --broker, "off" disables)`)

	flag.Parse()

	opts, err := buildOptions(*chip, *rows, *cols, *scan, *tick, *algo, *initialDelay, *lockout)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	opts.broker = *broker
	opts.clientID = *clientID
	opts.heartbeat = *heartbeat
	opts.printState = *printState
	opts.httpAddr = *httpAddr
	opts.wsBroker = resolveWSBroker(*wsBroker, *broker)

	if err := run(opts); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// buildOptions validates the flags that shape the matrix and the debounce
// timing. Errors here are fatal before any hardware is touched.
func buildOptions(chip, rows, cols string, scan, tick time.Duration, algo string, initialDelay, lockout uint) (options, error) {
	rowPins, err := parsePins(rows)
	if err != nil {
		return options{}, fmt.Errorf("rows: %w", err)
	}
	colPins, err := parsePins(cols)
	if err != nil {
		return options{}, fmt.Errorf("cols: %w", err)
	}
	if len(colPins) > debounce.MatrixCols {
		return options{}, fmt.Errorf("cols: %d pins, at most %d supported", len(colPins), debounce.MatrixCols)
	}
	if scan <= 0 {
		return options{}, fmt.Errorf("scan interval must be positive, got %v", scan)
	}
	if tick <= 0 {
		return options{}, fmt.Errorf("tick must be positive, got %v", tick)
	}
	if initialDelay > 255 || lockout > 255 {
		return options{}, fmt.Errorf("delays must fit in 8 bits, got %d and %d", initialDelay, lockout)
	}
	cfg := debounce.Config{InitialDelay: uint8(initialDelay), LockoutPeriod: uint8(lockout)}
	if err := cfg.Validate(); err != nil {
		return options{}, err
	}

	return options{
		chip:     chip,
		rowPins:  rowPins,
		colPins:  colPins,
		scan:     scan,
		tick:     tick,
		algo:     debounce.Algorithm(algo),
		debounce: cfg,
	}, nil
}

func run(opts options) error {
	// Initialize matrix scanner
	scanner, err := matrix.NewRealScanner(opts.chip, opts.rowPins, opts.colPins)
	if err != nil {
		return fmt.Errorf("init matrix: %w", err)
	}
	defer scanner.Close()

	// Print state mode
	if opts.printState {
		raw := make([]debounce.Row, scanner.Rows())
		if err := scanner.Scan(raw); err != nil {
			return fmt.Errorf("scan matrix: %w", err)
		}
		for r, row := range raw {
			fmt.Printf("row %d: %s\n", r, matrix.Format(row, scanner.Cols()))
		}
		return nil
	}

	// Debounce state is allocated once here; failure means no trustworthy keys.
	filter, err := debounce.New(opts.algo, scanner.Rows(), timer.NewMonotonic(opts.tick), opts.debounce)
	if err != nil {
		return fmt.Errorf("init debounce: %w", err)
	}
	defer filter.Close()

	// Initialize MQTT
	publisher, err := mqtt.NewRealPublisher(opts.broker, opts.clientID)
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer publisher.Close()

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		ScanUs:        opts.scan.Microseconds(),
		TickUs:        opts.tick.Microseconds(),
		Algorithm:     string(opts.algo),
		InitialDelay:  int(opts.debounce.InitialDelay),
		LockoutPeriod: int(opts.debounce.LockoutPeriod),
		HeartbeatMs:   opts.heartbeat.Milliseconds(),
		Broker:        opts.broker,
		HTTPPort:      opts.httpAddr,
		WSBroker:      opts.wsBroker,
		Rows:          scanner.Rows(),
		Cols:          scanner.Cols(),
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}
	tracker.SetMQTTConnected(publisher.IsConnected())

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      mqtt.EventStartup,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, mqtt.EventStartup, ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	// Start HTTP status server
	if opts.httpAddr != "" {
		srv := web.New(opts.httpAddr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", opts.httpAddr)
	}

	log.Printf("started: matrix=%dx%d scan=%v algo=%s delay=%d+%d ticks of %v broker=%s heartbeat=%v",
		scanner.Rows(), scanner.Cols(), opts.scan, opts.algo,
		opts.debounce.InitialDelay, opts.debounce.LockoutPeriod, opts.tick, opts.broker, opts.heartbeat)

	ticker := time.NewTicker(opts.scan)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(scanner, filter, publisher, publisher, tracker, opts.heartbeat, time.Now, ticker.C, sigCh)
}

// runLoop owns the raw and cooked matrices and is the only caller of the
// filter. It returns when a signal arrives.
func runLoop(scanner matrix.Scanner, filter debounce.Filter, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, heartbeat time.Duration, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	startTime := now()
	rows := scanner.Rows()
	detector := keys.NewDetector(rows, scanner.Cols(), startTime)
	raw := make([]debounce.Row, rows)
	cooked := make([]debounce.Row, rows)
	scanFailing := false
	lastPending := 0

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			event := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     mqtt.EventShutdown,
				Reason:    signalName,
				Retained:  true,
			}
			if tracker != nil {
				if mqttStatus != nil {
					tracker.SetMQTTConnected(mqttStatus.IsConnected())
				}
				snap := tracker.Snapshot()
				event.RawPayload = status.FormatStatusEvent(snap, mqtt.EventShutdown, signalName)
			}
			if err := publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case <-tick:
			t := now()
			if err := scanner.Scan(raw); err != nil {
				// Only log the first failure of a run; scans repeat every millisecond.
				if !scanFailing {
					log.Printf("matrix scan error: %v", err)
					scanFailing = true
				}
				if tracker != nil {
					tracker.RecordScanError()
				}
				continue
			}
			if scanFailing {
				log.Printf("matrix scan recovered")
				scanFailing = false
			}

			if filter.Debounce(raw, cooked, matrix.Differs(raw, cooked)) {
				events := detector.Process(cooked, t)
				for _, event := range events {
					log.Printf("event: %s row=%d col=%d held=%d", event.Type, event.Row, event.Col, event.Held)
					if err := publisher.Publish(event); err != nil {
						log.Printf("publish error: %v", err)
						// Don't crash on publish failure
					}
				}
				lastPending = filter.Pending()
				if tracker != nil {
					tracker.Update(cooked, detector.Held(), lastPending, detector.EventCountsSnapshot())
				}
			} else if tracker != nil {
				if p := filter.Pending(); p != lastPending {
					lastPending = p
					tracker.SetPending(p)
				}
			}

			// Check for heartbeat
			if hbData := detector.CheckHeartbeat(t, heartbeat); hbData != nil {
				log.Printf("heartbeat: uptime=%v key_down=%d key_up=%d",
					hbData.Uptime, hbData.Counts.Down, hbData.Counts.Up)

				hbEvent := mqtt.SystemEvent{
					Timestamp: hbData.Timestamp,
					Event:     mqtt.EventHeartbeat,
				}
				if tracker != nil {
					if mqttStatus != nil {
						tracker.SetMQTTConnected(mqttStatus.IsConnected())
					}
					// Refresh network info for heartbeat
					if net := readNetworkInfo(); net != nil {
						tracker.SetNetwork(net)
					}
					snap := tracker.Snapshot()
					hbEvent.RawPayload = status.FormatStatusEvent(snap, mqtt.EventHeartbeat, "")
				}
				if err := publisher.PublishSystem(hbEvent); err != nil {
					log.Printf("heartbeat publish error: %v", err)
				}
			}
		}
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}

// parsePins parses a comma-separated list of distinct GPIO line offsets.
func parsePins(s string) ([]int, error) {
	var pins []int
	seen := make(map[int]bool)
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		p, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("bad pin %q: %w", f, err)
		}
		if p < 0 {
			return nil, fmt.Errorf("bad pin %d: negative", p)
		}
		if seen[p] {
			return nil, fmt.Errorf("pin %d listed twice", p)
		}
		seen[p] = true
		pins = append(pins, p)
	}
	if len(pins) == 0 {
		return nil, fmt.Errorf("no pins given")
	}
	return pins, nil
}

func joinPins(pins []int) string {
	s := make([]string, len(pins))
	for i, p := range pins {
		s[i] = strconv.Itoa(p)
	}
	return strings.Join(s, ",")
}

// resolveWSBroker converts the --ws-broker flag value into a concrete URL.
// "=broker" derives ws://host:9001 from the TCP broker address; "off" disables.
func resolveWSBroker(ws, broker string) string {
	if ws == "off" {
		return ""
	}
	if ws != "=broker" {
		return ws
	}
	u, err := url.Parse(broker)
	if err != nil {
		log.Printf("ws-broker: cannot parse --broker %q: %v", broker, err)
		return ""
	}
	u.Scheme = "ws"
	u.Host = u.Hostname() + ":9001"
	return u.String()
}
