package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/packetlink/internal/api"
	"github.com/banshee-data/packetlink/internal/config"
	"github.com/banshee-data/packetlink/internal/db"
	"github.com/banshee-data/packetlink/internal/devlink"
	"github.com/banshee-data/packetlink/internal/framer"
	"github.com/banshee-data/packetlink/internal/linkmux"
	"github.com/banshee-data/packetlink/internal/serialport"
	"github.com/banshee-data/packetlink/internal/transport"
	"github.com/banshee-data/packetlink/internal/version"
)

var (
	configFile  = flag.String("config", "", "Path to a .json or .toml link configuration")
	linkName    = flag.String("link", "", "Name of a link configuration stored in the database")
	port        = flag.String("port", config.DefaultPortPath, "Serial port to use (ignored in dev mode)")
	capacity    = flag.Int("capacity", config.DefaultCapacity, "Frame size in bytes")
	listen      = flag.String("listen", config.DefaultListen, "Listen address for the admin server")
	dbPath      = flag.String("db", config.DefaultDBPath, "Path to the sqlite frame log")
	devMode     = flag.Bool("dev", false, "Use a synthetic loopback link instead of a serial port")
	checksum    = flag.Bool("checksum", false, "Require and seal an XOR checksum in byte N-2")
	disableLink = flag.Bool("disable-link", false, "Run the admin server without a link")
	showVersion = flag.Bool("version", false, "Print the version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg := &config.LinkConfig{}
	if *configFile != "" {
		var err error
		cfg, err = config.Load(*configFile)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}

	if flag.NArg() > 0 {
		switch flag.Arg(0) {
		case "migrate":
			if err := db.RunMigrateCommand(flag.Args()[1:], settingsDBPath(cfg, explicitFlags()), os.Stdout); err != nil {
				if !errors.Is(err, db.ErrUsage) {
					log.Print(err)
				}
				os.Exit(1)
			}
			return
		default:
			log.Fatalf("unknown subcommand %q", flag.Arg(0))
		}
	}

	log.Print(version.String())

	database, err := db.NewDB(settingsDBPath(cfg, explicitFlags()))
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	var stored *db.LinkConfig
	if *linkName != "" {
		stored, err = database.GetLinkConfigByName(*linkName)
		if err != nil {
			log.Fatalf("failed to load link %q: %v", *linkName, err)
		}
		if stored == nil {
			log.Fatalf("no link configuration named %q", *linkName)
		}
		if !stored.Enabled {
			log.Fatalf("link %q is disabled", *linkName)
		}
	}

	s, err := resolveSettings(cfg, stored, explicitFlags())
	if err != nil {
		log.Fatalf("invalid settings: %v", err)
	}

	var link linkmux.LinkMuxInterface
	if *disableLink {
		link = linkmux.NewDisabledMux(s.Capacity)
	} else {
		link, err = newLink(s, database)
		if err != nil {
			log.Fatalf("failed to start link: %v", err)
		}
		log.Printf("link ready: %s", s)
	}
	defer link.Close()

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the monitor routine to manage IO on the link
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := link.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("failed to monitor link: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	if s.RecordRx {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, c := link.Subscribe()
			defer link.Unsubscribe(id)
			n := recordFrames(ctx, database, s.SessionID, c)
			log.Printf("recorder routine terminated after %d frames", n)
		}()
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		// mount the JSON API, then the tsweb debug pages
		mux := api.NewServer(link, database, s.Checksum, s.SessionID).ServeMux()
		link.AttachAdminRoutes(mux)
		database.AttachAdminRoutes(mux)

		server := &http.Server{
			Addr:    s.Listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}

// explicitFlags returns the names of the flags set on the command line.
func explicitFlags() map[string]bool {
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

func settingsDBPath(cfg *config.LinkConfig, set map[string]bool) string {
	if set["db"] {
		return *dbPath
	}
	return cfg.GetDBPath()
}

// newLink opens the transporter and wraps it in a framer and mux.
func newLink(s settings, database *db.DB) (*linkmux.Mux, error) {
	var t transport.Transporter
	if s.Dev {
		l, err := devlink.New(s.Capacity, devlink.WithChecksum(s.Checksum), devlink.WithReadTimeout(s.ReadTimeout))
		if err != nil {
			return nil, err
		}
		t = l
	} else {
		p, err := serialport.New(s.PortPath, s.Serial, serialport.WithReadTimeout(s.ReadTimeout))
		if err != nil {
			return nil, err
		}
		t = p
	}
	if err := t.Open(); err != nil {
		return nil, err
	}

	var opts []framer.Option
	if s.Checksum {
		opts = append(opts, framer.WithChecksum())
	}
	f, err := framer.New(t, s.Capacity, opts...)
	if err != nil {
		t.Close()
		return nil, err
	}

	muxOpts := []linkmux.Option{linkmux.WithSealChecksum(s.Checksum)}
	if s.RecordTx {
		muxOpts = append(muxOpts, linkmux.WithSentHook(txRecorder(database, s.SessionID)))
	}
	return linkmux.New(t, f, muxOpts...), nil
}

// newSessionID returns a fresh frame-log session ID.
func newSessionID() string { return uuid.NewString() }
