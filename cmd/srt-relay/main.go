package main

import (
	"flag"

	"srtrelay-backend/lib/browser"
	"srtrelay-backend/lib/configutil"
	configlibsql "srtrelay-backend/lib/configutil/libsql"
	"srtrelay-backend/lib/srt"
	"srtrelay-backend/lib/util/serviceutil"
	"srtrelay-backend/services/expedientes"
	"srtrelay-backend/services/expedientes/db"
	"srtrelay-backend/services/expedientes/server"
)

type Config struct {
	Port     int                 `json:"port"`
	Database configlibsql.Struct `json:"database"`
	Service  expedientes.Config  `json:"service"`
	Browser  browser.Options     `json:"browser"`
	// when set, login failures dump a screenshot + html here
	DiagnosticsDir string `json:"diagnostics_dir"`
	// optional static token guarding the whole surface
	BearerToken string `json:"bearer_token"`
}

func main() {
	verbose := flag.Bool("v", false, "Enable verbose logging/instrumentation.")
	flag.Parse()

	ctx := serviceutil.SignalContext()

	InitTelemetry(ctx, *verbose)

	cfg, err := configutil.ReadConfig[Config]("config.json5")
	if err != nil {
		serviceutil.Fatal("read config", err)
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.Browser == (browser.Options{}) {
		cfg.Browser = browser.DefaultOptions()
	}

	database, err := cfg.Database.OpenDB(db.Schema)
	if err != nil {
		serviceutil.Fatal("open database", err)
	}

	srtOpts := srt.Options{}
	if cfg.DiagnosticsDir != "" {
		srtOpts.Diagnostics = srt.DirSink{Dir: cfg.DiagnosticsDir}
	}
	factory := expedientes.BrowserSessionFactory(cfg.Browser, srtOpts)

	service := expedientes.NewService(database, factory, cfg.Service)
	router := server.NewServer(service).Router()

	go serviceutil.StartHttpServer(cfg.Port, serviceutil.RequireBearer(cfg.BearerToken, router))
	<-ctx.Done()
}
