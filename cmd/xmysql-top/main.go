// Command xmysql-top is a terminal dashboard over a running Pool's
// utilization, the same termui-based shape as the teacher's client GUI
// mode (client/main.go's StartGUI), repurposed from a SQL REPL into a
// read-only pool monitor.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/zhukovaskychina/xmysql-driver/dsn"
	"github.com/zhukovaskychina/xmysql-driver/pool"
	"github.com/zhukovaskychina/xmysql-driver/session"
	"github.com/zhukovaskychina/xmysql-driver/xlog"
)

func main() {
	dsnFlag := flag.String("dsn", "Server=127.0.0.1;Port=3306;User Id=root;Pooling=true;Maximum Pool Size=10", "connection string, per the driver's DSN grammar")
	refresh := flag.Duration("refresh", time.Second, "dashboard refresh interval")
	profileFlag := flag.String("profile", "", "optional pool profile file (.toml, .yaml/.yml, or .legacy.yaml) overriding the DSN's pool sizing keys")
	flag.Parse()

	cfg, err := dsn.Parse(*dsnFlag)
	if err != nil {
		log.Fatalf("parsing dsn: %v", err)
	}

	poolOpts := pool.Options{
		MinSize:      cfg.MinPoolSize,
		MaxSize:      cfg.MaxPoolSize,
		MaxLifetime:  cfg.ConnectionLifetime,
		MaxIdleTime:  cfg.ConnectionIdleTimeout,
		ReapInterval: 30 * time.Second,
		LoadBalance:  cfg.LoadBalance,
	}
	if *profileFlag != "" {
		profile, err := loadProfile(*profileFlag)
		if err != nil {
			log.Fatalf("loading pool profile: %v", err)
		}
		poolOpts = profile.ToOptions()
	}

	log_ := xlog.NewStderr("xmysql-top", "warn")
	factory := func(ctx context.Context, addr string) (pool.Conn, error) {
		opts := session.ConnectOptions{
			Username:       cfg.User,
			Password:       cfg.Password,
			Database:       cfg.Database,
			TLSMode:        cfg.SSLMode,
			ConnectTimeout: cfg.ConnectionTimeout,
			UseCompression: cfg.UseCompression,
			GuidFormat:     cfg.GuidFormat.Protocol(),
		}
		return session.Connect(ctx, "tcp", addr, opts, log_)
	}

	key := pool.Key{Hosts: cfg.Endpoints(), Port: cfg.Port, User: cfg.User, Database: cfg.Database}
	p, err := pool.New(key, factory, poolOpts, log_)
	if err != nil {
		log.Fatalf("creating pool: %v", err)
	}
	defer p.Close()

	if err := ui.Init(); err != nil {
		log.Fatalf("initializing terminal UI: %v", err)
	}
	defer ui.Close()

	gauge := widgets.NewGauge()
	gauge.Title = "Pool utilization"
	gauge.SetRect(0, 0, 60, 3)
	gauge.BarColor = ui.ColorGreen

	table := widgets.NewTable()
	table.Title = fmt.Sprintf("%s:%d/%s", cfg.Host, cfg.Port, cfg.Database)
	table.SetRect(0, 3, 60, 9)
	table.RowSeparator = false

	render := func() {
		s := p.Stats()
		pct := 0
		if s.MaxSize > 0 {
			pct = s.InUse * 100 / s.MaxSize
		}
		gauge.Percent = pct
		gauge.Label = fmt.Sprintf("%d/%d in use", s.InUse, s.MaxSize)
		table.Rows = [][]string{
			{"Min pool size", itoa(s.MinSize)},
			{"Max pool size", itoa(s.MaxSize)},
			{"Live connections", itoa(s.Live)},
			{"In use", itoa(s.InUse)},
		}
		ui.Render(gauge, table)
	}
	render()

	ticker := time.NewTicker(*refresh)
	defer ticker.Stop()
	uiEvents := ui.PollEvents()

	for {
		select {
		case e := <-uiEvents:
			switch e.ID {
			case "q", "<C-c>":
				return
			}
		case <-ticker.C:
			render()
		}
	}
}

func itoa(n int) string {
	return fmt.Sprintf("%d", n)
}

// loadProfile picks the pool-profile parser by file extension: legacy
// camelCase YAML for ".legacy.yaml"/".legacy.yml", yaml.v3 for the rest of
// ".yaml"/".yml", and go-toml otherwise.
func loadProfile(path string) (pool.Profile, error) {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".legacy.yaml"), strings.HasSuffix(lower, ".legacy.yml"):
		return pool.LoadProfileYAMLLegacy(path)
	case strings.HasSuffix(lower, ".yaml"), strings.HasSuffix(lower, ".yml"):
		return pool.LoadProfileYAML(path)
	default:
		return pool.LoadProfileTOML(path)
	}
}
