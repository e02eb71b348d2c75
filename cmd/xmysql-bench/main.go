// Command xmysql-bench runs the same query N times over this driver's own
// session and over database/sql + github.com/go-sql-driver/mysql, the
// external comparison point named in the driver's dependency notes, and
// prints both drivers' throughput and latency side by side. The
// go-sql-driver dependency is never imported outside this cmd: the core
// packages have no business depending on a rival driver.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"log"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/zhukovaskychina/xmysql-driver/dsn"
	"github.com/zhukovaskychina/xmysql-driver/session"
)

func main() {
	dsnFlag := flag.String("dsn", "Server=127.0.0.1;Port=3306;User Id=root;Database=test", "connection string, per the driver's DSN grammar")
	query := flag.String("query", "SELECT 1", "query to repeat")
	n := flag.Int("n", 1000, "number of iterations per driver")
	warmup := flag.Int("warmup", 10, "untimed warmup iterations per driver")
	flag.Parse()

	cfg, err := dsn.Parse(*dsnFlag)
	if err != nil {
		log.Fatalf("parsing dsn: %v", err)
	}

	fmt.Printf("query: %q, iterations: %d, warmup: %d\n\n", *query, *n, *warmup)

	ownResult, err := benchOwn(cfg, *query, *n, *warmup)
	if err != nil {
		log.Fatalf("benchmarking this driver: %v", err)
	}
	report("this driver", ownResult)

	rivalResult, err := benchGoSQLDriver(cfg, *query, *n, *warmup)
	if err != nil {
		log.Fatalf("benchmarking go-sql-driver/mysql: %v", err)
	}
	report("go-sql-driver/mysql", rivalResult)
}

type result struct {
	iterations int
	elapsed    time.Duration
}

func report(label string, r result) {
	avg := r.elapsed / time.Duration(r.iterations)
	opsPerSec := float64(r.iterations) / r.elapsed.Seconds()
	fmt.Printf("%-24s %8d ops  %12v total  %10v/op  %10.1f ops/sec\n", label, r.iterations, r.elapsed, avg, opsPerSec)
}

// benchOwn drives a single session directly, the same QueryText +
// ResultSet.Close round trip the executor package wraps with
// timeout/cancellation handling; the benchmark measures the bare driver,
// not the executor's added machinery.
func benchOwn(cfg dsn.Config, query string, n, warmup int) (result, error) {
	ctx := context.Background()
	opts := session.ConnectOptions{
		Username:       cfg.User,
		Password:       cfg.Password,
		Database:       cfg.Database,
		TLSMode:        cfg.SSLMode,
		ConnectTimeout: cfg.ConnectionTimeout,
		UseCompression: cfg.UseCompression,
		GuidFormat:     cfg.GuidFormat.Protocol(),
	}
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	sess, err := session.Connect(ctx, "tcp", addr, opts, nil)
	if err != nil {
		return result{}, err
	}
	defer sess.Close()

	run := func() error {
		ok, rs, err := sess.QueryText(ctx, query)
		if err != nil {
			return err
		}
		if rs != nil {
			if err := rs.Close(); err != nil {
				return err
			}
		}
		_ = ok
		return nil
	}

	for i := 0; i < warmup; i++ {
		if err := run(); err != nil {
			return result{}, err
		}
	}

	start := time.Now()
	for i := 0; i < n; i++ {
		if err := run(); err != nil {
			return result{}, err
		}
	}
	return result{iterations: n, elapsed: time.Since(start)}, nil
}

// benchGoSQLDriver drives the same query through database/sql, with a
// single open connection (SetMaxOpenConns(1)) so both drivers are
// compared on one connection's worth of round trips rather than letting
// database/sql's internal pool parallelize its side.
func benchGoSQLDriver(cfg dsn.Config, query string, n, warmup int) (result, error) {
	dataSource := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s", cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)
	db, err := sql.Open("mysql", dataSource)
	if err != nil {
		return result{}, err
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	run := func() error {
		rows, err := db.Query(query)
		if err != nil {
			return err
		}
		cols, err := rows.Columns()
		if err != nil {
			rows.Close()
			return err
		}
		dest := make([]interface{}, len(cols))
		scratch := make([][]byte, len(cols))
		for i := range dest {
			dest[i] = &scratch[i]
		}
		for rows.Next() {
			if err := rows.Scan(dest...); err != nil {
				rows.Close()
				return err
			}
		}
		if err := rows.Err(); err != nil && err != io.EOF {
			rows.Close()
			return err
		}
		return rows.Close()
	}

	for i := 0; i < warmup; i++ {
		if err := run(); err != nil {
			return result{}, err
		}
	}

	start := time.Now()
	for i := 0; i < n; i++ {
		if err := run(); err != nil {
			return result{}, err
		}
	}
	return result{iterations: n, elapsed: time.Since(start)}, nil
}
