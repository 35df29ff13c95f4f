package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/diwise/service-chassis/pkg/infrastructure/buildinfo"
	"github.com/diwise/service-chassis/pkg/infrastructure/env"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	appName string = "snapshot-cleaner"
)

// Deployments that persist component snapshots keep every serialized state
// a component has passed through. This job trims each component's history
// down to the newest snapshots and reclaims the table space.

func main() {
	appVersion := buildinfo.SourceVersion()

	ctx, log, cleanup := o11y.Init(context.Background(), appName, appVersion, "json")
	defer cleanup()

	cfg := LoadConfiguration(ctx)

	log.Debug("begin cleaning snapshots", slog.Int("keep", cfg.keepCount))

	p, err := connect(ctx, cfg)
	if err != nil {
		log.Error("failed to connect to database", "err", err.Error())
		os.Exit(1)
	}
	defer p.Close()

	componentKeys, err := getComponents(ctx, p)
	if err != nil {
		log.Error("failed to get components", "err", err.Error())
		os.Exit(1)
	}

	log.Debug("number of total components", "count", len(componentKeys))

	var totalCount int64 = 0

	for _, key := range componentKeys {
		l := log.With(slog.String("component", key.String()))

		l.Debug("find superseded snapshots", slog.Time("start_time", time.Now()))

		superseded, err := findSuperseded(ctx, p, key, cfg.keepCount)
		if err != nil {
			l.Error("failed to get superseded snapshots", "err", err.Error())
			os.Exit(1)
		}

		if len(superseded) == 0 {
			l.Debug("found no superseded snapshots", slog.Time("end_time", time.Now()))
			continue
		}

		totalCount += int64(len(superseded))

		err = deleteSnapshots(ctx, p, superseded)
		if err != nil {
			l.Error("failed to delete snapshots", "err", err.Error())
			os.Exit(1)
		}

		l.Debug("done cleaning snapshots", slog.Int("count", len(superseded)), slog.Time("end_time", time.Now()))
	}

	log.Debug("vacuum")

	err = vacuum(ctx, p)
	if err != nil {
		log.Error("failed to vacuum table", "err", err.Error())
		os.Exit(1)
	}

	log.Info("done cleaning", slog.Int64("total", totalCount))
}

type Config struct {
	host      string
	user      string
	password  string
	port      string
	dbname    string
	sslmode   string
	keepCount int
}

func LoadConfiguration(ctx context.Context) Config {
	return Config{
		host:      env.GetVariableOrDefault(ctx, "POSTGRES_HOST", ""),
		user:      env.GetVariableOrDefault(ctx, "POSTGRES_USER", ""),
		password:  env.GetVariableOrDefault(ctx, "POSTGRES_PASSWORD", ""),
		port:      env.GetVariableOrDefault(ctx, "POSTGRES_PORT", "5432"),
		dbname:    env.GetVariableOrDefault(ctx, "POSTGRES_DBNAME", "diwise"),
		sslmode:   env.GetVariableOrDefault(ctx, "POSTGRES_SSLMODE", "disable"),
		keepCount: 10,
	}
}

func (c Config) ConnStr() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", c.user, c.password, c.host, c.port, c.dbname, c.sslmode)
}

func connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	conn, err := pgxpool.New(ctx, cfg.ConnStr())
	if err != nil {
		return nil, err
	}

	err = conn.Ping(ctx)
	if err != nil {
		return nil, err
	}

	return conn, err
}

type componentKey struct {
	tenant        string
	componentType string
	componentID   string
}

func (k componentKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.tenant, k.componentType, k.componentID)
}

func getComponents(ctx context.Context, p *pgxpool.Pool) ([]componentKey, error) {
	sql := `SELECT DISTINCT tenant, component_type, component_id FROM snapshots ORDER BY tenant, component_type, component_id;`

	rows, err := p.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make([]componentKey, 0)

	for rows.Next() {
		var k componentKey
		err := rows.Scan(&k.tenant, &k.componentType, &k.componentID)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}

	return keys, rows.Err()
}

func findSuperseded(ctx context.Context, p *pgxpool.Pool, key componentKey, keepCount int) ([]string, error) {
	sql := `
		select snapshot_id from (
			SELECT snapshot_id, ROW_NUMBER() OVER(PARTITION BY tenant, component_type, component_id ORDER BY ts desc) AS Row
			FROM snapshots
			WHERE tenant=$1 AND component_type=$2 AND component_id=$3
		) ranked
		where ranked.Row > $4;`

	rows, err := p.Query(ctx, sql, key.tenant, key.componentType, key.componentID, keepCount)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snapshots := make([]string, 0)

	for rows.Next() {
		var s string
		err := rows.Scan(&s)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return snapshots, nil
}

func deleteSnapshots(ctx context.Context, p *pgxpool.Pool, snapshots []string) error {
	if len(snapshots) == 0 {
		return nil
	}

	tx, err := p.Begin(ctx)
	if err != nil {
		return err
	}

	for _, s := range snapshots {
		sql := `DELETE FROM snapshots WHERE snapshot_id=$1;`

		_, err := tx.Exec(ctx, sql, s)
		if err != nil {
			tx.Rollback(ctx)
			return err
		}
	}

	return tx.Commit(ctx)
}

func vacuum(ctx context.Context, p *pgxpool.Pool) error {
	_, err := p.Exec(ctx, "VACUUM ANALYZE snapshots;")
	if err != nil {
		return err
	}

	return nil
}
