package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

// ConnectMySQL opens the relational users store used by the mysql variant.
func ConnectMySQL(ctx context.Context, dsn string) (*sql.DB, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("create mysql connector: %w", err)
	}

	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(15 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	return db, nil
}

func ConnectMySQLWithRetry(ctx context.Context, dsn string, policy RetryPolicy) (*sql.DB, error) {
	var db *sql.DB

	err := policy.Do(ctx, "mysql", func(ctx context.Context) error {
		d, err := ConnectMySQL(ctx, dsn)
		if err != nil {
			return err
		}
		db = d
		return nil
	})
	if err != nil {
		return nil, err
	}

	return db, nil
}
