package config

import (
	"fmt"
	"log"
	"net"
	"os"
	"time"

	mysqldsn "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenDatabase opens a gorm connection for the configured driver and tunes its pool.
func OpenDatabase(dbc DatabaseSection, logLevel string) (*gorm.DB, error) {
	dialector, err := dialectorFor(dbc)
	if err != nil {
		return nil, err
	}

	gLogger := logger.New(
		log.New(os.Stdout, "", log.LstdFlags),
		logger.Config{
			SlowThreshold:             2 * time.Second,
			LogLevel:                  toGormLogLevel(logLevel),
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:                                   gLogger,
		DisableForeignKeyConstraintWhenMigrating: dbc.Driver == "sqlite",
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}

	if dbc.Driver == "sqlite" {
		// a single connection keeps ":memory:" databases shared across queries
		sqlDB.SetMaxOpenConns(1)
	} else {
		// 连接池参数：适中规模 + 更积极的连接回收，减少“bad idle connection”噪音
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
		sqlDB.SetConnMaxIdleTime(10 * time.Minute)
	}

	// 启动期做一次 Ping，提前暴露网络/认证问题
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return conn, nil
}

func dialectorFor(dbc DatabaseSection) (gorm.Dialector, error) {
	switch dbc.Driver {
	case "mysql", "":
		dsn := dbc.URI
		if dsn == "" {
			mc := mysqldsn.NewConfig()
			mc.User = dbc.User
			mc.Passwd = dbc.Password
			mc.Net = "tcp"
			mc.Addr = net.JoinHostPort(dbc.Host, dbc.Port)
			mc.DBName = dbc.Name
			mc.ParseTime = true
			mc.Loc = time.Local
			mc.Params = map[string]string{"charset": "utf8mb4"}
			dsn = mc.FormatDSN()
		}
		return mysql.Open(dsn), nil
	case "postgres":
		dsn := dbc.URI
		if dsn == "" {
			dsn = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
				dbc.Host, dbc.Port, dbc.User, dbc.Password, dbc.Name)
		}
		return postgres.Open(dsn), nil
	case "sqlite":
		dsn := dbc.URI
		if dsn == "" {
			dsn = dbc.Name + ".db"
		}
		registerSQLiteDriver()
		return sqlite.New(sqlite.Config{DriverName: sqliteDriverName, DSN: dsn}), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", dbc.Driver)
	}
}

// toGormLogLevel maps application LogLevel to GORM's logger level.
func toGormLogLevel(level string) logger.LogLevel {
	switch level {
	case "debug":
		// GORM 'Info' shows SQL; use with caution
		return logger.Info
	case "info", "", "warn":
		return logger.Warn
	case "error":
		return logger.Error
	case "silent":
		return logger.Silent
	default:
		return logger.Warn
	}
}
