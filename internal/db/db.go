package db

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	maxOpenConnsPostgres = 25
	maxOpenConnsSQLite   = 10
	connMaxLifetime      = 30 * time.Minute
	pingTimeout          = 5 * time.Second
)

func init() {
	logger.Default = logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             0,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  true,
		},
	)
}

// Open opens a GORM connection for the given DSN. PostgreSQL DSNs
// (postgres:// URLs or key=value strings) connect through pgx; everything
// else is treated as a SQLite path or file: URL.
func Open(dsn string) (*gorm.DB, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, fmt.Errorf("db: empty dsn")
	}
	if dialectForDSN(trimmed) == DialectPostgres {
		return openPostgres(trimmed)
	}
	return openSQLite(trimmed)
}

// dialectForDSN infers the dialect from a DSN string.
func dialectForDSN(dsn string) string {
	lower := strings.ToLower(dsn)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return DialectPostgres
	case strings.Contains(lower, "host="), strings.Contains(lower, "dbname="), strings.Contains(lower, "sslmode="):
		return DialectPostgres
	default:
		return DialectSQLite
	}
}

func openPostgres(dsn string) (*gorm.DB, error) {
	sqlDB, err := openPostgresSQLDB(dsn)
	if err != nil {
		return nil, err
	}

	conn, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default,
	})
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("db: open: %w", err)
	}

	sqlDB.SetMaxOpenConns(maxOpenConnsPostgres)
	sqlDB.SetMaxIdleConns(maxOpenConnsPostgres)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)

	if errPing := ping(sqlDB); errPing != nil {
		_ = sqlDB.Close()
		return nil, errPing
	}
	return conn, nil
}

// openPostgresSQLDB opens a sql.DB via pgx with timestamp scanning pinned to
// the host timezone, so times read back match what local code wrote.
func openPostgresSQLDB(dsn string) (*sql.DB, error) {
	cfg, errParse := pgx.ParseConfig(dsn)
	if errParse != nil {
		return nil, fmt.Errorf("db: parse dsn: %w", errParse)
	}

	tzName, loc := hostTimeZone()
	cfg.RuntimeParams["timezone"] = tzName
	afterConnect := stdlib.OptionAfterConnect(func(ctx context.Context, conn *pgx.Conn) error {
		conn.TypeMap().RegisterType(&pgtype.Type{
			Name:  "timestamp",
			OID:   pgtype.TimestampOID,
			Codec: &pgtype.TimestampCodec{ScanLocation: loc},
		})
		conn.TypeMap().RegisterType(&pgtype.Type{
			Name:  "timestamptz",
			OID:   pgtype.TimestamptzOID,
			Codec: &pgtype.TimestamptzCodec{ScanLocation: loc},
		})
		return nil
	})

	return stdlib.OpenDB(*cfg, afterConnect), nil
}

func openSQLite(dsn string) (*gorm.DB, error) {
	normalized := withSQLiteDefaults(normalizeSQLiteDSN(dsn))
	if errDir := ensureSQLiteDir(normalized); errDir != nil {
		return nil, errDir
	}

	conn, err := gorm.Open(sqlite.Open(normalized), &gorm.Config{
		Logger: logger.Default,
	})
	if err != nil {
		return nil, fmt.Errorf("db: open sqlite: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("db: open sqlite sql: %w", err)
	}

	sqlDB.SetMaxOpenConns(maxOpenConnsSQLite)
	sqlDB.SetMaxIdleConns(maxOpenConnsSQLite)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, errExec := sqlDB.Exec(pragma); errExec != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("db: sqlite pragma %s: %w", pragma, errExec)
		}
	}

	if errPing := ping(sqlDB); errPing != nil {
		_ = sqlDB.Close()
		return nil, errPing
	}
	return conn, nil
}

func ping(sqlDB *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("db: ping: %w", err)
	}
	return nil
}

// normalizeSQLiteDSN converts sqlite:// and sqlite3:// URLs into file: DSNs.
func normalizeSQLiteDSN(dsn string) string {
	trimmed := strings.TrimSpace(dsn)
	lower := strings.ToLower(trimmed)
	if strings.HasPrefix(lower, "sqlite://") || strings.HasPrefix(lower, "sqlite3://") {
		if parts := strings.SplitN(trimmed, "://", 2); len(parts) == 2 {
			return "file:" + parts[1]
		}
	}
	return trimmed
}

// withSQLiteDefaults appends connection parameters the driver needs for
// concurrent use, keeping any the caller already set.
func withSQLiteDefaults(dsn string) string {
	defaults := [][2]string{
		{"_busy_timeout", "5000"},
		{"_journal_mode", "WAL"},
		{"_foreign_keys", "on"},
		{"_synchronous", "NORMAL"},
	}

	existing := map[string]struct{}{}
	if idx := strings.Index(dsn, "?"); idx >= 0 {
		for _, part := range strings.Split(strings.ToLower(dsn[idx+1:]), "&") {
			if part == "" {
				continue
			}
			existing[strings.SplitN(part, "=", 2)[0]] = struct{}{}
		}
	}

	var add []string
	for _, kv := range defaults {
		if _, ok := existing[kv[0]]; !ok {
			add = append(add, kv[0]+"="+kv[1])
		}
	}
	if len(add) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(add, "&")
}

// sqliteFilePath extracts the on-disk path from a SQLite DSN, or "" for
// in-memory databases.
func sqliteFilePath(dsn string) string {
	trimmed := strings.TrimSpace(dsn)
	lower := strings.ToLower(trimmed)
	if strings.HasPrefix(lower, "file:") {
		path := trimmed[len("file:"):]
		if idx := strings.Index(path, "?"); idx >= 0 {
			path = path[:idx]
		}
		path = strings.TrimPrefix(path, "//")
		if path == "" || path == ":memory:" {
			return ""
		}
		return path
	}
	if strings.Contains(lower, "://") || trimmed == ":memory:" {
		return ""
	}
	if idx := strings.Index(trimmed, "?"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return trimmed
}

func ensureSQLiteDir(dsn string) error {
	path := sqliteFilePath(dsn)
	if path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if errMkdir := os.MkdirAll(dir, 0755); errMkdir != nil {
		return fmt.Errorf("db: create sqlite dir: %w", errMkdir)
	}
	return nil
}

var (
	hostTZOnce sync.Once
	hostTZName string
	hostTZLoc  *time.Location
)

// hostTimeZone resolves the host timezone once, falling back to a fixed
// offset zone when no named zone can be determined.
func hostTimeZone() (string, *time.Location) {
	hostTZOnce.Do(func() {
		for _, candidate := range hostTimeZoneCandidates() {
			name := strings.TrimPrefix(strings.TrimSpace(candidate), ":")
			if name == "" {
				continue
			}
			if loc, errLoad := time.LoadLocation(name); errLoad == nil {
				hostTZName, hostTZLoc = name, loc
				time.Local = loc
				return
			}
		}

		_, offset := time.Now().Zone()
		name := formatUTCOffset(offset)
		loc := time.FixedZone(name, offset)
		hostTZName, hostTZLoc = name, loc
		time.Local = loc
	})
	return hostTZName, hostTZLoc
}

func hostTimeZoneCandidates() []string {
	candidates := []string{os.Getenv("TZ")}
	if data, errRead := os.ReadFile("/etc/timezone"); errRead == nil {
		candidates = append(candidates, string(data))
	}
	if link, errReadlink := os.Readlink("/etc/localtime"); errReadlink == nil {
		const marker = "/zoneinfo/"
		if idx := strings.Index(link, marker); idx >= 0 {
			name := strings.Trim(link[idx+len(marker):], "/")
			name = strings.TrimPrefix(name, "posix/")
			name = strings.TrimPrefix(name, "right/")
			candidates = append(candidates, name)
		}
	}
	return candidates
}

// formatUTCOffset formats a numeric offset into "+HH:MM" or "-HH:MM".
func formatUTCOffset(offsetSeconds int) string {
	sign := "+"
	if offsetSeconds < 0 {
		sign = "-"
		offsetSeconds = -offsetSeconds
	}
	return fmt.Sprintf("%s%02d:%02d", sign, offsetSeconds/3600, (offsetSeconds%3600)/60)
}
