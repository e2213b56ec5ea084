package data

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/journeylab/db-reset-go/domain"
)

// CatalogGateway talks to a MySQL-compatible catalog. It implements the two
// operations the reset needs (cascading drop, create) plus the inspection
// helpers used for post-reset verification, optionally reaching the server
// through an SSH tunnel.
type CatalogGateway struct {
	host          string
	port          int
	user          string
	password      string
	mysqldumpPath string
	sshTunnel     *SSHTunnel
	effectiveHost string
	effectivePort int
	db            *sql.DB
	logger        zerolog.Logger
}

// NewCatalogGateway creates a new CatalogGateway instance
func NewCatalogGateway(host string, port int, user string, password string,
	mysqldumpPath string,
	sshHost string, sshPort int, sshUser string, sshKeyPath string,
	bastionHost string, bastionPort int, bastionUser string, bastionKeyPath string) *CatalogGateway {

	// Resolve mysqldump path
	if mysqldumpPath == "" {
		mysqldumpPath = os.Getenv("MYSQLDUMP_PATH")
	}
	if mysqldumpPath == "" {
		mysqldumpPath = "mysqldump"
	}

	gateway := &CatalogGateway{
		host:          host,
		port:          port,
		user:          user,
		password:      password,
		mysqldumpPath: mysqldumpPath,
		effectiveHost: host,
		effectivePort: port,
		logger:        log.With().Str("component", "catalog").Logger(),
	}

	// Setup SSH tunnel if configured
	if sshHost != "" && sshUser != "" && sshKeyPath != "" {
		gateway.sshTunnel = NewSSHTunnel(
			sshHost, sshPort, sshUser, sshKeyPath,
			host, port,
			bastionHost, bastionPort, bastionUser, bastionKeyPath,
		)
	}

	return gateway
}

// ensureSSHTunnel ensures SSH tunnel is established if configured
func (cg *CatalogGateway) ensureSSHTunnel() error {
	if cg.sshTunnel != nil {
		if cg.effectiveHost == cg.host && cg.effectivePort == cg.port {
			// Tunnel not started yet
			localPort, err := cg.sshTunnel.Start()
			if err != nil {
				return fmt.Errorf("failed to start SSH tunnel: %w", err)
			}
			cg.effectiveHost = "127.0.0.1"
			cg.effectivePort = localPort
		}
	} else {
		cg.effectiveHost = cg.host
		cg.effectivePort = cg.port
	}
	return nil
}

// connect opens (or reuses) the catalog connection.
func (cg *CatalogGateway) connect(ctx context.Context) (*sql.DB, error) {
	if cg.db != nil {
		return cg.db, nil
	}

	if err := cg.ensureSSHTunnel(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConnectivity, err)
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/", cg.user, cg.password, cg.effectiveHost, cg.effectivePort)
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog connection: %w", classifyCatalogErr(err))
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach catalog: %w", classifyCatalogErr(err))
	}

	cg.db = db
	return cg.db, nil
}

// quoteIdent backquotes an already-validated identifier.
func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "") + "`"
}

// DropDatabaseCascade destroys the named database and everything in it.
// MySQL's DROP DATABASE is cascading: all contained tables and views go with
// it (dependent views in other databases are left dangling, which is the
// server's own semantic). A database that does not exist is not an error.
func (cg *CatalogGateway) DropDatabaseCascade(ctx context.Context, name string) error {
	if err := domain.ValidateName(name); err != nil {
		return err
	}

	db, err := cg.connect(ctx)
	if err != nil {
		return err
	}

	cg.logger.Info().Str("database", name).Msg("dropping database")
	if _, err := db.ExecContext(ctx, "DROP DATABASE IF EXISTS "+quoteIdent(name)); err != nil {
		return classifyCatalogErr(err)
	}
	return nil
}

// CreateDatabase creates an empty database with the given name. A name
// collision means another writer raced us and surfaces as
// domain.ErrConcurrentModification.
func (cg *CatalogGateway) CreateDatabase(ctx context.Context, name string) error {
	if err := domain.ValidateName(name); err != nil {
		return err
	}

	db, err := cg.connect(ctx)
	if err != nil {
		return err
	}

	cg.logger.Info().Str("database", name).Msg("creating database")
	if _, err := db.ExecContext(ctx, "CREATE DATABASE "+quoteIdent(name)); err != nil {
		return classifyCatalogErr(err)
	}
	return nil
}

// ListDatabases returns all user databases, skipping the server's system
// schemas.
func (cg *CatalogGateway) ListDatabases(ctx context.Context) ([]*domain.Database, error) {
	db, err := cg.connect(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx,
		`SELECT schema_name FROM information_schema.schemata
		 WHERE schema_name NOT IN ('information_schema', 'performance_schema', 'mysql', 'sys')
		 ORDER BY schema_name`)
	if err != nil {
		return nil, classifyCatalogErr(err)
	}
	defer rows.Close()

	var databases []*domain.Database
	for rows.Next() {
		var dbName string
		if err := rows.Scan(&dbName); err != nil {
			return nil, classifyCatalogErr(err)
		}
		databases = append(databases, domain.NewDatabase(dbName))
	}
	return databases, rows.Err()
}

// DatabaseExists reports whether a database with the given name exists.
func (cg *CatalogGateway) DatabaseExists(ctx context.Context, name string) (bool, error) {
	if err := domain.ValidateName(name); err != nil {
		return false, err
	}

	db, err := cg.connect(ctx)
	if err != nil {
		return false, err
	}

	var found string
	row := db.QueryRowContext(ctx,
		"SELECT schema_name FROM information_schema.schemata WHERE schema_name = ?", name)
	switch err := row.Scan(&found); err {
	case nil:
		return true, nil
	case sql.ErrNoRows:
		return false, nil
	default:
		return false, classifyCatalogErr(err)
	}
}

// ListTables returns the names of all tables and views in the named database.
func (cg *CatalogGateway) ListTables(ctx context.Context, name string) ([]string, error) {
	if err := domain.ValidateName(name); err != nil {
		return nil, err
	}

	db, err := cg.connect(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx,
		"SELECT table_name FROM information_schema.tables WHERE table_schema = ? ORDER BY table_name", name)
	if err != nil {
		return nil, classifyCatalogErr(err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var tableName string
		if err := rows.Scan(&tableName); err != nil {
			return nil, classifyCatalogErr(err)
		}
		tables = append(tables, tableName)
	}
	return tables, rows.Err()
}

// DumpDatabase dumps a database to dumpPath using mysqldump, for the
// optional pre-reset snapshot.
func (cg *CatalogGateway) DumpDatabase(name string, dumpPath string) error {
	if err := domain.ValidateName(name); err != nil {
		return err
	}
	if err := cg.ensureSSHTunnel(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrConnectivity, err)
	}

	// Resolve mysqldump absolute path
	mysqldump := cg.mysqldumpPath
	if !filepath.IsAbs(mysqldump) {
		resolved, err := exec.LookPath(mysqldump)
		if err != nil {
			return fmt.Errorf("mysqldump not found. Set MYSQLDUMP_PATH in .env or ensure '%s' is in PATH", mysqldump)
		}
		mysqldump = resolved
	}

	if err := os.MkdirAll(filepath.Dir(dumpPath), 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	cmd := exec.Command(mysqldump,
		fmt.Sprintf("--host=%s", cg.effectiveHost),
		fmt.Sprintf("--port=%d", cg.effectivePort),
		fmt.Sprintf("--user=%s", cg.user),
		fmt.Sprintf("--password=%s", cg.password),
		"--single-transaction",
		"--quick",
		"--skip-lock-tables",
		name,
	)

	outFile, err := os.Create(dumpPath)
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}
	defer outFile.Close()

	cmd.Stdout = outFile
	cmd.Stderr = os.Stderr

	cg.logger.Info().Str("database", name).Str("path", dumpPath).Msg("dumping database")
	if err := cmd.Run(); err != nil {
		// Clean up empty file
		if info, statErr := os.Stat(dumpPath); statErr == nil && info.Size() == 0 {
			os.Remove(dumpPath)
		}
		return fmt.Errorf("mysqldump failed: %w", err)
	}

	info, err := os.Stat(dumpPath)
	if err != nil {
		return fmt.Errorf("snapshot file not found: %w", err)
	}
	if info.Size() == 0 {
		os.Remove(dumpPath)
		return fmt.Errorf("snapshot file is empty. Check mysqldump permissions and options")
	}

	return nil
}

// Close closes the catalog connection and tears down the SSH tunnel.
func (cg *CatalogGateway) Close() {
	if cg.db != nil {
		cg.db.Close()
		cg.db = nil
	}
	if cg.sshTunnel != nil {
		cg.sshTunnel.Stop()
		cg.effectiveHost = cg.host
		cg.effectivePort = cg.port
	}
}
