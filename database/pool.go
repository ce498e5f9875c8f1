package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/nakagami/firebirdsql"
	"github.com/mattn/go-sqlite3"
	log "github.com/sirupsen/logrus"
	"github.com/tebben/qkanhe/settings"
)

const (
	QKan = "qkan"
	HE   = "he"
)

type handle struct {
	db        *sql.DB
	driver    string
	dsn       string
	borrowers int // sessions holding db; cleanup skips borrowed handles
	lastUsed  time.Time
}

var (
	dbMap           = make(map[string]*handle) // open databases by name
	dbMutex         sync.Mutex                 // guards dbMap
	cleanupInterval = 1 * time.Minute          // interval to check for idle databases
)

var (
	spatialiteDrivers = make(map[string]string) // extension -> registered driver name
	spatialiteMutex   sync.Mutex
)

func init() {
	go periodicCleanup()
}

// periodicCleanup closes databases that have been released for two cleanup
// intervals.
func periodicCleanup() {
	for {
		time.Sleep(cleanupInterval)
		closeIdle(2 * cleanupInterval)
	}
}

// closeIdle closes every database without borrowers that was released
// longer than idle ago and has no connection in use.
func closeIdle(idle time.Duration) {
	dbMutex.Lock()
	defer dbMutex.Unlock()

	for name, h := range dbMap {
		if h.borrowers > 0 || time.Since(h.lastUsed) <= idle {
			continue
		}
		if h.db.Stats().InUse > 0 {
			log.Debugf("Database %s is active, skipping cleanup", name)
			continue
		}
		h.db.Close()
		delete(dbMap, name)
		log.Debugf("Closed idle database: %s", name)
	}
}

// Release returns a database obtained from GetQKanDB or GetHEDB. The handle
// stays open for reuse until it has been idle for two cleanup intervals.
func Release(name string) {
	dbMutex.Lock()
	defer dbMutex.Unlock()

	if h, ok := dbMap[name]; ok && h.borrowers > 0 {
		h.borrowers--
		h.lastUsed = time.Now()
	}
}

// CloseDB closes the named database if it is open.
func CloseDB(name string) {
	dbMutex.Lock()
	defer dbMutex.Unlock()

	if h, ok := dbMap[name]; ok {
		h.db.Close()
		delete(dbMap, name)
	}
}

// CloseDBs closes all open databases.
func CloseDBs() {
	dbMutex.Lock()
	defer dbMutex.Unlock()

	for _, h := range dbMap {
		h.db.Close()
	}
	dbMap = make(map[string]*handle)
}

// GetQKanDB returns the QKan database described by c together with its
// dialect.
func GetQKanDB(ctx context.Context, c settings.QKanConfig) (*sql.DB, Dialect, error) {
	dialect, err := DialectByName(c.Dialect)
	if err != nil {
		return nil, Dialect{}, err
	}

	var driver, dsn string
	switch dialect.Name {
	case SpatiaLite.Name:
		driver, dsn = spatialiteDriver(c.Extension), sqliteDSN(c.Path)
	case WKB.Name:
		driver, dsn = wkbDriver, sqliteDSN(c.Path)
	case PostGIS.Name:
		driver, dsn = "pgx", c.ConnectionString
	}

	db, err := getDB(ctx, QKan, driver, dsn)
	if err != nil {
		return nil, Dialect{}, err
	}
	return db, dialect, nil
}

// GetHEDB returns the Hystem-Extran database described by c.
func GetHEDB(ctx context.Context, c settings.HEConfig) (*sql.DB, error) {
	return getDB(ctx, HE, c.Driver, heDSN(c))
}

// heDSN returns the DSN of the HE database. A Firebird database given by
// path is opened on he.server; connection_string is only used without path.
func heDSN(c settings.HEConfig) string {
	switch {
	case c.Driver == "sqlite3":
		return sqliteDSN(c.Path)
	case c.Path != "":
		return strings.TrimSuffix(c.Server, "/") + "/" + c.Path
	default:
		return c.ConnectionString
	}
}

// getDB borrows the open database registered under name, opening it when
// needed. A registered database with a different driver or DSN is closed
// and replaced. Callers hand the database back with Release.
func getDB(ctx context.Context, name, driver, dsn string) (*sql.DB, error) {
	dbMutex.Lock()
	defer dbMutex.Unlock()

	if h, ok := dbMap[name]; ok {
		if h.driver == driver && h.dsn == dsn {
			h.borrowers++
			h.lastUsed = time.Now()
			return h.db, nil
		}
		h.db.Close()
		delete(dbMap, name)
	}

	if dsn == "" {
		return nil, fmt.Errorf("no connection configured for database '%s'", name)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening database '%s': %v", name, err)
	}

	// A pass uses exactly one connection per database.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to database '%s': %v", name, err)
	}

	log.Debugf("Opened database %s (%s)", name, driver)
	dbMap[name] = &handle{db: db, driver: driver, dsn: dsn, borrowers: 1, lastUsed: time.Now()}
	return db, nil
}

func sqliteDSN(path string) string {
	if path == "" {
		return ""
	}
	return path + "?_busy_timeout=5000"
}

// spatialiteDriver registers a sqlite3 driver loading the given SpatiaLite
// extension on every connection and returns its name.
func spatialiteDriver(extension string) string {
	spatialiteMutex.Lock()
	defer spatialiteMutex.Unlock()

	if name, ok := spatialiteDrivers[extension]; ok {
		return name
	}

	name := fmt.Sprintf("spatialite_%d", len(spatialiteDrivers))
	sql.Register(name, &sqlite3.SQLiteDriver{Extensions: []string{extension}})
	spatialiteDrivers[extension] = name
	return name
}
