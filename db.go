package docstore

import (
	"slices"
	"time"

	"github.com/andreyvit/docstore/lockmap"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// slowLockWait is the lock wait above which a verbose DB logs the wait.
const slowLockWait = 100 * time.Millisecond

// DB is an open document store rooted at Options.BasePath. It owns the
// cache, the lock table and the filesystem, and is safe for concurrent use.
type DB struct {
	fs      afero.Fs
	layout  layout
	log     log.FieldLogger
	verbose bool
	types   typeRegistry
	cache   *Cache
	locks   *lockmap.Map
}

type Options struct {
	// BasePath is the directory holding one folder per database.
	BasePath string
	// Fs defaults to the OS filesystem.
	Fs afero.Fs
	// Logger defaults to the logrus standard logger.
	Logger log.FieldLogger
	// Verbose logs every mutation at debug level.
	Verbose bool
	// CustomTypes declares index types beyond double, boolean and string.
	CustomTypes []*CustomType
	// Registerer, if set, receives the docstore metrics.
	Registerer prometheus.Registerer
}

// Open prepares the base directory and the admin database. It does not load
// anything eagerly.
func Open(opt Options) (*DB, error) {
	if opt.BasePath == "" {
		return nil, errors.New("docstore: BasePath is required")
	}
	if opt.Fs == nil {
		opt.Fs = afero.NewOsFs()
	}
	if opt.Logger == nil {
		opt.Logger = log.StandardLogger()
	}
	types, err := newTypeRegistry(opt.CustomTypes)
	if err != nil {
		return nil, errors.WithMessage(err, "docstore")
	}
	if opt.Registerer != nil {
		for _, c := range Collectors() {
			if err := opt.Registerer.Register(c); err != nil {
				var are prometheus.AlreadyRegisteredError
				if !errors.As(err, &are) {
					return nil, errors.WithMessage(err, "docstore: registering metrics")
				}
			}
		}
	}

	l := layout{fs: opt.Fs, base: opt.BasePath}
	db := &DB{
		fs:      opt.Fs,
		layout:  l,
		log:     opt.Logger.WithField("base", opt.BasePath),
		verbose: opt.Verbose,
		types:   types,
		locks:   lockmap.New(),
	}
	db.cache = newCache(l, types, db.log)
	db.locks.OnWait = db.observeLockWait

	if err := opt.Fs.MkdirAll(opt.BasePath, 0755); err != nil {
		return nil, errors.WithMessagef(err, "docstore: creating %s", opt.BasePath)
	}
	for _, coll := range []string{adminDatabases, adminCollections} {
		if err := db.bootstrap(AdminDatabase, coll); err != nil {
			return nil, errors.WithMessage(err, "docstore: preparing admin database")
		}
	}
	db.log.Info("docstore opened")
	return db, nil
}

// bootstrap creates whichever files of a collection are missing.
func (db *DB) bootstrap(d, c string) error {
	if err := db.layout.records(d, c).Create(); err != nil && !errors.Is(err, ErrExists) {
		return err
	}
	if err := db.layout.pkIndex(d, c).Create(); err != nil && !errors.Is(err, ErrExists) {
		return err
	}
	return nil
}

// Close releases the DB. Files are only held open for the duration of a
// call, so it never fails today; the DB must not be used afterwards.
func (db *DB) Close() error {
	db.log.Info("docstore closed")
	return nil
}

// Cache exposes the cache for tools that need direct index access. Callers
// that mutate through it must hold the matching locks from Locks.
func (db *DB) Cache() *Cache {
	return db.cache
}

func (db *DB) Locks() *lockmap.Map {
	return db.locks
}

func (db *DB) observeLockWait(name string, waited time.Duration) {
	lockWaitSeconds.Observe(waited.Seconds())
	if db.verbose && waited >= slowLockWait {
		db.log.WithFields(log.Fields{"lock": name, "waited": waited}).Debug("slow lock")
	}
}

// lock acquires names in order and returns a func releasing them in reverse.
func (db *DB) lock(names ...string) func() {
	for _, n := range names {
		db.locks.Lock(n)
	}
	return func() {
		for i := len(names) - 1; i >= 0; i-- {
			db.locks.Release(names[i])
		}
	}
}

var (
	adminDatabasesLock   = CollectionID(AdminDatabase, adminDatabases)
	adminCollectionsLock = CollectionID(AdminDatabase, adminCollections)
)

// indexLocks returns the lock names of every index of meta, sorted.
func indexLocks(meta *CollectionMeta) []string {
	names := make([]string, len(meta.Indexes))
	for i, s := range meta.Indexes {
		names[i] = IndexID(meta.Database, meta.Collection, s.Field, s.Type)
	}
	slices.Sort(names)
	return names
}

// collection returns the admin record of a registered user collection.
func (db *DB) collection(d, c string) (*CollectionMeta, error) {
	meta, ok, err := db.cache.CollectionMeta(d, c)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, collErrf(d, c, "", ErrNotFound, "collection does not exist")
	}
	return meta, nil
}

func (db *DB) logMutation(op string, d, c string, n int) {
	if db.verbose {
		db.log.WithFields(log.Fields{"op": op, "db": d, "coll": c, "docs": n}).Debug("mutation")
	}
}
