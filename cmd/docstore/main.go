package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/andreyvit/docstore"
	"github.com/dustin/go-humanize"
	"github.com/jessevdk/go-flags"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const iniFilename = "docstore.ini"

// Config is the configuration shared by every command.
type Config struct {
	Store StoreConfig `group:"Store" namespace:"store" env-namespace:"DOCSTORE_STORE"`
	Log   LogConfig   `group:"Logging" namespace:"log" env-namespace:"DOCSTORE_LOG"`
}

var cfg = new(Config)

func main() {
	var parser = flags.NewParser(cfg, flags.Default)
	parser.LongDescription = `docstore inspects and maintains a docstore directory.

Optionally configure docstore with a '` + iniFilename + `' file in the current working directory,
or with '~/.config/docstore/` + iniFilename + `'. Use the 'print-config' sub-command to inspect
the tool's current configuration.
`
	AddPrintConfigCmd(parser, iniFilename)
	mustAddCmd(parser, "stats", "Show collection sizes", `
Show documents, data file size and index sizes of every collection, or of
the collections selected with --db and --coll.
`, &cmdStats{})
	mustAddCmd(parser, "verify", "Check collection files for consistency", `
Read the files of every selected collection from disk and report every
inconsistency between the data file, the primary key index, the field
indexes and the admin records. Exits non-zero when a problem is found.
`, &cmdVerify{})
	mustAddCmd(parser, "find", "Query a collection", `
Print the documents whose field satisfies the predicate, one JSON object
per line. The value is a JSON literal: a number, true/false, a quoted
string or, for IN and NOT_IN, an array.
`, &cmdFind{})
	mustAddCmd(parser, "insert", "Insert JSON documents read from stdin", `
Insert one document per input line. Documents without an _id are assigned
a random UUID. The inserted keys are printed in input order.
`, &cmdInsert{})
	mustAddCmd(parser, "create-index", "Declare and build a field index", "", &cmdCreateIndex{})
	mustAddCmd(parser, "snapshot", "Archive every database into a snapshot file", "", &cmdSnapshot{})
	mustAddCmd(parser, "restore", "Recreate databases from a snapshot file", "", &cmdRestore{})

	MustParseConfig(parser, iniFilename)
}

func mustAddCmd(parser *flags.Parser, name, short, long string, data any) {
	if _, err := parser.AddCommand(name, short, long, data); err != nil {
		log.WithField("err", err).Fatal("failed to add command")
	}
}

func openStore() *docstore.DB {
	InitLog(cfg.Log)
	db, err := docstore.Open(docstore.Options{
		BasePath: cfg.Store.Path,
		Logger:   log.StandardLogger(),
		Verbose:  cfg.Store.Verbose,
	})
	if err != nil {
		log.WithField("err", err).Fatal("failed to open store")
	}
	return db
}

// Selection picks collections; empty fields match everything.
type Selection struct {
	DB   string `long:"db" description:"Database name"`
	Coll string `long:"coll" description:"Collection name (requires --db)"`
}

func (s Selection) collections(db *docstore.DB) ([][2]string, error) {
	if s.Coll != "" && s.DB == "" {
		return nil, errors.New("--coll requires --db")
	}
	var dbs []string
	if s.DB != "" {
		dbs = []string{s.DB}
	} else {
		var err error
		if dbs, err = db.Databases(); err != nil {
			return nil, err
		}
	}
	var result [][2]string
	for _, d := range dbs {
		if s.Coll != "" {
			result = append(result, [2]string{d, s.Coll})
			continue
		}
		colls, err := db.Collections(d)
		if err != nil {
			return nil, err
		}
		for _, c := range colls {
			result = append(result, [2]string{d, c})
		}
	}
	return result, nil
}

type cmdStats struct {
	Selection
}

func (cmd *cmdStats) Execute([]string) error {
	var db = openStore()
	defer db.Close()

	colls, err := cmd.collections(db)
	if err != nil {
		return err
	}
	var table = tablewriter.NewWriter(os.Stdout)
	table.Header("Database", "Collection", "Documents", "Data", "PK Index", "Indexes", "Index Entries", "Index Size", "Total")
	for _, dc := range colls {
		cs, err := db.Stats(dc[0], dc[1])
		if err != nil {
			return err
		}
		if err := table.Append([]string{
			cs.Database,
			cs.Collection,
			humanize.Comma(int64(cs.Documents)),
			humanize.IBytes(uint64(cs.DataSize)),
			humanize.IBytes(uint64(cs.PkIndexSize)),
			strconv.Itoa(len(cs.Indexes)),
			humanize.Comma(int64(cs.IndexEntries)),
			humanize.IBytes(uint64(cs.IndexSize)),
			humanize.IBytes(uint64(cs.TotalSize())),
		}); err != nil {
			return err
		}
	}
	return table.Render()
}

type cmdVerify struct {
	Selection
}

func (cmd *cmdVerify) Execute([]string) error {
	var db = openStore()
	defer db.Close()

	colls, err := cmd.collections(db)
	if err != nil {
		return err
	}
	var total int
	for _, dc := range colls {
		problems, err := db.Verify(dc[0], dc[1])
		if err != nil {
			return err
		}
		for _, p := range problems {
			fmt.Println(p.String())
		}
		total += len(problems)
	}
	if total > 0 {
		return errors.Errorf("%d problems in %d collections", total, len(colls))
	}
	fmt.Printf("%d collections OK\n", len(colls))
	return nil
}

type cmdFind struct {
	DB    string `long:"db" required:"true" description:"Database name"`
	Coll  string `long:"coll" required:"true" description:"Collection name"`
	Field string `long:"field" required:"true" description:"Field path, dot-separated for nested objects"`
	Op    string `long:"op" default:"EQUALS" description:"Operator name (EQUALS, GREATER_THAN, ...) or symbol (=, >, ...)"`
	Value string `long:"value" required:"true" description:"JSON literal to compare against"`
}

func (cmd *cmdFind) Execute([]string) error {
	op, err := docstore.ParseOperator(cmd.Op)
	if err != nil {
		return err
	}
	var raw any
	if err := json.Unmarshal([]byte(cmd.Value), &raw); err != nil {
		return errors.WithMessage(err, "--value")
	}
	operand, err := docstore.OperandOf(raw)
	if err != nil {
		return errors.WithMessage(err, "--value")
	}

	var db = openStore()
	defer db.Close()

	docs, err := db.Find(cmd.DB, cmd.Coll, cmd.Field, op, operand)
	if err != nil {
		return err
	}
	var enc = json.NewEncoder(os.Stdout)
	for _, doc := range docs {
		if err := enc.Encode(doc); err != nil {
			return err
		}
	}
	log.WithFields(log.Fields{"matched": len(docs)}).Info("find done")
	return nil
}

type cmdInsert struct {
	DB     string `long:"db" required:"true" description:"Database name"`
	Coll   string `long:"coll" required:"true" description:"Collection name"`
	Create bool   `long:"create" description:"Create the database and collection if missing"`
}

func (cmd *cmdInsert) Execute([]string) error {
	docs, err := readDocuments(os.Stdin)
	if err != nil {
		return err
	}

	var db = openStore()
	defer db.Close()

	if cmd.Create {
		if err := db.CreateDatabase(cmd.DB); err != nil && !errors.Is(err, docstore.ErrExists) {
			return err
		}
		if err := db.CreateCollection(cmd.DB, cmd.Coll); err != nil && !errors.Is(err, docstore.ErrExists) {
			return err
		}
	}
	keys, err := db.InsertMany(cmd.DB, cmd.Coll, docs)
	if err != nil {
		return err
	}
	for _, k := range keys {
		fmt.Println(k)
	}
	return nil
}

func readDocuments(r io.Reader) ([]*docstore.Document, error) {
	var docs []*docstore.Document
	var sc = bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 64*1024*1024)
	for n := 1; sc.Scan(); n++ {
		if len(sc.Bytes()) == 0 {
			continue
		}
		doc, err := docstore.ParseDocument(sc.Bytes())
		if err != nil {
			return nil, errors.WithMessagef(err, "line %d", n)
		}
		docs = append(docs, doc)
	}
	return docs, sc.Err()
}

type cmdCreateIndex struct {
	DB    string `long:"db" required:"true" description:"Database name"`
	Coll  string `long:"coll" required:"true" description:"Collection name"`
	Field string `long:"field" required:"true" description:"Field path, dot-separated for nested objects"`
	Type  string `long:"type" default:"string" choice:"string" choice:"double" choice:"boolean" description:"Value type"`
}

func (cmd *cmdCreateIndex) Execute([]string) error {
	var db = openStore()
	defer db.Close()
	return db.CreateIndex(cmd.DB, cmd.Coll, cmd.Field, cmd.Type)
}

type cmdSnapshot struct {
	Out string `long:"out" required:"true" description:"Path of the snapshot file to create"`
}

func (cmd *cmdSnapshot) Execute([]string) error {
	var db = openStore()
	defer db.Close()
	return db.Snapshot(cmd.Out)
}

type cmdRestore struct {
	In string `long:"in" required:"true" description:"Path of the snapshot file to restore"`
}

func (cmd *cmdRestore) Execute([]string) error {
	var db = openStore()
	defer db.Close()
	return db.Restore(cmd.In)
}
