/*
Package docstore implements a file-based document database. Documents are
JSON objects with a string primary key (the “_id” field), grouped into
collections, which are grouped into databases.

We implement:

1. Record storage, one append-mostly data file per collection.

2. A primary key index per collection mapping keys to record locations.

3. Optional field indexes, one per (field, value type), answering equality,
range, substring and membership predicates.

4. A write-through cache over all of the above, and a table of named locks
that serializes access to each collection and index.

# Technical Details

**Layout.**
Everything lives under Options.BasePath:

	<base>/<db>/<coll>/<coll>.dat                 records
	<base>/<db>/<coll>/<coll>.idx                 primary key index
	<base>/<db>/<coll>/<coll>-<field>-<type>.idx  field index

**Records.**
A record is the document encoded as a single JSON line. A location is the
record's byte offset and length, newline included. Inserts append. An update
that keeps the length overwrites in place; any other update or delete
rewrites the tail of the file, so every later record moves by the length
difference and the primary key index is shifted to match.

**Primary key index.**
One “key|position|length” line per live record, in insertion order. Edits
rewrite the file from the first changed line.

**Field indexes.**
One “value|id1;id2;…” line per distinct value, strictly ascending. Strings
compare case-insensitively, booleans as false < true, doubles numerically;
custom types (Options.CustomTypes) bring their own ordering. A value with no
remaining ids is removed. Separators inside values and ids are escaped with
a backslash.

**Admin database.**
The reserved “_admin” database holds two collections, “databases” (the
collection list of each database) and “collections” (the declared indexes
and document count of each collection). They are stored and cached like any
other collection. Names starting with an underscore are reserved.

**Locking.**
Every operation holds the lock of the collection it touches for its whole
duration, then the locks of the affected field indexes, then the admin
locks. There are no transactions and no write-ahead log: a crash in the
middle of a multi-file write can leave the files of a collection out of
step, which Verify detects.

**Queries.**
DB.Find uses the field index whose type matches the operand. Without one it
builds the same index in memory from the documents, so both paths agree.
*/
package docstore
