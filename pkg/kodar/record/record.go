// Package record defines the Sequence Record, the key/value pair every
// pipeline stage reads and writes, and the text layouts stored in values.
package record

import (
	"strconv"
	"strings"
)

// KeyKind tells which half of a Key is meaningful.
type KeyKind int

const (
	Text KeyKind = iota
	Long
)

func (k KeyKind) String() string {
	switch k {
	case Long:
		return "long"
	default:
		return "text"
	}
}

// Key is either a textual token or a numeric row/cluster id.
type Key struct {
	Kind KeyKind
	Text string
	Long int64
}

// TextKey builds a Text key.
func TextKey(s string) Key { return Key{Kind: Text, Text: s} }

// LongKey builds a Long key.
func LongKey(n int64) Key { return Key{Kind: Long, Long: n} }

// String renders the key the way it appears in exports and logs.
func (k Key) String() string {
	if k.Kind == Long {
		return strconv.FormatInt(k.Long, 10)
	}
	return k.Text
}

// AsLong interprets the key as a number; Text keys holding decimal digits are
// accepted since point names are row ids rendered as text.
func (k Key) AsLong() (int64, bool) {
	if k.Kind == Long {
		return k.Long, true
	}
	n, err := strconv.ParseInt(strings.TrimSpace(k.Text), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Record is one persisted key/value pair.
type Record struct {
	Key   Key
	Value string
}

// Row is the storage row shape shared by the store backends.
type Row struct {
	KeyKind int    `yson:"key_kind" json:"key_kind"`
	KeyText string `yson:"key_text" json:"key_text"`
	KeyLong int64  `yson:"key_long" json:"key_long"`
	Value   string `yson:"value" json:"value"`
}

// ToRow converts a record into its storage row.
func (r Record) ToRow() Row {
	return Row{KeyKind: int(r.Key.Kind), KeyText: r.Key.Text, KeyLong: r.Key.Long, Value: r.Value}
}

// FromRow converts a storage row back into a record.
func FromRow(row Row) Record {
	return Record{
		Key:   Key{Kind: KeyKind(row.KeyKind), Text: row.KeyText, Long: row.KeyLong},
		Value: row.Value,
	}
}
