package datarecording

import (
	"encoding/csv"
	"fmt"
	"os"
	"reflect"

	"github.com/fatih/structs"
	"github.com/rs/xid"
	"github.com/tebeka/atexit"
)

type csvTable struct {
	structType reflect.Type
	file       *os.File
	writer     *csv.Writer
	entries    []any
}

// csvWriter appends each table to its own CSV file.
type csvWriter struct {
	path       string
	tables     map[string]*csvTable
	tableOrder []string
	bufferSize int
	entryCount int
	closed     bool
}

// NewCSVRecorder creates a DataRecorder that writes table t to the file
// <path>_<t>.csv. Existing files are appended to, and the header row is only
// written to new files. A generated path is used if path is empty.
func NewCSVRecorder(path string) DataRecorder {
	if path == "" {
		path = "flashsim_" + xid.New().String()
	}

	w := &csvWriter{
		path:       path,
		tables:     make(map[string]*csvTable),
		bufferSize: 1000,
	}

	atexit.Register(func() { w.Flush() })

	return w
}

// FileName returns the file that holds a table.
func (w *csvWriter) FileName(tableName string) string {
	return w.path + "_" + tableName + ".csv"
}

func (w *csvWriter) CreateTable(tableName string, sampleEntry any) {
	err := checkStructFields(sampleEntry)
	if err != nil {
		panic(err)
	}

	if _, exists := w.tables[tableName]; exists {
		panic(fmt.Sprintf("table %s already exists", tableName))
	}

	filename := w.FileName(tableName)
	file, err := os.OpenFile(filename,
		os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		panic(err)
	}

	info, err := file.Stat()
	if err != nil {
		panic(err)
	}

	table := &csvTable{
		structType: reflect.TypeOf(sampleEntry),
		file:       file,
		writer:     csv.NewWriter(file),
	}

	if info.Size() == 0 {
		mustWriteRow(table.writer, structs.Names(sampleEntry))
	}

	w.tables[tableName] = table
	w.tableOrder = append(w.tableOrder, tableName)
}

func (w *csvWriter) InsertData(tableName string, entry any) {
	table, exists := w.tables[tableName]
	if !exists {
		panic(fmt.Sprintf("table %s does not exist", tableName))
	}

	if reflect.TypeOf(entry) != table.structType {
		panic(fmt.Sprintf("entry of type %T does not match table %s",
			entry, tableName))
	}

	table.entries = append(table.entries, entry)

	w.entryCount++
	if w.entryCount >= w.bufferSize {
		w.Flush()
	}
}

func (w *csvWriter) ListTables() []string {
	return append([]string(nil), w.tableOrder...)
}

func (w *csvWriter) Flush() {
	if w.closed {
		return
	}

	for _, tableName := range w.tableOrder {
		table := w.tables[tableName]

		for _, entry := range table.entries {
			values := reflect.ValueOf(entry)
			row := make([]string, values.NumField())

			for i := range row {
				row[i] = fmt.Sprint(values.Field(i).Interface())
			}

			mustWriteRow(table.writer, row)
		}

		table.entries = nil

		table.writer.Flush()
		if err := table.writer.Error(); err != nil {
			panic(err)
		}
	}

	w.entryCount = 0
}

func (w *csvWriter) Close() error {
	if w.closed {
		return nil
	}

	w.Flush()
	w.closed = true

	var firstErr error
	for _, tableName := range w.tableOrder {
		err := w.tables[tableName].file.Close()
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

func mustWriteRow(writer *csv.Writer, row []string) {
	if err := writer.Write(row); err != nil {
		panic(err)
	}
}
