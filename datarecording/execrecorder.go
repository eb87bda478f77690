package datarecording

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ExecTable is the name of the table that describes the program execution.
const ExecTable = "exec_info"

// ExecInfo is one property of the program execution.
type ExecInfo struct {
	Property string
	Value    string
}

// Records program execution
type execRecorder struct {
	recorder DataRecorder
	entries  []ExecInfo
}

func newExecRecorder(recorder DataRecorder) *execRecorder {
	e := &execRecorder{recorder: recorder}
	recorder.CreateTable(ExecTable, ExecInfo{})

	return e
}

// Start notes the start time, the command line and the working directory.
func (e *execRecorder) Start() {
	e.entries = append(e.entries,
		ExecInfo{"Start Time", now()},
		ExecInfo{"Command", strings.Join(os.Args, " ")})

	ex, err := os.Executable()
	if err != nil {
		panic(err)
	}

	e.entries = append(e.entries,
		ExecInfo{"Working Directory", filepath.Dir(ex)})
}

// End inserts the buffered properties along with the end time.
func (e *execRecorder) End() {
	for _, entry := range e.entries {
		e.recorder.InsertData(ExecTable, entry)
	}

	e.recorder.InsertData(ExecTable, ExecInfo{"End Time", now()})
	e.entries = nil
}

func now() string {
	return time.Now().Format("2006-01-02 15:04:05.000000000")
}
