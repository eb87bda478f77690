// Package monitoring serves the progress and the device state of a running
// simulation over HTTP.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/xid"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/sarchlab/flashsim/ssd"
)

// DeviceSummary is a snapshot of the state of a device.
type DeviceSummary struct {
	Name           string
	Policy         string
	CapacityBytes  uint64
	BlockSizeBytes uint64
	PageSizeBytes  uint64
	Blocks         uint64
	PagesPerBlock  uint64
	LogicalPages   uint64
	PhysicalPages  uint64
	FreeBlocks     int
	StagedPages    int
	PhysicalWrites uint64
	EraseAge       int64
	WrittenByGC    uint64
	TakenAt        time.Time
}

// Monitor turns a simulation into a server that can be watched from a
// browser.
type Monitor struct {
	portNumber  int
	openBrowser bool
	assetDir    string
	gatherer    prometheus.Gatherer

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar

	deviceLock sync.Mutex
	summary    *DeviceSummary
	histogram  []uint64

	server   *http.Server
	listener net.Listener
}

// NewMonitor creates a new Monitor
func NewMonitor() *Monitor {
	return &Monitor{}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber != 0 && portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithBrowser makes the monitor open the dashboard once the server starts.
func (m *Monitor) WithBrowser(open bool) *Monitor {
	m.openBrowser = open
	return m
}

// WithAssetDir serves the dashboard from dir instead of the pages built into
// the binary.
func (m *Monitor) WithAssetDir(dir string) *Monitor {
	m.assetDir = dir
	return m
}

// WithGatherer sets where the metrics served at /metrics come from.
func (m *Monitor) WithGatherer(g prometheus.Gatherer) *Monitor {
	m.gatherer = g
	return m
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := &ProgressBar{
		ID:        xid.New().String(),
		Name:      name,
		StartTime: time.Now(),
		Total:     total,
	}

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// CompleteProgressBar removes a bar to be shown on the webpage.
func (m *Monitor) CompleteProgressBar(pb *ProgressBar) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	newBars := make([]*ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		if b != pb {
			newBars = append(newBars, b)
		}
	}

	m.progressBars = newBars
}

// ReportDevice takes a snapshot of the device. It must be called from the
// goroutine that drives the device.
func (m *Monitor) ReportDevice(dev *ssd.Device, policy string, freeBlocks int) {
	summary := &DeviceSummary{
		Name:           dev.Name(),
		Policy:         policy,
		CapacityBytes:  dev.CapacityBytes(),
		BlockSizeBytes: dev.BlockSizeBytes(),
		PageSizeBytes:  dev.PageSizeBytes(),
		Blocks:         dev.BlockCount(),
		PagesPerBlock:  dev.PagesPerBlock(),
		LogicalPages:   dev.LogicalPageCount(),
		PhysicalPages:  dev.PhysicalPageCount(),
		FreeBlocks:     freeBlocks,
		StagedPages:    dev.StagedPageCount(),
		PhysicalWrites: dev.PhysicalWrites(),
		EraseAge:       dev.EraseAge(),
		WrittenByGC:    dev.CountWrittenByGC(),
		TakenAt:        time.Now(),
	}
	histogram := dev.ValidCountHistogram()

	m.deviceLock.Lock()
	defer m.deviceLock.Unlock()

	m.summary = summary
	m.histogram = histogram
}

func (m *Monitor) router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	r.HandleFunc("/api/device", m.describeDevice)
	r.HandleFunc("/api/blocks", m.listBlocks)

	if m.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{}))
	}

	r.PathPrefix("/").Handler(http.FileServer(m.assets()))

	return r
}

// StartServer starts the monitor as a web server and returns the port it
// listens on.
func (m *Monitor) StartServer() int {
	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	dieOnErr(err)

	m.listener = listener
	m.server = &http.Server{
		Handler:           m.router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	port := listener.Addr().(*net.TCPAddr).Port
	url := fmt.Sprintf("http://localhost:%d", port)
	fmt.Fprintf(os.Stderr, "Monitoring simulation with %s\n", url)

	go func() {
		err := m.server.Serve(listener)
		if !errors.Is(err, http.ErrServerClosed) {
			dieOnErr(err)
		}
	}()

	if m.openBrowser {
		if err := browser.OpenURL(url); err != nil {
			log.Printf("cannot open browser: %v", err)
		}
	}

	return port
}

// StopServer shuts the web server down.
func (m *Monitor) StopServer(ctx context.Context) error {
	if m.server == nil {
		return nil
	}

	return m.server.Shutdown(ctx)
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	bars := make([]progressRsp, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		bars = append(bars, b.snapshot())
	}
	m.progressBarsLock.Unlock()

	bytes, err := json.Marshal(bars)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(bytes)
	dieOnErr(err)
}

func (m *Monitor) describeDevice(w http.ResponseWriter, r *http.Request) {
	m.deviceLock.Lock()
	defer m.deviceLock.Unlock()

	if m.summary == nil {
		http.Error(w, "device not reported yet", http.StatusNotFound)
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(*m.summary)
	serializer.SetMaxDepth(1)

	field := r.URL.Query().Get("field")
	if field != "" {
		err := serializer.SetEntryPoint(strings.Split(field, "."))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	err := serializer.Serialize(w)
	dieOnErr(err)
}

type blocksRsp struct {
	PagesPerBlock uint64   `json:"pages_per_block"`
	Histogram     []uint64 `json:"histogram"`
}

func (m *Monitor) listBlocks(w http.ResponseWriter, _ *http.Request) {
	m.deviceLock.Lock()
	defer m.deviceLock.Unlock()

	if m.summary == nil {
		http.Error(w, "device not reported yet", http.StatusNotFound)
		return
	}

	bytes, err := json.Marshal(blocksRsp{
		PagesPerBlock: m.summary.PagesPerBlock,
		Histogram:     m.histogram,
	})
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(bytes)
	dieOnErr(err)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	process, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := process.CPUPercent()
	dieOnErr(err)

	memorySize, err := process.MemoryInfo()
	dieOnErr(err)

	rsp := resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	}

	bytes, err := json.Marshal(rsp)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(bytes)
	dieOnErr(err)
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	time.Sleep(time.Second)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	bytes, err := json.Marshal(prof)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(bytes)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
